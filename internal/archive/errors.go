package archive

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for reporting and for the propagation policy:
// connection failures abort the run, everything else is recorded at the item
// boundary and processing continues.
type Kind string

const (
	// KindConnAuth, KindConnNetwork and KindConnTLS are connection failures,
	// fatal to the whole run.
	KindConnAuth    Kind = "connection/auth"
	KindConnNetwork Kind = "connection/network"
	KindConnTLS     Kind = "connection/tls"

	// KindFetch is a per-message fetch failure; transient variants get one
	// automatic retry before being recorded.
	KindFetch Kind = "fetch"
	// KindWrite is a per-file local or remote write failure.
	KindWrite Kind = "write"
	// KindDelete is a per-batch deletion failure; completed downloads and
	// uploads are never rolled back because of it.
	KindDelete Kind = "delete"
	// KindParse is a malformed message structure; the message is skipped.
	KindParse Kind = "parse"
)

// Error is a classified failure produced by the adapters and the
// orchestrator.
type Error struct {
	Kind      Kind
	Op        string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind and the operation that produced it.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NewRetryableError marks a failure as transient so the bounded retry policy
// may attempt it again.
func NewRetryableError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Retryable: true, Err: err}
}

// KindOf extracts the failure kind from err, or the empty kind when err
// carries no classification.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsConnectionError reports whether err is fatal to the whole run.
func IsConnectionError(err error) bool {
	switch KindOf(err) {
	case KindConnAuth, KindConnNetwork, KindConnTLS:
		return true
	}
	return false
}

// IsRetryable reports whether err was classified as transient.
func IsRetryable(err error) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return false
}
