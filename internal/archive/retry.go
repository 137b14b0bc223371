package archive

// RetryPolicy is a bounded retry with an error classification function.
// Retries apply only to message fetches; writes and deletions are never
// retried automatically to avoid duplicate side effects on a flaky but
// partially-successful operation.
type RetryPolicy struct {
	MaxAttempts int
	Retryable   func(error) bool
}

// DefaultFetchRetry allows a single automatic retry of transient fetch
// failures.
func DefaultFetchRetry() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 2,
		Retryable:   IsRetryable,
	}
}

// Do runs fn up to MaxAttempts times, stopping early on success or on the
// first error the policy classifies as permanent.
func (p RetryPolicy) Do(fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
	}
	return err
}
