package types

import "time"

// FolderSummary is a point-in-time snapshot of one remote mailbox folder.
// It is recomputed on every listing call and has no identity beyond its name.
type FolderSummary struct {
	Name         string `json:"name"`
	MessageCount uint32 `json:"message_count"`
	UnseenCount  uint32 `json:"unseen_count"`
}

// MessageHandle identifies one remote message within a single open mailbox
// session. UIDs may be reassigned by some servers across sessions, so a
// handle is never persisted or reused after the session that produced it
// is closed.
type MessageHandle struct {
	UID          uint32    `json:"uid"`
	Subject      string    `json:"subject"`
	InternalDate time.Time `json:"internal_date"`
	Size         uint32    `json:"size"`
}

// MaterializedMessage is the local on-disk result of downloading one message:
// a directory holding the raw message file plus one file per attachment.
type MaterializedMessage struct {
	Dir         string   `json:"dir"`
	RawPath     string   `json:"raw_path"`
	Attachments []string `json:"attachments"`
	Subject     string   `json:"subject"`
}

// WriteResult reports what a remote write actually did.
type WriteResult int

const (
	// FileWritten means the bytes were transferred and the remote file replaced.
	FileWritten WriteResult = iota
	// FileSkipped means the file already existed and overwrite was off; no
	// bytes were transferred.
	FileSkipped
)

// ItemError records one per-item failure with enough context to retry the
// item manually. Runs are not aborted by item failures.
type ItemError struct {
	Folder string `json:"folder"`
	Item   string `json:"item"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// RunOutcome aggregates what one folder run did (or, in preview mode, would
// have done). Counters are message-granular. It is the sole result surfaced
// to the caller and is immutable once the run completes.
type RunOutcome struct {
	Folder          string      `json:"folder"`
	Listed          int         `json:"listed"`
	Downloaded      int         `json:"downloaded"`
	Uploaded        int         `json:"uploaded"`
	SkippedExisting int         `json:"skipped_existing"`
	DeletedLocal    int         `json:"deleted_local"`
	DeletedRemote   int         `json:"deleted_remote"`
	Failed          int         `json:"failed"`
	DryRun          bool        `json:"dry_run"`
	Errors          []ItemError `json:"errors,omitempty"`
}

// RunRecord is one persisted entry in the local run history.
type RunRecord struct {
	ID         string     `json:"id"`
	Account    string     `json:"account"`
	Outcome    RunOutcome `json:"outcome"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
}
