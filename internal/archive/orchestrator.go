package archive

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mail-archive/internal/retention"
	"github.com/brandon/mail-archive/pkg/types"
)

// MailSession is the transport surface the orchestrator drives. Handles are
// valid only for the lifetime of the session that produced them.
type MailSession interface {
	ListMessages(folder string, before *time.Time) ([]types.MessageHandle, error)
	FetchRaw(uid uint32) ([]byte, error)
	DeleteMessages(folder string, uids []uint32) (int, error)
}

// StorageSession is the remote mirror surface. Exists is the only call a
// preview run makes against it.
type StorageSession interface {
	Exists(path string) (bool, error)
	EnsureDir(path string) error
	WriteFile(path string, data []byte, overwrite bool) (types.WriteResult, error)
}

// Options configure one run. DeletionConfirmed is a pre-resolved flag: the
// orchestrator never prompts, interactive confirmation is the caller's job.
type Options struct {
	// OutputDir is the local archive root; messages land under
	// <OutputDir>/<folder>/.
	OutputDir string
	// RemotePath is the share-relative directory mirrored messages go
	// under; empty unless Mirror is set.
	RemotePath string

	Mirror            bool
	Overwrite         bool
	DeleteLocal       bool
	DryRun            bool
	Clean             bool
	Since             *retention.Expression
	DeletionConfirmed bool
}

// Orchestrator drives one folder run: listing, downloading, mirroring,
// local cleanup and retention deletion. Item failures are recorded and the
// run continues; only connection-level failures abort it.
type Orchestrator struct {
	mail   MailSession
	store  StorageSession
	opts   Options
	retry  RetryPolicy
	logger *logrus.Logger
	now    func() time.Time
}

// NewOrchestrator creates an orchestrator. store may be nil when mirroring
// is not requested.
func NewOrchestrator(mail MailSession, store StorageSession, opts Options, logger *logrus.Logger) (*Orchestrator, error) {
	if opts.Mirror && store == nil {
		return nil, fmt.Errorf("mirroring requested without a storage session")
	}
	if opts.DeleteLocal && !opts.Mirror {
		return nil, fmt.Errorf("delete-local requires mirroring")
	}
	return &Orchestrator{
		mail:   mail,
		store:  store,
		opts:   opts,
		retry:  DefaultFetchRetry(),
		logger: logger,
		now:    time.Now,
	}, nil
}

// WithClock overrides the wall clock, primarily for tests.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	if now != nil {
		o.now = now
	}
	return o
}

// confirmDeletion enforces the destructive-deletion gate. A missing age
// expression means delete everything listed, which is exactly why the
// confirmed flag is required rather than implied.
func (o *Orchestrator) confirmDeletion() error {
	if !o.opts.Clean || o.opts.DryRun {
		return nil
	}
	if !o.opts.DeletionConfirmed {
		return fmt.Errorf("deletion requested but not confirmed")
	}
	return nil
}

// ArchiveFolder runs the full pipeline for one folder. In preview mode every
// read-only step still runs and the outcome reports the identical set of
// items a real run would act on, but no message is fetched, written or
// deleted.
func (o *Orchestrator) ArchiveFolder(folder string) (*types.RunOutcome, error) {
	if err := o.confirmDeletion(); err != nil {
		return nil, err
	}

	outcome := &types.RunOutcome{Folder: folder, DryRun: o.opts.DryRun}

	handles, err := o.mail.ListMessages(folder, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list folder %s: %w", folder, err)
	}
	outcome.Listed = len(handles)

	localFolder := filepath.Join(o.opts.OutputDir, SanitizeName(folder))
	if !o.opts.DryRun && len(handles) > 0 {
		if err := os.MkdirAll(localFolder, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	mat := NewMaterializer(o.logger)
	failed := make(map[uint32]bool)

	for _, handle := range handles {
		if err := o.processMessage(folder, localFolder, mat, handle, outcome); err != nil {
			failed[handle.UID] = true
			o.record(outcome, folder, fmt.Sprintf("uid %d", handle.UID), err)
		}
	}

	if o.opts.Clean {
		o.deleteByRetention(folder, handles, failed, outcome)
	}

	o.logger.WithFields(logrus.Fields{
		"folder":     folder,
		"listed":     outcome.Listed,
		"downloaded": outcome.Downloaded,
		"failed":     outcome.Failed,
		"dry_run":    outcome.DryRun,
	}).Info("Folder run complete")

	return outcome, nil
}

// processMessage takes one message through download, mirror and local
// cleanup. An error return means the message failed and must not be cleaned
// from the server.
func (o *Orchestrator) processMessage(folder, localFolder string, mat *Materializer, handle types.MessageHandle, outcome *types.RunOutcome) error {
	dir := filepath.Join(localFolder, mat.DirName(handle))

	var msg *types.MaterializedMessage
	switch {
	case AlreadyPresent(dir, handle.Size):
		// File-existence check is the only cross-run skip logic. When
		// mirroring is on the mirror step decides whether the message counts
		// as skipped; counting here too would tally the message twice.
		if !o.opts.Mirror {
			outcome.SkippedExisting++
		}
		existing, err := restoreMaterialized(dir)
		if err != nil {
			return err
		}
		msg = existing
	case o.opts.DryRun:
		outcome.Downloaded++
	default:
		raw, err := o.fetchWithRetry(handle.UID)
		if err != nil {
			return err
		}
		m, err := mat.Materialize(dir, raw)
		if err != nil {
			return err
		}
		msg = m
		outcome.Downloaded++
	}

	if !o.opts.Mirror {
		return nil
	}

	mirrored, err := o.mirrorMessage(dir, msg, outcome)
	if err != nil {
		return err
	}

	if o.opts.DeleteLocal && mirrored {
		if o.opts.DryRun {
			outcome.DeletedLocal++
			return nil
		}
		if err := os.RemoveAll(dir); err != nil {
			return NewError(KindWrite, "remove "+dir, fmt.Errorf("failed to delete local files: %w", err))
		}
		outcome.DeletedLocal++
	}

	return nil
}

// fetchWithRetry downloads one raw message under the bounded fetch retry
// policy.
func (o *Orchestrator) fetchWithRetry(uid uint32) ([]byte, error) {
	var raw []byte
	err := o.retry.Do(func() error {
		b, err := o.mail.FetchRaw(uid)
		if err != nil {
			return err
		}
		raw = b
		return nil
	})
	return raw, err
}

// mirrorMessage copies one message directory to the remote target. It
// reports whether the message ended up fully present remotely, which gates
// local cleanup. A preview probes every file the message carries, so a
// remote directory left half-written by an earlier failed run previews as
// an upload exactly as a real run would treat it. Only when the message was
// never materialized locally is the raw file the sole probe target; that
// state can follow a mirror-then-delete-local run, which only completes
// with the remote directory whole.
func (o *Orchestrator) mirrorMessage(dir string, msg *types.MaterializedMessage, outcome *types.RunOutcome) (bool, error) {
	remoteDir := path.Join(o.opts.RemotePath, filepath.Base(dir))

	if o.opts.DryRun {
		if o.opts.Overwrite {
			outcome.Uploaded++
			return true, nil
		}
		remote := []string{path.Join(remoteDir, RawFileName)}
		if msg != nil {
			remote = remote[:0]
			for _, local := range append([]string{msg.RawPath}, msg.Attachments...) {
				remote = append(remote, path.Join(remoteDir, filepath.Base(local)))
			}
		}
		for _, p := range remote {
			exists, err := o.store.Exists(p)
			if err != nil {
				return false, err
			}
			if !exists {
				outcome.Uploaded++
				return true, nil
			}
		}
		outcome.SkippedExisting++
		return true, nil
	}

	if msg == nil {
		return false, nil
	}

	if err := o.store.EnsureDir(remoteDir); err != nil {
		return false, err
	}

	written := 0
	for _, local := range append([]string{msg.RawPath}, msg.Attachments...) {
		data, err := os.ReadFile(local)
		if err != nil {
			return false, NewError(KindWrite, "read "+local, fmt.Errorf("failed to read local file: %w", err))
		}
		result, err := o.store.WriteFile(path.Join(remoteDir, filepath.Base(local)), data, o.opts.Overwrite)
		if err != nil {
			return false, err
		}
		if result == types.FileWritten {
			written++
		}
	}

	if written > 0 {
		outcome.Uploaded++
	} else {
		outcome.SkippedExisting++
	}
	return true, nil
}

// deleteByRetention applies the retention filter to the listed handles and
// removes the qualifying messages from the server. Messages that failed to
// download or mirror this run are never deleted.
func (o *Orchestrator) deleteByRetention(folder string, handles []types.MessageHandle, failed map[uint32]bool, outcome *types.RunOutcome) {
	now := o.now()

	var uids []uint32
	for _, h := range handles {
		if failed[h.UID] {
			continue
		}
		if retention.ShouldDelete(h.InternalDate, now, o.opts.Since) {
			uids = append(uids, h.UID)
		}
	}

	if o.opts.DryRun {
		outcome.DeletedRemote = len(uids)
		return
	}

	deleted, err := o.mail.DeleteMessages(folder, uids)
	if err != nil {
		o.record(outcome, folder, fmt.Sprintf("delete batch of %d", len(uids)), err)
		return
	}
	outcome.DeletedRemote = deleted
}

// CleanFolder is the clean-only path: it lists with the server-side cutoff
// filter so message bodies are never fetched, then deletes what the
// retention filter selects.
func (o *Orchestrator) CleanFolder(folder string) (*types.RunOutcome, error) {
	if err := o.confirmDeletion(); err != nil {
		return nil, err
	}

	outcome := &types.RunOutcome{Folder: folder, DryRun: o.opts.DryRun}

	var before *time.Time
	if o.opts.Since != nil {
		cutoff := o.opts.Since.Cutoff(o.now())
		before = &cutoff
	}

	handles, err := o.mail.ListMessages(folder, before)
	if err != nil {
		return nil, fmt.Errorf("failed to list folder %s: %w", folder, err)
	}
	outcome.Listed = len(handles)

	// The server-side BEFORE filter has date granularity; the retention
	// filter re-applies the strict cutoff comparison.
	o.deleteByRetention(folder, handles, nil, outcome)

	return outcome, nil
}

// record captures a per-item failure without aborting the run.
func (o *Orchestrator) record(outcome *types.RunOutcome, folder, item string, err error) {
	outcome.Failed++
	outcome.Errors = append(outcome.Errors, types.ItemError{
		Folder: folder,
		Item:   item,
		Kind:   string(KindOf(err)),
		Reason: err.Error(),
	})
	o.logger.WithError(err).WithFields(logrus.Fields{
		"folder": folder,
		"item":   item,
	}).Warn("Item failed")
}

// restoreMaterialized rebuilds a MaterializedMessage from an existing
// message directory so an earlier run's files still get mirrored.
func restoreMaterialized(dir string) (*types.MaterializedMessage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, NewError(KindWrite, "read "+dir, fmt.Errorf("failed to read message directory: %w", err))
	}

	msg := &types.MaterializedMessage{
		Dir:     dir,
		RawPath: filepath.Join(dir, RawFileName),
	}
	for _, e := range entries {
		if e.IsDir() || e.Name() == RawFileName {
			continue
		}
		msg.Attachments = append(msg.Attachments, filepath.Join(dir, e.Name()))
	}
	return msg, nil
}
