package history

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mail-archive/pkg/types"
)

// Store records completed runs and lists past ones. The history is purely
// informational: skip decisions are made from file existence, never from
// this database.
type Store struct {
	db     *DB
	logger *logrus.Logger
}

// NewStore creates a new store instance
func NewStore(db *DB, logger *logrus.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// RecordRun persists one run outcome, assigning it a fresh run ID.
func (s *Store) RecordRun(account string, outcome *types.RunOutcome, startedAt, finishedAt time.Time) (string, error) {
	id := uuid.NewString()

	query := `
		INSERT INTO runs (id, account, folder, dry_run, listed, downloaded, uploaded, skipped_existing, deleted_local, deleted_remote, failed, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.SQL().Exec(query,
		id,
		account,
		outcome.Folder,
		boolToInt(outcome.DryRun),
		outcome.Listed,
		outcome.Downloaded,
		outcome.Uploaded,
		outcome.SkippedExisting,
		outcome.DeletedLocal,
		outcome.DeletedRemote,
		outcome.Failed,
		startedAt.UTC().Format(time.RFC3339),
		finishedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}

	for _, itemErr := range outcome.Errors {
		_, err := s.db.SQL().Exec(
			`INSERT INTO run_errors (run_id, folder, item, kind, reason) VALUES (?, ?, ?, ?, ?)`,
			id, itemErr.Folder, itemErr.Item, itemErr.Kind, itemErr.Reason,
		)
		if err != nil {
			return "", fmt.Errorf("failed to record run error: %w", err)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"run_id": id,
		"folder": outcome.Folder,
	}).Debug("Recorded run")
	return id, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]types.RunRecord, error) {
	if limit < 1 {
		limit = 20
	}

	query := `
		SELECT id, account, folder, dry_run, listed, downloaded, uploaded, skipped_existing, deleted_local, deleted_remote, failed, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC, id
		LIMIT ?
	`
	rows, err := s.db.SQL().Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var records []types.RunRecord
	for rows.Next() {
		var r types.RunRecord
		var dryRun int
		var startedAt, finishedAt string

		err := rows.Scan(
			&r.ID,
			&r.Account,
			&r.Outcome.Folder,
			&dryRun,
			&r.Outcome.Listed,
			&r.Outcome.Downloaded,
			&r.Outcome.Uploaded,
			&r.Outcome.SkippedExisting,
			&r.Outcome.DeletedLocal,
			&r.Outcome.DeletedRemote,
			&r.Outcome.Failed,
			&startedAt,
			&finishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		r.Outcome.DryRun = dryRun != 0
		if r.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
			return nil, fmt.Errorf("failed to parse started_at: %w", err)
		}
		if r.FinishedAt, err = time.Parse(time.RFC3339, finishedAt); err != nil {
			return nil, fmt.Errorf("failed to parse finished_at: %w", err)
		}

		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return records, nil
}

// RunErrors returns the item failures recorded for one run.
func (s *Store) RunErrors(runID string) ([]types.ItemError, error) {
	rows, err := s.db.SQL().Query(
		`SELECT folder, item, kind, reason FROM run_errors WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query run errors: %w", err)
	}
	defer rows.Close()

	var items []types.ItemError
	for rows.Next() {
		var it types.ItemError
		if err := rows.Scan(&it.Folder, &it.Item, &it.Kind, &it.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan run error: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run errors: %w", err)
	}

	return items, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
