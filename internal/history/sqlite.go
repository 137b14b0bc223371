package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// DB is the SQLite-backed run history database.
type DB struct {
	db     *sql.DB
	logger *logrus.Logger
}

// Open opens the history database at dbPath, creating the file and its
// parent directory on first use. The schema is applied idempotently on
// every open.
func Open(dbPath string, logger *logrus.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	logger.WithField("path", dbPath).Debug("Run history ready")
	return &DB{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (h *DB) Close() error {
	if h.db == nil {
		return nil
	}
	err := h.db.Close()
	h.db = nil
	return err
}

// SQL returns the underlying connection for the store's queries.
func (h *DB) SQL() *sql.DB {
	return h.db
}
