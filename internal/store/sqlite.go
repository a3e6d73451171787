package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"resumeopt/internal/errors"
	"resumeopt/internal/types"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS resume_items (
	resume_id  TEXT NOT NULL,
	section    TEXT NOT NULL,
	items      TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (resume_id, section)
)`

// SQLiteStore keeps items in a local SQLite file for CLI use.
type SQLiteStore struct {
	db     *sql.DB
	logger *errors.Logger
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string, logger *errors.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "store.sqlitePath is required", nil)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.NewIOError(errors.ErrCodeStoreFailed, "failed to create store directory", err).
				WithContext("path", path)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeStoreFailed, "failed to open sqlite store", err).
			WithContext("path", path)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errors.NewIOError(errors.ErrCodeStoreFailed, "failed to create sqlite schema", err).
			WithContext("path", path)
	}

	logger.Debug("SQLite store opened", "path", path)
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Items(ctx context.Context, resumeID, section string) ([]types.CandidateItem, error) {
	if err := validateKey(resumeID, section); err != nil {
		return nil, err
	}

	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT items FROM resume_items WHERE resume_id = ? AND section = ?`,
		resumeID, section).Scan(&raw)
	if stderrors.Is(err, sql.ErrNoRows) {
		return []types.CandidateItem{}, nil
	}
	if err != nil {
		return nil, storeError("read", err, resumeID, section)
	}

	items, err := decodeItems([]byte(raw))
	if err != nil {
		return nil, storeError("decode", fmt.Errorf("corrupt item list: %w", err), resumeID, section)
	}
	return items, nil
}

func (s *SQLiteStore) ReplaceItems(ctx context.Context, resumeID, section string, items []types.CandidateItem) error {
	if err := validateKey(resumeID, section); err != nil {
		return err
	}
	raw, err := encodeItems(items)
	if err != nil {
		return storeError("encode", err, resumeID, section)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO resume_items (resume_id, section, items, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (resume_id, section) DO UPDATE SET items = excluded.items, updated_at = excluded.updated_at`,
		resumeID, section, string(raw), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return storeError("write", err, resumeID, section)
	}

	s.logger.Debug("Items replaced", "resume_id", resumeID, "section", section, "count", len(items))
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
