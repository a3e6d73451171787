// Package store persists the item list of each resume section.
package store

import (
	"context"
	"encoding/json"
	"strings"

	"resumeopt/internal/config"
	"resumeopt/internal/errors"
	"resumeopt/internal/types"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ItemStore reads and replaces the item list of a (resume, section) key.
// Replacing is last-writer-wins.
type ItemStore interface {
	Items(ctx context.Context, resumeID, section string) ([]types.CandidateItem, error)
	ReplaceItems(ctx context.Context, resumeID, section string, items []types.CandidateItem) error
	Close() error
}

// Open connects the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig, logger *errors.Logger) (ItemStore, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", DriverSQLite:
		s, err := OpenSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		s, err := OpenPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "unsupported store driver", nil).
			WithContext("driver", cfg.Driver)
	}
}

func validateKey(resumeID, section string) error {
	if strings.TrimSpace(resumeID) == "" {
		return errors.NewValidationError(errors.ErrCodeInvalidInput, "resume id is required", nil)
	}
	if strings.TrimSpace(section) == "" {
		return errors.NewValidationError(errors.ErrCodeInvalidInput, "section is required", nil)
	}
	return nil
}

func encodeItems(items []types.CandidateItem) ([]byte, error) {
	if items == nil {
		items = []types.CandidateItem{}
	}
	return json.Marshal(items)
}

func decodeItems(raw []byte) ([]types.CandidateItem, error) {
	items := []types.CandidateItem{}
	if len(raw) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func storeError(op string, err error, resumeID, section string) error {
	return errors.NewIOError(errors.ErrCodeStoreFailed, "store "+op+" failed", err).
		WithContext("resume_id", resumeID).
		WithContext("section", section)
}
