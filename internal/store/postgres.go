package store

import (
	"context"
	"embed"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"resumeopt/internal/config"
	"resumeopt/internal/errors"
	"resumeopt/internal/types"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// PostgresStore keeps items in Postgres for the server.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *errors.Logger
}

// OpenPostgres connects a pool to cfg.DSN and applies migrations when
// cfg.AutoMigrate is set.
func OpenPostgres(ctx context.Context, cfg config.StoreConfig, logger *errors.Logger) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "store.dsn is required for the postgres driver", nil)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "invalid store.dsn", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeStoreFailed, "failed to create postgres pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.NewIOError(errors.ErrCodeStoreFailed, "failed to reach postgres", err).
			WithContext("host", poolCfg.ConnConfig.Host)
	}

	s := &PostgresStore{pool: pool, logger: logger}
	if cfg.AutoMigrate {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, errors.NewIOError(errors.ErrCodeStoreFailed, "failed to migrate postgres schema", err)
		}
	}

	logger.Info("Postgres store connected", "host", poolCfg.ConnConfig.Host, "max_conns", poolCfg.MaxConns)
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	files, err := migrationFiles()
	if err != nil {
		return err
	}
	for _, name := range files {
		data, err := schemaFS.ReadFile("schema/" + name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("execute %s: %w", name, err)
		}
		s.logger.Debug("Applied migration", "file", name)
	}
	return nil
}

// migrationFiles lists the embedded .sql files in apply order.
func migrationFiles() ([]string, error) {
	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return nil, fmt.Errorf("read schema dir: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (s *PostgresStore) Items(ctx context.Context, resumeID, section string) ([]types.CandidateItem, error) {
	if err := validateKey(resumeID, section); err != nil {
		return nil, err
	}

	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT items FROM resume_items WHERE resume_id = $1 AND section = $2`,
		resumeID, section).Scan(&raw)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return []types.CandidateItem{}, nil
	}
	if err != nil {
		return nil, storeError("read", err, resumeID, section)
	}

	items, err := decodeItems(raw)
	if err != nil {
		return nil, storeError("decode", fmt.Errorf("corrupt item list: %w", err), resumeID, section)
	}
	return items, nil
}

func (s *PostgresStore) ReplaceItems(ctx context.Context, resumeID, section string, items []types.CandidateItem) error {
	if err := validateKey(resumeID, section); err != nil {
		return err
	}
	raw, err := encodeItems(items)
	if err != nil {
		return storeError("encode", err, resumeID, section)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO resume_items (resume_id, section, items, updated_at) VALUES ($1, $2, $3::jsonb, now())
		ON CONFLICT (resume_id, section) DO UPDATE SET items = EXCLUDED.items, updated_at = EXCLUDED.updated_at`,
		resumeID, section, string(raw))
	if err != nil {
		return storeError("write", err, resumeID, section)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
