// Package postgres records finished corpus builds in a Postgres manifest table.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/wikicorpus/internal/corpus"
)

const defaultTable = "corpus_runs"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RunStoreConfig controls the Postgres connection pool used for manifest rows.
type RunStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// RunStore implements corpus.RunRecorder.
type RunStore struct {
	pool  execCloser
	table string
}

// NewRunStore connects to Postgres using cfg.
func NewRunStore(ctx context.Context, cfg RunStoreConfig) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("manifest.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RunStore{pool: pool, table: table}, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRunStoreWithPool(pool execCloser, table string) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &RunStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the manifest table when it does not exist.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id       TEXT PRIMARY KEY,
	variant      TEXT NOT NULL,
	output_path  TEXT NOT NULL,
	total_pages  BIGINT NOT NULL,
	articles     BIGINT NOT NULL,
	variants     JSONB NOT NULL,
	rendered     BIGINT NOT NULL,
	dropped      BIGINT NOT NULL,
	written      BIGINT NOT NULL,
	row_groups   BIGINT NOT NULL,
	sha256       TEXT NOT NULL,
	uris         TEXT[] NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// RecordRun upserts the manifest row for report.
func (s *RunStore) RecordRun(ctx context.Context, report corpus.Report, uris []string, checksum string) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("run store is not configured")
	}
	if report.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	variants := report.Scan.Variants
	if variants == nil {
		variants = corpus.VariantCounters{}
	}
	variantsJSON, err := json.Marshal(variants)
	if err != nil {
		return fmt.Errorf("marshal variants: %w", err)
	}
	if uris == nil {
		uris = []string{}
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	variant,
	output_path,
	total_pages,
	articles,
	variants,
	rendered,
	dropped,
	written,
	row_groups,
	sha256,
	uris,
	started_at,
	finished_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
)
ON CONFLICT (run_id) DO UPDATE SET
	sha256 = EXCLUDED.sha256,
	uris = EXCLUDED.uris,
	finished_at = EXCLUDED.finished_at`, s.table)

	args := []any{
		report.RunID,
		string(report.Variant),
		report.OutputPath,
		int64(report.Scan.TotalPages),
		int64(report.Scan.Articles),
		variantsJSON,
		report.Rendered,
		report.Dropped,
		report.Written,
		report.RowGroups,
		checksum,
		uris,
		report.StartedAt,
		report.FinishedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}
