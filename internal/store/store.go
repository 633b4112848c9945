package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/nelakvee/recordsync/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sync_runs (
    run_id       TEXT PRIMARY KEY,
    started_at   TIMESTAMPTZ NOT NULL,
    finished_at  TIMESTAMPTZ,
    total        INTEGER NOT NULL,
    processed    INTEGER NOT NULL,
    committed    INTEGER NOT NULL,
    aborted      BOOLEAN NOT NULL,
    abort_reason TEXT NOT NULL,
    counts       JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS sync_results (
    run_id      TEXT NOT NULL,
    item_index  INTEGER NOT NULL,
    item_key    TEXT NOT NULL,
    status      TEXT NOT NULL,
    outcome     TEXT NOT NULL,
    stage       TEXT NOT NULL,
    diagnostic  TEXT NOT NULL,
    screenshot  TEXT NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    duration_ms BIGINT NOT NULL,
    PRIMARY KEY (run_id, item_index)
);`

const upsertResultSQL = `
INSERT INTO sync_results (run_id, item_index, item_key, status, outcome, stage, diagnostic, screenshot, started_at, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (run_id, item_index) DO UPDATE SET
    item_key = EXCLUDED.item_key,
    status = EXCLUDED.status,
    outcome = EXCLUDED.outcome,
    stage = EXCLUDED.stage,
    diagnostic = EXCLUDED.diagnostic,
    screenshot = EXCLUDED.screenshot,
    started_at = EXCLUDED.started_at,
    duration_ms = EXCLUDED.duration_ms;`

const upsertRunSQL = `
INSERT INTO sync_runs (run_id, started_at, finished_at, total, processed, committed, aborted, abort_reason, counts)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (run_id) DO UPDATE SET
    finished_at = EXCLUDED.finished_at,
    processed = EXCLUDED.processed,
    committed = EXCLUDED.committed,
    aborted = EXCLUDED.aborted,
    abort_reason = EXCLUDED.abort_reason,
    counts = EXCLUDED.counts;`

// Store persists batch results to PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance, verifies the connection and makes sure
// the tables exist.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// SaveResult upserts a single item result.
func (s *Store) SaveResult(ctx context.Context, r schemas.BatchResult) error {
	if _, err := s.pool.Exec(ctx, upsertResultSQL, resultArgs(r)...); err != nil {
		return fmt.Errorf("failed to save result for %s: %w", r.Key, err)
	}
	return nil
}

// SaveSummary writes the run row and re-upserts every result in one
// transaction, so results that failed to stream are not lost.
func (s *Store) SaveSummary(ctx context.Context, summary *schemas.RunSummary) error {
	counts, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(summary.Counts)
	if err != nil {
		return fmt.Errorf("failed to encode status counts: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, upsertRunSQL,
		summary.RunID,
		summary.StartedAt.UTC(),
		summary.FinishedAt.UTC(),
		summary.Total,
		summary.Processed,
		summary.Committed,
		summary.Aborted,
		summary.AbortReason,
		counts,
	); err != nil {
		return fmt.Errorf("failed to save run %s: %w", summary.RunID, err)
	}

	for _, r := range summary.Results {
		if _, err := tx.Exec(ctx, upsertResultSQL, resultArgs(r)...); err != nil {
			return fmt.Errorf("failed to save result for %s: %w", r.Key, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Run summary persisted.", zap.String("run_id", summary.RunID), zap.Int("results", len(summary.Results)))
	return nil
}

func resultArgs(r schemas.BatchResult) []any {
	return []any{
		r.RunID,
		r.Index,
		r.Key,
		string(r.Status),
		string(r.Outcome),
		string(r.Stage),
		r.Diagnostic,
		r.Screenshot,
		r.StartedAt.UTC(),
		r.Duration.Milliseconds(),
	}
}
