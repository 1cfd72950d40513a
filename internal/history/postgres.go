package history

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/csvbatch/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS batch_runs (
	run_id          TEXT PRIMARY KEY,
	action          TEXT NOT NULL,
	status          TEXT NOT NULL,
	start_row       INTEGER NOT NULL,
	log_dir         TEXT NOT NULL,
	total_files     INTEGER NOT NULL,
	processed_files INTEGER NOT NULL,
	error_files     INTEGER NOT NULL,
	rows_processed  INTEGER NOT NULL,
	files           JSONB NOT NULL,
	requester_ip    TEXT NOT NULL DEFAULT '',
	user_agent      TEXT NOT NULL DEFAULT '',
	error           TEXT NOT NULL DEFAULT '',
	started_at      TIMESTAMPTZ NOT NULL,
	finished_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_batch_runs_finished ON batch_runs(finished_at);`

// PostgresStore keeps history in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and ensures the schema exists.
func OpenPostgres(ctx context.Context, databaseURL string, maxConns int) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Record implements core.HistoryRecorder.
func (s *PostgresStore) Record(ctx context.Context, run core.RunSummary) error {
	files, err := encodeFiles(run.Files)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO batch_runs (
			run_id, action, status, start_row, log_dir,
			total_files, processed_files, error_files, rows_processed,
			files, requester_ip, user_agent, error, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11, $12, $13, $14, $15)
		ON CONFLICT (run_id) DO UPDATE SET
			status = EXCLUDED.status,
			processed_files = EXCLUDED.processed_files,
			error_files = EXCLUDED.error_files,
			rows_processed = EXCLUDED.rows_processed,
			files = EXCLUDED.files,
			error = EXCLUDED.error,
			finished_at = EXCLUDED.finished_at`,
		run.RunID, string(run.Action), string(run.Status), run.StartRow, run.LogDir,
		run.Progress.TotalFiles, run.Progress.ProcessedFiles, run.Progress.ErrorFiles, run.Progress.RowsProcessed,
		files, run.RequesterIP, run.UserAgent, run.Error, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.RunID, err)
	}
	return nil
}

// List returns the most recent runs, newest first.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]core.RunSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, action, status, start_row, log_dir,
		       total_files, processed_files, error_files, rows_processed,
		       files, requester_ip, user_agent, error, started_at, finished_at
		FROM batch_runs
		ORDER BY finished_at DESC, run_id
		LIMIT $1`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.RunSummary, error) {
		var (
			r              core.RunSummary
			action, status string
			files          []byte
		)
		if err := row.Scan(
			&r.RunID, &action, &status, &r.StartRow, &r.LogDir,
			&r.Progress.TotalFiles, &r.Progress.ProcessedFiles, &r.Progress.ErrorFiles, &r.Progress.RowsProcessed,
			&files, &r.RequesterIP, &r.UserAgent, &r.Error, &r.StartedAt, &r.FinishedAt,
		); err != nil {
			return r, err
		}
		r.Action = core.Action(action)
		r.Status = core.RunStatus(status)
		r.Progress.RunID = r.RunID
		r.Progress.Action = r.Action
		r.Progress.Status = r.Status
		var err error
		r.Files, err = decodeFiles(files)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan runs: %w", err)
	}
	return runs, nil
}

// Prune deletes runs that finished before cutoff.
func (s *PostgresStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM batch_runs WHERE finished_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
