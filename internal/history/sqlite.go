package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/JonMunkholm/csvbatch/internal/core"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
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
	files           TEXT NOT NULL,
	requester_ip    TEXT NOT NULL DEFAULT '',
	user_agent      TEXT NOT NULL DEFAULT '',
	error           TEXT NOT NULL DEFAULT '',
	started_at      INTEGER NOT NULL,
	finished_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_batch_runs_finished ON batch_runs(finished_at);`

// SQLiteStore keeps history in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history db: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Record implements core.HistoryRecorder. Recording the same run id twice
// replaces the earlier row.
func (s *SQLiteStore) Record(ctx context.Context, run core.RunSummary) error {
	files, err := encodeFiles(run.Files)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO batch_runs (
			run_id, action, status, start_row, log_dir,
			total_files, processed_files, error_files, rows_processed,
			files, requester_ip, user_agent, error, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, string(run.Action), string(run.Status), run.StartRow, run.LogDir,
		run.Progress.TotalFiles, run.Progress.ProcessedFiles, run.Progress.ErrorFiles, run.Progress.RowsProcessed,
		files, run.RequesterIP, run.UserAgent, run.Error,
		run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.RunID, err)
	}
	return nil
}

// List returns the most recent runs, newest first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]core.RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, action, status, start_row, log_dir,
		       total_files, processed_files, error_files, rows_processed,
		       files, requester_ip, user_agent, error, started_at, finished_at
		FROM batch_runs
		ORDER BY finished_at DESC, run_id
		LIMIT ?`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []core.RunSummary
	for rows.Next() {
		var (
			r                 core.RunSummary
			action, status    string
			files             string
			started, finished int64
		)
		if err := rows.Scan(
			&r.RunID, &action, &status, &r.StartRow, &r.LogDir,
			&r.Progress.TotalFiles, &r.Progress.ProcessedFiles, &r.Progress.ErrorFiles, &r.Progress.RowsProcessed,
			&files, &r.RequesterIP, &r.UserAgent, &r.Error, &started, &finished,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Action = core.Action(action)
		r.Status = core.RunStatus(status)
		r.Progress.RunID = r.RunID
		r.Progress.Action = r.Action
		r.Progress.Status = r.Status
		r.StartedAt = time.UnixMilli(started).UTC()
		r.FinishedAt = time.UnixMilli(finished).UTC()
		if r.Files, err = decodeFiles([]byte(files)); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Prune deletes runs that finished before cutoff.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM batch_runs WHERE finished_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
