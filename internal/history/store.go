// Package history keeps summaries of finished batch runs.
//
// Local installs write to a SQLite file; setting DATABASE_URL moves history
// to PostgreSQL. Both stores keep one row per run with the per-file results
// encoded as JSON.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JonMunkholm/csvbatch/internal/config"
	"github.com/JonMunkholm/csvbatch/internal/core"
)

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 50

// Store persists run summaries.
type Store interface {
	core.HistoryRecorder

	// List returns the most recent runs, newest first.
	List(ctx context.Context, limit int) ([]core.RunSummary, error)

	// Prune deletes runs that finished before cutoff and reports how many.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}

// Open returns the store selected by cfg.
func Open(ctx context.Context, cfg config.HistoryConfig) (Store, error) {
	if cfg.UsePostgres() {
		return OpenPostgres(ctx, cfg.DatabaseURL, cfg.MaxConns)
	}
	return OpenSQLite(ctx, cfg.DBPath)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

func encodeFiles(files []core.FileResult) (string, error) {
	if files == nil {
		files = []core.FileResult{}
	}
	data, err := json.Marshal(files)
	if err != nil {
		return "", fmt.Errorf("encode file results: %w", err)
	}
	return string(data), nil
}

func decodeFiles(data []byte) ([]core.FileResult, error) {
	var files []core.FileResult
	if len(data) == 0 {
		return files, nil
	}
	if err := json.Unmarshal(data, &files); err != nil {
		return nil, fmt.Errorf("decode file results: %w", err)
	}
	return files, nil
}
