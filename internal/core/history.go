package core

import (
	"context"
	"time"
)

// HistoryRecorder persists summaries of finished runs.
type HistoryRecorder interface {
	Record(ctx context.Context, run RunSummary) error
}

// HistoryTimeout bounds the write of one run summary.
var HistoryTimeout = 5 * time.Second

func (s *Service) recordHistory(summary RunSummary) {
	if s.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), HistoryTimeout)
	defer cancel()

	if err := s.history.Record(ctx, summary); err != nil {
		s.logger.Error("record run history failed",
			"run_id", summary.RunID,
			"error", err,
		)
	}
}
