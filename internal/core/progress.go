package core

import "sync"

// ProgressSnapshot is a point-in-time copy of a run's counters.
type ProgressSnapshot struct {
	RunID          string    `json:"run_id,omitempty"`
	Action         Action    `json:"action,omitempty"`
	Status         RunStatus `json:"status"`
	TotalFiles     int       `json:"total_files"`
	ProcessedFiles int       `json:"processed_files"`
	ErrorFiles     int       `json:"error_files"`
	RowsProcessed  int       `json:"rows_processed"`
	CurrentFile    string    `json:"current_file,omitempty"`
	CurrentRow     int       `json:"current_row,omitempty"`
	CurrentTotal   int       `json:"current_total,omitempty"`
}

// BatchProgress holds the live counters of one run. The runner is the only
// writer; any goroutine may take a Snapshot.
type BatchProgress struct {
	mu sync.RWMutex
	s  ProgressSnapshot
}

// NewBatchProgress starts a progress record for a run over totalFiles files.
func NewBatchProgress(runID string, action Action, totalFiles int) *BatchProgress {
	return &BatchProgress{s: ProgressSnapshot{
		RunID:      runID,
		Action:     action,
		Status:     StatusIdle,
		TotalFiles: totalFiles,
	}}
}

// Snapshot returns a copy of the current counters.
func (p *BatchProgress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.s
}

func (p *BatchProgress) update(fn func(s *ProgressSnapshot)) ProgressSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.s)
	return p.s
}
