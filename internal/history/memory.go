package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/csvbatch/internal/core"
)

// MemoryStore keeps history in process memory. It backs tests and the
// server's fallback when no database can be opened.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]core.RunSummary
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]core.RunSummary)}
}

func (m *MemoryStore) Record(_ context.Context, run core.RunSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.RunID] = run
	return nil
}

func (m *MemoryStore) List(_ context.Context, limit int) ([]core.RunSummary, error) {
	m.mu.RLock()
	out := make([]core.RunSummary, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].FinishedAt.Equal(out[j].FinishedAt) {
			return out[i].FinishedAt.After(out[j].FinishedAt)
		}
		return out[i].RunID < out[j].RunID
	})
	if limit = normalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.runs {
		if r.FinishedAt.Before(cutoff) {
			delete(m.runs, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Close() error { return nil }
