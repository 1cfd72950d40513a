package core

// run_limiter.go guards the one-run-at-a-time rule.
//
// The limiter is a semaphore with a configurable number of slots. The service
// uses a single slot: a second StartRun while one is active fails immediately
// with ErrRunInProgress instead of queueing. WaitForDrain lets shutdown block
// until the active run has released its slot.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRunInProgress is returned when a run is requested while another is active.
var ErrRunInProgress = errors.New("a batch run is already in progress")

// RunLimiter controls how many runs may be active at once.
type RunLimiter struct {
	semaphore chan struct{}

	mu     sync.RWMutex
	active int
}

// NewRunLimiter creates a limiter with maxConcurrent slots (minimum 1).
func NewRunLimiter(maxConcurrent int) *RunLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &RunLimiter{semaphore: make(chan struct{}, maxConcurrent)}
}

// TryAcquire takes a slot without blocking. It returns ErrRunInProgress when
// every slot is taken. The caller must Release a slot it acquired.
func (l *RunLimiter) TryAcquire() error {
	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	default:
		return ErrRunInProgress
	}
}

// Release frees a slot taken by TryAcquire.
func (l *RunLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of runs holding a slot.
func (l *RunLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// Available returns the number of free slots.
func (l *RunLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// WaitForDrain blocks until no run holds a slot or ctx is done.
func (l *RunLimiter) WaitForDrain(ctx context.Context) error {
	if l.ActiveCount() == 0 {
		return nil
	}
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.ActiveCount() == 0 {
				return nil
			}
		}
	}
}
