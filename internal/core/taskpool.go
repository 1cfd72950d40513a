package core

// taskpool.go runs batches off the request goroutine.
//
// Runs are submitted to an ants pool. Each submission resolves a runFuture
// once the task returns or panics; a panic becomes an error on the future
// instead of taking the process down.

import (
	"fmt"

	"github.com/panjf2000/ants/v2"
)

type taskPool struct {
	pool *ants.Pool
}

func newTaskPool(size int) (*taskPool, error) {
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("create task pool: %w", err)
	}
	return &taskPool{pool: pool}, nil
}

// runFuture is the pending result of a submitted run. Get may be called any
// number of times from any goroutine.
type runFuture struct {
	done    chan struct{}
	summary RunSummary
	err     error
}

func (f *runFuture) resolve(summary RunSummary, err error) {
	f.summary = summary
	f.err = err
	close(f.done)
}

// Get blocks until the run finishes.
func (f *runFuture) Get() (RunSummary, error) {
	<-f.done
	return f.summary, f.err
}

// Done is closed when the run finishes.
func (f *runFuture) Done() <-chan struct{} {
	return f.done
}

func newRunFuture() *runFuture {
	return &runFuture{done: make(chan struct{})}
}

// Submit schedules task and resolves f with its result. An error means the
// pool rejected it: task will never run and f is resolved with the error.
func (p *taskPool) Submit(f *runFuture, task func() (RunSummary, error)) error {
	err := p.pool.Submit(func() {
		var (
			summary RunSummary
			err     error
		)
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("run panicked: %v", r)
			}
			f.resolve(summary, err)
		}()
		summary, err = task()
	})
	if err != nil {
		err = fmt.Errorf("submit run: %w", err)
		f.resolve(RunSummary{}, err)
		return err
	}
	return nil
}

func (p *taskPool) Release() {
	p.pool.Release()
}
