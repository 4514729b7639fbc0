// Package workerpool runs a batch of independent jobs across a bounded
// number of goroutines, built on the same work-stealing pool library
// found elsewhere in this engine's dependency surface. Batch operations
// (store_files_from_list, owe_files_from_list, owe_all_files) each submit
// one job per item and collect results in submission order.
package workerpool

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Error wraps a pool construction or submission failure.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("workerpool: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Pool runs jobs across at most size goroutines.
type Pool struct {
	ap *ants.Pool
}

// New creates a Pool with the given concurrency. size <= 0 falls back to
// ants.DefaultAntsPoolSize (math.MaxInt32, in effect unbounded).
func New(size int) (*Pool, error) {
	if size <= 0 {
		size = ants.DefaultAntsPoolSize
	}
	ap, err := ants.NewPool(size, ants.WithPreAlloc(false))
	if err != nil {
		return nil, &Error{Op: "new", Err: err}
	}
	return &Pool{ap: ap}, nil
}

// Release stops accepting new jobs. It does not wait for running jobs to
// finish; Run itself waits for every job it submitted before returning.
func (p *Pool) Release() {
	p.ap.Release()
}

// Job is one unit of batch work: it receives its own index into the
// original item slice so callers can correlate results without threading
// extra context through the closure.
type Job func(ctx context.Context, index int) error

// Run submits one job per index in [0, n) and blocks until all have
// completed or ctx is cancelled. Results are returned in index order; a
// cancelled context still waits for already-submitted jobs to return, but
// stops submitting new ones. The returned slice always has length n, with
// ctx.Err() as the entry for any job that was never submitted because ctx
// was already done.
func (p *Pool) Run(ctx context.Context, n int, job Job) []error {
	results := make([]error, n)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			results[i] = ctx.Err()
			continue
		default:
		}

		i := i
		wg.Add(1)
		err := p.ap.Submit(func() {
			defer wg.Done()
			results[i] = job(ctx, i)
		})
		if err != nil {
			wg.Done()
			results[i] = &Error{Op: "submit", Err: err}
		}
	}

	wg.Wait()
	return results
}
