package executor

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// WorkerPool bounds the goroutines an execution uses for independent
// branches. A single pool is shared by a query and all of its sub-queries;
// when every worker is busy the caller runs the job itself, so nested
// fork/join never waits on a slot held by its own ancestor.
type WorkerPool struct {
	workerCount int
	sem         *semaphore.Weighted
}

// NewWorkerPool creates a new worker pool
// workerCount: number of worker goroutines (0 = use NumCPU)
func NewWorkerPool(workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	return &WorkerPool{
		workerCount: workerCount,
		sem:         semaphore.NewWeighted(int64(workerCount)),
	}
}

// Workers returns the number of worker goroutines
func (p *WorkerPool) Workers() int {
	return p.workerCount
}

// Execute runs operation for every index in [0, n) and waits for all of
// them. Callers keep results in a slice indexed by i, so output order
// matches input order regardless of completion order.
//
// The first failure cancels the context passed to the remaining jobs;
// jobs not yet started are skipped. The returned error names the index
// that failed first; a single job's error is returned as is.
func (p *WorkerPool) Execute(ctx context.Context, n int, operation func(ctx context.Context, i int) error) error {
	if n == 0 {
		return ctx.Err()
	}
	if n == 1 {
		if err := ctx.Err(); err != nil {
			return err
		}
		return operation(ctx, 0)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		firstIdx int
	)
	run := func(i int) {
		if err := operation(ctx, i); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr, firstIdx = err, i
				cancel()
			}
			mu.Unlock()
		}
	}

	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		if p.sem.TryAcquire(1) {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				defer p.sem.Release(1)
				run(i)
			}(i)
			continue
		}
		run(i)
	}
	wg.Wait()

	if firstErr != nil {
		return fmt.Errorf("parallel execution failed at index %d: %w", firstIdx, firstErr)
	}
	// parent cancellation with no job failure
	return context.Cause(ctx)
}
