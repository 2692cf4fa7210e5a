package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/vishkrish200/spotify-organiser/internal/shared"
)

// AsyncFunc is I/O-bound per-item work.
type AsyncFunc func(ctx context.Context, item any) (any, error)

// BoundedOptions configures RunBounded.
type BoundedOptions struct {
	// Concurrency bounds the in-flight set (default 5).
	Concurrency int

	// Timeout bounds each attempt (default 30s).
	Timeout time.Duration

	// Retries is how many extra attempts each item gets, with exponential
	// backoff starting at 100ms and doubling per attempt.
	Retries int

	// PreserveOrder indexes results by input position regardless of
	// completion order. When false, results arrive in completion order.
	PreserveOrder bool
}

// backoffBase is the first retry delay for bounded work.
const backoffBase = 100 * time.Millisecond

// RunBounded runs fn for every item with at most Concurrency in flight.
// An item that exhausts its retries is recorded as a failure in the results
// without aborting the rest. Only configuration errors are returned.
func (c *Coordinator) RunBounded(ctx context.Context, items []any, fn AsyncFunc, opts BoundedOptions) ([]ItemResult, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: async function is required", shared.ErrValidation)
	}
	if opts.Concurrency < 0 || opts.Retries < 0 {
		return nil, fmt.Errorf("%w: concurrency and retries must be non-negative", shared.ErrValidation)
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if len(items) == 0 {
		return nil, nil
	}

	sem := semaphore.NewWeighted(int64(opts.Concurrency))

	ordered := make([]ItemResult, len(items))
	var completion []ItemResult
	var completionMu sync.Mutex

	var wg sync.WaitGroup
	for i, item := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context gone: record the remainder as failures and stop
			// admitting new work.
			for j := i; j < len(items); j++ {
				res := ItemResult{Index: j, Err: err}
				if opts.PreserveOrder {
					ordered[j] = res
					continue
				}
				completionMu.Lock()
				completion = append(completion, res)
				completionMu.Unlock()
			}
			break
		}

		wg.Add(1)
		go func(i int, item any) {
			defer wg.Done()
			defer sem.Release(1)

			value, err := c.attempt(ctx, item, fn, opts.Timeout, opts.Retries)
			res := ItemResult{Index: i, Value: value, Err: err}

			c.mu.Lock()
			c.boundedItems++
			c.mu.Unlock()

			if opts.PreserveOrder {
				ordered[i] = res
				return
			}
			completionMu.Lock()
			completion = append(completion, res)
			completionMu.Unlock()
		}(i, item)
	}
	wg.Wait()

	if opts.PreserveOrder {
		return ordered, nil
	}
	return completion, nil
}

// attempt runs fn with a per-attempt timeout and exponential backoff between
// attempts.
func (c *Coordinator) attempt(ctx context.Context, item any, fn AsyncFunc, timeout time.Duration, retries int) (any, error) {
	var lastErr error
	for attemptNo := 0; attemptNo <= retries; attemptNo++ {
		if attemptNo > 0 {
			c.mu.Lock()
			c.boundedRetries++
			c.mu.Unlock()

			delay := backoffBase << (attemptNo - 1)
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		value, err := fn(attemptCtx, item)
		cancel()

		if err == nil {
			return value, nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: attempt exceeded %v", shared.ErrTimeout, timeout)
			c.mu.Lock()
			c.timeouts++
			c.mu.Unlock()
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, lastErr
}

// SequentialFunc is one step of the sequential follow-up phase.
type SequentialFunc func(ctx context.Context) (any, error)

// MixedTasks describes a mixed workload.
type MixedTasks struct {
	CPU        []any
	CPUProcess ProcessFunc
	IO         []any
	IOFunc     AsyncFunc
	Sequential []SequentialFunc
}

// MixedOptions configures RunMixed.
type MixedOptions struct {
	// WaitForAll delays the sequential phase until the CPU and I/O tracks
	// have both finished. When false the sequential phase starts alongside
	// them (still running its own tasks in order).
	WaitForAll bool

	Parallel ParallelOptions
	Bounded  BoundedOptions
}

// MixedResult collects per-track results of a mixed run.
type MixedResult struct {
	CPU        []ItemResult
	IO         []ItemResult
	Sequential []ItemResult
}

// RunMixed launches the CPU and I/O tracks concurrently and runs the
// sequential tasks in order, either after both tracks finish (WaitForAll) or
// alongside them. All tracks complete before RunMixed returns.
func (c *Coordinator) RunMixed(ctx context.Context, tasks MixedTasks, opts MixedOptions) (*MixedResult, error) {
	if len(tasks.CPU) > 0 && tasks.CPUProcess == nil {
		return nil, fmt.Errorf("%w: CPU tasks require a process function", shared.ErrValidation)
	}
	if len(tasks.IO) > 0 && tasks.IOFunc == nil {
		return nil, fmt.Errorf("%w: IO tasks require an async function", shared.ErrValidation)
	}

	result := &MixedResult{}
	var setupErr error
	var setupMu sync.Mutex

	tracks := make(chan struct{}, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() { tracks <- struct{}{} }()
		if len(tasks.CPU) == 0 {
			return
		}
		res, err := c.RunParallel(ctx, tasks.CPU, tasks.CPUProcess, opts.Parallel)
		if err != nil {
			setupMu.Lock()
			setupErr = err
			setupMu.Unlock()
			return
		}
		result.CPU = res
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() { tracks <- struct{}{} }()
		if len(tasks.IO) == 0 {
			return
		}
		res, err := c.RunBounded(ctx, tasks.IO, tasks.IOFunc, opts.Bounded)
		if err != nil {
			setupMu.Lock()
			setupErr = err
			setupMu.Unlock()
			return
		}
		result.IO = res
	}()

	runSequential := func() {
		for i, fn := range tasks.Sequential {
			value, err := fn(ctx)
			result.Sequential = append(result.Sequential, ItemResult{Index: i, Value: value, Err: err})
		}
	}

	if opts.WaitForAll {
		<-tracks
		<-tracks
		runSequential()
	} else {
		runSequential()
	}
	wg.Wait()

	setupMu.Lock()
	defer setupMu.Unlock()
	if setupErr != nil {
		return nil, setupErr
	}
	return result, nil
}
