package workers

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vishkrish200/spotify-organiser/internal/metrics"
	"github.com/vishkrish200/spotify-organiser/internal/shared"
)

// Config tunes the coordinator. The zero value is usable.
type Config struct {
	// PoolSize is the maximum number of parallel workers (default: NumCPU).
	PoolSize int

	// IdleTimeout retires workers with no work (default 30s).
	IdleTimeout time.Duration

	// Logger receives worker lifecycle debug lines. Optional.
	Logger *log.Logger
}

// ItemResult is the outcome for one input item (or one item of a chunk).
type ItemResult struct {
	Index int
	Value any
	Err   error
}

// ParallelOptions configures RunParallel.
type ParallelOptions struct {
	// ChunkSize overrides the adaptive default of ceil(N / (2 x pool size)).
	ChunkSize int

	// Timeout bounds each chunk dispatch (default 30s).
	Timeout time.Duration

	// Retries is how many times a failed chunk is resubmitted.
	Retries int
}

// Coordinator schedules CPU-bound chunk work over a worker pool and I/O-bound
// work under bounded concurrency.
type Coordinator struct {
	cfg Config

	mu      sync.Mutex
	workers map[int]*worker
	free    chan *worker // buffered free list; doubles as the wait queue
	created int          // live workers, including timed-out ones not yet reaped
	nextID  int
	closed  bool

	chunksProcessed int64
	chunkRetries    int64
	timeouts        int64
	faults          int64
	boundedItems    int64
	boundedRetries  int64
}

// NewCoordinator creates a Coordinator. Call Shutdown to terminate workers.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = runtime.NumCPU()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Second
	}
	return &Coordinator{
		cfg:     cfg,
		workers: make(map[int]*worker),
		free:    make(chan *worker, cfg.PoolSize),
	}
}

// RunParallel splits items into chunks and processes them on pool workers,
// returning per-item results flattened in input order. A failed chunk is
// resubmitted with one fewer retry while budget remains; after that its
// items carry the chunk's error. Only configuration errors are returned.
func (c *Coordinator) RunParallel(ctx context.Context, items []any, fn ProcessFunc, opts ParallelOptions) ([]ItemResult, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: process function is required", shared.ErrValidation)
	}
	if opts.ChunkSize < 0 || opts.Retries < 0 {
		return nil, fmt.Errorf("%w: chunk size and retries must be non-negative", shared.ErrValidation)
	}
	if len(items) == 0 {
		return nil, nil
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	chunkSize := opts.ChunkSize
	if chunkSize == 0 {
		chunkSize = (len(items) + 2*c.cfg.PoolSize - 1) / (2 * c.cfg.PoolSize)
		if chunkSize < 1 {
			chunkSize = 1
		}
	}

	type chunk struct {
		start int
		items []any
	}
	var chunks []chunk
	for start := 0; start < len(items); start += chunkSize {
		end := start + chunkSize
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, chunk{start: start, items: items[start:end]})
	}

	results := make([]ItemResult, len(items))
	var wg sync.WaitGroup
	for _, ch := range chunks {
		wg.Add(1)
		go func(ch chunk) {
			defer wg.Done()
			values, err := c.runChunk(ctx, ch.items, fn, opts.Timeout, opts.Retries)
			for i := range ch.items {
				idx := ch.start + i
				results[idx].Index = idx
				if err != nil {
					results[idx].Err = err
					continue
				}
				results[idx].Value = values[i]
			}
		}(ch)
	}
	wg.Wait()

	return results, nil
}

// runChunk dispatches one chunk to an available worker, retrying failures
// while the retry budget lasts.
func (c *Coordinator) runChunk(ctx context.Context, items []any, fn ProcessFunc, timeout time.Duration, retries int) ([]any, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			c.mu.Lock()
			c.chunkRetries++
			c.mu.Unlock()
		}

		w, err := c.acquire(ctx)
		if err != nil {
			return nil, err
		}

		reply := make(chan workReply, 1)
		select {
		case w.requests <- workRequest{items: items, fn: fn, reply: reply}:
		case <-ctx.Done():
			c.release(w)
			return nil, ctx.Err()
		}

		timer := time.NewTimer(timeout)
		select {
		case r := <-reply:
			timer.Stop()
			c.finish(w, r.fault)
			if r.err == nil {
				if len(r.values) != len(items) {
					return nil, fmt.Errorf("%w: process returned %d results for %d items", shared.ErrValidation, len(r.values), len(items))
				}
				c.mu.Lock()
				c.chunksProcessed++
				c.mu.Unlock()
				return r.values, nil
			}
			lastErr = r.err
		case <-timer.C:
			// Stop waiting; the worker may still be running. Reclaim it in
			// the background once it finally replies.
			go func() {
				r := <-reply
				c.finish(w, r.fault)
			}()
			lastErr = fmt.Errorf("%w: chunk of %d items exceeded %v", shared.ErrTimeout, len(items), timeout)
			metrics.ChunkTimeouts.Inc()
			c.mu.Lock()
			c.timeouts++
			c.mu.Unlock()
		case <-ctx.Done():
			timer.Stop()
			go func() {
				r := <-reply
				c.finish(w, r.fault)
			}()
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// acquire returns an idle worker, creating one if the pool is not yet full,
// otherwise waiting on the free list.
func (c *Coordinator) acquire(ctx context.Context) (*worker, error) {
	for {
		// Prefer a free worker, reaping any that idled out while queued.
		select {
		case w := <-c.free:
			if w.State() == WorkerTerminated {
				c.reap(w)
				continue
			}
			return w, nil
		default:
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, fmt.Errorf("%w: coordinator is shut down", shared.ErrValidation)
		}
		if c.created < c.cfg.PoolSize {
			c.nextID++
			w := newWorker(c.nextID)
			c.workers[w.id] = w
			c.created++
			c.mu.Unlock()
			go w.loop(c.cfg.IdleTimeout)
			if c.cfg.Logger != nil {
				c.cfg.Logger.Debug("worker created", "id", w.id)
			}
			return w, nil
		}
		c.mu.Unlock()

		// Pool saturated: block on the wait queue.
		select {
		case w := <-c.free:
			if w.State() == WorkerTerminated {
				c.reap(w)
				continue
			}
			return w, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// finish returns a worker to the free list, or reaps it after a fault.
func (c *Coordinator) finish(w *worker, fault bool) {
	if fault || w.State() == WorkerTerminated {
		metrics.WorkerFaults.Inc()
		c.mu.Lock()
		c.faults++
		c.mu.Unlock()
		c.reap(w)
		if c.cfg.Logger != nil {
			c.cfg.Logger.Warn("worker terminated on fault", "id", w.id)
		}
		return
	}
	c.release(w)
}

func (c *Coordinator) release(w *worker) {
	c.free <- w
}

// reap removes a terminated worker so a replacement can be created on demand.
func (c *Coordinator) reap(w *worker) {
	c.mu.Lock()
	if _, ok := c.workers[w.id]; ok {
		delete(c.workers, w.id)
		c.created--
	}
	c.mu.Unlock()
}

// Shutdown terminates all workers. In-flight chunks finish; new calls fail.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	workers := make([]*worker, 0, len(c.workers))
	for _, w := range c.workers {
		workers = append(workers, w)
	}
	c.workers = make(map[int]*worker)
	c.created = 0
	c.mu.Unlock()

	for _, w := range workers {
		close(w.requests)
	}

	// Drain the free list so no goroutine holds a stale reference.
	for {
		select {
		case <-c.free:
		default:
			return
		}
	}
}

// Metrics is a point-in-time snapshot of coordinator counters.
type Metrics struct {
	LiveWorkers     int
	ChunksProcessed int64
	ChunkRetries    int64
	Timeouts        int64
	WorkerFaults    int64
	BoundedItems    int64
	BoundedRetries  int64
}

// Metrics returns a snapshot of the coordinator counters.
func (c *Coordinator) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Metrics{
		LiveWorkers:     len(c.workers),
		ChunksProcessed: c.chunksProcessed,
		ChunkRetries:    c.chunkRetries,
		Timeouts:        c.timeouts,
		WorkerFaults:    c.faults,
		BoundedItems:    c.boundedItems,
		BoundedRetries:  c.boundedRetries,
	}
}
