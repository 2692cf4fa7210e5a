package batcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/vishkrish200/spotify-organiser/internal/metrics"
	"github.com/vishkrish200/spotify-organiser/internal/shared"
)

// FetchFunc fetches a batch of ids from the remote API. Implementations must
// preserve order: result[i] corresponds to ids[i], with nil for ids the
// service does not know.
type FetchFunc func(ctx context.Context, ids []string) ([]any, error)

// Priority orders queue flushing. High-priority queues flush without waiting
// for the debounce timer.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

// Sizing bounds shared by all resource types.
const (
	// SizeFloor is the smallest batch size the adaptive loop will reach.
	SizeFloor = 10

	// DefaultCeiling applies to resource types without a configured ceiling.
	DefaultCeiling = 50
)

// Config tunes batcher behaviour. The zero value is usable.
type Config struct {
	// Debounce is the quiet period before a partial queue flushes
	// (default 50ms).
	Debounce time.Duration

	// MaxWait bounds how long a queue may age before it flushes regardless
	// of arrivals (default 1s).
	MaxWait time.Duration

	// Ceilings maps resource types to their hard batch-size ceiling
	// (default DefaultCeiling).
	Ceilings map[string]int

	// WindowSpan is the age bound of the rolling performance window
	// (default 60s).
	WindowSpan time.Duration

	// ChunkRate paces sequential chunk dispatches within one flush
	// (default 10/s).
	ChunkRate rate.Limit

	// Logger receives dispatch debug lines. Optional.
	Logger *log.Logger
}

// Result is the settled outcome for one requested id.
type Result struct {
	ID    string
	Value any // nil when the service does not know the id
	Err   error
}

// pendingRequest is one requested id awaiting settlement. Duplicate requests
// for the same id share a single pendingRequest.
type pendingRequest struct {
	id       string
	done     chan struct{}
	value    any
	err      error
	enqueued time.Time
}

// settle resolves or rejects the request. Called exactly once, from the
// dispatch goroutine that owns the request's chunk.
func (p *pendingRequest) settle(value any, err error) {
	p.value = value
	p.err = err
	close(p.done)
}

// Ticket is the caller's handle on a pending request.
type Ticket struct {
	p *pendingRequest
}

// Wait blocks until the request settles or ctx is done.
func (t *Ticket) Wait(ctx context.Context) (any, error) {
	select {
	case <-t.p.done:
		return t.p.value, t.p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// BatchTicket is the caller's handle on an ordered set of pending requests.
type BatchTicket struct {
	tickets []*Ticket
}

// Wait blocks until every request settles or ctx is done, returning results
// in the order the unique ids were given.
func (bt *BatchTicket) Wait(ctx context.Context) ([]Result, error) {
	results := make([]Result, len(bt.tickets))
	for i, t := range bt.tickets {
		value, err := t.Wait(ctx)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		results[i] = Result{ID: t.p.id, Value: value, Err: err}
	}
	return results, nil
}

type queueKey struct {
	resource string
	priority Priority
}

// batchQueue collects pending requests for one (resource type, priority)
// pair. Created lazily on first enqueue, destroyed when detached for
// dispatch.
type batchQueue struct {
	key       queueKey
	items     []*pendingRequest
	fetch     FetchFunc
	createdAt time.Time
	timer     *time.Timer
}

type pendingKey struct {
	resource string
	id       string
}

// Batcher merges individually requested ids into API-sized batches.
type Batcher struct {
	cfg     Config
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	pending  map[pendingKey]*pendingRequest
	queues   map[queueKey]*batchQueue
	windows  map[string]*perfWindow
	optimal  map[string]int
	requests int64
	dedup    int64
	batches  int64

	dispatches sync.WaitGroup
	now        func() time.Time
}

// New creates a Batcher. Call Close when done to stop in-flight dispatch
// pacing and wait for settlement.
func New(cfg Config) *Batcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 50 * time.Millisecond
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = time.Second
	}
	if cfg.WindowSpan <= 0 {
		cfg.WindowSpan = time.Minute
	}
	if cfg.ChunkRate <= 0 {
		cfg.ChunkRate = 10
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Batcher{
		cfg:     cfg,
		limiter: rate.NewLimiter(cfg.ChunkRate, 1),
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[pendingKey]*pendingRequest),
		queues:  make(map[queueKey]*batchQueue),
		windows: make(map[string]*perfWindow),
		optimal: make(map[string]int),
		now:     time.Now,
	}
}

// Enqueue requests a single id of the given resource type. If the id is
// already pending, the returned Ticket shares the existing settlement and
// fetch is not invoked again for it.
func (b *Batcher) Enqueue(resource, id string, fetch FetchFunc, priority Priority) *Ticket {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enqueueLocked(resource, id, fetch, priority, true)
}

// enqueueLocked adds one id to its queue, deduplicating against pending
// requests. When schedule is false the caller takes care of flushing.
// Callers hold b.mu.
func (b *Batcher) enqueueLocked(resource, id string, fetch FetchFunc, priority Priority, schedule bool) *Ticket {
	b.requests++
	metrics.BatchRequests.WithLabelValues(resource).Inc()

	pk := pendingKey{resource: resource, id: id}
	if p, ok := b.pending[pk]; ok {
		b.dedup++
		metrics.BatchDedupHits.WithLabelValues(resource).Inc()
		return &Ticket{p: p}
	}

	p := &pendingRequest{
		id:       id,
		done:     make(chan struct{}),
		enqueued: b.now(),
	}
	b.pending[pk] = p

	qk := queueKey{resource: resource, priority: priority}
	q, ok := b.queues[qk]
	if !ok {
		q = &batchQueue{key: qk, fetch: fetch, createdAt: b.now()}
		b.queues[qk] = q
	}
	q.items = append(q.items, p)

	if schedule {
		b.scheduleLocked(q)
	}
	return &Ticket{p: p}
}

// EnqueueBatch requests many ids at once and flushes the queue immediately,
// pre-chunked to the current optimal size. Duplicate ids within the call and
// ids already pending reuse existing settlements; results come back in the
// order of first occurrence.
func (b *Batcher) EnqueueBatch(resource string, ids []string, fetch FetchFunc, priority Priority) *BatchTicket {
	seen := make(map[string]struct{}, len(ids))
	tickets := make([]*Ticket, 0, len(ids))

	b.mu.Lock()
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		tickets = append(tickets, b.enqueueLocked(resource, id, fetch, priority, false))
	}

	// A manual batch is dispatched without waiting for the debounce timer;
	// chunking to the optimal size happens at dispatch.
	b.detachAndDispatchLocked(queueKey{resource: resource, priority: priority})
	b.mu.Unlock()

	return &BatchTicket{tickets: tickets}
}

// OptimalSize returns the current optimal batch size for a resource type.
func (b *Batcher) OptimalSize(resource string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.optimalLocked(resource)
}

// Flush force-dispatches every queue regardless of size or age.
func (b *Batcher) Flush() {
	b.mu.Lock()
	keys := make([]queueKey, 0, len(b.queues))
	for k := range b.queues {
		keys = append(keys, k)
	}
	b.mu.Unlock()

	for _, k := range keys {
		b.flush(k)
	}
}

// Close flushes remaining queues, waits for in-flight dispatches to settle,
// and stops the batcher.
func (b *Batcher) Close() {
	b.Flush()
	b.dispatches.Wait()
	b.cancel()
}

// Metrics is a point-in-time snapshot of batcher counters.
type Metrics struct {
	Requests  int64          // ids requested, including duplicates
	DedupHits int64          // requests served by an existing settlement
	Batches   int64          // chunks dispatched to fetch functions
	Optimal   map[string]int // current optimal size per resource type
}

// Metrics returns a snapshot of the batcher counters.
func (b *Batcher) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	optimal := make(map[string]int, len(b.optimal))
	for k, v := range b.optimal {
		optimal[k] = v
	}
	return Metrics{
		Requests:  b.requests,
		DedupHits: b.dedup,
		Batches:   b.batches,
		Optimal:   optimal,
	}
}

// scheduleLocked decides when queue q should flush. Callers hold b.mu.
func (b *Batcher) scheduleLocked(q *batchQueue) {
	if len(q.items) >= b.optimalLocked(q.key.resource) || q.key.priority == PriorityHigh {
		b.detachAndDispatchLocked(q.key)
		return
	}

	// Debounce: re-arm on each arrival, capped by the queue's max age.
	delay := b.cfg.Debounce
	if remaining := b.cfg.MaxWait - b.now().Sub(q.createdAt); remaining < delay {
		delay = remaining
	}
	if delay <= 0 {
		b.detachAndDispatchLocked(q.key)
		return
	}

	if q.timer != nil {
		q.timer.Stop()
	}
	key := q.key
	q.timer = time.AfterFunc(delay, func() { b.flush(key) })
}

// flush detaches the queue for key, if still present, and dispatches it.
func (b *Batcher) flush(key queueKey) {
	b.mu.Lock()
	b.detachAndDispatchLocked(key)
	b.mu.Unlock()
}

// detachAndDispatchLocked removes the queue from the map and hands its items
// to a dispatch goroutine. Callers hold b.mu.
func (b *Batcher) detachAndDispatchLocked(key queueKey) {
	q, ok := b.queues[key]
	if !ok || len(q.items) == 0 {
		return
	}
	delete(b.queues, key)
	if q.timer != nil {
		q.timer.Stop()
	}

	size := b.optimalLocked(key.resource)
	items := q.items
	b.dispatches.Add(1)
	go b.dispatch(key.resource, items, q.fetch, size)
}

// dispatch chunks items to the optimal size and fetches chunk by chunk,
// paced by the rate limiter. A chunk failure rejects only that chunk's items.
func (b *Batcher) dispatch(resource string, items []*pendingRequest, fetch FetchFunc, size int) {
	defer b.dispatches.Done()

	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]

		if err := b.limiter.Wait(b.ctx); err != nil {
			b.settleChunk(resource, chunk, nil, fmt.Errorf("%w: batcher closed", shared.ErrPipelineAbort))
			continue
		}

		ids := make([]string, len(chunk))
		for i, p := range chunk {
			ids[i] = p.id
		}

		began := b.now()
		values, err := fetch(b.ctx, ids)
		elapsed := b.now().Sub(began)

		if err == nil && len(values) != len(ids) {
			err = fmt.Errorf("%w: fetch returned %d results for %d ids", shared.ErrAPIRequest, len(values), len(ids))
		}

		metrics.BatchDuration.WithLabelValues(resource).Observe(elapsed.Seconds())
		b.recordSample(resource, len(chunk), elapsed, err != nil)
		b.settleChunk(resource, chunk, values, err)

		if b.cfg.Logger != nil {
			b.cfg.Logger.Debug("dispatched chunk",
				"resource", resource, "size", len(chunk), "elapsed", elapsed, "failed", err != nil)
		}
	}
}

// settleChunk settles every request in a chunk and clears its pending entry.
func (b *Batcher) settleChunk(resource string, chunk []*pendingRequest, values []any, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.BatchesDispatched.WithLabelValues(resource, outcome).Inc()

	b.mu.Lock()
	b.batches++
	for _, p := range chunk {
		delete(b.pending, pendingKey{resource: resource, id: p.id})
	}
	b.mu.Unlock()

	for i, p := range chunk {
		if err != nil {
			p.settle(nil, err)
			continue
		}
		p.settle(values[i], nil)
	}
}

// recordSample appends a performance sample and retunes the optimal size.
func (b *Batcher) recordSample(resource string, batchSize int, elapsed time.Duration, hadError bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	w, ok := b.windows[resource]
	if !ok {
		w = newPerfWindow(b.cfg.WindowSpan)
		b.windows[resource] = w
	}
	w.add(sample{batchSize: batchSize, elapsed: elapsed, at: b.now(), hadError: hadError})

	current := b.optimalLocked(resource)
	b.optimal[resource] = w.retune(current, SizeFloor, b.ceiling(resource))
}

// optimalLocked returns the current optimal size, initialising new resource
// types at their ceiling. Callers hold b.mu.
func (b *Batcher) optimalLocked(resource string) int {
	if v, ok := b.optimal[resource]; ok {
		return v
	}
	v := b.ceiling(resource)
	b.optimal[resource] = v
	return v
}

func (b *Batcher) ceiling(resource string) int {
	if v, ok := b.cfg.Ceilings[resource]; ok && v > 0 {
		return v
	}
	return DefaultCeiling
}
