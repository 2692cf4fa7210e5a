package batcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vishkrish200/spotify-organiser/internal/metrics"
)

// echoFetch resolves every id to "v:"+id.
func echoFetch(ctx context.Context, ids []string) ([]any, error) {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = "v:" + id
	}
	return out, nil
}

func testConfig() Config {
	return Config{
		Debounce:  5 * time.Millisecond,
		MaxWait:   100 * time.Millisecond,
		ChunkRate: 10000,
	}
}

func TestEnqueueResolves(t *testing.T) {
	b := New(testConfig())
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ticket := b.Enqueue("tracks", "t1", echoFetch, PriorityNormal)
	value, err := ticket.Wait(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "v:t1" {
		t.Errorf("expected v:t1, got %v", value)
	}
}

func TestDedupSharesOneFetch(t *testing.T) {
	var calls atomic.Int64
	var mu sync.Mutex
	var fetchedIDs []string

	fetch := func(ctx context.Context, ids []string) ([]any, error) {
		calls.Add(1)
		mu.Lock()
		fetchedIDs = append(fetchedIDs, ids...)
		mu.Unlock()
		return echoFetch(ctx, ids)
	}

	b := New(testConfig())
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first := b.Enqueue("tracks", "dup", fetch, PriorityNormal)
	second := b.Enqueue("tracks", "dup", fetch, PriorityNormal)

	v1, err1 := first.Wait(ctx)
	v2, err2 := second.Wait(ctx)
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v, %v", err1, err2)
	}
	if v1 != v2 {
		t.Errorf("duplicate tickets settled differently: %v vs %v", v1, v2)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 fetch invocation, got %d", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(fetchedIDs) != 1 || fetchedIDs[0] != "dup" {
		t.Errorf("expected single fetched id, got %v", fetchedIDs)
	}

	m := b.Metrics()
	if m.Requests != 2 || m.DedupHits != 1 {
		t.Errorf("expected requests=2 dedup=1, got %+v", m)
	}
}

func TestSizeTriggeredFlush(t *testing.T) {
	cfg := testConfig()
	cfg.Ceilings = map[string]int{"tracks": 10}
	// A long debounce that would fail the test if size-triggered flushing
	// did not fire.
	cfg.Debounce = 10 * time.Second
	cfg.MaxWait = 20 * time.Second

	b := New(cfg)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	tickets := make([]*Ticket, 0, 10)
	for i := 0; i < 10; i++ {
		tickets = append(tickets, b.Enqueue("tracks", fmt.Sprintf("t%d", i), echoFetch, PriorityNormal))
	}
	for i, ticket := range tickets {
		if _, err := ticket.Wait(ctx); err != nil {
			t.Fatalf("ticket %d: %v", i, err)
		}
	}
}

func TestHighPriorityFlushesImmediately(t *testing.T) {
	cfg := testConfig()
	cfg.Debounce = 10 * time.Second
	cfg.MaxWait = 20 * time.Second

	b := New(cfg)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ticket := b.Enqueue("tracks", "urgent", echoFetch, PriorityHigh)
	if _, err := ticket.Wait(ctx); err != nil {
		t.Fatalf("high priority ticket did not settle: %v", err)
	}
}

func TestEnqueueBatchOrderedResults(t *testing.T) {
	b := New(testConfig())
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ids := []string{"a", "b", "c", "b", "d"} // one duplicate
	bt := b.EnqueueBatch("artists", ids, echoFetch, PriorityNormal)

	results, err := bt.Wait(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"a", "b", "c", "d"}
	if len(results) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(results))
	}
	for i, id := range want {
		if results[i].ID != id {
			t.Errorf("result %d: expected id %s, got %s", i, id, results[i].ID)
		}
		if results[i].Value != "v:"+id {
			t.Errorf("result %d: expected v:%s, got %v", i, id, results[i].Value)
		}
	}
}

func TestChunkFailureIsolation(t *testing.T) {
	cfg := testConfig()
	cfg.Ceilings = map[string]int{"tracks": 10}

	boom := errors.New("remote exploded")
	fetch := func(ctx context.Context, ids []string) ([]any, error) {
		for _, id := range ids {
			if id == "t15" { // lands in the second of three chunks
				return nil, boom
			}
		}
		return echoFetch(ctx, ids)
	}

	b := New(cfg)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ids := make([]string, 30)
	for i := range ids {
		ids[i] = fmt.Sprintf("t%d", i)
	}
	results, err := b.EnqueueBatch("tracks", ids, fetch, PriorityNormal).Wait(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	failed := 0
	for i, r := range results {
		inSecondChunk := i >= 10 && i < 20
		if inSecondChunk {
			if !errors.Is(r.Err, boom) {
				t.Errorf("result %d: expected chunk failure, got %v", i, r.Err)
			}
			failed++
			continue
		}
		if r.Err != nil {
			t.Errorf("result %d: sibling chunk affected by failure: %v", i, r.Err)
		}
		if r.Value != "v:"+r.ID {
			t.Errorf("result %d: expected v:%s, got %v", i, r.ID, r.Value)
		}
	}
	if failed != 10 {
		t.Errorf("expected exactly 10 failed items, got %d", failed)
	}

	if m := b.Metrics(); m.Batches != 3 {
		t.Errorf("expected 3 chunks dispatched, got %d", m.Batches)
	}
}

func TestResultCountMismatchRejectsChunk(t *testing.T) {
	short := func(ctx context.Context, ids []string) ([]any, error) {
		return make([]any, len(ids)-1), nil
	}

	b := New(testConfig())
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	results, err := b.EnqueueBatch("tracks", []string{"x", "y"}, short, PriorityNormal).Wait(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range results {
		if r.Err == nil {
			t.Errorf("expected mismatch error for %s", r.ID)
		}
	}
}

func TestAdaptiveShrink(t *testing.T) {
	b := New(testConfig())
	defer b.Close()

	if got := b.OptimalSize("tracks"); got != 50 {
		t.Fatalf("expected initial optimal 50, got %d", got)
	}

	// Five slow samples shrink the optimal size by 30%.
	for i := 0; i < 5; i++ {
		b.recordSample("tracks", 50, 2500*time.Millisecond, false)
	}
	if got := b.OptimalSize("tracks"); got != 35 {
		t.Errorf("expected optimal 35 after slow samples, got %d", got)
	}
}

func TestAdaptiveShrinkNeverBelowFloor(t *testing.T) {
	b := New(testConfig())
	defer b.Close()

	for i := 0; i < 50; i++ {
		b.recordSample("tracks", 50, 5*time.Second, true)
	}
	if got := b.OptimalSize("tracks"); got != SizeFloor {
		t.Errorf("expected optimal clamped to %d, got %d", SizeFloor, got)
	}
}

func TestAdaptiveGrowClampedToCeiling(t *testing.T) {
	cfg := testConfig()
	cfg.Ceilings = map[string]int{"features": 100}
	b := New(cfg)
	defer b.Close()

	// Shrink first so there is room to grow.
	for i := 0; i < 5; i++ {
		b.recordSample("features", 100, 2500*time.Millisecond, false)
	}
	if got := b.OptimalSize("features"); got != 70 {
		t.Fatalf("expected optimal 70 after shrink, got %d", got)
	}

	// Fast clean samples eventually push it back up to the ceiling but not past.
	for i := 0; i < 40; i++ {
		b.recordSample("features", 70, 200*time.Millisecond, false)
	}
	if got := b.OptimalSize("features"); got != 100 {
		t.Errorf("expected optimal back at ceiling 100, got %d", got)
	}
}

func TestWindowPrunesOldSamples(t *testing.T) {
	w := newPerfWindow(time.Minute)
	base := time.Now()

	w.add(sample{elapsed: time.Second, at: base.Add(-2 * time.Minute)})
	w.add(sample{elapsed: time.Second, at: base})

	if n, _, _ := w.stats(); n != 1 {
		t.Errorf("expected old sample pruned, window holds %d", n)
	}
}

func TestTicketWaitHonoursContext(t *testing.T) {
	blocked := make(chan struct{})
	fetch := func(ctx context.Context, ids []string) ([]any, error) {
		<-blocked
		return echoFetch(ctx, ids)
	}

	b := New(testConfig())
	defer func() {
		close(blocked)
		b.Close()
	}()

	ticket := b.Enqueue("tracks", "slow", fetch, PriorityHigh)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := ticket.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestPrometheusCounters(t *testing.T) {
	// Long timers so nothing flushes until the explicit Flush below.
	b := New(Config{Debounce: time.Hour, MaxWait: time.Hour, ChunkRate: 10000})
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	const resource = "metered-tracks"
	requestsBefore := testutil.ToFloat64(metrics.BatchRequests.WithLabelValues(resource))
	dedupBefore := testutil.ToFloat64(metrics.BatchDedupHits.WithLabelValues(resource))
	okBefore := testutil.ToFloat64(metrics.BatchesDispatched.WithLabelValues(resource, "ok"))

	first := b.Enqueue(resource, "c1", echoFetch, PriorityNormal)
	second := b.Enqueue(resource, "c1", echoFetch, PriorityNormal)
	b.Flush()

	if _, err := first.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := second.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := testutil.ToFloat64(metrics.BatchRequests.WithLabelValues(resource)); got != requestsBefore+2 {
		t.Errorf("expected 2 new requests counted, got %v (was %v)", got, requestsBefore)
	}
	if got := testutil.ToFloat64(metrics.BatchDedupHits.WithLabelValues(resource)); got != dedupBefore+1 {
		t.Errorf("expected 1 dedup hit counted, got %v (was %v)", got, dedupBefore)
	}
	if got := testutil.ToFloat64(metrics.BatchesDispatched.WithLabelValues(resource, "ok")); got != okBefore+1 {
		t.Errorf("expected 1 ok dispatch counted, got %v (was %v)", got, okBefore)
	}
	if testutil.CollectAndCount(metrics.BatchDuration) == 0 {
		t.Error("expected at least one duration observation")
	}
}
