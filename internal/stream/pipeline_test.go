package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vishkrish200/spotify-organiser/internal/shared"
	"github.com/vishkrish200/spotify-organiser/internal/skip"
	"github.com/vishkrish200/spotify-organiser/internal/workers"
)

func intItems(n int) []any {
	items := make([]any, n)
	for i := range items {
		items[i] = i
	}
	return items
}

func passthroughHandler(_ context.Context, items []any) ([]any, error) {
	return items, nil
}

func TestPipelineBatchesToSink(t *testing.T) {
	var calls int
	var sizes []int
	sink := func(_ context.Context, batch []any) (SinkStats, error) {
		calls++
		sizes = append(sizes, len(batch))
		return SinkStats{Persisted: len(batch)}, nil
	}

	p, err := New(FromSlice(intItems(120)), []Stage{
		Batch{Name: "persist", Size: 50, Handler: passthroughHandler},
	}, sink, Options{Name: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 sink calls, got %d", calls)
	}
	if len(sizes) == 3 && (sizes[0] != 50 || sizes[1] != 50 || sizes[2] != 20) {
		t.Errorf("unexpected batch sizes %v", sizes)
	}
	if res.ItemsProcessed != 120 {
		t.Errorf("expected 120 items processed, got %d", res.ItemsProcessed)
	}
	if res.Persisted != 120 {
		t.Errorf("expected 120 persisted, got %d", res.Persisted)
	}
	if res.BatchesFlushed != 3 {
		t.Errorf("expected 3 batches flushed, got %d", res.BatchesFlushed)
	}
}

func TestPipelineBackpressure(t *testing.T) {
	sink := func(_ context.Context, batch []any) (SinkStats, error) {
		time.Sleep(10 * time.Millisecond)
		return SinkStats{Persisted: len(batch)}, nil
	}

	p, err := New(FromSlice(intItems(8)), []Stage{
		Batch{Name: "slow", Size: 1, Handler: passthroughHandler},
	}, sink, Options{Name: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.BackpressureEvents < 1 {
		t.Errorf("expected at least one backpressure event, got %d", res.BackpressureEvents)
	}
	if res.ItemsProcessed != 8 {
		t.Errorf("expected 8 items processed, got %d", res.ItemsProcessed)
	}
}

func TestPipelineTransformChain(t *testing.T) {
	double := Transform{Name: "double", Fn: func(_ context.Context, item any) (any, error) {
		return item.(int) * 2, nil
	}}
	addOne := Transform{Name: "addone", Fn: func(_ context.Context, item any) (any, error) {
		return item.(int) + 1, nil
	}}

	var got []int
	sink := func(_ context.Context, batch []any) (SinkStats, error) {
		for _, v := range batch {
			got = append(got, v.(int))
		}
		return SinkStats{Persisted: len(batch)}, nil
	}

	p, err := New(FromSlice(intItems(4)), []Stage{double, addOne}, sink, Options{Name: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []int{1, 3, 5, 7}
	if len(got) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(got))
	}
	for i, v := range want {
		if got[i] != v {
			t.Errorf("item %d: expected %d, got %d", i, v, got[i])
		}
	}
	if res.TransformTime() <= 0 {
		t.Error("expected transform time to be recorded")
	}
}

func TestPipelineAbortsOnStageError(t *testing.T) {
	boom := errors.New("decode failed")
	bad := Transform{Name: "decode", Fn: func(_ context.Context, item any) (any, error) {
		if item.(int) == 3 {
			return nil, boom
		}
		return item, nil
	}}

	sink := func(_ context.Context, batch []any) (SinkStats, error) {
		return SinkStats{Persisted: len(batch)}, nil
	}

	p, err := New(FromSlice(intItems(10)), []Stage{bad}, sink, Options{Name: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Run(context.Background())
	if !errors.Is(err, shared.ErrPipelineAbort) {
		t.Errorf("expected pipeline abort error, got %v", err)
	}
}

func TestPipelineContinueOnError(t *testing.T) {
	flaky := Transform{Name: "decode", Fn: func(_ context.Context, item any) (any, error) {
		if item.(int)%2 == 1 {
			return nil, fmt.Errorf("bad item %d", item)
		}
		return item, nil
	}}

	var delivered int64
	sink := func(_ context.Context, batch []any) (SinkStats, error) {
		atomic.AddInt64(&delivered, int64(len(batch)))
		return SinkStats{Persisted: len(batch)}, nil
	}

	p, err := New(FromSlice(intItems(10)), []Stage{flaky}, sink, Options{
		Name:            "test",
		ContinueOnError: true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if delivered != 5 {
		t.Errorf("expected 5 items delivered, got %d", delivered)
	}
	if res.ItemsDropped != 5 {
		t.Errorf("expected 5 items dropped, got %d", res.ItemsDropped)
	}
	if res.ItemsProcessed != 5 {
		t.Errorf("expected 5 items processed, got %d", res.ItemsProcessed)
	}
	if res.Errors != 5 {
		t.Errorf("expected 5 errors, got %d", res.Errors)
	}
	if len(res.ErrorSamples()) == 0 {
		t.Error("expected error samples")
	}
}

func TestPipelineValidation(t *testing.T) {
	sink := func(_ context.Context, batch []any) (SinkStats, error) {
		return SinkStats{}, nil
	}

	_, err := New(nil, nil, sink, Options{})
	if !errors.Is(err, shared.ErrValidation) {
		t.Errorf("expected validation error for nil source, got %v", err)
	}

	_, err = New(FromSlice(nil), []Stage{
		Batch{Name: "b", Size: 10, Handler: passthroughHandler},
		Transform{Name: "t", Fn: func(_ context.Context, item any) (any, error) { return item, nil }},
	}, sink, Options{})
	if !errors.Is(err, shared.ErrValidation) {
		t.Errorf("expected validation error for misplaced batch stage, got %v", err)
	}

	_, err = New(FromSlice(nil), []Stage{Batch{Name: "b", Size: 0, Handler: passthroughHandler}}, sink, Options{})
	if !errors.Is(err, shared.ErrValidation) {
		t.Errorf("expected validation error for zero batch size, got %v", err)
	}
}

func TestPipelineAdmission(t *testing.T) {
	admit := func(item any) skip.Decision {
		if item.(int) >= 5 {
			return skip.Decision{Skip: true, Reason: "over limit"}
		}
		return skip.Decision{}
	}

	var delivered int
	sink := func(_ context.Context, batch []any) (SinkStats, error) {
		delivered += len(batch)
		return SinkStats{Persisted: len(batch)}, nil
	}

	p, err := New(FromSlice(intItems(10)), nil, sink, Options{Name: "test", Admit: admit})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if delivered != 5 {
		t.Errorf("expected 5 items delivered, got %d", delivered)
	}
	if res.ItemsDropped != 5 {
		t.Errorf("expected 5 items dropped, got %d", res.ItemsDropped)
	}
}

func TestPipelineGateSkipsSmallBatch(t *testing.T) {
	gate := skip.NewGate(skip.Config{MinBatchSize: 4})

	var calls int
	sink := func(_ context.Context, batch []any) (SinkStats, error) {
		calls++
		return SinkStats{Persisted: len(batch)}, nil
	}

	p, err := New(FromSlice(intItems(3)), []Stage{
		Batch{Name: "persist", Size: 5, Handler: passthroughHandler, Gate: gate},
	}, sink, Options{Name: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no sink calls for skipped batch, got %d", calls)
	}
	if res.BatchesSkipped != 1 {
		t.Errorf("expected 1 skipped batch, got %d", res.BatchesSkipped)
	}
	if res.ItemsProcessed != 0 {
		t.Errorf("expected 0 items processed after skip, got %d", res.ItemsProcessed)
	}
}

type countingCache struct {
	mu      sync.Mutex
	entries map[string]any
	misses  int
}

func (c *countingCache) Get(key string, compute func() (any, error)) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.entries[key]; ok {
		return v, nil
	}
	c.misses++
	v, err := compute()
	if err != nil {
		return nil, err
	}
	if c.entries == nil {
		c.entries = map[string]any{}
	}
	c.entries[key] = v
	return v, nil
}

func TestTransformReadThroughCache(t *testing.T) {
	cache := &countingCache{}
	var computed int64
	enrich := Transform{
		Name: "enrich",
		Fn: func(_ context.Context, item any) (any, error) {
			atomic.AddInt64(&computed, 1)
			return item, nil
		},
		Cache:    cache,
		CacheKey: func(item any) string { return fmt.Sprintf("k%d", item.(int)%2) },
	}

	sink := func(_ context.Context, batch []any) (SinkStats, error) {
		return SinkStats{Persisted: len(batch)}, nil
	}

	p, err := New(FromSlice(intItems(10)), []Stage{enrich}, sink, Options{Name: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if computed != 2 {
		t.Errorf("expected 2 computes for 2 distinct keys, got %d", computed)
	}
	if cache.misses != 2 {
		t.Errorf("expected 2 cache misses, got %d", cache.misses)
	}
}

func TestBatchDelegatesToCoordinator(t *testing.T) {
	coord := workers.NewCoordinator(workers.Config{PoolSize: 2})
	defer coord.Shutdown()

	var handled int64
	handler := func(_ context.Context, items []any) ([]any, error) {
		atomic.AddInt64(&handled, int64(len(items)))
		return items, nil
	}

	var delivered int
	sink := func(_ context.Context, batch []any) (SinkStats, error) {
		delivered += len(batch)
		return SinkStats{Persisted: len(batch)}, nil
	}

	p, err := New(FromSlice(intItems(20)), []Stage{
		Batch{
			Name:              "persist",
			Size:              10,
			Handler:           handler,
			Coordinator:       coord,
			DelegateThreshold: 5,
			Concurrency:       3,
		},
	}, sink, Options{Name: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if handled != 20 {
		t.Errorf("expected 20 items handled, got %d", handled)
	}
	if delivered != 20 {
		t.Errorf("expected 20 items delivered, got %d", delivered)
	}
	if res.BatchesFlushed != 2 {
		t.Errorf("expected 2 batches flushed, got %d", res.BatchesFlushed)
	}
}

func TestPipelineSinkErrorAborts(t *testing.T) {
	sink := func(_ context.Context, batch []any) (SinkStats, error) {
		return SinkStats{}, errors.New("disk full")
	}

	p, err := New(FromSlice(intItems(6)), []Stage{
		Batch{Name: "persist", Size: 3, Handler: passthroughHandler},
	}, sink, Options{Name: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Run(context.Background())
	if !errors.Is(err, shared.ErrPipelineAbort) {
		t.Errorf("expected pipeline abort on sink failure, got %v", err)
	}
}
