package stream

import (
	"context"
	"time"

	"github.com/vishkrish200/spotify-organiser/internal/skip"
	"github.com/vishkrish200/spotify-organiser/internal/workers"
)

// Cache is the read-through cache collaborator: Get returns the cached value
// for key or computes, stores, and returns it.
type Cache interface {
	Get(key string, compute func() (any, error)) (any, error)
}

// Sink persists one batch of results and reports what it wrote.
type Sink func(ctx context.Context, batch []any) (SinkStats, error)

// SinkStats is the persistence outcome for one batch.
type SinkStats struct {
	Persisted int
}

// Stage is a pipeline processing step. Exactly two implementations exist:
// [Transform] and [Batch].
type Stage interface {
	stageName() string
}

// Transform applies Fn to each item. With a Cache and CacheKey the result is
// read through the cache: on a miss Fn computes the value, which the cache
// stores.
type Transform struct {
	Name     string
	Fn       func(ctx context.Context, item any) (any, error)
	Cache    Cache
	CacheKey func(item any) string
}

func (t Transform) stageName() string { return t.Name }

// apply runs one item through the transform, recording its latency on the run.
func (t Transform) apply(ctx context.Context, item any, run *RunResult) (any, error) {
	began := time.Now()
	defer func() { run.addTransformTime(time.Since(began)) }()

	if t.Cache != nil && t.CacheKey != nil {
		return t.Cache.Get(t.CacheKey(item), func() (any, error) {
			return t.Fn(ctx, item)
		})
	}
	return t.Fn(ctx, item)
}

// Batch accumulates items to Size and hands each full (or final partial)
// batch to Handler. When a Gate is set, Gate.BatchCheck runs first and a
// skip drops the batch. Batches of at least DelegateThreshold items are run
// item-by-item through Coordinator.RunBounded instead of one Handler call.
type Batch struct {
	Name    string
	Size    int
	Handler func(ctx context.Context, items []any) ([]any, error)

	Gate *skip.Gate

	Coordinator       *workers.Coordinator
	DelegateThreshold int // 0 disables delegation
	Concurrency       int // bounded concurrency when delegating (default 5)
}

func (b Batch) stageName() string { return b.Name }

// flush processes one accumulated batch, delegating oversized batches to the
// coordinator when configured.
func (b Batch) flush(ctx context.Context, items []any) ([]any, error) {
	if b.Coordinator != nil && b.DelegateThreshold > 0 && len(items) >= b.DelegateThreshold {
		results, err := b.Coordinator.RunBounded(ctx, items, func(ctx context.Context, item any) (any, error) {
			out, err := b.Handler(ctx, []any{item})
			if err != nil {
				return nil, err
			}
			if len(out) == 0 {
				return nil, nil
			}
			return out[0], nil
		}, workers.BoundedOptions{Concurrency: b.Concurrency, PreserveOrder: true})
		if err != nil {
			return nil, err
		}

		out := make([]any, 0, len(results))
		var firstErr error
		for _, r := range results {
			if r.Err != nil {
				if firstErr == nil {
					firstErr = r.Err
				}
				continue
			}
			out = append(out, r.Value)
		}
		if len(out) == 0 && firstErr != nil {
			return nil, firstErr
		}
		return out, nil
	}

	return b.Handler(ctx, items)
}
