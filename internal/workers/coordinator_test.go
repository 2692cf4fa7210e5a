package workers

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vishkrish200/spotify-organiser/internal/metrics"
	"github.com/vishkrish200/spotify-organiser/internal/shared"
)

// doubleAll is a trivial CPU chunk function.
func doubleAll(items []any) ([]any, error) {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = item.(int) * 2
	}
	return out, nil
}

func intItems(n int) []any {
	items := make([]any, n)
	for i := range items {
		items[i] = i
	}
	return items
}

func TestRunParallelOrderedResults(t *testing.T) {
	c := NewCoordinator(Config{PoolSize: 4})
	defer c.Shutdown()

	items := intItems(100)
	results, err := c.RunParallel(context.Background(), items, doubleAll, ParallelOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 100 {
		t.Fatalf("expected 100 results, got %d", len(results))
	}
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("item %d failed: %v", i, r.Err)
		}
		if r.Index != i || r.Value != i*2 {
			t.Errorf("item %d: got index=%d value=%v", i, r.Index, r.Value)
		}
	}
}

func TestRunParallelValidation(t *testing.T) {
	c := NewCoordinator(Config{PoolSize: 2})
	defer c.Shutdown()

	if _, err := c.RunParallel(context.Background(), intItems(4), nil, ParallelOptions{}); !errors.Is(err, shared.ErrValidation) {
		t.Errorf("expected validation error for nil fn, got %v", err)
	}
	if _, err := c.RunParallel(context.Background(), intItems(4), doubleAll, ParallelOptions{Retries: -1}); !errors.Is(err, shared.ErrValidation) {
		t.Errorf("expected validation error for negative retries, got %v", err)
	}
}

func TestRunParallelChunkRetry(t *testing.T) {
	c := NewCoordinator(Config{PoolSize: 2})
	defer c.Shutdown()

	var attempts atomic.Int64
	flaky := func(items []any) ([]any, error) {
		if attempts.Add(1) == 1 {
			return nil, fmt.Errorf("first attempt fails")
		}
		return doubleAll(items)
	}

	// Single chunk so the failure hits the one dispatch.
	results, err := c.RunParallel(context.Background(), intItems(4), flaky, ParallelOptions{ChunkSize: 4, Retries: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("item %d failed despite retry budget: %v", i, r.Err)
		}
	}
	if attempts.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts.Load())
	}
	if m := c.Metrics(); m.ChunkRetries != 1 {
		t.Errorf("expected 1 chunk retry recorded, got %d", m.ChunkRetries)
	}
}

func TestRunParallelExhaustedRetriesIsolated(t *testing.T) {
	c := NewCoordinator(Config{PoolSize: 2})
	defer c.Shutdown()

	bad := errors.New("chunk is cursed")
	fn := func(items []any) ([]any, error) {
		for _, item := range items {
			if item.(int) >= 4 && item.(int) < 8 {
				return nil, bad
			}
		}
		return doubleAll(items)
	}

	results, err := c.RunParallel(context.Background(), intItems(12), fn, ParallelOptions{ChunkSize: 4, Retries: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, r := range results {
		cursed := i >= 4 && i < 8
		if cursed && !errors.Is(r.Err, bad) {
			t.Errorf("item %d: expected chunk error, got %v", i, r.Err)
		}
		if !cursed && r.Err != nil {
			t.Errorf("item %d: sibling chunk affected: %v", i, r.Err)
		}
	}
}

func TestWorkerPanicIsFault(t *testing.T) {
	c := NewCoordinator(Config{PoolSize: 2})
	defer c.Shutdown()

	faultsBefore := testutil.ToFloat64(metrics.WorkerFaults)

	fn := func(items []any) ([]any, error) {
		panic("process exploded")
	}

	results, err := c.RunParallel(context.Background(), intItems(2), fn, ParallelOptions{ChunkSize: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range results {
		if !errors.Is(r.Err, shared.ErrWorkerFault) {
			t.Errorf("expected worker fault, got %v", r.Err)
		}
	}
	if m := c.Metrics(); m.WorkerFaults == 0 {
		t.Error("expected fault recorded in metrics")
	}
	if got := testutil.ToFloat64(metrics.WorkerFaults); got <= faultsBefore {
		t.Errorf("expected worker fault counter to increase, got %v (was %v)", got, faultsBefore)
	}

	// The pool recovers: a fresh worker is created for the next call.
	results, err = c.RunParallel(context.Background(), intItems(2), doubleAll, ParallelOptions{ChunkSize: 2})
	if err != nil {
		t.Fatalf("unexpected error after fault: %v", err)
	}
	if results[0].Err != nil {
		t.Errorf("pool did not recover: %v", results[0].Err)
	}
}

func TestRunParallelChunkTimeout(t *testing.T) {
	c := NewCoordinator(Config{PoolSize: 1})
	defer c.Shutdown()

	timeoutsBefore := testutil.ToFloat64(metrics.ChunkTimeouts)

	release := make(chan struct{})
	fn := func(items []any) ([]any, error) {
		<-release
		return doubleAll(items)
	}

	done := make(chan []ItemResult, 1)
	go func() {
		results, _ := c.RunParallel(context.Background(), intItems(2), fn, ParallelOptions{ChunkSize: 2, Timeout: 20 * time.Millisecond})
		done <- results
	}()

	select {
	case results := <-done:
		for _, r := range results {
			if !errors.Is(r.Err, shared.ErrTimeout) {
				t.Errorf("expected timeout error, got %v", r.Err)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunParallel did not return after chunk timeout")
	}
	close(release)

	if m := c.Metrics(); m.Timeouts == 0 {
		t.Error("expected timeout recorded in metrics")
	}
	if got := testutil.ToFloat64(metrics.ChunkTimeouts); got <= timeoutsBefore {
		t.Errorf("expected chunk timeout counter to increase, got %v (was %v)", got, timeoutsBefore)
	}
}

func TestRunBoundedPreserveOrder(t *testing.T) {
	c := NewCoordinator(Config{PoolSize: 2})
	defer c.Shutdown()

	// Earlier items sleep longer, so completion order inverts input order.
	fn := func(ctx context.Context, item any) (any, error) {
		n := item.(int)
		time.Sleep(time.Duration(50-n*10) * time.Millisecond)
		return n * 10, nil
	}

	results, err := c.RunBounded(context.Background(), intItems(5), fn, BoundedOptions{Concurrency: 2, PreserveOrder: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, r := range results {
		if r.Index != i {
			t.Errorf("position %d holds index %d", i, r.Index)
		}
		if r.Value != i*10 {
			t.Errorf("position %d: expected %d, got %v", i, i*10, r.Value)
		}
	}
}

func TestRunBoundedConcurrencyBound(t *testing.T) {
	c := NewCoordinator(Config{PoolSize: 2})
	defer c.Shutdown()

	var inFlight, peak atomic.Int64
	fn := func(ctx context.Context, item any) (any, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return item, nil
	}

	if _, err := c.RunBounded(context.Background(), intItems(12), fn, BoundedOptions{Concurrency: 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p := peak.Load(); p > 3 {
		t.Errorf("concurrency bound violated: peak %d", p)
	}
}

func TestRunBoundedRetriesThenRecordsFailure(t *testing.T) {
	c := NewCoordinator(Config{PoolSize: 2})
	defer c.Shutdown()

	var calls atomic.Int64
	nope := errors.New("always fails")
	fn := func(ctx context.Context, item any) (any, error) {
		if item.(int) == 1 {
			calls.Add(1)
			return nil, nope
		}
		return item, nil
	}

	results, err := c.RunBounded(context.Background(), intItems(3), fn, BoundedOptions{Concurrency: 3, Retries: 2, PreserveOrder: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !errors.Is(results[1].Err, nope) {
		t.Errorf("expected recorded failure for item 1, got %v", results[1].Err)
	}
	if results[1].Value != nil {
		t.Errorf("expected zero value for failed ordered item, got %v", results[1].Value)
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Error("failure aborted sibling items")
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", calls.Load())
	}
}

func TestRunMixed(t *testing.T) {
	c := NewCoordinator(Config{PoolSize: 2})
	defer c.Shutdown()

	var order []string
	var sequentialStart time.Time

	tasks := MixedTasks{
		CPU:        intItems(4),
		CPUProcess: doubleAll,
		IO: intItems(3),
		IOFunc: func(ctx context.Context, item any) (any, error) {
			time.Sleep(5 * time.Millisecond)
			return item, nil
		},
		Sequential: []SequentialFunc{
			func(ctx context.Context) (any, error) {
				sequentialStart = time.Now()
				order = append(order, "first")
				return "first", nil
			},
			func(ctx context.Context) (any, error) {
				order = append(order, "second")
				return "second", nil
			},
		},
	}

	result, err := c.RunMixed(context.Background(), tasks, MixedOptions{WaitForAll: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.CPU) != 4 || len(result.IO) != 3 || len(result.Sequential) != 2 {
		t.Fatalf("unexpected track sizes: cpu=%d io=%d seq=%d", len(result.CPU), len(result.IO), len(result.Sequential))
	}
	if order[0] != "first" || order[1] != "second" {
		t.Errorf("sequential tasks ran out of order: %v", order)
	}
	if sequentialStart.IsZero() {
		t.Fatal("sequential phase never ran")
	}
}

func TestRunMixedValidation(t *testing.T) {
	c := NewCoordinator(Config{PoolSize: 2})
	defer c.Shutdown()

	_, err := c.RunMixed(context.Background(), MixedTasks{CPU: intItems(2)}, MixedOptions{})
	if !errors.Is(err, shared.ErrValidation) {
		t.Errorf("expected validation error for missing process fn, got %v", err)
	}
}

func TestShutdownRejectsNewWork(t *testing.T) {
	c := NewCoordinator(Config{PoolSize: 2})

	if _, err := c.RunParallel(context.Background(), intItems(4), doubleAll, ParallelOptions{}); err != nil {
		t.Fatalf("unexpected error before shutdown: %v", err)
	}

	c.Shutdown()

	results, err := c.RunParallel(context.Background(), intItems(4), doubleAll, ParallelOptions{ChunkSize: 4})
	if err != nil {
		t.Fatalf("setup error not expected here, got %v", err)
	}
	for _, r := range results {
		if r.Err == nil {
			t.Error("expected items to fail after shutdown")
		}
	}
}

func TestWorkerIdleTimeoutAndRecreation(t *testing.T) {
	c := NewCoordinator(Config{PoolSize: 1, IdleTimeout: 10 * time.Millisecond})
	defer c.Shutdown()

	if _, err := c.RunParallel(context.Background(), intItems(2), doubleAll, ParallelOptions{ChunkSize: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	time.Sleep(30 * time.Millisecond) // let the worker idle out

	results, err := c.RunParallel(context.Background(), intItems(2), doubleAll, ParallelOptions{ChunkSize: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].Err != nil {
		t.Errorf("work failed after idle timeout: %v", results[0].Err)
	}
}
