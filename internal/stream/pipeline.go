package stream

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vishkrish200/spotify-organiser/internal/shared"
	"github.com/vishkrish200/spotify-organiser/internal/skip"
)

// Options tunes a pipeline run.
type Options struct {
	Name string
	// ContinueOnError drops failing items and keeps the run alive instead of
	// aborting on the first stage error. Source errors always abort.
	ContinueOnError bool
	// Admit, when set, is consulted for every item the source produces. A
	// skip decision drops the item before it enters the first stage.
	Admit  func(item any) skip.Decision
	Logger *log.Logger
}

// RunResult is the accounting for one pipeline run.
type RunResult struct {
	RunID string

	ItemsProcessed     int64
	ItemsDropped       int64
	BatchesFlushed     int64
	BatchesSkipped     int64
	Persisted          int64
	BackpressureEvents int64
	Errors             int64

	Started  time.Time
	Finished time.Time

	mu            sync.Mutex
	transformTime time.Duration
	errorSamples  []string
}

// TransformTime is the cumulative wall time spent inside transform stages.
func (r *RunResult) TransformTime() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transformTime
}

// ErrorSamples returns up to the first eight stage error messages seen.
func (r *RunResult) ErrorSamples() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.errorSamples))
	copy(out, r.errorSamples)
	return out
}

func (r *RunResult) addTransformTime(d time.Duration) {
	r.mu.Lock()
	r.transformTime += d
	r.mu.Unlock()
}

func (r *RunResult) recordError(stage string, err error) {
	atomic.AddInt64(&r.Errors, 1)
	r.mu.Lock()
	if len(r.errorSamples) < 8 {
		r.errorSamples = append(r.errorSamples, fmt.Sprintf("%s: %v", stage, err))
	}
	r.mu.Unlock()
}

// send delivers item on ch, counting a backpressure event whenever the
// downstream is not immediately ready. Channels between stages are
// unbuffered, so a full "buffer" is simply a busy consumer.
func (r *RunResult) send(ctx context.Context, ch chan<- any, item any) error {
	select {
	case ch <- item:
		return nil
	default:
	}
	atomic.AddInt64(&r.BackpressureEvents, 1)
	select {
	case ch <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pipeline is a pull-based streaming chain: one source, zero or more
// transform stages, at most one trailing batch stage, one sink.
type Pipeline struct {
	source Source
	stages []Stage
	sink   Sink
	opts   Options
}

// New validates the stage layout. A batch stage may only appear as the final
// stage, and only once, because it is the sole place batch size is decided.
func New(source Source, stages []Stage, sink Sink, opts Options) (*Pipeline, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: pipeline source is required", shared.ErrValidation)
	}
	if sink == nil {
		return nil, fmt.Errorf("%w: pipeline sink is required", shared.ErrValidation)
	}
	for i, st := range stages {
		switch s := st.(type) {
		case Transform:
			if s.Fn == nil {
				return nil, fmt.Errorf("%w: transform stage %q has no function", shared.ErrValidation, s.Name)
			}
		case Batch:
			if i != len(stages)-1 {
				return nil, fmt.Errorf("%w: batch stage %q must be the final stage", shared.ErrValidation, s.Name)
			}
			if s.Size <= 0 {
				return nil, fmt.Errorf("%w: batch stage %q needs a positive size", shared.ErrValidation, s.Name)
			}
			if s.Handler == nil {
				return nil, fmt.Errorf("%w: batch stage %q has no handler", shared.ErrValidation, s.Name)
			}
		default:
			return nil, fmt.Errorf("%w: unknown stage type at index %d", shared.ErrValidation, i)
		}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Pipeline{source: source, stages: stages, sink: sink, opts: opts}, nil
}

// Run drives the pipeline to completion: the source is drained, every stage
// channel is closed in order, the final batch remainder is flushed, and only
// then does Run return. The returned RunResult is always non-nil.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	res := &RunResult{RunID: uuid.NewString(), Started: time.Now()}
	defer func() { res.Finished = time.Now() }()

	g, ctx := errgroup.WithContext(ctx)

	// Split off a trailing batch stage; everything before it is a transform.
	transforms := p.stages
	var batch *Batch
	if n := len(p.stages); n > 0 {
		if b, ok := p.stages[n-1].(Batch); ok {
			batch = &b
			transforms = p.stages[:n-1]
		}
	}

	head := make(chan any)
	g.Go(func() error { return p.pump(ctx, head, res) })

	ch := head
	for _, st := range transforms {
		t := st.(Transform)
		in, out := ch, make(chan any)
		g.Go(func() error { return p.transform(ctx, t, in, out, res) })
		ch = out
	}

	tail := ch
	g.Go(func() error {
		if batch != nil {
			return p.drainBatched(ctx, *batch, tail, res)
		}
		return p.drainSingles(ctx, tail, res)
	})

	err := g.Wait()
	if err != nil {
		p.opts.Logger.Error("pipeline aborted", "pipeline", p.opts.Name, "run", res.RunID, "error", err)
		return res, err
	}

	p.opts.Logger.Info("pipeline complete",
		"pipeline", p.opts.Name,
		"run", res.RunID,
		"processed", atomic.LoadInt64(&res.ItemsProcessed),
		"dropped", atomic.LoadInt64(&res.ItemsDropped),
		"persisted", atomic.LoadInt64(&res.Persisted),
		"backpressure", atomic.LoadInt64(&res.BackpressureEvents))
	return res, nil
}

// pump pulls the source dry and feeds the first stage.
func (p *Pipeline) pump(ctx context.Context, out chan<- any, res *RunResult) error {
	defer close(out)
	for {
		item, ok, err := p.source.Next(ctx)
		if err != nil {
			return fmt.Errorf("%w: source: %v", shared.ErrPipelineAbort, err)
		}
		if !ok {
			return nil
		}
		if p.opts.Admit != nil {
			if d := p.opts.Admit(item); d.Skip {
				atomic.AddInt64(&res.ItemsDropped, 1)
				continue
			}
		}
		atomic.AddInt64(&res.ItemsProcessed, 1)
		if err := res.send(ctx, out, item); err != nil {
			return err
		}
	}
}

func (p *Pipeline) transform(ctx context.Context, t Transform, in <-chan any, out chan<- any, res *RunResult) error {
	defer close(out)
	for item := range in {
		value, err := t.apply(ctx, item, res)
		if err != nil {
			res.recordError(t.Name, err)
			if p.opts.ContinueOnError {
				atomic.AddInt64(&res.ItemsDropped, 1)
				atomic.AddInt64(&res.ItemsProcessed, -1)
				continue
			}
			return fmt.Errorf("%w: stage %s: %v", shared.ErrPipelineAbort, t.Name, err)
		}
		if err := res.send(ctx, out, value); err != nil {
			return err
		}
	}
	return nil
}

// drainBatched accumulates items from the final stage channel and flushes
// full batches plus one remainder. A flush failure under ContinueOnError
// drops the whole batch; otherwise it aborts the run.
func (p *Pipeline) drainBatched(ctx context.Context, b Batch, in <-chan any, res *RunResult) error {
	buf := make([]any, 0, b.Size)
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		items := buf
		buf = make([]any, 0, b.Size)

		if b.Gate != nil {
			if d := b.Gate.BatchCheck(b.Name, items); d.Skip {
				atomic.AddInt64(&res.BatchesSkipped, 1)
				atomic.AddInt64(&res.ItemsDropped, int64(len(items)))
				atomic.AddInt64(&res.ItemsProcessed, -int64(len(items)))
				p.opts.Logger.Debug("batch skipped", "stage", b.Name, "reason", d.Reason)
				return nil
			}
		}

		out, err := b.flush(ctx, items)
		if err != nil {
			res.recordError(b.Name, err)
			if p.opts.ContinueOnError {
				atomic.AddInt64(&res.ItemsDropped, int64(len(items)))
				atomic.AddInt64(&res.ItemsProcessed, -int64(len(items)))
				return nil
			}
			return fmt.Errorf("%w: stage %s: %v", shared.ErrPipelineAbort, b.Name, err)
		}
		atomic.AddInt64(&res.BatchesFlushed, 1)
		return p.deliver(ctx, out, res)
	}

	for item := range in {
		buf = append(buf, item)
		if len(buf) >= b.Size {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// drainSingles feeds the sink one item at a time when no batch stage exists.
func (p *Pipeline) drainSingles(ctx context.Context, in <-chan any, res *RunResult) error {
	for item := range in {
		if err := p.deliver(ctx, []any{item}, res); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) deliver(ctx context.Context, items []any, res *RunResult) error {
	stats, err := p.sink(ctx, items)
	if err != nil {
		res.recordError("sink", err)
		if p.opts.ContinueOnError {
			atomic.AddInt64(&res.ItemsDropped, int64(len(items)))
			atomic.AddInt64(&res.ItemsProcessed, -int64(len(items)))
			return nil
		}
		return fmt.Errorf("%w: sink: %v", shared.ErrPipelineAbort, err)
	}
	atomic.AddInt64(&res.Persisted, int64(stats.Persisted))
	return nil
}
