package workers

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/vishkrish200/spotify-organiser/internal/shared"
)

// WorkerState is the lifecycle state of one execution unit.
type WorkerState int32

const (
	WorkerIdle WorkerState = iota
	WorkerBusy
	WorkerTerminated
)

func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerBusy:
		return "busy"
	case WorkerTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ProcessFunc is CPU-bound chunk processing executed inside a worker. It
// must not retain references to items after returning; results cross back to
// the coordinator over a channel.
type ProcessFunc func(items []any) ([]any, error)

// workRequest is one chunk dispatched to a worker.
type workRequest struct {
	items []any
	fn    ProcessFunc
	reply chan workReply
}

type workReply struct {
	values []any
	err    error
	fault  bool // worker terminated while processing
}

// worker is one isolated execution unit. All interaction goes through the
// requests channel; the worker owns no shared state.
type worker struct {
	id       int
	state    atomic.Int32
	requests chan workRequest
	chunks   atomic.Int64 // lifetime chunks processed
}

func newWorker(id int) *worker {
	return &worker{
		id:       id,
		requests: make(chan workRequest),
	}
}

func (w *worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

func (w *worker) setState(s WorkerState) {
	w.state.Store(int32(s))
}

// loop serves requests until the channel closes or the worker idles out.
func (w *worker) loop(idleTimeout time.Duration) {
	idle := time.NewTimer(idleTimeout)
	defer idle.Stop()

	for {
		select {
		case req, ok := <-w.requests:
			if !ok {
				w.setState(WorkerTerminated)
				return
			}
			w.serve(req)
			if w.State() == WorkerTerminated {
				return
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(idleTimeout)
		case <-idle.C:
			w.setState(WorkerTerminated)
			return
		}
	}
}

// serve runs one chunk. A panic in the process function terminates the
// worker and reports a fault on the reply channel.
func (w *worker) serve(req workRequest) {
	w.setState(WorkerBusy)
	defer func() {
		if r := recover(); r != nil {
			w.setState(WorkerTerminated)
			req.reply <- workReply{
				err:   fmt.Errorf("%w: panic: %v", shared.ErrWorkerFault, r),
				fault: true,
			}
		}
	}()

	values, err := req.fn(req.items)
	w.chunks.Add(1)
	w.setState(WorkerIdle)
	req.reply <- workReply{values: values, err: err}
}
