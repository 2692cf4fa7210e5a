package batcher

import "time"

// sample is one recorded batch dispatch outcome.
type sample struct {
	batchSize int
	elapsed   time.Duration
	at        time.Time
	hadError  bool
}

// perfWindow is a rolling, time-bounded set of samples for one resource type.
type perfWindow struct {
	span    time.Duration
	samples []sample
}

func newPerfWindow(span time.Duration) *perfWindow {
	return &perfWindow{span: span}
}

// add records a sample and drops samples older than the window span.
func (w *perfWindow) add(s sample) {
	w.samples = append(w.samples, s)
	cutoff := s.at.Add(-w.span)
	keep := w.samples[:0]
	for _, old := range w.samples {
		if old.at.After(cutoff) {
			keep = append(keep, old)
		}
	}
	w.samples = keep
}

// stats returns the sample count, mean response time, and error rate for the
// current window contents.
func (w *perfWindow) stats() (n int, mean time.Duration, errRate float64) {
	n = len(w.samples)
	if n == 0 {
		return 0, 0, 0
	}
	var total time.Duration
	failed := 0
	for _, s := range w.samples {
		total += s.elapsed
		if s.hadError {
			failed++
		}
	}
	return n, total / time.Duration(n), float64(failed) / float64(n)
}

// Sizing thresholds for the adaptive feedback loop.
const (
	minSamplesForTuning = 5
	slowResponse        = 2000 * time.Millisecond
	fastResponse        = 1000 * time.Millisecond
	highErrorRate       = 0.10
	lowErrorRate        = 0.05
	shrinkFactor        = 0.7
	growFactor          = 1.2
)

// retune recomputes an optimal batch size from window stats, clamped to
// [floor, ceiling]. With fewer than minSamplesForTuning samples the current
// size is kept.
func (w *perfWindow) retune(current, floor, ceiling int) int {
	n, mean, errRate := w.stats()
	if n < minSamplesForTuning {
		return current
	}

	next := current
	switch {
	case mean > slowResponse || errRate > highErrorRate:
		next = int(float64(current) * shrinkFactor)
	case mean < fastResponse && errRate < lowErrorRate:
		next = int(float64(current) * growFactor)
	}

	if next < floor {
		next = floor
	}
	if next > ceiling {
		next = ceiling
	}
	return next
}
