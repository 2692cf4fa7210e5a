package skip

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vishkrish200/spotify-organiser/internal/metrics"
)

// Skip reasons reported in [Decision.Reason] and the per-reason counters.
const (
	ReasonCacheHit       = "cache_hit"
	ReasonBatchEmpty     = "batch_empty"
	ReasonBatchTooSmall  = "batch_too_small"
	ReasonBatchUnchanged = "batch_unchanged"
	ReasonTooSoon        = "too_soon"
	ReasonSizeUnchanged  = "size_unchanged"
	ReasonDepMissing     = "dependency_missing"
	ReasonDepFailed      = "dependency_failed"
	ReasonDepsUnchanged  = "dependencies_unchanged"
	ReasonMemoryPressure = "memory_pressure"

	// reasonPassed is the Reason on a non-skip decision from Evaluate.
	reasonPassed = "all checks passed"
)

// Decision is the verdict for one unit of work.
type Decision struct {
	Skip   bool
	Reason string
	Data   any // cached value when the skip came from a cache hit
}



// CacheEntry is a previously computed value with its creation time.
type CacheEntry struct {
	Value     any
	Timestamp time.Time
}

// DepState describes the current state of one dependency.
type DepState struct {
	Failed      bool
	Fingerprint string // opaque state fingerprint; empty means unknown
}

// Config tunes gate behaviour. The zero value is usable.
type Config struct {
	// MinBatchSize is the smallest batch worth processing (default 2).
	MinBatchSize int

	// MemoryWarnBytes is the soft memory warning threshold. A resource check
	// skips when current usage plus the requirement would exceed twice this
	// value (default 512 MiB).
	MemoryWarnBytes uint64

	// EstimatedSaving is the time credited to the savings accumulator per
	// skipped unit (default 250ms).
	EstimatedSaving time.Duration

	// Logger receives debug lines for each skip. Optional.
	Logger *log.Logger
}

// Metrics is a point-in-time snapshot of gate counters.
type Metrics struct {
	Checks    int64            // individual checks executed
	Skips     int64            // checks that returned skip
	Reasons   map[string]int64 // skips per reason
	TimeSaved time.Duration    // estimated work avoided
}

// Gate makes synchronous skip decisions and records why.
//
// A Gate remembers just enough between calls to answer "has this changed
// since last time": per-id last-run timestamps, batch fingerprints, and
// dependency fingerprints. It never performs network or disk I/O.
type Gate struct {
	cfg Config

	mu              sync.Mutex
	lastRun         map[string]time.Time
	lastBatchPrint  map[string]string
	lastDepPrint    map[string]string
	checks          int64
	skips           int64
	reasons         map[string]int64
	timeSaved       time.Duration

	now     func() time.Time // test seam
	memUsed func() uint64    // test seam
}

// NewGate creates a Gate with the given config.
func NewGate(cfg Config) *Gate {
	if cfg.MinBatchSize <= 0 {
		cfg.MinBatchSize = 2
	}
	if cfg.MemoryWarnBytes == 0 {
		cfg.MemoryWarnBytes = 512 << 20
	}
	if cfg.EstimatedSaving <= 0 {
		cfg.EstimatedSaving = 250 * time.Millisecond
	}
	return &Gate{
		cfg:            cfg,
		lastRun:        make(map[string]time.Time),
		lastBatchPrint: make(map[string]string),
		lastDepPrint:   make(map[string]string),
		reasons:        make(map[string]int64),
		now:            time.Now,
		memUsed:        heapInUse,
	}
}

func heapInUse() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapInuse
}

// verdict feeds the prometheus check counter and passes the decision through.
func verdict(check string, d Decision) Decision {
	v := "pass"
	if d.Skip {
		v = "skip"
	}
	metrics.SkipChecks.WithLabelValues(check, v).Inc()
	return d
}

// CacheCheck skips when a cache entry exists and is younger than ttl.
// The cached value travels back on [Decision.Data].
func (g *Gate) CacheCheck(id string, entry *CacheEntry, ttl time.Duration) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checks++

	if entry == nil || ttl <= 0 {
		return verdict("cache", Decision{})
	}
	if g.now().Sub(entry.Timestamp) < ttl {
		return verdict("cache", g.skip(id, ReasonCacheHit, entry.Value))
	}
	return verdict("cache", Decision{})
}

// BatchCheck skips empty batches, batches below the configured minimum, and
// batches whose structural fingerprint matches the last one recorded for id.
// A batch that passes has its fingerprint recorded for the next call.
func (g *Gate) BatchCheck(id string, items []any) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checks++

	if len(items) == 0 {
		return verdict("batch", g.skip(id, ReasonBatchEmpty, nil))
	}
	if len(items) < g.cfg.MinBatchSize {
		return verdict("batch", g.skip(id, ReasonBatchTooSmall, nil))
	}

	print := Fingerprint(items)
	if prev, ok := g.lastBatchPrint[id]; ok && prev == print {
		return verdict("batch", g.skip(id, ReasonBatchUnchanged, nil))
	}
	g.lastBatchPrint[id] = print
	return verdict("batch", Decision{})
}

// IncrementalCheck skips when the relative size change between previous and
// current is below threshold (a fraction, e.g. 0.05 for 5%).
func (g *Gate) IncrementalCheck(id string, current, previous int, threshold float64) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checks++

	if previous <= 0 || threshold <= 0 {
		return verdict("incremental", Decision{})
	}
	change := float64(current-previous) / float64(previous)
	if change < 0 {
		change = -change
	}
	if change < threshold {
		return verdict("incremental", g.skip(id, ReasonSizeUnchanged, nil))
	}
	return verdict("incremental", Decision{})
}

// TimeCheck skips when id ran more recently than interval ago, unless force
// is set. Any non-skip outcome updates the last-run timestamp for id.
func (g *Gate) TimeCheck(id string, interval time.Duration, force bool) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checks++

	now := g.now()
	if !force && interval > 0 {
		if last, ok := g.lastRun[id]; ok && now.Sub(last) < interval {
			return verdict("time", g.skip(id, ReasonTooSoon, nil))
		}
	}
	g.lastRun[id] = now
	return verdict("time", Decision{})
}

// DependencyCheck skips when a required dependency is absent from depStates,
// when any required dependency is in a failed state, or when the combined
// dependency fingerprint is identical to the last one recorded for id.
func (g *Gate) DependencyCheck(id string, required []string, depStates map[string]DepState) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checks++

	combined := ""
	for _, dep := range required {
		state, ok := depStates[dep]
		if !ok {
			return verdict("dependency", g.skip(id, ReasonDepMissing, dep))
		}
		if state.Failed {
			return verdict("dependency", g.skip(id, ReasonDepFailed, dep))
		}
		combined += dep + "=" + state.Fingerprint + ";"
	}

	if combined != "" {
		if prev, ok := g.lastDepPrint[id]; ok && prev == combined {
			return verdict("dependency", g.skip(id, ReasonDepsUnchanged, nil))
		}
		g.lastDepPrint[id] = combined
	}
	return verdict("dependency", Decision{})
}

// ResourceCheck skips when current memory usage plus requiredBytes would
// exceed twice the configured warning threshold.
func (g *Gate) ResourceCheck(id string, requiredBytes uint64) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checks++

	if requiredBytes == 0 {
		return verdict("resource", Decision{})
	}
	if g.memUsed()+requiredBytes > 2*g.cfg.MemoryWarnBytes {
		return verdict("resource", g.skip(id, ReasonMemoryPressure, nil))
	}
	return verdict("resource", Decision{})
}

// Conditions selects which checks Evaluate runs. Nil condition pointers are
// not evaluated.
type Conditions struct {
	Cache      *CacheCondition
	Batch      *BatchCondition
	Time       *TimeCondition
	Dependency *DependencyCondition
	Resource   *ResourceCondition
}

// CacheCondition parameterises a cache check.
type CacheCondition struct {
	Entry *CacheEntry
	TTL   time.Duration
}

// BatchCondition parameterises a batch check.
type BatchCondition struct {
	Items []any
}

// TimeCondition parameterises a time check.
type TimeCondition struct {
	Interval time.Duration
	Force    bool
}

// DependencyCondition parameterises a dependency check.
type DependencyCondition struct {
	Required []string
	States   map[string]DepState
}

// ResourceCondition parameterises a resource check.
type ResourceCondition struct {
	RequiredBytes uint64
}

// Evaluate runs the present checks in fixed order (cache, batch, time,
// dependency, resource) and returns the first skip, or a pass decision with
// Reason "all checks passed".
func (g *Gate) Evaluate(id string, conds Conditions) Decision {
	if conds.Cache != nil {
		if d := g.CacheCheck(id, conds.Cache.Entry, conds.Cache.TTL); d.Skip {
			return d
		}
	}
	if conds.Batch != nil {
		if d := g.BatchCheck(id, conds.Batch.Items); d.Skip {
			return d
		}
	}
	if conds.Time != nil {
		if d := g.TimeCheck(id, conds.Time.Interval, conds.Time.Force); d.Skip {
			return d
		}
	}
	if conds.Dependency != nil {
		if d := g.DependencyCheck(id, conds.Dependency.Required, conds.Dependency.States); d.Skip {
			return d
		}
	}
	if conds.Resource != nil {
		if d := g.ResourceCheck(id, conds.Resource.RequiredBytes); d.Skip {
			return d
		}
	}
	return Decision{Skip: false, Reason: reasonPassed}
}

// Metrics returns a snapshot of the gate counters.
func (g *Gate) Metrics() Metrics {
	g.mu.Lock()
	defer g.mu.Unlock()

	reasons := make(map[string]int64, len(g.reasons))
	for k, v := range g.reasons {
		reasons[k] = v
	}
	return Metrics{
		Checks:    g.checks,
		Skips:     g.skips,
		Reasons:   reasons,
		TimeSaved: g.timeSaved,
	}
}

// skip records counters for a skip verdict. Callers hold g.mu.
func (g *Gate) skip(id, reason string, data any) Decision {
	g.skips++
	g.reasons[reason]++
	g.timeSaved += g.cfg.EstimatedSaving
	if g.cfg.Logger != nil {
		g.cfg.Logger.Debug("skipping work unit", "id", id, "reason", reason)
	}
	return Decision{Skip: true, Reason: reason, Data: data}
}

// Fingerprint builds the structural fingerprint used for change detection:
// item count plus a sample of the first and last items. Cheap, and weaker
// than a content hash on purpose.
func Fingerprint(items []any) string {
	if len(items) == 0 {
		return "0"
	}
	return fmt.Sprintf("%d:%v:%v", len(items), items[0], items[len(items)-1])
}
