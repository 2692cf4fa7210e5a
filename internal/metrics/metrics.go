// Package metrics defines the Prometheus instruments for the ingestion
// subsystem. Instruments are registered via promauto on the default
// registry; the optional listener in internal/server exposes them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BatchRequests counts ids enqueued into the batcher by resource.
	BatchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "organiser_batch_requests_total",
			Help: "Total ids enqueued into the request batcher",
		},
		[]string{"resource"},
	)

	// BatchDedupHits counts enqueues coalesced onto an in-flight request.
	BatchDedupHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "organiser_batch_dedup_hits_total",
			Help: "Enqueues that attached to an already pending id",
		},
		[]string{"resource"},
	)

	// BatchesDispatched counts dispatched chunks by resource and outcome.
	BatchesDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "organiser_batches_dispatched_total",
			Help: "Chunks dispatched to the remote service",
		},
		[]string{"resource", "outcome"}, // outcome: "ok", "error"
	)

	// BatchDuration observes per-chunk remote latency.
	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "organiser_batch_duration_seconds",
			Help:    "Remote fetch duration per dispatched chunk",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resource"},
	)

	// OptimalBatchSize tracks the batcher's adaptive size per resource.
	OptimalBatchSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "organiser_optimal_batch_size",
			Help: "Current adaptive batch size",
		},
		[]string{"resource"},
	)

	// SkipChecks counts skip gate evaluations by check and verdict.
	SkipChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "organiser_skip_checks_total",
			Help: "Skip gate check evaluations",
		},
		[]string{"check", "verdict"}, // verdict: "skip", "pass"
	)

	// WorkerFaults counts workers terminated by a panicking task.
	WorkerFaults = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "organiser_worker_faults_total",
			Help: "Workers terminated by a task panic",
		},
	)

	// ChunkTimeouts counts parallel chunks abandoned after their deadline.
	ChunkTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "organiser_chunk_timeouts_total",
			Help: "Parallel chunks that exceeded their deadline",
		},
	)

	// PipelineItems counts pipeline items by run outcome.
	PipelineItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "organiser_pipeline_items_total",
			Help: "Pipeline items by outcome",
		},
		[]string{"outcome"}, // "processed", "dropped"
	)

	// BackpressureEvents counts stage handoffs that found a busy consumer.
	BackpressureEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "organiser_backpressure_events_total",
			Help: "Stage handoffs that blocked on a busy downstream",
		},
	)

	// CacheReads tracks metadata cache read totals by result. Published as
	// a gauge because the cache reports cumulative counts per process.
	CacheReads = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "organiser_cache_reads",
			Help: "Metadata cache read totals",
		},
		[]string{"result"}, // "hit", "miss"
	)

	// IngestRuns counts completed ingest runs by status.
	IngestRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "organiser_ingest_runs_total",
			Help: "Ingest runs by final status",
		},
		[]string{"status"},
	)

	// IngestDuration observes wall time of complete ingest runs.
	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "organiser_ingest_duration_seconds",
			Help:    "Wall time of complete ingest runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
)
