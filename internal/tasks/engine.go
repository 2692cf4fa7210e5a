package tasks

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vishkrish200/spotify-organiser/internal/batcher"
	"github.com/vishkrish200/spotify-organiser/internal/metrics"
	"github.com/vishkrish200/spotify-organiser/internal/models"
	"github.com/vishkrish200/spotify-organiser/internal/repositories"
	"github.com/vishkrish200/spotify-organiser/internal/services"
	"github.com/vishkrish200/spotify-organiser/internal/shared"
	"github.com/vishkrish200/spotify-organiser/internal/skip"
	"github.com/vishkrish200/spotify-organiser/internal/stream"
	"github.com/vishkrish200/spotify-organiser/internal/workers"
)

// Remote is the slice of the Spotify client the engine needs for
// enrichment. services.Client satisfies it.
type Remote interface {
	ArtistsBatch(ctx context.Context, ids []string) ([]any, error)
	AlbumsBatch(ctx context.Context, ids []string) ([]any, error)
	AudioFeaturesBatch(ctx context.Context, ids []string) ([]any, error)
}

// Deps collects the engine's collaborators. Source, Remote, the track and
// run repositories, the gate, the batcher, and the coordinator are required.
type Deps struct {
	Source   stream.Source
	Remote   Remote
	Tracks   *repositories.TrackRepository
	Artists  *repositories.ArtistRepository
	Albums   *repositories.AlbumRepository
	Features *repositories.FeatureRepository // optional, enables audio-features enrichment
	Runs     *repositories.RunRepository
	Cache    *repositories.MetadataCache // optional, skips refetch of enriched ids
	Gate     *skip.Gate
	Batcher  *batcher.Batcher
	Workers  *workers.Coordinator
	Config   shared.IngestConfig
	Logger   *log.Logger
	Service  string // provider tag on persisted rows, defaults to "spotify"
}

// IngestEngine orchestrates one full library ingest.
type IngestEngine struct {
	deps Deps

	artistsSaved  int64
	albumsSaved   int64
	featuresSaved int64
	batchCount    int64
}

// NewIngestEngine validates dependencies and builds an engine.
func NewIngestEngine(deps Deps) (*IngestEngine, error) {
	if deps.Source == nil || deps.Remote == nil {
		return nil, fmt.Errorf("%w: source and remote are required", shared.ErrValidation)
	}
	if deps.Tracks == nil || deps.Runs == nil {
		return nil, fmt.Errorf("%w: track and run repositories are required", shared.ErrValidation)
	}
	if deps.Gate == nil || deps.Batcher == nil || deps.Workers == nil {
		return nil, fmt.Errorf("%w: gate, batcher, and workers are required", shared.ErrValidation)
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	if deps.Service == "" {
		deps.Service = "spotify"
	}
	return &IngestEngine{deps: deps}, nil
}

// IngestOptions tunes a single run.
type IngestOptions struct {
	Force bool // bypass the minimum-interval admission check
}

// IngestSummary is the outcome of an Ingest call.
type IngestSummary struct {
	Run           *models.IngestRun
	Pipeline      *stream.RunResult
	Skipped       bool
	SkipReason    string
	ArtistsSaved  int
	AlbumsSaved   int
	FeaturesSaved int
	Elapsed       time.Duration
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks the run.
func (e *IngestEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Ingest runs the full flow: admission, streaming fetch, enrichment,
// persistence, and run accounting. A skip decision returns a summary with
// Skipped set and no error.
func (e *IngestEngine) Ingest(ctx context.Context, opts IngestOptions, progress chan<- ProgressUpdate) (*IngestSummary, error) {
	began := time.Now()

	decision := e.admit(opts.Force)
	e.sendProgress(progress, admissionUpdate(decision.Reason))
	if decision.Skip {
		e.deps.Logger.Info("ingest skipped", "reason", decision.Reason)
		e.sendProgress(progress, skippedUpdate(decision.Reason))
		metrics.IngestRuns.WithLabelValues("skipped").Inc()
		return &IngestSummary{Skipped: true, SkipReason: decision.Reason, Elapsed: time.Since(began)}, nil
	}

	run := models.NewIngestRun(0)
	if err := e.deps.Runs.Create(run); err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}

	atomic.StoreInt64(&e.artistsSaved, 0)
	atomic.StoreInt64(&e.albumsSaved, 0)
	atomic.StoreInt64(&e.featuresSaved, 0)
	atomic.StoreInt64(&e.batchCount, 0)

	e.sendProgress(progress, fetchStartUpdate())

	batchSize := e.deps.Config.PipelineBatch
	if batchSize <= 0 {
		batchSize = 50
	}

	pipe, err := stream.New(e.deps.Source, []stream.Stage{
		stream.Transform{Name: "normalize", Fn: e.normalize},
		stream.Batch{Name: "enrich", Size: batchSize, Handler: func(ctx context.Context, items []any) ([]any, error) {
			return e.enrichBatch(ctx, items, progress)
		}},
	}, e.sink(progress), stream.Options{
		Name:            "ingest",
		ContinueOnError: true,
		Logger:          e.deps.Logger,
	})
	if err != nil {
		return nil, err
	}

	result, runErr := pipe.Run(ctx)

	status := models.RunStatusCompleted
	if runErr != nil {
		status = models.RunStatusFailed
	}
	run.Finish(status,
		int(result.ItemsProcessed),
		int(result.ItemsDropped),
		int(result.Errors),
		int(result.BackpressureEvents),
	)
	if err := e.deps.Runs.Update(run); err != nil {
		e.deps.Logger.Error("failed to finalize run row", "run", run.ID(), "error", err)
	}

	summary := &IngestSummary{
		Run:           run,
		Pipeline:      result,
		ArtistsSaved:  int(atomic.LoadInt64(&e.artistsSaved)),
		AlbumsSaved:   int(atomic.LoadInt64(&e.albumsSaved)),
		FeaturesSaved: int(atomic.LoadInt64(&e.featuresSaved)),
		Elapsed:       time.Since(began),
	}
	e.publishMetrics(status, summary)
	e.sendProgress(progress, completeUpdate(int(result.ItemsProcessed), int(result.ItemsDropped)))

	if runErr != nil {
		return summary, runErr
	}
	return summary, nil
}

// admit evaluates the skip gate for a whole run. The persisted last
// completed run doubles as a cache entry so recency survives restarts.
func (e *IngestEngine) admit(force bool) skip.Decision {
	interval := time.Duration(e.deps.Config.MinIntervalHours) * time.Hour

	conds := skip.Conditions{
		Time: &skip.TimeCondition{Interval: interval, Force: force},
	}

	if !force && interval > 0 {
		last, err := e.deps.Runs.LastCompleted()
		if err != nil {
			e.deps.Logger.Warn("could not read last run, admitting", "error", err)
		} else if last != nil && last.FinishedAt() != nil {
			conds.Cache = &skip.CacheCondition{
				Entry: &skip.CacheEntry{Value: last.ID(), Timestamp: *last.FinishedAt()},
				TTL:   interval,
			}
		}
	}

	return e.deps.Gate.Evaluate("ingest", conds)
}

// normalize trims service whitespace and rejects tracks without an id.
func (e *IngestEngine) normalize(_ context.Context, item any) (any, error) {
	saved, ok := item.(models.SavedTrack)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected item type %T", shared.ErrValidation, item)
	}
	if saved.Track.ID == "" {
		return nil, fmt.Errorf("%w: track without id", shared.ErrValidation)
	}

	saved.Track.Title = strings.TrimSpace(saved.Track.Title)
	saved.Track.Artist = strings.TrimSpace(saved.Track.Artist)
	saved.Track.Album = strings.TrimSpace(saved.Track.Album)
	return saved, nil
}

// enrichJob is one grouped enrichment fetch handed to the coordinator.
type enrichJob struct {
	resource string
	ids      []string
	fetch    batcher.FetchFunc
	save     func([]any) (int, error)
}

// enrichBatch resolves the batch's distinct artist and album ids, and its
// track ids when a feature repository is wired, through the request batcher
// and persists the results. Enrichment failures are logged and do not fail
// the batch: tracks persist regardless.
func (e *IngestEngine) enrichBatch(ctx context.Context, items []any, progress chan<- ProgressUpdate) ([]any, error) {
	batchNo := int(atomic.AddInt64(&e.batchCount, 1))

	artistIDs := e.pendingIDs("artist", collectArtistIDs(items))
	albumIDs := e.pendingIDs("album", collectAlbumIDs(items))

	var trackIDs []string
	if e.deps.Features != nil {
		trackIDs = e.pendingIDs("feature", collectTrackIDs(items))
	}
	e.sendProgress(progress, enrichUpdate(batchNo, len(artistIDs), len(albumIDs), len(trackIDs)))

	var jobs []any
	if len(artistIDs) > 0 {
		jobs = append(jobs, enrichJob{
			resource: "artists",
			ids:      artistIDs,
			fetch:    e.deps.Remote.ArtistsBatch,
			save:     e.saveArtists,
		})
	}
	if len(albumIDs) > 0 {
		jobs = append(jobs, enrichJob{
			resource: "albums",
			ids:      albumIDs,
			fetch:    e.deps.Remote.AlbumsBatch,
			save:     e.saveAlbums,
		})
	}
	if len(trackIDs) > 0 {
		jobs = append(jobs, enrichJob{
			resource: "features",
			ids:      trackIDs,
			fetch:    e.deps.Remote.AudioFeaturesBatch,
			save:     e.saveFeatures,
		})
	}
	if len(jobs) == 0 {
		return items, nil
	}

	results, err := e.deps.Workers.RunBounded(ctx, jobs, func(ctx context.Context, item any) (any, error) {
		return nil, e.runEnrichJob(ctx, item.(enrichJob))
	}, workers.BoundedOptions{Concurrency: 3})
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		if r.Err != nil {
			e.deps.Logger.Warn("enrichment incomplete", "batch", batchNo, "error", r.Err)
		}
	}

	return items, nil
}

// runEnrichJob pushes one id set through the batcher and saves what comes
// back. The high priority flush skips the debounce timer: enrichment ids
// arrive pre-grouped, so there is nothing to coalesce with.
func (e *IngestEngine) runEnrichJob(ctx context.Context, job enrichJob) error {
	ticket := e.deps.Batcher.EnqueueBatch(job.resource, job.ids, job.fetch, batcher.PriorityHigh)
	results, err := ticket.Wait(ctx)
	if err != nil {
		return err
	}

	var values []any
	var firstErr error
	for _, r := range results {
		if r.Err != nil {
			if firstErr == nil {
				firstErr = r.Err
			}
			continue
		}
		if r.Value == nil {
			continue
		}
		values = append(values, r.Value)
		if e.deps.Cache != nil {
			if err := e.deps.Cache.Store(cacheKey(job.resource, r.ID), true); err != nil {
				e.deps.Logger.Debug("cache store failed", "key", r.ID, "error", err)
			}
		}
	}

	if _, err := job.save(values); err != nil {
		return err
	}
	return firstErr
}

// pendingIDs filters out ids with a live cache entry.
func (e *IngestEngine) pendingIDs(kind string, ids []string) []string {
	if e.deps.Cache == nil {
		return ids
	}
	pending := ids[:0]
	for _, id := range ids {
		_, ok, err := e.deps.Cache.Lookup(kind + ":" + id)
		if err != nil || !ok {
			pending = append(pending, id)
		}
	}
	return pending
}

// collectArtistIDs returns the distinct artist ids across a batch.
func collectArtistIDs(items []any) []string {
	seen := map[string]struct{}{}
	var ids []string
	for _, item := range items {
		saved, ok := item.(models.SavedTrack)
		if !ok {
			continue
		}
		for _, id := range saved.Track.ArtistIDs {
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

// collectTrackIDs returns the track ids across a batch. Normalization already
// rejected tracks without an id, and ids within one batch are distinct.
func collectTrackIDs(items []any) []string {
	var ids []string
	for _, item := range items {
		if saved, ok := item.(models.SavedTrack); ok {
			ids = append(ids, saved.Track.ID)
		}
	}
	return ids
}

// collectAlbumIDs returns the distinct album ids across a batch.
func collectAlbumIDs(items []any) []string {
	seen := map[string]struct{}{}
	var ids []string
	for _, item := range items {
		saved, ok := item.(models.SavedTrack)
		if !ok || saved.Track.AlbumID == "" {
			continue
		}
		if _, dup := seen[saved.Track.AlbumID]; dup {
			continue
		}
		seen[saved.Track.AlbumID] = struct{}{}
		ids = append(ids, saved.Track.AlbumID)
	}
	return ids
}

func cacheKey(resource, id string) string {
	// resource is plural ("artists"), cache keys are singular
	return strings.TrimSuffix(resource, "s") + ":" + id
}

func (e *IngestEngine) saveArtists(values []any) (int, error) {
	artists := make([]models.Artist, 0, len(values))
	for _, v := range values {
		if a, ok := v.(models.Artist); ok {
			artists = append(artists, a)
		}
	}
	if e.deps.Artists == nil || len(artists) == 0 {
		return 0, nil
	}
	written, err := e.deps.Artists.SaveBatch(e.deps.Service, artists)
	if err != nil {
		return 0, err
	}
	atomic.AddInt64(&e.artistsSaved, int64(written))
	return written, nil
}

func (e *IngestEngine) saveAlbums(values []any) (int, error) {
	albums := make([]models.Album, 0, len(values))
	for _, v := range values {
		if a, ok := v.(models.Album); ok {
			albums = append(albums, a)
		}
	}
	if e.deps.Albums == nil || len(albums) == 0 {
		return 0, nil
	}
	written, err := e.deps.Albums.SaveBatch(e.deps.Service, albums)
	if err != nil {
		return 0, err
	}
	atomic.AddInt64(&e.albumsSaved, int64(written))
	return written, nil
}

func (e *IngestEngine) saveFeatures(values []any) (int, error) {
	features := make([]models.AudioFeatures, 0, len(values))
	for _, v := range values {
		if f, ok := v.(models.AudioFeatures); ok {
			features = append(features, f)
		}
	}
	if e.deps.Features == nil || len(features) == 0 {
		return 0, nil
	}
	written, err := e.deps.Features.SaveBatch(e.deps.Service, features)
	if err != nil {
		return 0, err
	}
	atomic.AddInt64(&e.featuresSaved, int64(written))
	return written, nil
}

// sink persists one batch of saved tracks.
func (e *IngestEngine) sink(progress chan<- ProgressUpdate) stream.Sink {
	return func(ctx context.Context, batch []any) (stream.SinkStats, error) {
		saved := make([]models.SavedTrack, 0, len(batch))
		for _, item := range batch {
			if s, ok := item.(models.SavedTrack); ok {
				saved = append(saved, s)
			}
		}

		written, err := e.deps.Tracks.SaveBatch(e.deps.Service, saved)
		if err != nil {
			return stream.SinkStats{}, err
		}
		e.sendProgress(progress, persistUpdate(int(atomic.LoadInt64(&e.batchCount)), written))
		return stream.SinkStats{Persisted: written}, nil
	}
}

// publishMetrics pushes run counters and component snapshots to Prometheus.
func (e *IngestEngine) publishMetrics(status string, summary *IngestSummary) {
	metrics.IngestRuns.WithLabelValues(status).Inc()
	metrics.IngestDuration.Observe(summary.Elapsed.Seconds())
	metrics.PipelineItems.WithLabelValues("processed").Add(float64(summary.Pipeline.ItemsProcessed))
	metrics.PipelineItems.WithLabelValues("dropped").Add(float64(summary.Pipeline.ItemsDropped))
	metrics.BackpressureEvents.Add(float64(summary.Pipeline.BackpressureEvents))

	for resource, size := range e.deps.Batcher.Metrics().Optimal {
		metrics.OptimalBatchSize.WithLabelValues(resource).Set(float64(size))
	}
	if e.deps.Cache != nil {
		hits, misses := e.deps.Cache.Stats()
		metrics.CacheReads.WithLabelValues("hit").Set(float64(hits))
		metrics.CacheReads.WithLabelValues("miss").Set(float64(misses))
	}
}

// StatusReport aggregates recent run history for the status command.
type StatusReport struct {
	Runs        []*models.IngestRun
	TrackCount  int
	CacheHits   int64
	CacheMisses int64
}

// Status returns the most recent runs, newest first, plus table counts.
func (e *IngestEngine) Status(limit int) (*StatusReport, error) {
	if limit <= 0 {
		limit = 5
	}

	runs, err := e.deps.Runs.List(map[string]any{"limit": limit})
	if err != nil {
		return nil, err
	}

	count, err := e.deps.Tracks.Count()
	if err != nil {
		return nil, err
	}

	report := &StatusReport{Runs: runs, TrackCount: count}
	if e.deps.Cache != nil {
		report.CacheHits, report.CacheMisses = e.deps.Cache.Stats()
	}
	return report, nil
}

var _ Remote = (*services.Client)(nil)
