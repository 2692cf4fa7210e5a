package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/vishkrish200/spotify-organiser/internal/formatter"
	"github.com/vishkrish200/spotify-organiser/internal/repositories"
	"github.com/vishkrish200/spotify-organiser/internal/tasks"
)

// Status shows recent ingest runs and library counts.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	limit := cmd.Int("limit")
	if limit <= 0 {
		limit = 5
	}

	runs, err := repositories.NewRunRepository(db).List(map[string]any{"limit": limit})
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	count, err := repositories.NewTrackRepository(db).Count()
	if err != nil {
		return fmt.Errorf("failed to count tracks: %w", err)
	}

	report := &tasks.StatusReport{Runs: runs, TrackCount: count}

	if cmd.Bool("json") {
		rows := make([]map[string]any, len(runs))
		for i, run := range runs {
			rows[i] = map[string]any{
				"id":         run.ID(),
				"status":     run.Status(),
				"started_at": run.StartedAt(),
				"processed":  run.ItemsProcessed(),
				"dropped":    run.ItemsDropped(),
				"errors":     run.ErrorCount(),
			}
		}
		return r.writeJSON(map[string]any{"tracks": count, "runs": rows}, true)
	}

	return r.writePlain("%s", formatter.RenderStatus(report))
}

// Export writes the stored library to a CSV file.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	criteria := map[string]any{}
	if artistID := cmd.String("artist-id"); artistID != "" {
		criteria["artist_id"] = artistID
	}

	tracks, err := repositories.NewTrackRepository(db).List(criteria)
	if err != nil {
		return fmt.Errorf("failed to list tracks: %w", err)
	}
	if len(tracks) == 0 {
		return r.writePlainln("No tracks stored, run 'sporg ingest' first")
	}

	path, err := formatter.WriteCSVExport(tracks, cmd.String("output"))
	if err != nil {
		return err
	}

	r.logger.Info("library exported", "tracks", len(tracks), "path", path)
	return r.writePlainln("✓ Exported %d tracks to %s", len(tracks), path)
}

// CachePrune removes expired metadata cache rows.
func (r *Runner) CachePrune(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	cache := repositories.NewMetadataCache(db, time.Duration(config.Ingest.CacheTTLMinutes)*time.Minute)
	removed, err := cache.Prune()
	if err != nil {
		return err
	}

	return r.writePlainln("✓ Pruned %d expired cache entries", removed)
}

// CacheInvalidate removes a single metadata cache row.
func (r *Runner) CacheInvalidate(ctx context.Context, cmd *cli.Command) error {
	key := cmd.StringArg("key")
	if key == "" {
		return fmt.Errorf("cache key is required")
	}

	config := r.loadConfig(cmd)

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	cache := repositories.NewMetadataCache(db, time.Duration(config.Ingest.CacheTTLMinutes)*time.Minute)
	if err := cache.Invalidate(key); err != nil {
		return err
	}

	return r.writePlainln("✓ Invalidated %q", key)
}
