package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"
	"github.com/vishkrish200/spotify-organiser/internal/formatter"
	"github.com/vishkrish200/spotify-organiser/internal/server"
	"github.com/vishkrish200/spotify-organiser/internal/shared"
	"github.com/vishkrish200/spotify-organiser/internal/tasks"
	"github.com/vishkrish200/spotify-organiser/internal/ui"
)

// Ingest runs a full library ingest, streaming progress to the terminal or
// the interactive monitor.
func (r *Runner) Ingest(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)
	opts := tasks.IngestOptions{Force: cmd.Bool("force")}

	var listener *server.Listener
	if config.Metrics.Addr != "" {
		listener = server.NewListener(config.Metrics.Addr, r.logger)
		listener.Start()
		defer listener.Stop(ctx)
	}

	if cmd.Bool("watch") {
		return r.ingestWatch(ctx, config, opts)
	}

	stack, err := r.buildIngest(ctx, config)
	if err != nil {
		return err
	}
	defer stack.close()

	progress := make(chan tasks.ProgressUpdate, 50)
	drained := make(chan struct{})
	go func() {
		for update := range progress {
			r.writePlainln("%s", update.Message)
		}
		close(drained)
	}()

	summary, err := stack.engine.Ingest(ctx, opts, progress)
	close(progress)
	<-drained
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(summaryJSON(summary), true)
	}
	return r.writePlain("\n%s", formatter.RenderSummary(summary))
}

// ingestWatch runs the ingest inside the bubbletea monitor. Logs are
// redirected to a file so they do not fight the TUI for the terminal.
func (r *Runner) ingestWatch(ctx context.Context, config *shared.Config, opts tasks.IngestOptions) error {
	fileLogger, err := shared.NewFileLogger("./tmp/sporg-ingest.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	run := func(runCtx context.Context, progress chan tasks.ProgressUpdate) (*tasks.IngestSummary, error) {
		stack, err := r.buildIngest(runCtx, config)
		if err != nil {
			return nil, err
		}
		defer stack.close()
		return stack.engine.Ingest(runCtx, opts, progress)
	}

	model := ui.NewModel(ctx, run)
	p := tea.NewProgram(model)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running monitor: %w", err)
	}
	return nil
}

// summaryJSON flattens an IngestSummary for machine-readable output.
func summaryJSON(s *tasks.IngestSummary) map[string]any {
	out := map[string]any{
		"skipped":    s.Skipped,
		"elapsed_ms": s.Elapsed.Milliseconds(),
	}
	if s.Skipped {
		out["skip_reason"] = s.SkipReason
		return out
	}
	if s.Run != nil {
		out["run_id"] = s.Run.ID()
		out["status"] = s.Run.Status()
	}
	if s.Pipeline != nil {
		out["items_processed"] = s.Pipeline.ItemsProcessed
		out["items_dropped"] = s.Pipeline.ItemsDropped
		out["batches_flushed"] = s.Pipeline.BatchesFlushed
		out["batches_skipped"] = s.Pipeline.BatchesSkipped
		out["backpressure_events"] = s.Pipeline.BackpressureEvents
		out["errors"] = s.Pipeline.Errors
	}
	out["artists_saved"] = s.ArtistsSaved
	out["albums_saved"] = s.AlbumsSaved
	out["features_saved"] = s.FeaturesSaved
	return out
}
