package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
	"github.com/vishkrish200/spotify-organiser/internal/batcher"
	"github.com/vishkrish200/spotify-organiser/internal/repositories"
	"github.com/vishkrish200/spotify-organiser/internal/services"
	"github.com/vishkrish200/spotify-organiser/internal/shared"
	"github.com/vishkrish200/spotify-organiser/internal/skip"
	"github.com/vishkrish200/spotify-organiser/internal/tasks"
	"github.com/vishkrish200/spotify-organiser/internal/workers"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config *shared.Config
	logger *log.Logger
	output io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config *shared.Config
	Logger *log.Logger
	Output io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config: opts.Config,
		logger: opts.Logger,
		output: opts.Output,
	}
}

// SetLogger replaces the runner's logger, used to redirect logs to a file
// while the interactive monitor owns the terminal.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, ingestCommand, statusCommand, exportCommand, cacheCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig resolves the effective configuration for a command, preferring
// the file named by --config when it exists.
func (r *Runner) loadConfig(cmd *cli.Command) *shared.Config {
	configPath := cmd.String("config")
	if configPath == "" {
		return r.config
	}
	if _, err := os.Stat(configPath); err != nil {
		return r.config
	}

	config, err := shared.LoadConfig(configPath)
	if err != nil {
		r.logger.Warn("failed to load config, using defaults", "path", configPath, "error", err)
		return r.config
	}
	return config
}

// openDatabase opens the configured SQLite database and ensures the schema
// is current.
func (r *Runner) openDatabase(config *shared.Config) (*sql.DB, error) {
	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// ingestStack bundles the engine with the resources it borrows.
type ingestStack struct {
	engine  *tasks.IngestEngine
	cache   *repositories.MetadataCache
	batcher *batcher.Batcher
	workers *workers.Coordinator
	db      *sql.DB
}

func (s *ingestStack) close() {
	s.batcher.Close()
	s.workers.Shutdown()
	s.db.Close()
}

// buildIngest assembles the full ingest stack from configuration: the
// Spotify client and library stream, the repositories, and the batching,
// concurrency, and admission layers.
func (r *Runner) buildIngest(ctx context.Context, config *shared.Config) (*ingestStack, error) {
	db, err := r.openDatabase(config)
	if err != nil {
		return nil, err
	}

	client, err := services.NewClient(ctx, config.Credentials.Spotify, services.ClientOptions{
		RateLimit: config.Ingest.RateLimit,
		Logger:    r.logger,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	cfg := config.Ingest
	b := batcher.New(batcher.Config{
		Debounce: time.Duration(cfg.BatchDebounceMS) * time.Millisecond,
		MaxWait:  time.Duration(cfg.BatchMaxWaitMS) * time.Millisecond,
		Ceilings: map[string]int{
			"tracks":   services.MaxTracksPerRequest,
			"artists":  services.MaxArtistsPerRequest,
			"albums":   services.MaxAlbumsPerRequest,
			"features": services.MaxAudioFeaturesPerRequest,
		},
		Logger: r.logger,
	})
	coord := workers.NewCoordinator(workers.Config{
		PoolSize: cfg.PoolSize,
		Logger:   r.logger,
	})
	cache := repositories.NewMetadataCache(db, time.Duration(cfg.CacheTTLMinutes)*time.Minute)

	engine, err := tasks.NewIngestEngine(tasks.Deps{
		Source:   services.NewLibrarySource(client, services.MaxTracksPerRequest),
		Remote:   client,
		Tracks:   repositories.NewTrackRepository(db),
		Artists:  repositories.NewArtistRepository(db),
		Albums:   repositories.NewAlbumRepository(db),
		Features: repositories.NewFeatureRepository(db),
		Runs:     repositories.NewRunRepository(db),
		Cache:    cache,
		Gate:     skip.NewGate(skip.Config{Logger: r.logger}),
		Batcher:  b,
		Workers:  coord,
		Config:   cfg,
		Logger:   r.logger,
	})
	if err != nil {
		b.Close()
		coord.Shutdown()
		db.Close()
		return nil, err
	}

	return &ingestStack{engine: engine, cache: cache, batcher: b, workers: coord, db: db}, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
