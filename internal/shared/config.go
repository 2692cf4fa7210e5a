package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Ingest      IngestConfig      `toml:"ingest"`
	Metrics     MetricsConfig     `toml:"metrics"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RefreshToken string `toml:"refresh_token"`
	AccessToken  string `toml:"access_token"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// IngestConfig tunes the library ingestion subsystem.
type IngestConfig struct {
	PoolSize         int     `toml:"pool_size"`          // parallel worker count (default: NumCPU)
	Concurrency      int     `toml:"concurrency"`        // bounded I/O concurrency (default: 5)
	RateLimit        float64 `toml:"rate_limit"`         // remote requests per second (default: 5)
	BatchDebounceMS  int     `toml:"batch_debounce_ms"`  // batcher flush debounce (default: 50)
	BatchMaxWaitMS   int     `toml:"batch_max_wait_ms"`  // batcher max queue age (default: 1000)
	PipelineBatch    int     `toml:"pipeline_batch"`     // pipeline batch stage size (default: 50)
	CacheTTLMinutes  int     `toml:"cache_ttl_minutes"`  // metadata cache TTL (default: 1440)
	MinIntervalHours int     `toml:"min_interval_hours"` // minimum hours between full ingests (default: 6)
}

// MetricsConfig controls the optional metrics listener started during ingest.
type MetricsConfig struct {
	Addr string `toml:"addr"` // e.g. "127.0.0.1:9464"; empty disables the listener
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
