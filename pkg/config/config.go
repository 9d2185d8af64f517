package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

// Config holds all configuration for ekaya-metagraph.
// Configuration can come from a YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values.
// Connection secrets for sources live in the sources file as ${ENV} references.
type Config struct {
	Version string `yaml:"-"` // Set at load time, not from config

	Log        LogConfig        `yaml:"log"`
	GraphStore GraphStoreConfig `yaml:"graph_store"`
	Crawl      CrawlConfig      `yaml:"crawl"`
	Metrics    MetricsConfig    `yaml:"metrics"`

	// SourcesFile lists the sources that can be crawled.
	SourcesFile string `yaml:"sources_file" env:"SOURCES_FILE" env-default:"sources.yaml"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level       string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Development bool   `yaml:"development" env:"LOG_DEVELOPMENT" env-default:"false"`
}

// GraphStoreConfig locates the SQLite graph store.
type GraphStoreConfig struct {
	Path          string `yaml:"path" env:"GRAPH_STORE_PATH" env-default:"metagraph.db"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms" env:"GRAPH_STORE_BUSY_TIMEOUT_MS" env-default:"5000"`
}

// CrawlConfig bounds crawl work.
type CrawlConfig struct {
	// SampleSize is the number of documents sampled per collection for field inference.
	SampleSize int `yaml:"sample_size" env:"CRAWL_SAMPLE_SIZE" env-default:"200"`
	// ProfileSampleSize bounds rows read per column when profiling.
	ProfileSampleSize int `yaml:"profile_sample_size" env:"CRAWL_PROFILE_SAMPLE_SIZE" env-default:"1000"`
	// DocumentProfileSampleSize is the number of documents sampled for field statistics.
	DocumentProfileSampleSize int `yaml:"document_profile_sample_size" env:"CRAWL_DOCUMENT_PROFILE_SAMPLE_SIZE" env-default:"500"`
	// Timeout is the deadline for one source's crawl.
	Timeout time.Duration `yaml:"timeout" env:"CRAWL_TIMEOUT" env-default:"10m"`
	// Concurrency is how many sources `crawl --all` runs at once.
	Concurrency int `yaml:"concurrency" env:"CRAWL_CONCURRENCY" env-default:"2"`
}

// MetricsConfig controls the Pushgateway push after a run.
type MetricsConfig struct {
	// PushURL is the Pushgateway base URL. Empty disables pushing.
	PushURL string `yaml:"push_url" env:"METRICS_PUSH_URL" env-default:""`
	Job     string `yaml:"job" env:"METRICS_JOB" env-default:"ekaya-metagraph"`
}

// Load reads configuration from path with environment variable overrides.
// A missing file is not an error when path is DefaultPath; defaults and the
// environment are used instead.
// The version parameter is injected at build time and set on the returned Config.
func Load(path, version string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg := &Config{
		Version: version,
	}

	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	case errors.Is(statErr, os.ErrNotExist) && path == DefaultPath:
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, statErr)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.GraphStore.Path == "" {
		return fmt.Errorf("graph_store.path is required")
	}
	if c.Crawl.Concurrency < 1 {
		return fmt.Errorf("crawl.concurrency must be at least 1, got %d", c.Crawl.Concurrency)
	}
	if c.Crawl.Timeout <= 0 {
		return fmt.Errorf("crawl.timeout must be positive, got %s", c.Crawl.Timeout)
	}
	return nil
}
