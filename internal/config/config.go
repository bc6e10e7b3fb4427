package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model: upstream API
// credentials and pacing, dedup windows, backfill sizing, and storage.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Dedup    DedupConfig    `yaml:"dedup"`
	Backfill BackfillConfig `yaml:"backfill"`
	Storage  StorageConfig  `yaml:"storage"`
	Output   OutputConfig   `yaml:"output"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type APIConfig struct {
	// RapidAPI key. If empty, read from env RAPID_API_KEY.
	Key  string `yaml:"key"`
	Host string `yaml:"host"`
	// Shared outbound budget per second across all callers.
	RequestsPerSecond int `yaml:"requestsPerSecond"`
	// Fixed delay before each call to smooth bursts.
	StaggerMs int `yaml:"staggerMs"`
	// Fixed wait after a 429 before retrying.
	CooldownSeconds int `yaml:"cooldownSeconds"`
	// Ceiling on 429 retries per call. 0 retries forever, matching the
	// observed upstream behavior.
	MaxRateLimitRetries int `yaml:"maxRateLimitRetries"`
	TimeoutSeconds      int `yaml:"timeoutSeconds"`
}

type DedupConfig struct {
	// Days since last update before a known profile is eligible again.
	RecencyWindowDays int `yaml:"recencyWindowDays"`
	// Minimum account age in days before the first recheck is allowed.
	MinAccountAgeDays int `yaml:"minAccountAgeDays"`
}

type BackfillConfig struct {
	BatchSize   int `yaml:"batchSize"`
	Concurrency int `yaml:"concurrency"`
}

type StorageConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	// DSN is a file path for sqlite, a connection string for postgres.
	DSN string `yaml:"dsn"`
}

type OutputConfig struct {
	Dir string `yaml:"dir"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		API: APIConfig{
			Host:                "twitter283.p.rapidapi.com",
			RequestsPerSecond:   3,
			StaggerMs:           100,
			CooldownSeconds:     2,
			MaxRateLimitRetries: 0,
			TimeoutSeconds:      30,
		},
		Dedup:    DedupConfig{RecencyWindowDays: 90, MinAccountAgeDays: 365},
		Backfill: BackfillConfig{BatchSize: 20, Concurrency: 10},
		Storage:  StorageConfig{Driver: "sqlite", DSN: "./driftnet.db"},
		Output:   OutputConfig{Dir: "./twitter_post_analysis"},
		Logging:  LoggingConfig{Level: "info"},
	}
}

// ResolveEnv fills in config fields from a .env file and the process
// environment when they are not already set.
func (c *Config) ResolveEnv() {
	_ = godotenv.Load()
	if c.API.Key == "" {
		c.API.Key = os.Getenv("RAPID_API_KEY")
	}
	if v := os.Getenv("RAPID_API_HOST"); v != "" {
		c.API.Host = v
	}
	if v := os.Getenv("RAPID_API_REQUESTS_PER_SECOND"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.API.RequestsPerSecond = n
		}
	}
	if v := os.Getenv("DRIFTNET_DB"); v != "" {
		c.Storage.DSN = v
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = os.Getenv("METRICS_ADDR")
	}
}

// Validate rejects configurations the process cannot start with.
func (c Config) Validate() error {
	if c.API.Key == "" {
		return errors.New("missing RapidAPI key: set api.key or RAPID_API_KEY")
	}
	if c.API.Host == "" {
		return errors.New("missing api.host")
	}
	if c.API.RequestsPerSecond < 1 {
		return errors.New("api.requestsPerSecond must be at least 1")
	}
	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		return errors.New("storage.driver must be sqlite or postgres")
	}
	if c.Backfill.BatchSize < 1 || c.Backfill.Concurrency < 1 {
		return errors.New("backfill batchSize and concurrency must be at least 1")
	}
	return nil
}

// Load reads YAML config from path and resolves environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
