package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/kalambet/siteaudit/internal/apiclient"
)

type Config struct {
	API     APIConfig
	Cache   CacheConfig
	Storage StorageConfig
	History HistoryConfig
	Log     LogConfig
	Watch   WatchConfig
	Metrics MetricsConfig
}

type APIConfig struct {
	BaseURL      string
	AuditsPath   string
	MonitorsPath string
	// Timeout bounds a whole request. Zero leaves requests unbounded.
	Timeout time.Duration
}

type CacheConfig struct {
	// StaleTime is how long a fetched resource is served without refetching.
	// Mutations invalidate their keys regardless.
	StaleTime time.Duration
}

type StorageConfig struct {
	DataDir string
}

type HistoryConfig struct {
	// Limit caps the local recent-scan listing.
	Limit int
}

type LogConfig struct {
	Level string
}

type WatchConfig struct {
	Interval time.Duration
}

type MetricsConfig struct {
	// Addr is where watch mode serves metrics. Empty disables the listener.
	Addr string
}

func defaults() Config {
	paths := apiclient.DefaultPaths()
	return Config{
		API: APIConfig{
			BaseURL:      apiclient.DefaultBaseURL,
			AuditsPath:   paths.Audits,
			MonitorsPath: paths.Monitors,
		},
		Cache: CacheConfig{
			StaleTime: 30 * time.Second,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		History: HistoryConfig{
			Limit: 20,
		},
		Log: LogConfig{
			Level: "info",
		},
		Watch: WatchConfig{
			Interval: 30 * time.Second,
		},
	}
}

// DotEnvFile is read from the working directory on Load.
const DotEnvFile = ".env"

// Load reads configuration from the JSON file at FilePath(), a .env file in
// the working directory, and the environment, in increasing precedence.
// Values in .env never override variables already set in the process
// environment, and the process environment is not modified.
func Load() (Config, error) {
	dotenv, err := godotenv.Read(DotEnvFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("reading %s: %w", DotEnvFile, err)
	}
	return loadWith(newFileBackend(FilePath()), envLookup(dotenv))
}

// envLookup consults the process environment first, then the .env values.
func envLookup(dotenv map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
}

func loadWith(b Backend, lookup func(string) (string, bool)) (Config, error) {
	cfg := defaults()

	applyBackend(&cfg, b)

	applyEnvOverrides(&cfg, lookup)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("missing required config: api.base_url")
	}
	if c.Watch.Interval <= 0 {
		return fmt.Errorf("watch.interval must be positive, got %s", c.Watch.Interval)
	}
	if c.History.Limit <= 0 {
		return fmt.Errorf("history.limit must be positive, got %d", c.History.Limit)
	}
	return nil
}
