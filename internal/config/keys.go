package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
)

func (t keyType) String() string {
	switch t {
	case kInt:
		return "int"
	case kDuration:
		return "duration"
	}
	return "string"
}

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "api.base_url", typ: kString, env: "SITEAUDIT_API_URL",
		apply:   func(cfg *Config, v any) { cfg.API.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.API.BaseURL },
	},
	{
		key: "api.audits_path", typ: kString, env: "SITEAUDIT_API_AUDITS_PATH",
		apply:   func(cfg *Config, v any) { cfg.API.AuditsPath = v.(string) },
		extract: func(cfg Config) any { return cfg.API.AuditsPath },
	},
	{
		key: "api.monitors_path", typ: kString, env: "SITEAUDIT_API_MONITORS_PATH",
		apply:   func(cfg *Config, v any) { cfg.API.MonitorsPath = v.(string) },
		extract: func(cfg Config) any { return cfg.API.MonitorsPath },
	},
	{
		key: "api.timeout", typ: kDuration, env: "SITEAUDIT_API_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.API.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.API.Timeout },
	},
	{
		key: "cache.stale_time", typ: kDuration, env: "SITEAUDIT_CACHE_STALE_TIME",
		apply:   func(cfg *Config, v any) { cfg.Cache.StaleTime = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Cache.StaleTime },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SITEAUDIT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "history.limit", typ: kInt, env: "SITEAUDIT_HISTORY_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.History.Limit = v.(int) },
		extract: func(cfg Config) any { return cfg.History.Limit },
	},
	{
		key: "log.level", typ: kString, env: "SITEAUDIT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "watch.interval", typ: kDuration, env: "SITEAUDIT_WATCH_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Watch.Interval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Watch.Interval },
	},
	{
		key: "metrics.addr", typ: kString, env: "SITEAUDIT_METRICS_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Metrics.Addr = v.(string) },
		extract: func(cfg Config) any { return cfg.Metrics.Addr },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parse converts raw text into the key's Go type.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		i, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid integer for %s: %w", s.key, err)
		}
		return i, nil
	case kDuration:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid duration for %s: %w", s.key, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("negative duration for %s", s.key)
		}
		return d, nil
	}
	return raw, nil
}

// applyBackend applies every stored key. Values that do not parse as the
// key's type are reported and left at their defaults.
func applyBackend(cfg *Config, b Backend) {
	for _, s := range specs {
		raw, ok := b.Raw(s.key)
		if !ok || raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] %v. Using default value.\n", err)
			continue
		}
		s.apply(cfg, v)
	}
}

// applyEnvOverrides applies every key whose env var lookup yields a
// non-empty value.
func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw, ok := lookup(s.env)
		if !ok || raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
