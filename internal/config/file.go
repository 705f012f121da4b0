package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "siteaudit-data"
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "siteaudit")
}

// FilePath returns the location of the config file.
func FilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".", "siteaudit", "config.json")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "siteaudit", "config.json")
}

// fileBackend is a flat JSON object keyed by dotted key names. Integers are
// stored as numbers, durations as Go duration strings ("30s").
type fileBackend struct {
	path   string
	values map[string]json.RawMessage
}

func newFileBackend(path string) *fileBackend {
	b := &fileBackend{path: path, values: make(map[string]json.RawMessage)}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		fmt.Fprintf(os.Stderr, "[WARN] could not read config file %s: %v. Using default values.\n", path, err)
	default:
		if err := json.Unmarshal(data, &b.values); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config file %s: %v. Using default values.\n", path, err)
			b.values = make(map[string]json.RawMessage)
		}
	}
	return b
}

func (b *fileBackend) Raw(key string) (string, bool) {
	raw, ok := b.values[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	// Numbers and booleans keep their literal text.
	text := bytes.TrimSpace(raw)
	if len(text) == 0 || text[0] == '{' || text[0] == '[' || string(text) == "null" {
		fmt.Fprintf(os.Stderr, "[WARN] config key %s holds %s, not a value. Using default value.\n", key, text)
		return "", false
	}
	return string(text), true
}

func (b *fileBackend) Put(key string, v any) error {
	if d, ok := v.(time.Duration); ok {
		v = d.String()
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	b.values[key] = raw
	return b.save()
}

func (b *fileBackend) Remove(key string) (bool, error) {
	if _, ok := b.values[key]; !ok {
		return false, nil
	}
	delete(b.values, key)
	return true, b.save()
}

// save writes a temp file beside the config and renames it into place.
func (b *fileBackend) save() error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(b.values, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), b.path)
}
