package config

import (
	"fmt"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string `json:"key" yaml:"key"`
	Type   string `json:"type" yaml:"type"`
	EnvVar string `json:"env" yaml:"env"`
	Value  string `json:"value" yaml:"value"`
}

// ShowAll returns all config key/value pairs from the current config.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		result = append(result, KeyInfo{
			Key:    s.key,
			Type:   s.typ.String(),
			EnvVar: s.env,
			Value:  fmt.Sprintf("%v", s.extract(cfg)),
		})
	}
	return result
}

// SetKey validates value and writes it to the config file.
func SetKey(key, value string) error {
	return setKey(newFileBackend(FilePath()), key, value)
}

// UnsetKey removes key from the config file so its default applies again.
// It reports whether the file had a value for key.
func UnsetKey(key string) (bool, error) {
	return unsetKey(newFileBackend(FilePath()), key)
}

func unsetKey(b Backend, key string) (bool, error) {
	if _, ok := lookupSpec(key); !ok {
		return false, fmt.Errorf("unknown config key: %q", key)
	}
	return b.Remove(key)
}

// setKey stores the parsed value, so "1m0s" and "60s" land in the file as
// the same text.
func setKey(b Backend, key, value string) error {
	s, ok := lookupSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	v, err := s.parse(value)
	if err != nil {
		return err
	}
	return b.Put(key, v)
}

// ValidKeys returns the list of config key names.
func ValidKeys() []string {
	keys := make([]string, 0, len(specs))
	for _, s := range specs {
		keys = append(keys, s.key)
	}
	return keys
}
