package config

// Backend persists config values by key. Values come back as text and are
// parsed against the key table on load, so a hand-edited file and one
// written by `config set` read the same way.
type Backend interface {
	// Raw returns the stored text for key.
	Raw(key string) (string, bool)
	// Put stores v, already parsed to the key's type.
	Put(key string, v any) error
	// Remove deletes key and reports whether it was set.
	Remove(key string) (bool, error)
}
