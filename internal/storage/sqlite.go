package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kalambet/siteaudit/internal/storage/migrations"
)

// Store is the client's durable local state: the bearer token, the
// preferred language, and a log of recent analyses.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "siteaudit.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// A single connection keeps ":memory:" coherent and avoids "database is locked".
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SchemaVersion returns the latest applied migration version.
func (s *Store) SchemaVersion() (int64, error) {
	return migrations.Version(s.db)
}

// --- Key/value ---

// Get returns the value stored under key, or ErrNotFound.
func (s *Store) Get(key string) (string, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM local_storage WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading %q: %w", key, err)
	}
	return v, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO local_storage (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("writing %q: %w", key, err)
	}
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (s *Store) Remove(key string) error {
	if _, err := s.db.Exec("DELETE FROM local_storage WHERE key = ?", key); err != nil {
		return fmt.Errorf("removing %q: %w", key, err)
	}
	return nil
}

// Token returns the stored bearer token, or "" when there is none.
func (s *Store) Token() (string, error) {
	tok, err := s.Get(TokenKey)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return tok, err
}

// SetToken stores the bearer token.
func (s *Store) SetToken(token string) error {
	return s.Set(TokenKey, token)
}

// ClearToken removes the bearer token.
func (s *Store) ClearToken() error {
	return s.Remove(TokenKey)
}

// Lang returns the preferred report language, or "" when unset.
func (s *Store) Lang() (string, error) {
	lang, err := s.Get(LangKey)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return lang, err
}

// SetLang stores the preferred report language.
func (s *Store) SetLang(lang string) error {
	return s.Set(LangKey, lang)
}

// --- Recent scans ---

// RecordScan appends r to the local scan log, assigning an id and timestamp
// when they are empty.
func (s *Store) RecordScan(r ScanRecord) (ScanRecord, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	_, err := s.db.Exec(`
		INSERT INTO recent_scans (id, url, lang, score, saved, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.URL, r.Lang, r.Score, r.Saved, r.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return ScanRecord{}, fmt.Errorf("recording scan: %w", err)
	}
	return r, nil
}

// RecentScans returns up to limit scans, newest first.
func (s *Store) RecentScans(limit int) ([]ScanRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, url, lang, score, saved, created_at
		FROM recent_scans ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}
	defer rows.Close()

	scans := []ScanRecord{}
	for rows.Next() {
		var (
			r         ScanRecord
			score     sql.NullFloat64
			createdAt string
		)
		if err := rows.Scan(&r.ID, &r.URL, &r.Lang, &score, &r.Saved, &createdAt); err != nil {
			return nil, err
		}
		if score.Valid {
			v := score.Float64
			r.Score = &v
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at of scan %s: %w", r.ID, err)
		}
		scans = append(scans, r)
	}
	return scans, rows.Err()
}

// ClearScans empties the local scan log.
func (s *Store) ClearScans() error {
	if _, err := s.db.Exec("DELETE FROM recent_scans"); err != nil {
		return fmt.Errorf("clearing scans: %w", err)
	}
	return nil
}
