package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultLang is sent when an analysis request carries no language.
const DefaultLang = "en"

// AnalysisRequest is the JSON body for POST /api/analyze.
// CompetitorURL is omitted from the payload entirely when empty.
type AnalysisRequest struct {
	URL           string `json:"url"`
	Lang          string `json:"lang"`
	CompetitorURL string `json:"competitor_url,omitempty"`
}

// NewAnalysisRequest builds a request, defaulting lang to "en".
func NewAnalysisRequest(url, lang, competitorURL string) AnalysisRequest {
	if lang == "" {
		lang = DefaultLang
	}
	return AnalysisRequest{URL: url, Lang: lang, CompetitorURL: competitorURL}
}

// AnalysisResult is an opaque analysis record as returned by the backend.
// The raw JSON is kept as received; accessors never mutate it.
type AnalysisResult struct {
	raw json.RawMessage
}

// NewAnalysisResult wraps raw JSON. The bytes are copied.
func NewAnalysisResult(raw []byte) AnalysisResult {
	return AnalysisResult{raw: bytes.Clone(raw)}
}

func (r AnalysisResult) MarshalJSON() ([]byte, error) {
	if len(r.raw) == 0 {
		return []byte("null"), nil
	}
	return r.raw, nil
}

func (r *AnalysisResult) UnmarshalJSON(data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("analysis result is not valid JSON")
	}
	r.raw = bytes.Clone(data)
	return nil
}

// MarshalYAML renders the record as its decoded JSON tree.
func (r AnalysisResult) MarshalYAML() (any, error) {
	if r.IsZero() {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(r.raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// IsZero reports whether the result holds no data.
func (r AnalysisResult) IsZero() bool {
	return len(r.raw) == 0 || string(r.raw) == "null"
}

// Raw returns a copy of the underlying JSON.
func (r AnalysisResult) Raw() json.RawMessage {
	return bytes.Clone(r.raw)
}

// Decode unmarshals the result into v.
func (r AnalysisResult) Decode(v any) error {
	if r.IsZero() {
		return fmt.Errorf("empty analysis result")
	}
	return json.Unmarshal(r.raw, v)
}

type resultSummary struct {
	ID          *int64   `json:"id"`
	URL         string   `json:"url"`
	Score       *float64 `json:"score"`
	GlobalScore *float64 `json:"global_score"`
	CreatedAt   string   `json:"created_at"`
}

func (r AnalysisResult) summary() resultSummary {
	var s resultSummary
	_ = json.Unmarshal(r.raw, &s)
	return s
}

// Score returns the top-level score, preferring "score" over "global_score".
func (r AnalysisResult) Score() (float64, bool) {
	s := r.summary()
	switch {
	case s.Score != nil:
		return *s.Score, true
	case s.GlobalScore != nil:
		return *s.GlobalScore, true
	}
	return 0, false
}

// URL returns the analyzed URL, if the record carries one.
func (r AnalysisResult) URL() string {
	return r.summary().URL
}

// ID returns the backend-assigned audit id of a saved record.
func (r AnalysisResult) ID() (int64, bool) {
	s := r.summary()
	if s.ID == nil {
		return 0, false
	}
	return *s.ID, true
}

// CreatedAt returns the creation time of a saved record.
func (r AnalysisResult) CreatedAt() (time.Time, bool) {
	s := r.summary()
	if s.CreatedAt == "" {
		return time.Time{}, false
	}
	t, err := parseTimestamp(s.CreatedAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Frequency is how often a monitor runs.
type Frequency string

const (
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
)

// ParseFrequency validates a frequency name.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(strings.ToLower(strings.TrimSpace(s))); f {
	case FrequencyDaily, FrequencyWeekly:
		return f, nil
	}
	return "", fmt.Errorf("invalid frequency %q: want daily or weekly", s)
}

// Monitor is a read-only snapshot of a backend monitor.
type Monitor struct {
	ID            int64      `json:"id" yaml:"id"`
	UserID        int64      `json:"user_id" yaml:"user_id"`
	URL           string     `json:"url" yaml:"url"`
	Frequency     Frequency  `json:"frequency" yaml:"frequency"`
	IsActive      bool       `json:"is_active" yaml:"is_active"`
	LastScore     *float64   `json:"last_score,omitempty" yaml:"last_score,omitempty"`
	Threshold     float64    `json:"alert_threshold" yaml:"alert_threshold"`
	CreatedAt     Timestamp  `json:"created_at" yaml:"created_at"`
	LastCheckedAt *Timestamp `json:"last_checked_at,omitempty" yaml:"last_checked_at,omitempty"`
}

// MonitorCreate is the payload for creating a monitor.
type MonitorCreate struct {
	URL       string    `json:"url" yaml:"url"`
	Frequency Frequency `json:"frequency" yaml:"frequency"`
	Threshold float64   `json:"alert_threshold" yaml:"alert_threshold"`
}

type monitorPatch struct {
	IsActive bool `json:"is_active"`
}

// User is the authenticated account as returned by /api/auth/me.
type User struct {
	ID          int64     `json:"id" yaml:"id"`
	Email       string    `json:"email" yaml:"email"`
	FullName    string    `json:"full_name,omitempty" yaml:"full_name,omitempty"`
	IsActive    bool      `json:"is_active" yaml:"is_active"`
	IsSuperuser bool      `json:"is_superuser" yaml:"is_superuser"`
	CreatedAt   Timestamp `json:"created_at" yaml:"created_at"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Timestamp accepts RFC 3339 and the zone-less ISO form the backend emits
// for naive UTC datetimes.
type Timestamp struct {
	time.Time
}

const naiveLayout = "2006-01-02T15:04:05.999999999"

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(naiveLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := parseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

func (t Timestamp) MarshalYAML() (any, error) {
	return t.Time.UTC().Format(time.RFC3339), nil
}
