package storage

import (
	"errors"
	"time"

	"github.com/kalambet/siteaudit/internal/apiclient"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Well-known local_storage keys.
const (
	TokenKey = "access_token"
	LangKey  = "lang"
)

// ScanRecord is a locally remembered analysis run. It is kept whether or not
// the result was saved to the backend.
type ScanRecord struct {
	ID        string    `json:"id" yaml:"id"`
	URL       string    `json:"url" yaml:"url"`
	Lang      string    `json:"lang" yaml:"lang"`
	Score     *float64  `json:"score,omitempty" yaml:"score,omitempty"`
	Saved     bool      `json:"saved" yaml:"saved"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// NewScanRecord summarizes an analysis result for the local log. The URL
// the backend reports wins over the one requested.
func NewScanRecord(url, lang string, result apiclient.AnalysisResult, saved bool) ScanRecord {
	if u := result.URL(); u != "" {
		url = u
	}
	if lang == "" {
		lang = apiclient.DefaultLang
	}
	r := ScanRecord{URL: url, Lang: lang, Saved: saved}
	if score, ok := result.Score(); ok {
		r.Score = &score
	}
	return r
}
