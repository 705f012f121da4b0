package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/siteaudit/internal/apiclient"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent opens the same database twice and checks the
// schema version is unchanged by the second run.
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	if err := s1.SetToken("persisted"); err != nil {
		t.Fatalf("SetToken: %v", err)
	}
	v1, err := s1.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v1 != v2 || v1 != 2 {
		t.Errorf("schema version %d -> %d, want 2 both times", v1, v2)
	}

	tok, err := s2.Token()
	if err != nil || tok != "persisted" {
		t.Errorf("Token() = %q, %v; want persisted", tok, err)
	}
}

func TestGetSetRemove(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) err = %v, want ErrNotFound", err)
	}

	if err := s.Set("k", "v1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set("k", "v2"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	got, err := s.Get("k")
	if err != nil || got != "v2" {
		t.Errorf("Get(k) = %q, %v; want v2", got, err)
	}

	if err := s.Remove("k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove("k"); err != nil {
		t.Errorf("second Remove: %v", err)
	}
	if _, err := s.Get("k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("after Remove err = %v, want ErrNotFound", err)
	}
}

func TestToken(t *testing.T) {
	s := openTestStore(t)

	tok, err := s.Token()
	if err != nil || tok != "" {
		t.Fatalf("Token() on empty store = %q, %v; want empty, nil", tok, err)
	}

	if err := s.SetToken("abc"); err != nil {
		t.Fatalf("SetToken: %v", err)
	}
	if tok, _ := s.Token(); tok != "abc" {
		t.Errorf("Token() = %q, want abc", tok)
	}

	if err := s.ClearToken(); err != nil {
		t.Fatalf("ClearToken: %v", err)
	}
	if tok, _ := s.Token(); tok != "" {
		t.Errorf("Token() after clear = %q, want empty", tok)
	}
}

func TestLang(t *testing.T) {
	s := openTestStore(t)
	if lang, _ := s.Lang(); lang != "" {
		t.Errorf("Lang() = %q, want empty", lang)
	}
	s.SetLang("fr")
	if lang, _ := s.Lang(); lang != "fr" {
		t.Errorf("Lang() = %q, want fr", lang)
	}
}

func TestRecentScans(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	score := 72.5

	for i, url := range []string{"a.example", "b.example", "c.example"} {
		r := ScanRecord{URL: url, Lang: "en", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if url == "b.example" {
			r.Score = &score
			r.Saved = true
		}
		rec, err := s.RecordScan(r)
		if err != nil {
			t.Fatalf("RecordScan: %v", err)
		}
		if rec.ID == "" {
			t.Error("RecordScan did not assign an id")
		}
	}

	scans, err := s.RecentScans(2)
	if err != nil {
		t.Fatalf("RecentScans: %v", err)
	}
	var urls []string
	for _, r := range scans {
		urls = append(urls, r.URL)
	}
	if diff := cmp.Diff([]string{"c.example", "b.example"}, urls); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if scans[1].Score == nil || *scans[1].Score != score || !scans[1].Saved {
		t.Errorf("b.example = %+v, want saved with score", scans[1])
	}
	if scans[0].Score != nil {
		t.Errorf("c.example score = %v, want nil", *scans[0].Score)
	}
	if !scans[0].CreatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("CreatedAt = %v", scans[0].CreatedAt)
	}

	if err := s.ClearScans(); err != nil {
		t.Fatalf("ClearScans: %v", err)
	}
	scans, _ = s.RecentScans(10)
	if len(scans) != 0 {
		t.Errorf("got %d scans after clear", len(scans))
	}
}

func TestNewScanRecord(t *testing.T) {
	r := NewScanRecord("example.com", "", apiclient.NewAnalysisResult([]byte(`{"url":"https://example.com/","global_score":64}`)), false)
	if r.URL != "https://example.com/" || r.Lang != "en" || r.Saved {
		t.Errorf("record = %+v", r)
	}
	if r.Score == nil || *r.Score != 64 {
		t.Errorf("score = %v, want 64", r.Score)
	}

	r = NewScanRecord("example.com", "fr", apiclient.NewAnalysisResult([]byte(`{}`)), true)
	if r.URL != "example.com" || r.Score != nil || !r.Saved {
		t.Errorf("record = %+v", r)
	}
}
