package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kalambet/siteaudit/internal/apiclient"
	"github.com/kalambet/siteaudit/internal/querycache"
	"github.com/kalambet/siteaudit/internal/resource"
	"github.com/kalambet/siteaudit/internal/storage"
)

type testEnv struct {
	deps    Deps
	store   *storage.Store
	session *resource.Session
	saves   atomic.Int32
}

// newTestEnv wires real hooks to a chi fake backend that accepts the token "good".
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{}

	r := chi.NewRouter()
	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, req *http.Request) {
			if req.Header.Get("Authorization") != "Bearer good" {
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprint(w, `{"detail":"Could not validate credentials"}`)
				return
			}
			next(w, req)
		}
	}
	r.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, `{"status":"healthy"}`) })
	r.Post("/api/analyze", func(w http.ResponseWriter, req *http.Request) {
		var body apiclient.AnalysisRequest
		json.NewDecoder(req.Body).Decode(&body)
		if body.URL == "" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"detail":"URL is required"}`)
			return
		}
		fmt.Fprintf(w, `{"url":%q,"score":87}`, body.URL)
	})
	r.Get("/api/auth/me", authed(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"id":1,"email":"a@b.c","is_active":true,"created_at":"2026-01-01T00:00:00"}`)
	}))
	r.Post("/api/audits/", authed(func(w http.ResponseWriter, _ *http.Request) {
		env.saves.Add(1)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":10}`)
	}))
	r.Get("/api/audits/", authed(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `[{"id":10,"url":"a"},{"id":9,"url":"b"},{"id":8,"url":"c"}]`)
	}))
	r.Get("/api/audits/{id}", authed(func(w http.ResponseWriter, req *http.Request) {
		if chi.URLParam(req, "id") != "10" {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"detail":"Audit not found"}`)
			return
		}
		fmt.Fprint(w, `{"id":10,"url":"a"}`)
	}))
	r.Get("/api/monitors/", authed(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `[{"id":4,"url":"https://a.example","frequency":"daily","is_active":true,"alert_threshold":10,"created_at":"2026-01-01T00:00:00"}]`)
	}))
	r.Post("/api/monitors/", authed(func(w http.ResponseWriter, req *http.Request) {
		var in apiclient.MonitorCreate
		json.NewDecoder(req.Body).Decode(&in)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id":5,"url":%q,"frequency":%q,"is_active":true,"alert_threshold":%v,"created_at":"2026-01-01T00:00:00"}`, in.URL, in.Frequency, in.Threshold)
	}))
	r.Patch("/api/monitors/{id}", authed(func(w http.ResponseWriter, req *http.Request) {
		var in struct {
			IsActive bool `json:"is_active"`
		}
		json.NewDecoder(req.Body).Decode(&in)
		fmt.Fprintf(w, `{"id":%s,"url":"https://a.example","frequency":"daily","is_active":%v,"alert_threshold":10,"created_at":"2026-01-01T00:00:00"}`, chi.URLParam(req, "id"), in.IsActive)
	}))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	client := apiclient.New(srv.URL, apiclient.WithHTTPClient(srv.Client()))
	cache := querycache.New(querycache.WithMetrics(querycache.NewMetrics(prometheus.NewRegistry())))
	session := resource.NewSession(client, store, cache)
	hooks := resource.New(client, cache, session, store)

	env.store = store
	env.session = session
	env.deps = Deps{Resources: hooks, Scans: store, Account: session, DefaultLang: "en"}
	return env
}

func (env *testEnv) signIn(t *testing.T) {
	t.Helper()
	if _, err := env.session.UseToken(context.Background(), "good"); err != nil {
		t.Fatalf("UseToken: %v", err)
	}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func call(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	result, err := h(context.Background(), makeCallToolRequest(name, args))
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", name, err)
	}
	return result
}

func TestAnalyze_SignedOutRecordsUnsavedScan(t *testing.T) {
	env := newTestEnv(t)

	result := call(t, toolAnalyze(env.deps), "analyze_url", map[string]any{"url": "example.com", "save": true})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var out struct {
		Saved  bool            `json:"saved"`
		Report json.RawMessage `json:"report"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &out); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out.Saved {
		t.Error("saved = true while signed out")
	}
	if !strings.Contains(string(out.Report), `"score":87`) {
		t.Errorf("report = %s", out.Report)
	}
	if env.saves.Load() != 0 {
		t.Error("backend save called without a token")
	}

	scans, _ := env.store.RecentScans(10)
	if len(scans) != 1 || scans[0].URL != "example.com" || scans[0].Saved {
		t.Errorf("scans = %+v", scans)
	}
}

func TestAnalyze_SignedInSaves(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t)

	result := call(t, toolAnalyze(env.deps), "analyze_url", map[string]any{"url": "example.com", "lang": "fr", "save": true})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if !strings.Contains(toolText(t, result), `"saved":true`) {
		t.Errorf("result = %s", toolText(t, result))
	}
	if env.saves.Load() != 1 {
		t.Errorf("saves = %d, want 1", env.saves.Load())
	}
	scans, _ := env.store.RecentScans(10)
	if len(scans) != 1 || scans[0].Lang != "fr" || !scans[0].Saved {
		t.Errorf("scans = %+v", scans)
	}
}

func TestAnalyze_BackendError(t *testing.T) {
	env := newTestEnv(t)

	result := call(t, toolAnalyze(env.deps), "analyze_url", map[string]any{"url": ""})
	if !result.IsError {
		t.Fatal("expected error for missing url")
	}

	result = call(t, toolAnalyze(env.deps), "analyze_url", map[string]any{})
	if !result.IsError || toolText(t, result) != "url is required" {
		t.Errorf("result = %s", toolText(t, result))
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	result := call(t, toolHealth(env.deps), "health_check", nil)
	if toolText(t, result) != `{"healthy":true}` {
		t.Errorf("result = %s", toolText(t, result))
	}
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t)

	result := call(t, toolHistory(env.deps), "scan_history", nil)
	if !result.IsError || !strings.Contains(toolText(t, result), "not signed in") {
		t.Fatalf("signed out result = %s", toolText(t, result))
	}

	env.signIn(t)
	result = call(t, toolHistory(env.deps), "scan_history", map[string]any{"limit": 2})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	var audits []json.RawMessage
	if err := json.Unmarshal([]byte(toolText(t, result)), &audits); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(audits) != 2 {
		t.Errorf("got %d audits, want 2", len(audits))
	}
}

func TestGetAudit(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t)

	result := call(t, toolGetAudit(env.deps), "get_audit", map[string]any{"id": 10})
	if result.IsError || toolText(t, result) != `{"id":10,"url":"a"}` {
		t.Errorf("result = %s", toolText(t, result))
	}

	result = call(t, toolGetAudit(env.deps), "get_audit", map[string]any{"id": 99})
	if !result.IsError || toolText(t, result) != "audit 99 not found" {
		t.Errorf("result = %s", toolText(t, result))
	}

	result = call(t, toolGetAudit(env.deps), "get_audit", map[string]any{"id": -1})
	if !result.IsError {
		t.Error("expected error for negative id")
	}
}

func TestMonitors(t *testing.T) {
	env := newTestEnv(t)

	result := call(t, toolCreateMonitor(env.deps), "create_monitor", map[string]any{"url": "https://b.example"})
	if !result.IsError || !strings.Contains(toolText(t, result), "not signed in") {
		t.Fatalf("signed out result = %s", toolText(t, result))
	}

	env.signIn(t)

	result = call(t, toolListMonitors(env.deps), "list_monitors", nil)
	if result.IsError || !strings.Contains(toolText(t, result), `"id":4`) {
		t.Fatalf("list = %s", toolText(t, result))
	}

	result = call(t, toolCreateMonitor(env.deps), "create_monitor", map[string]any{"url": "https://b.example", "frequency": "daily", "alert_threshold": 15})
	if result.IsError {
		t.Fatalf("create: %s", toolText(t, result))
	}
	var created apiclient.Monitor
	json.Unmarshal([]byte(toolText(t, result)), &created)
	if created.ID != 5 || created.Frequency != apiclient.FrequencyDaily || created.Threshold != 15 {
		t.Errorf("created = %+v", created)
	}

	result = call(t, toolCreateMonitor(env.deps), "create_monitor", map[string]any{"url": "x", "frequency": "hourly"})
	if !result.IsError {
		t.Error("expected error for invalid frequency")
	}

	result = call(t, toolSetMonitorActive(env.deps), "set_monitor_active", map[string]any{"id": 4, "active": false})
	if result.IsError || !strings.Contains(toolText(t, result), `"is_active":false`) {
		t.Errorf("pause = %s", toolText(t, result))
	}
}

func TestResources(t *testing.T) {
	env := newTestEnv(t)
	req := mcp.ReadResourceRequest{Params: mcp.ReadResourceParams{URI: "siteaudit://account"}}

	contents, err := resourceAccount(env.deps)(context.Background(), req)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if text := contents[0].(mcp.TextResourceContents).Text; text != "null" {
		t.Errorf("signed out account = %s", text)
	}

	env.signIn(t)
	contents, _ = resourceAccount(env.deps)(context.Background(), req)
	if text := contents[0].(mcp.TextResourceContents).Text; !strings.Contains(text, `"email":"a@b.c"`) {
		t.Errorf("account = %s", text)
	}

	call(t, toolAnalyze(env.deps), "analyze_url", map[string]any{"url": "example.com"})
	req.Params.URI = "siteaudit://recent-scans"
	contents, err = resourceRecentScans(env.deps)(context.Background(), req)
	if err != nil {
		t.Fatalf("recent scans: %v", err)
	}
	if text := contents[0].(mcp.TextResourceContents).Text; !strings.Contains(text, `"url":"example.com"`) {
		t.Errorf("recent scans = %s", text)
	}
}

func TestNew_RegistersServer(t *testing.T) {
	env := newTestEnv(t)
	if New(env.deps) == nil {
		t.Fatal("New returned nil")
	}
}
