package resource

import (
	"context"
	"sync"

	"github.com/kalambet/siteaudit/internal/apiclient"
)

// mockTransport records calls and returns canned responses.
type mockTransport struct {
	mu    sync.Mutex
	calls []string

	analyzeResult apiclient.AnalysisResult
	analyzeErr    error
	healthy       bool
	saveErr       error
	audits        []apiclient.AnalysisResult
	auditsErr     error
	audit         apiclient.AnalysisResult
	monitors      []apiclient.Monitor
	monitorErr    error
	loginToken    string
	loginErr      error
	user          apiclient.User
	meErr         error

	lastToken string
}

func (m *mockTransport) record(op, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, op)
	m.lastToken = token
}

func (m *mockTransport) count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (m *mockTransport) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockTransport) Analyze(_ context.Context, _, _, _ string) (apiclient.AnalysisResult, error) {
	m.record("analyze", "")
	return m.analyzeResult, m.analyzeErr
}

func (m *mockTransport) HealthCheck(context.Context) bool {
	m.record("health", "")
	return m.healthy
}

func (m *mockTransport) SaveAudit(_ context.Context, r apiclient.AnalysisResult, token string) (apiclient.AnalysisResult, error) {
	m.record("save", token)
	return r, m.saveErr
}

func (m *mockTransport) GetAudits(_ context.Context, token string) ([]apiclient.AnalysisResult, error) {
	m.record("get_audits", token)
	return m.audits, m.auditsErr
}

func (m *mockTransport) GetAudit(_ context.Context, _ int64, token string) (apiclient.AnalysisResult, error) {
	m.record("get_audit", token)
	return m.audit, m.auditsErr
}

func (m *mockTransport) DeleteAudit(_ context.Context, _ int64, token string) error {
	m.record("delete_audit", token)
	return nil
}

func (m *mockTransport) DeleteAllAudits(_ context.Context, token string) error {
	m.record("delete_all_audits", token)
	return nil
}

func (m *mockTransport) ListMonitors(_ context.Context, token string) ([]apiclient.Monitor, error) {
	m.record("list_monitors", token)
	return m.monitors, m.monitorErr
}

func (m *mockTransport) CreateMonitor(_ context.Context, in apiclient.MonitorCreate, token string) (apiclient.Monitor, error) {
	m.record("create_monitor", token)
	return apiclient.Monitor{ID: 1, URL: in.URL, Frequency: in.Frequency, IsActive: true}, m.monitorErr
}

func (m *mockTransport) SetMonitorActive(_ context.Context, id int64, active bool, token string) (apiclient.Monitor, error) {
	m.record("update_monitor", token)
	return apiclient.Monitor{ID: id, IsActive: active}, m.monitorErr
}

func (m *mockTransport) DeleteMonitor(_ context.Context, _ int64, token string) error {
	m.record("delete_monitor", token)
	return m.monitorErr
}

func (m *mockTransport) Login(_ context.Context, _, _ string) (string, error) {
	m.record("login", "")
	return m.loginToken, m.loginErr
}

func (m *mockTransport) Me(_ context.Context, token string) (apiclient.User, error) {
	m.record("me", token)
	return m.user, m.meErr
}

// memTokens is an in-memory TokenStore.
type memTokens struct {
	mu  sync.Mutex
	tok string
	err error
}

func (s *memTokens) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tok, s.err
}

func (s *memTokens) SetToken(t string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = t
	return nil
}

func (s *memTokens) ClearToken() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = ""
	return nil
}
