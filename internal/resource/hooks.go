// Package resource binds backend operations to the query cache. It owns the
// cache-key discipline (which mutation invalidates which key) and the
// token-gating rules of user-scoped operations.
package resource

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/kalambet/siteaudit/internal/apiclient"
	"github.com/kalambet/siteaudit/internal/querycache"
)

// Cache keys.
const (
	HistoryKey  querycache.Key = "history"
	MonitorsKey querycache.Key = "monitors"
	auditPrefix                = "audit:"
)

// AuditKey is the cache key of a single saved audit.
func AuditKey(id int64) querycache.Key {
	return querycache.Key(auditPrefix + strconv.FormatInt(id, 10))
}

// Transport is the subset of the API client the hooks use.
type Transport interface {
	Analyze(ctx context.Context, url, lang, competitorURL string) (apiclient.AnalysisResult, error)
	HealthCheck(ctx context.Context) bool
	SaveAudit(ctx context.Context, result apiclient.AnalysisResult, token string) (apiclient.AnalysisResult, error)
	GetAudits(ctx context.Context, token string) ([]apiclient.AnalysisResult, error)
	GetAudit(ctx context.Context, id int64, token string) (apiclient.AnalysisResult, error)
	DeleteAudit(ctx context.Context, id int64, token string) error
	DeleteAllAudits(ctx context.Context, token string) error
	ListMonitors(ctx context.Context, token string) ([]apiclient.Monitor, error)
	CreateMonitor(ctx context.Context, m apiclient.MonitorCreate, token string) (apiclient.Monitor, error)
	SetMonitorActive(ctx context.Context, id int64, active bool, token string) (apiclient.Monitor, error)
	DeleteMonitor(ctx context.Context, id int64, token string) error
	Login(ctx context.Context, email, password string) (string, error)
	Me(ctx context.Context, token string) (apiclient.User, error)
}

// TokenSource yields the current bearer token. An empty token means none is
// stored.
type TokenSource interface {
	Token() (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() (string, error)

func (f TokenFunc) Token() (string, error) { return f() }

// AuthState reports whether the caller considers itself signed in.
type AuthState interface {
	IsAuthenticated() bool
}

// AuthFunc adapts a function to AuthState.
type AuthFunc func() bool

func (f AuthFunc) IsAuthenticated() bool { return f() }

// Hooks exposes the resource operations.
type Hooks struct {
	transport Transport
	cache     *querycache.Cache
	auth      AuthState
	tokens    TokenSource
	logger    *slog.Logger
}

// New wires hooks to their collaborators. All four are required.
func New(transport Transport, cache *querycache.Cache, auth AuthState, tokens TokenSource) *Hooks {
	return &Hooks{
		transport: transport,
		cache:     cache,
		auth:      auth,
		tokens:    tokens,
		logger:    slog.Default(),
	}
}

// WithLogger returns a copy of h that logs to l.
func (h *Hooks) WithLogger(l *slog.Logger) *Hooks {
	cp := *h
	cp.logger = l
	return &cp
}

// Cache returns the cache the hooks read through.
func (h *Hooks) Cache() *querycache.Cache {
	return h.cache
}

// token reads the bearer token fresh from the source. It returns "" with a
// nil error when none is stored.
func (h *Hooks) token() (string, error) {
	tok, err := h.tokens.Token()
	if err != nil {
		return "", fmt.Errorf("reading access token: %w", err)
	}
	return tok, nil
}

// requireToken is token with absence reported as ErrNotAuthenticated.
func (h *Hooks) requireToken() (string, error) {
	tok, err := h.token()
	if err != nil {
		return "", err
	}
	if tok == "" {
		return "", apiclient.ErrNotAuthenticated
	}
	return tok, nil
}

// Health reports backend liveness. It never errors.
func (h *Hooks) Health(ctx context.Context) bool {
	return h.transport.HealthCheck(ctx)
}
