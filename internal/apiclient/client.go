package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultBaseURL is the backend address used when none is configured.
const DefaultBaseURL = "http://localhost:8000"

const (
	analyzePath = "/api/analyze"
	healthPath  = "/api/health"
	loginPath   = "/api/auth/login"
	mePath      = "/api/auth/me"
)

// Paths holds the backend routes that vary between deployments.
type Paths struct {
	Audits   string
	Monitors string
}

// DefaultPaths returns the routes of the reference backend.
func DefaultPaths() Paths {
	return Paths{
		Audits:   "/api/audits/",
		Monitors: "/api/monitors/",
	}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithPaths overrides the audit and monitor routes. Empty fields keep their defaults.
func WithPaths(p Paths) Option {
	return func(c *Client) {
		if p.Audits != "" {
			c.paths.Audits = p.Audits
		}
		if p.Monitors != "" {
			c.paths.Monitors = p.Monitors
		}
	}
}

// WithLogger sets the debug logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the collectors the client reports to.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// Client talks to the site-audit backend. Each method issues exactly one
// HTTP request; there are no retries and no timeouts beyond the caller's
// context and the HTTP client's own settings.
type Client struct {
	baseURL    string
	paths      Paths
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *Metrics
}

// New creates a Client targeting baseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		paths:      DefaultPaths(),
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	return c
}

// BaseURL returns the backend address the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) do(ctx context.Context, op, method, path, token string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshalling request: %w", op, err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", op, err)
	}
	requestID := uuid.New().String()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.TransportErrors.WithLabelValues(op).Inc()
		return nil, &TransportError{Op: op, Err: err}
	}
	c.metrics.RequestDuration.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())
	c.logger.Debug("api request",
		"op", op, "method", method, "path", path,
		"status", resp.StatusCode, "request_id", requestID,
		"duration", time.Since(start))
	return resp, nil
}

// call performs a request and decodes a 2xx JSON body into out (which may be nil).
func (c *Client) call(ctx context.Context, op, method, path, token string, body, out any) error {
	resp, err := c.do(ctx, op, method, path, token, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return errorFromResponse(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}
	return nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// Analyze runs a site analysis. lang defaults to "en"; competitorURL is
// only sent when non-empty. The URL is passed through as given and
// validated by the backend.
func (c *Client) Analyze(ctx context.Context, url, lang, competitorURL string) (AnalysisResult, error) {
	req := NewAnalysisRequest(url, lang, competitorURL)
	var result AnalysisResult
	if err := c.call(ctx, "analyze", http.MethodPost, analyzePath, "", req, &result); err != nil {
		return AnalysisResult{}, err
	}
	return result, nil
}

// HealthCheck reports whether the backend answers GET /api/health with a 2xx.
// It never returns an error.
func (c *Client) HealthCheck(ctx context.Context) bool {
	resp, err := c.do(ctx, "health", http.MethodGet, healthPath, "", nil)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return isSuccess(resp.StatusCode)
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var tok tokenResponse
	if err := c.call(ctx, "login", http.MethodPost, loginPath, "", loginRequest{Email: email, Password: password}, &tok); err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("login: response carried no access token")
	}
	return tok.AccessToken, nil
}

// Me returns the account the token belongs to.
func (c *Client) Me(ctx context.Context, token string) (User, error) {
	var u User
	if err := c.call(ctx, "me", http.MethodGet, mePath, token, nil, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

func itemPath(collection string, id int64) string {
	return strings.TrimRight(collection, "/") + "/" + strconv.FormatInt(id, 10)
}
