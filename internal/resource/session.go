package resource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kalambet/siteaudit/internal/apiclient"
	"github.com/kalambet/siteaudit/internal/querycache"
)

// TokenStore is durable token storage.
type TokenStore interface {
	TokenSource
	SetToken(token string) error
	ClearToken() error
}

// Session tracks whether the stored token belongs to a live account. It
// implements AuthState for Hooks.
type Session struct {
	transport Transport
	store     TokenStore
	cache     *querycache.Cache

	authenticated atomic.Bool

	mu   sync.Mutex
	user *apiclient.User
}

// NewSession creates a signed-out session. Call Refresh to validate a token
// left over from a previous run.
func NewSession(transport Transport, store TokenStore, cache *querycache.Cache) *Session {
	return &Session{transport: transport, store: store, cache: cache}
}

// IsAuthenticated reports whether the last Refresh or Login succeeded.
func (s *Session) IsAuthenticated() bool {
	return s.authenticated.Load()
}

// User returns the signed-in account.
func (s *Session) User() (apiclient.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return apiclient.User{}, false
	}
	return *s.user, true
}

// Refresh validates the stored token against the backend. A token the
// backend rejects is removed from storage. Transport failures leave the
// token in place and the session signed out.
func (s *Session) Refresh(ctx context.Context) (apiclient.User, error) {
	tok, err := s.store.Token()
	if err != nil {
		return apiclient.User{}, fmt.Errorf("reading access token: %w", err)
	}
	if tok == "" {
		s.signOut()
		return apiclient.User{}, apiclient.ErrNotAuthenticated
	}

	u, err := s.transport.Me(ctx, tok)
	if err != nil {
		s.signOut()
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) {
			if cerr := s.store.ClearToken(); cerr != nil {
				return apiclient.User{}, errors.Join(err, cerr)
			}
		}
		return apiclient.User{}, err
	}

	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()
	s.authenticated.Store(true)
	return u, nil
}

// Login exchanges credentials for a token, stores it and refreshes.
func (s *Session) Login(ctx context.Context, email, password string) (apiclient.User, error) {
	tok, err := s.transport.Login(ctx, email, password)
	if err != nil {
		return apiclient.User{}, err
	}
	return s.UseToken(ctx, tok)
}

// UseToken stores an externally obtained token and refreshes.
func (s *Session) UseToken(ctx context.Context, token string) (apiclient.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return apiclient.User{}, apiclient.ErrNotAuthenticated
	}
	if err := s.store.SetToken(token); err != nil {
		return apiclient.User{}, fmt.Errorf("storing access token: %w", err)
	}
	return s.Refresh(ctx)
}

// Logout forgets the token and drops every user-scoped cache entry.
func (s *Session) Logout() error {
	s.signOut()
	if err := s.store.ClearToken(); err != nil {
		return fmt.Errorf("clearing access token: %w", err)
	}
	return nil
}

func (s *Session) signOut() {
	wasIn := s.authenticated.Swap(false)
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
	if !wasIn {
		return
	}

	keys := []querycache.Key{HistoryKey, MonitorsKey}
	for _, k := range s.cache.Keys() {
		if strings.HasPrefix(string(k), auditPrefix) {
			keys = append(keys, k)
		}
	}
	s.cache.Reset(keys...)
}
