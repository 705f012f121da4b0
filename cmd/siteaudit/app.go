package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kalambet/siteaudit/internal/apiclient"
	"github.com/kalambet/siteaudit/internal/config"
	"github.com/kalambet/siteaudit/internal/querycache"
	"github.com/kalambet/siteaudit/internal/resource"
	"github.com/kalambet/siteaudit/internal/storage"
)

// app is everything a command needs, wired once per invocation.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	store    *storage.Store
	client   *apiclient.Client
	cache    *querycache.Cache
	session  *resource.Session
	hooks    *resource.Hooks
}

// newApp is a variable so tests can point commands at a fake backend.
var newApp = func(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return buildApp(ctx, cfg)
}

func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	level := slog.LevelInfo
	if cfg.Log.Level == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	reg := prometheus.NewRegistry()

	client := apiclient.New(cfg.API.BaseURL,
		apiclient.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		apiclient.WithPaths(apiclient.Paths{
			Audits:   cfg.API.AuditsPath,
			Monitors: cfg.API.MonitorsPath,
		}),
		apiclient.WithLogger(logger),
		apiclient.WithMetrics(apiclient.NewMetrics(reg)),
	)

	cache := querycache.New(
		querycache.WithLogger(logger),
		querycache.WithStaleTime(cfg.Cache.StaleTime),
		querycache.WithMetrics(querycache.NewMetrics(reg)),
	)

	session := resource.NewSession(client, store, cache)
	hooks := resource.New(client, cache, session, store).WithLogger(logger)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		store:    store,
		client:   client,
		cache:    cache,
		session:  session,
		hooks:    hooks,
	}

	tok, err := store.Token()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("reading stored token: %w", err)
	}
	if tok != "" {
		if _, err := session.Refresh(ctx); err != nil {
			var apiErr *apiclient.APIError
			if errors.As(err, &apiErr) {
				logger.Warn("stored token rejected, signed out", "status", apiErr.Status)
			} else {
				logger.Debug("could not verify stored token", "error", err)
			}
		}
	}

	return a, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// lang returns the explicit choice, then the stored preference, then the default.
func (a *app) lang(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if l, err := a.store.Lang(); err == nil && l != "" {
		return l
	}
	return apiclient.DefaultLang
}

// requireAuth fails fast with a hint when the session is signed out.
func (a *app) requireAuth() error {
	if !a.session.IsAuthenticated() {
		return errors.New("not signed in: run `siteaudit auth login` first")
	}
	return nil
}
