package resource

import (
	"context"

	"github.com/kalambet/siteaudit/internal/apiclient"
	"github.com/kalambet/siteaudit/internal/querycache"
)

// Monitors reads the user's monitors through the cache, gated like History.
func (h *Hooks) Monitors(ctx context.Context) (querycache.Result[[]apiclient.Monitor], error) {
	return querycache.Query(ctx, h.cache, MonitorsKey, func(ctx context.Context) ([]apiclient.Monitor, error) {
		tok, err := h.requireToken()
		if err != nil {
			return nil, err
		}
		return h.transport.ListMonitors(ctx, tok)
	}, querycache.ReadOptions{Disabled: !h.auth.IsAuthenticated()})
}

// CreateMonitor registers a monitor and invalidates the monitor list.
func (h *Hooks) CreateMonitor(ctx context.Context, m apiclient.MonitorCreate) (apiclient.Monitor, error) {
	return h.mutateMonitor(ctx, func(ctx context.Context, tok string) (apiclient.Monitor, error) {
		return h.transport.CreateMonitor(ctx, m, tok)
	})
}

// SetMonitorActive pauses or resumes a monitor.
func (h *Hooks) SetMonitorActive(ctx context.Context, id int64, active bool) (apiclient.Monitor, error) {
	return h.mutateMonitor(ctx, func(ctx context.Context, tok string) (apiclient.Monitor, error) {
		return h.transport.SetMonitorActive(ctx, id, active, tok)
	})
}

// DeleteMonitor removes a monitor.
func (h *Hooks) DeleteMonitor(ctx context.Context, id int64) error {
	_, err := h.mutateMonitor(ctx, func(ctx context.Context, tok string) (apiclient.Monitor, error) {
		return apiclient.Monitor{}, h.transport.DeleteMonitor(ctx, id, tok)
	})
	return err
}

func (h *Hooks) mutateMonitor(ctx context.Context, fn func(context.Context, string) (apiclient.Monitor, error)) (apiclient.Monitor, error) {
	return querycache.Mutate(ctx, func(ctx context.Context) (apiclient.Monitor, error) {
		tok, err := h.requireToken()
		if err != nil {
			return apiclient.Monitor{}, err
		}
		return fn(ctx, tok)
	}, querycache.MutateOptions[apiclient.Monitor]{
		OnSuccess: func(apiclient.Monitor) { h.cache.Invalidate(MonitorsKey) },
	})
}
