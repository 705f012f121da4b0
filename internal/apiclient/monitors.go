package apiclient

import (
	"context"
	"net/http"
)

// ListMonitors returns the user's monitors.
func (c *Client) ListMonitors(ctx context.Context, token string) ([]Monitor, error) {
	var monitors []Monitor
	if err := c.call(ctx, "list_monitors", http.MethodGet, c.paths.Monitors, token, nil, &monitors); err != nil {
		return nil, err
	}
	if monitors == nil {
		return []Monitor{}, nil
	}
	return monitors, nil
}

// CreateMonitor registers a new monitor. The backend assigns id and created_at.
func (c *Client) CreateMonitor(ctx context.Context, m MonitorCreate, token string) (Monitor, error) {
	var created Monitor
	if err := c.call(ctx, "create_monitor", http.MethodPost, c.paths.Monitors, token, m, &created); err != nil {
		return Monitor{}, err
	}
	return created, nil
}

// SetMonitorActive pauses or resumes a monitor.
func (c *Client) SetMonitorActive(ctx context.Context, id int64, active bool, token string) (Monitor, error) {
	var updated Monitor
	if err := c.call(ctx, "update_monitor", http.MethodPatch, itemPath(c.paths.Monitors, id), token, monitorPatch{IsActive: active}, &updated); err != nil {
		return Monitor{}, err
	}
	return updated, nil
}

// DeleteMonitor stops and removes a monitor.
func (c *Client) DeleteMonitor(ctx context.Context, id int64, token string) error {
	return c.call(ctx, "delete_monitor", http.MethodDelete, itemPath(c.paths.Monitors, id), token, nil, nil)
}
