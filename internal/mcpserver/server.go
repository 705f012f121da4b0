// Package mcpserver exposes the site-audit resources as MCP tools so agents
// can run analyses and read history and monitors.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/siteaudit/internal/apiclient"
	"github.com/kalambet/siteaudit/internal/querycache"
	"github.com/kalambet/siteaudit/internal/storage"
)

// Resources is the hook surface the tools call. *resource.Hooks satisfies it.
type Resources interface {
	Analyze(ctx context.Context, url, lang, competitorURL string) (apiclient.AnalysisResult, error)
	SaveScan(ctx context.Context, result apiclient.AnalysisResult) (bool, error)
	History(ctx context.Context) (querycache.Result[[]apiclient.AnalysisResult], error)
	Audit(ctx context.Context, id int64) (querycache.Result[apiclient.AnalysisResult], error)
	Monitors(ctx context.Context) (querycache.Result[[]apiclient.Monitor], error)
	CreateMonitor(ctx context.Context, m apiclient.MonitorCreate) (apiclient.Monitor, error)
	SetMonitorActive(ctx context.Context, id int64, active bool) (apiclient.Monitor, error)
	Health(ctx context.Context) bool
}

// ScanLog is the local record of analyses.
type ScanLog interface {
	RecordScan(r storage.ScanRecord) (storage.ScanRecord, error)
	RecentScans(limit int) ([]storage.ScanRecord, error)
}

// Account reports the signed-in user. *resource.Session satisfies it.
type Account interface {
	IsAuthenticated() bool
	User() (apiclient.User, bool)
}

// Deps holds dependencies for the MCP server.
type Deps struct {
	Resources   Resources
	Scans       ScanLog
	Account     Account
	DefaultLang string
	Version     string
}

// New creates an MCP server with all tools and resources registered.
func New(deps Deps) *server.MCPServer {
	if deps.Version == "" {
		deps.Version = "dev"
	}
	s := server.NewMCPServer(
		"siteaudit",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("siteaudit: run SEO and performance audits of web pages and manage uptime monitors."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("analyze_url",
			mcp.WithDescription("Run a site audit of a URL and return the full report as JSON."),
			mcp.WithString("url", mcp.Description("Page to audit"), mcp.Required()),
			mcp.WithString("lang", mcp.Description("Report language (default en)")),
			mcp.WithString("competitor_url", mcp.Description("Optional competitor page to compare against")),
			mcp.WithBoolean("save", mcp.Description("Save the report to the account history when signed in")),
		),
		toolAnalyze(deps),
	)

	s.AddTool(
		mcp.NewTool("health_check",
			mcp.WithDescription("Report whether the audit backend is reachable."),
		),
		toolHealth(deps),
	)

	s.AddTool(
		mcp.NewTool("scan_history",
			mcp.WithDescription("List the signed-in user's saved audits, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of audits (default 10)")),
		),
		toolHistory(deps),
	)

	s.AddTool(
		mcp.NewTool("get_audit",
			mcp.WithDescription("Return one saved audit by id."),
			mcp.WithNumber("id", mcp.Description("Audit id"), mcp.Required()),
		),
		toolGetAudit(deps),
	)

	s.AddTool(
		mcp.NewTool("list_monitors",
			mcp.WithDescription("List the signed-in user's monitors."),
		),
		toolListMonitors(deps),
	)

	s.AddTool(
		mcp.NewTool("create_monitor",
			mcp.WithDescription("Start monitoring a URL on a daily or weekly schedule."),
			mcp.WithString("url", mcp.Description("Page to monitor"), mcp.Required()),
			mcp.WithString("frequency", mcp.Description("daily or weekly (default weekly)")),
			mcp.WithNumber("alert_threshold", mcp.Description("Score drop that triggers an alert (default 10)")),
		),
		toolCreateMonitor(deps),
	)

	s.AddTool(
		mcp.NewTool("set_monitor_active",
			mcp.WithDescription("Pause or resume a monitor."),
			mcp.WithNumber("id", mcp.Description("Monitor id"), mcp.Required()),
			mcp.WithBoolean("active", mcp.Description("true to resume, false to pause"), mcp.Required()),
		),
		toolSetMonitorActive(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"siteaudit://recent-scans",
			"Recent Scans",
			mcp.WithResourceDescription("Analyses run from this machine, newest first"),
			mcp.WithMIMEType("application/json"),
		),
		resourceRecentScans(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"siteaudit://account",
			"Account",
			mcp.WithResourceDescription("The signed-in account, or null"),
			mcp.WithMIMEType("application/json"),
		),
		resourceAccount(deps),
	)

	return s
}

func toolAnalyze(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := req.RequireString("url")
		if err != nil {
			return mcpError("url is required"), nil
		}
		lang := req.GetString("lang", deps.DefaultLang)
		competitor := req.GetString("competitor_url", "")

		result, err := deps.Resources.Analyze(ctx, url, lang, competitor)
		if err != nil {
			return mcpError(fmt.Sprintf("analysis failed: %v", err)), nil
		}

		saved := false
		if req.GetBool("save", false) {
			saved, err = deps.Resources.SaveScan(ctx, result)
			if err != nil {
				return mcpError(fmt.Sprintf("analysis succeeded but saving failed: %v", err)), nil
			}
		}

		if deps.Scans != nil {
			if _, err := deps.Scans.RecordScan(storage.NewScanRecord(url, lang, result, saved)); err != nil {
				return mcpError(fmt.Sprintf("failed to record scan: %v", err)), nil
			}
		}

		return mcpJSON(map[string]any{"saved": saved, "report": result})
	}
}

func toolHealth(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcpJSON(map[string]bool{"healthy": deps.Resources.Health(ctx)})
	}
}

func toolHistory(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !deps.Account.IsAuthenticated() {
			return mcpError("not signed in: run `siteaudit auth login` first"), nil
		}

		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}

		res, err := deps.Resources.History(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("history unavailable: %v", err)), nil
		}
		audits := res.Data
		if len(audits) > limit {
			audits = audits[:limit]
		}
		return mcpJSON(audits)
	}
}

func toolGetAudit(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := req.GetInt("id", 0)
		if id <= 0 {
			return mcpError("id must be a positive integer"), nil
		}
		if !deps.Account.IsAuthenticated() {
			return mcpError("not signed in: run `siteaudit auth login` first"), nil
		}

		res, err := deps.Resources.Audit(ctx, int64(id))
		if err != nil {
			if apiclient.IsStatus(err, 404) {
				return mcpError(fmt.Sprintf("audit %d not found", id)), nil
			}
			return mcpError(fmt.Sprintf("audit unavailable: %v", err)), nil
		}
		return mcpJSON(res.Data)
	}
}

func toolListMonitors(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !deps.Account.IsAuthenticated() {
			return mcpError("not signed in: run `siteaudit auth login` first"), nil
		}
		res, err := deps.Resources.Monitors(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("monitors unavailable: %v", err)), nil
		}
		return mcpJSON(res.Data)
	}
}

func toolCreateMonitor(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := req.RequireString("url")
		if err != nil {
			return mcpError("url is required"), nil
		}
		freq, err := apiclient.ParseFrequency(req.GetString("frequency", string(apiclient.FrequencyWeekly)))
		if err != nil {
			return mcpError(err.Error()), nil
		}

		m, err := deps.Resources.CreateMonitor(ctx, apiclient.MonitorCreate{
			URL:       url,
			Frequency: freq,
			Threshold: req.GetFloat("alert_threshold", 10),
		})
		if err != nil {
			return mcpError(mutationMessage("create monitor", err)), nil
		}
		return mcpJSON(m)
	}
}

func toolSetMonitorActive(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := req.GetInt("id", 0)
		if id <= 0 {
			return mcpError("id must be a positive integer"), nil
		}
		active, err := req.RequireBool("active")
		if err != nil {
			return mcpError("active is required"), nil
		}

		m, err := deps.Resources.SetMonitorActive(ctx, int64(id), active)
		if err != nil {
			return mcpError(mutationMessage("update monitor", err)), nil
		}
		return mcpJSON(m)
	}
}

func mutationMessage(op string, err error) string {
	if errors.Is(err, apiclient.ErrNotAuthenticated) {
		return "not signed in: run `siteaudit auth login` first"
	}
	return fmt.Sprintf("%s failed: %v", op, err)
}

func resourceRecentScans(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		scans, err := deps.Scans.RecentScans(20)
		if err != nil {
			return nil, fmt.Errorf("failed to list recent scans: %w", err)
		}
		return jsonResource(req.Params.URI, scans)
	}
}

func resourceAccount(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		var account *apiclient.User
		if u, ok := deps.Account.User(); ok && deps.Account.IsAuthenticated() {
			account = &u
		}
		return jsonResource(req.Params.URI, account)
	}
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
