package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/siteaudit/internal/mcpserver"
	"github.com/kalambet/siteaudit/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll history and monitors and report score drops",
	Long: `Poll the backend on an interval, refresh history and monitors, and
print an alert whenever a monitor's score drops by its alert threshold.

With --metrics-addr a status server exposes /healthz, /metrics and /cache.

Examples:
  siteaudit watch
  siteaudit watch --interval 1m --metrics-addr 127.0.0.1:9465`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		interval := a.cfg.Watch.Interval
		if cmd.Flags().Changed("interval") {
			interval, _ = cmd.Flags().GetDuration("interval")
		}
		if interval <= 0 {
			return fmt.Errorf("--interval must be positive")
		}
		addr := a.cfg.Metrics.Addr
		if cmd.Flags().Changed("metrics-addr") {
			addr, _ = cmd.Flags().GetString("metrics-addr")
		}

		if err := a.requireAuth(); err != nil {
			return err
		}

		w := watch.NewWatcher(a.hooks, interval,
			watch.WithMetrics(watch.NewMetrics(a.registry)),
			watch.WithLogger(a.logger),
			watch.OnTick(func(t watch.Tick) {
				if !t.BackendUp {
					printError("Backend unreachable")
					return
				}
				for _, alert := range t.Alerts {
					printWarning("%s", alert)
				}
				slog.Debug("watch tick", "audits", t.HistoryCount, "active_monitors", t.ActiveCount)
			}),
		)

		var srv *http.Server
		errCh := make(chan error, 1)
		if addr != "" {
			srv = &http.Server{
				Addr:    addr,
				Handler: watch.NewStatusHandler(w, a.cache, a.registry),
				BaseContext: func(_ net.Listener) context.Context {
					return ctx
				},
			}
			go func() {
				printStep("Status server listening on %s", addr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
				close(errCh)
			}()
		}

		printStep("Watching %s every %s", a.client.BaseURL(), interval)

		runCtx, stop := context.WithCancel(ctx)
		defer stop()
		done := make(chan struct{})
		go func() {
			w.Run(runCtx)
			close(done)
		}()

		var serveErr error
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "shutting down...")
		case err := <-errCh:
			serveErr = err
		}
		stop()
		<-done

		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
		}
		if serveErr != nil {
			return fmt.Errorf("status server error: %w", serveErr)
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().Duration("interval", 30*time.Second, "poll interval (default watch.interval)")
	watchCmd.Flags().String("metrics-addr", "", "serve /healthz, /metrics and /cache on this address (default metrics.addr)")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the audit tools over MCP on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		s := mcpserver.New(mcpserver.Deps{
			Resources:   a.hooks,
			Scans:       a.store,
			Account:     a.session,
			DefaultLang: a.lang(""),
			Version:     version,
		})

		slog.Info("MCP stdio server starting")
		if err := server.NewStdioServer(s).Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
			return fmt.Errorf("MCP stdio server: %w", err)
		}
		return nil
	},
}
