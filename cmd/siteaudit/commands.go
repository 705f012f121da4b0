package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/siteaudit/internal/apiclient"
	"github.com/kalambet/siteaudit/internal/config"
	"github.com/kalambet/siteaudit/internal/storage"
)

// --- analyze ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze <url>",
	Short: "Run a site audit of a URL",
	Long: `Run a site audit of a URL and print the report.

Examples:
  siteaudit analyze https://example.com
  siteaudit analyze https://example.com --lang fr --save
  siteaudit analyze https://example.com --competitor https://rival.example -o json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lang, _ := cmd.Flags().GetString("lang")
		competitor, _ := cmd.Flags().GetString("competitor")
		save, _ := cmd.Flags().GetBool("save")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		lang = a.lang(lang)
		target := args[0]

		printStep("Analyzing %s", target)
		result, err := a.hooks.Analyze(cmd.Context(), target, lang, competitor)
		if err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}

		saved := false
		if save {
			saved, err = a.hooks.SaveScan(cmd.Context(), result)
			if err != nil {
				return fmt.Errorf("saving report: %w", err)
			}
			if saved {
				printSuccess("Saved to history")
			} else {
				printWarning("Not signed in, report was not saved")
			}
		}

		if _, err := a.store.RecordScan(storage.NewScanRecord(target, lang, result, saved)); err != nil {
			a.logger.Warn("failed to record scan", "error", err)
		}

		return render(cmd, result, func(w io.Writer) error {
			url := result.URL()
			if url == "" {
				url = target
			}
			fmt.Fprintf(w, "URL:    %s\n", url)
			if score, ok := result.Score(); ok {
				fmt.Fprintf(w, "Score:  %.0f\n", score)
			}
			fmt.Fprintf(w, "Lang:   %s\n", lang)
			if competitor != "" {
				fmt.Fprintf(w, "Versus: %s\n", competitor)
			}
			fmt.Fprintln(w, "Use --output json for the full report.")
			return nil
		})
	},
}

func init() {
	analyzeCmd.Flags().String("lang", "", "report language (defaults to the stored preference, then en)")
	analyzeCmd.Flags().String("competitor", "", "competitor URL to compare against")
	analyzeCmd.Flags().Bool("save", false, "save the report to the account history")
}

// --- health ---

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the audit backend is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		healthy := a.hooks.Health(cmd.Context())
		err = render(cmd, map[string]any{"healthy": healthy, "base_url": a.client.BaseURL()}, func(w io.Writer) error {
			if healthy {
				printSuccess("Backend at %s is healthy", a.client.BaseURL())
			} else {
				printError("Backend at %s is unreachable", a.client.BaseURL())
			}
			return nil
		})
		if err != nil {
			return err
		}
		if !healthy {
			return errors.New("backend unhealthy")
		}
		return nil
	},
}

// --- status ---

type statusReport struct {
	BaseURL       string          `json:"base_url" yaml:"base_url"`
	Healthy       bool            `json:"healthy" yaml:"healthy"`
	Authenticated bool            `json:"authenticated" yaml:"authenticated"`
	User          *apiclient.User `json:"user,omitempty" yaml:"user,omitempty"`
	Audits        *int            `json:"audits,omitempty" yaml:"audits,omitempty"`
	Monitors      *int            `json:"monitors,omitempty" yaml:"monitors,omitempty"`
	ActiveCount   *int            `json:"active_monitors,omitempty" yaml:"active_monitors,omitempty"`
	SchemaVersion int64           `json:"schema_version" yaml:"schema_version"`
	Errors        []string        `json:"errors,omitempty" yaml:"errors,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show backend health, account and resource counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		report := statusReport{
			BaseURL:       a.client.BaseURL(),
			Authenticated: a.session.IsAuthenticated(),
		}
		if u, ok := a.session.User(); ok && report.Authenticated {
			report.User = &u
		}
		if report.SchemaVersion, err = a.store.SchemaVersion(); err != nil {
			return err
		}

		// Each read stands alone; one failing must not cancel the others.
		var (
			historyErr, monitorsErr error
			g                       errgroup.Group
		)
		ctx := cmd.Context()
		g.Go(func() error {
			report.Healthy = a.hooks.Health(ctx)
			return nil
		})
		if report.Authenticated {
			g.Go(func() error {
				res, err := a.hooks.History(ctx)
				if err != nil {
					historyErr = err
					return nil
				}
				n := len(res.Data)
				report.Audits = &n
				return nil
			})
			g.Go(func() error {
				res, err := a.hooks.Monitors(ctx)
				if err != nil {
					monitorsErr = err
					return nil
				}
				n, active := len(res.Data), 0
				for _, m := range res.Data {
					if m.IsActive {
						active++
					}
				}
				report.Monitors, report.ActiveCount = &n, &active
				return nil
			})
		}
		g.Wait()

		if historyErr != nil {
			report.Errors = append(report.Errors, "history: "+historyErr.Error())
		}
		if monitorsErr != nil {
			report.Errors = append(report.Errors, "monitors: "+monitorsErr.Error())
		}

		return render(cmd, report, func(w io.Writer) error {
			fmt.Fprintln(w, colorize(colorBold, "siteaudit status"))
			fmt.Fprintf(w, "  Backend:  %s (%s)\n", report.BaseURL, upDown(report.Healthy))
			if report.User != nil {
				fmt.Fprintf(w, "  Account:  %s\n", report.User.Email)
			} else {
				fmt.Fprintln(w, "  Account:  signed out")
			}
			if report.Audits != nil {
				fmt.Fprintf(w, "  Audits:   %d\n", *report.Audits)
			}
			if report.Monitors != nil {
				fmt.Fprintf(w, "  Monitors: %d (%d active)\n", *report.Monitors, *report.ActiveCount)
			}
			fmt.Fprintf(w, "  Schema:   v%d\n", report.SchemaVersion)
			for _, e := range report.Errors {
				printWarning("%s", e)
			}
			return nil
		})
	},
}

func upDown(ok bool) string {
	if ok {
		return colorize(colorGreen, "up")
	}
	return colorize(colorRed, "down")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse and manage saved audits",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved audits, or local scans with --local",
	RunE: func(cmd *cobra.Command, args []string) error {
		local, _ := cmd.Flags().GetBool("local")
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if limit <= 0 {
			limit = a.cfg.History.Limit
		}

		if local {
			scans, err := a.store.RecentScans(limit)
			if err != nil {
				return err
			}
			return render(cmd, scans, func(w io.Writer) error {
				if len(scans) == 0 {
					printWarning("No local scans yet")
					return nil
				}
				rows := make([][]any, 0, len(scans))
				for _, s := range scans {
					saved := ""
					if s.Saved {
						saved = "yes"
					}
					rows = append(rows, []any{s.CreatedAt.Local().Format(time.DateTime), s.URL, s.Lang, scoreText(s.Score), saved})
				}
				return table(w, "TIME\tURL\tLANG\tSCORE\tSAVED", rows)
			})
		}

		if err := a.requireAuth(); err != nil {
			return err
		}
		res, err := a.hooks.History(cmd.Context())
		if err != nil {
			return fmt.Errorf("loading history: %w", err)
		}
		audits := res.Data
		if len(audits) > limit {
			audits = audits[:limit]
		}
		return render(cmd, audits, func(w io.Writer) error {
			if len(audits) == 0 {
				printWarning("No saved audits")
				return nil
			}
			rows := make([][]any, 0, len(audits))
			for _, r := range audits {
				id := "-"
				if v, ok := r.ID(); ok {
					id = strconv.FormatInt(v, 10)
				}
				created := "-"
				if t, ok := r.CreatedAt(); ok {
					created = t.Local().Format(time.DateTime)
				}
				var score *float64
				if v, ok := r.Score(); ok {
					score = &v
				}
				rows = append(rows, []any{id, r.URL(), scoreText(score), created})
			}
			return table(w, "ID\tURL\tSCORE\tCREATED", rows)
		})
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one saved audit as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.requireAuth(); err != nil {
			return err
		}
		res, err := a.hooks.Audit(cmd.Context(), id)
		if err != nil {
			if apiclient.IsStatus(err, 404) {
				return fmt.Errorf("audit %d not found", id)
			}
			return err
		}
		return render(cmd, res.Data, nil)
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one saved audit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.hooks.DeleteAudit(cmd.Context(), id); err != nil {
			return fmt.Errorf("deleting audit %d: %w", id, err)
		}
		printSuccess("Deleted audit %d", id)
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every saved audit",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		local, _ := cmd.Flags().GetBool("local")
		if !confirm {
			printWarning("This will delete ALL saved audits. Use --confirm to proceed.")
			return nil
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if local {
			if err := a.store.ClearScans(); err != nil {
				return err
			}
			printSuccess("Local scan log cleared")
			return nil
		}

		if err := a.hooks.ClearHistory(cmd.Context()); err != nil {
			return fmt.Errorf("clearing history: %w", err)
		}
		printSuccess("History cleared")
		return nil
	},
}

func init() {
	historyListCmd.Flags().Bool("local", false, "list analyses run from this machine instead of the account history")
	historyListCmd.Flags().Int("limit", 0, "maximum number of entries (default history.limit)")
	historyClearCmd.Flags().Bool("confirm", false, "confirm deletion")
	historyClearCmd.Flags().Bool("local", false, "clear the local scan log instead")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historyClearCmd)
}

// --- monitors ---

var monitorsCmd = &cobra.Command{
	Use:   "monitors",
	Short: "Manage uptime monitors",
}

var monitorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List monitors",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.requireAuth(); err != nil {
			return err
		}
		res, err := a.hooks.Monitors(cmd.Context())
		if err != nil {
			return fmt.Errorf("loading monitors: %w", err)
		}
		monitors := res.Data
		return render(cmd, monitors, func(w io.Writer) error {
			if len(monitors) == 0 {
				printWarning("No monitors")
				return nil
			}
			rows := make([][]any, 0, len(monitors))
			for _, m := range monitors {
				state := "active"
				if !m.IsActive {
					state = "paused"
				}
				checked := "never"
				if m.LastCheckedAt != nil {
					checked = m.LastCheckedAt.Local().Format(time.DateTime)
				}
				rows = append(rows, []any{m.ID, m.URL, m.Frequency, state, scoreText(m.LastScore), fmt.Sprintf("%.0f", m.Threshold), checked})
			}
			return table(w, "ID\tURL\tFREQUENCY\tSTATE\tSCORE\tTHRESHOLD\tLAST CHECK", rows)
		})
	},
}

var monitorsAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Start monitoring a URL",
	Long: `Start monitoring a URL.

Examples:
  siteaudit monitors add https://example.com
  siteaudit monitors add https://example.com --frequency daily --threshold 5`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		freqStr, _ := cmd.Flags().GetString("frequency")
		threshold, _ := cmd.Flags().GetFloat64("threshold")

		freq, err := apiclient.ParseFrequency(freqStr)
		if err != nil {
			return err
		}
		if threshold < 0 {
			return fmt.Errorf("--threshold must not be negative")
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := a.hooks.CreateMonitor(cmd.Context(), apiclient.MonitorCreate{
			URL:       args[0],
			Frequency: freq,
			Threshold: threshold,
		})
		if err != nil {
			return fmt.Errorf("creating monitor: %w", err)
		}
		printSuccess("Monitor %d created for %s (%s)", m.ID, m.URL, m.Frequency)
		if outputFormat != "text" {
			return render(cmd, m, nil)
		}
		return nil
	},
}

func monitorActiveCmd(use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			m, err := a.hooks.SetMonitorActive(cmd.Context(), id, active)
			if err != nil {
				return fmt.Errorf("updating monitor %d: %w", id, err)
			}
			if m.IsActive {
				printSuccess("Monitor %d resumed", m.ID)
			} else {
				printSuccess("Monitor %d paused", m.ID)
			}
			return nil
		},
	}
}

var monitorsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a monitor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.hooks.DeleteMonitor(cmd.Context(), id); err != nil {
			return fmt.Errorf("deleting monitor %d: %w", id, err)
		}
		printSuccess("Monitor %d deleted", id)
		return nil
	},
}

func init() {
	monitorsAddCmd.Flags().String("frequency", string(apiclient.FrequencyWeekly), "check frequency: daily or weekly")
	monitorsAddCmd.Flags().Float64("threshold", 10, "score drop that triggers an alert")

	monitorsCmd.AddCommand(monitorsListCmd)
	monitorsCmd.AddCommand(monitorsAddCmd)
	monitorsCmd.AddCommand(monitorActiveCmd("pause", "Pause a monitor", false))
	monitorsCmd.AddCommand(monitorActiveCmd("resume", "Resume a paused monitor", true))
	monitorsCmd.AddCommand(monitorsDeleteCmd)
}

// --- lang ---

var langCmd = &cobra.Command{
	Use:   "lang [code]",
	Short: "Show or set the default report language",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), a.lang(""))
			return nil
		}
		lang := strings.ToLower(strings.TrimSpace(args[0]))
		if lang == "" {
			return errors.New("language code must not be empty")
		}
		if err := a.store.SetLang(lang); err != nil {
			return err
		}
		printSuccess("Default language set to %s", lang)
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show all config values",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		keys := config.ShowAll(cfg)
		return render(cmd, keys, func(w io.Writer) error {
			rows := make([][]any, 0, len(keys))
			for _, k := range keys {
				rows = append(rows, []any{k.Key, k.Value, k.EnvVar})
			}
			return table(w, "KEY\tVALUE\tENV", rows)
		})
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetKey(args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Set %s = %s", args[0], args[1])
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a config value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		existed, err := config.UnsetKey(args[0])
		if err != nil {
			return err
		}
		if !existed {
			printWarning("%s was not set in %s", args[0], config.FilePath())
			return nil
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: want a positive integer", s)
	}
	return id, nil
}
