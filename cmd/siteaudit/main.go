package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor      bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "siteaudit",
	Short: "Run site audits and manage uptime monitors",
	Long: `siteaudit talks to a site-audit backend: it runs SEO and performance
audits, keeps the signed-in account's audit history, and manages
uptime monitors.

Examples:
  siteaudit analyze https://example.com
  siteaudit auth login --email me@example.com
  siteaudit history list
  siteaudit monitors add https://example.com --frequency daily`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch outputFormat {
		case "text", "json", "yaml":
			return nil
		}
		return fmt.Errorf("invalid --output %q: want text, json or yaml", outputFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format: text, json or yaml")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(monitorsCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(langCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(mcpCmd)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
