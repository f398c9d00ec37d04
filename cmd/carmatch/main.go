package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dealermetrics/carmatch/internal/config"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "carmatch",
		Short: "carmatch: competitive pricing scraper for dealer inventory",
		Long: `carmatch prices a dealer's used-car inventory against the French
marketplaces. For each vehicle it plans site-specific search filters with an
LLM, walks an escalating query ladder per site, scores the scraped candidates
against the source vehicle, and persists the comparables for pricing.

Commands:
  scrape    run a scraping run in this process
  serve     run the REST control API (and NATS task listener)
  trigger   publish a run trigger over NATS
  version   print version information
  config    show the resolved configuration`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(scrapeCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(triggerCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("carmatch %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Run:\n")
			fmt.Printf("  Site Workers:       %d\n", cfg.Run.SiteWorkers)
			fmt.Printf("  Mileage Tolerance:  %d km\n", cfg.Run.MileageTolerance)
			fmt.Printf("  Miss Threshold:     %d\n", cfg.Run.MissThreshold)
			fmt.Printf("  Max Candidates:     %d\n", cfg.Run.MaxCandidates)
			fmt.Printf("  Scoring Strategy:   %s\n", cfg.Run.ScoringStrategy)
			fmt.Printf("  Error Log:          %s\n", cfg.Run.ErrorLogPath)
			fmt.Printf("\nFetcher:\n")
			fmt.Printf("  Max Attempts:       %d\n", cfg.Fetcher.MaxAttempts)
			fmt.Printf("  Retry Base Delay:   %s\n", cfg.Fetcher.RetryBaseDelay)
			fmt.Printf("  Request Timeout:    %s\n", cfg.Fetcher.RequestTimeout)
			fmt.Printf("  Rate:               %.1f/s burst %d\n", cfg.Fetcher.RatePerSecond, cfg.Fetcher.RateBurst)
			fmt.Printf("\nSites:\n")
			for name, site := range cfg.Sites.Integration {
				fmt.Printf("  %-12s enabled=%v strategy=%s\n", name, site.Enabled, site.FetchStrategy)
			}
			fmt.Printf("\nLLM:\n")
			fmt.Printf("  Provider:           %s\n", cfg.LLM.Provider)
			fmt.Printf("  Model:              %s\n", cfg.LLM.Model)
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Backend:            %s\n", cfg.Storage.Backend)
			fmt.Printf("\nTasks:\n")
			fmt.Printf("  Enabled:            %v\n", cfg.Tasks.Enabled)
			fmt.Printf("  Start Subject:      %s\n", cfg.Tasks.StartSubject)
			fmt.Printf("  Stop Subject:       %s\n", cfg.Tasks.StopSubject)
			fmt.Printf("\nAPI:\n")
			fmt.Printf("  Port:               %d\n", cfg.API.Port)
			return nil
		},
	}
}

// setupLogger creates the process logger per config and the verbose flag.
func setupLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
