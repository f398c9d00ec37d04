package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dealermetrics/carmatch/internal/config"
	"github.com/dealermetrics/carmatch/internal/fetcher"
	"github.com/dealermetrics/carmatch/internal/ingest"
	"github.com/dealermetrics/carmatch/internal/llm"
	"github.com/dealermetrics/carmatch/internal/pipeline"
	"github.com/dealermetrics/carmatch/internal/runner"
	"github.com/dealermetrics/carmatch/internal/scoring"
	"github.com/dealermetrics/carmatch/internal/sites"
	"github.com/dealermetrics/carmatch/internal/storage"
	"github.com/dealermetrics/carmatch/internal/types"
)

var (
	scrapeFile      string
	scrapeSites     []string
	scrapeVehicleID string
	scrapeTolerance int
	scrapeIgnoreOld bool
	scrapeFull      bool
)

// scrapeCmd creates the "scrape" subcommand.
func scrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Run a scraping run in this process",
		Long: `Load the inventory spreadsheet and price each vehicle against the
configured marketplaces. Interrupting with SIGINT stops the run cleanly and
marks it stopped.`,
		RunE: runScrape,
	}

	cmd.Flags().StringVarP(&scrapeFile, "file", "f", "", "inventory .xlsx path (defaults to ingest.file_path)")
	cmd.Flags().StringSliceVarP(&scrapeSites, "sites", "s", nil, "sites to scrape (default: leboncoin,lacentrale)")
	cmd.Flags().StringVar(&scrapeVehicleID, "vehicle", "", "restrict the run to one vehicle id")
	cmd.Flags().IntVar(&scrapeTolerance, "mileage-tolerance", 0, "mileage window ± in km (0 = config default)")
	cmd.Flags().BoolVar(&scrapeIgnoreOld, "ignore-old", false, "skip sites already recorded for a vehicle")
	cmd.Flags().BoolVar(&scrapeFull, "full", false, "process the full sheet instead of a sample")

	return cmd
}

// stack bundles the wired run components.
type stack struct {
	cfg      *config.Config
	store    storage.Store
	registry *sites.Registry
	pipe     *pipeline.Pipeline
	coord    *runner.Coordinator
	errlog   *runner.ErrorLog
	fetchers *sites.FetcherSet
	logger   *slog.Logger
}

// buildStack wires storage, fetchers, the site registry, the scorer, and
// the coordinator from config.
func buildStack(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stack, error) {
	store, err := storage.New(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	direct, err := fetcher.NewHTTPFetcher(cfg, logger)
	if err != nil {
		store.Close(ctx)
		return nil, fmt.Errorf("create fetcher: %w", err)
	}
	fetchers := &sites.FetcherSet{
		Direct:    direct,
		ScrapeAPI: fetcher.NewScrapeAPIFetcher(cfg, logger),
	}
	if siteUsesStrategy(cfg, "browser") {
		browser, err := fetcher.NewBrowserFetcher(cfg, logger)
		if err != nil {
			logger.Warn("browser fetcher unavailable, falling back to direct", "error", err)
		} else {
			fetchers.Browser = browser
		}
	}

	client := llm.New(cfg.LLM, logger)
	registry := sites.NewRegistry(cfg, client, fetchers, logger)

	var scorer scoring.Scorer
	if cfg.Run.ScoringStrategy == "formula" {
		scorer = scoring.NewFormulaScorer(logger)
	} else {
		scorer = scoring.NewLLMScorer(client, logger)
	}

	errlog, err := runner.OpenErrorLog(cfg.Run.ErrorLogPath, logger)
	if err != nil {
		store.Close(ctx)
		return nil, err
	}

	pipe := pipeline.New(cfg, registry, scorer, logger)
	coord := runner.New(store, pipe, registry, errlog, cfg.Run.SiteWorkers, logger)
	pipe.WithMetrics(coord.Metrics())

	return &stack{
		cfg:      cfg,
		store:    store,
		registry: registry,
		pipe:     pipe,
		coord:    coord,
		errlog:   errlog,
		fetchers: fetchers,
		logger:   logger,
	}, nil
}

// close releases the stack's resources.
func (s *stack) close(ctx context.Context) {
	if s.fetchers.Browser != nil {
		s.fetchers.Browser.Close()
	}
	s.fetchers.ScrapeAPI.Close()
	s.fetchers.Direct.Close()
	s.errlog.Close()
	s.store.Close(ctx)
}

func siteUsesStrategy(cfg *config.Config, strategy string) bool {
	for _, site := range cfg.Sites.Integration {
		if site.Enabled && site.FetchStrategy == strategy {
			return true
		}
	}
	return false
}

// loadVehicles reads the inventory per the run options.
func loadVehicles(cfg *config.Config, opts types.RunOptions, path string, logger *slog.Logger) ([]*types.SourceVehicle, error) {
	reader := ingest.NewReader(cfg.Ingest, logger)
	if opts.VehicleID != "" {
		v, err := reader.Find(path, opts.VehicleID)
		if err != nil {
			return nil, err
		}
		return []*types.SourceVehicle{v}, nil
	}
	return reader.Load(path, opts.SampleMode)
}

// runScrape executes the scrape command.
func runScrape(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := setupLogger(cfg)

	opts := types.DefaultRunOptions()
	opts.MileageTolerance = cfg.Run.MileageTolerance
	if scrapeTolerance > 0 {
		opts.MileageTolerance = scrapeTolerance
	}
	if len(scrapeSites) > 0 {
		opts.Sites = scrapeSites
	}
	opts.VehicleID = scrapeVehicleID
	opts.IgnoreOld = scrapeIgnoreOld
	opts.SampleMode = !scrapeFull

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, stopping run...", "signal", sig)
		cancel()
	}()

	st, err := buildStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close(context.Background())

	vehicles, err := loadVehicles(cfg, opts, scrapeFile, logger)
	if err != nil {
		return fmt.Errorf("load inventory: %w", err)
	}

	logger.Info("starting run",
		"vehicles", len(vehicles),
		"sites", opts.Sites,
		"tolerance_km", opts.MileageTolerance,
		"ignore_old", opts.IgnoreOld,
	)

	start := time.Now()
	runErr := st.coord.Run(ctx, vehicles, opts)
	elapsed := time.Since(start)

	status, _ := st.store.GetStatus(context.Background())
	fmt.Printf("\nRun finished in %s\n", elapsed.Round(time.Second))
	if status != nil {
		fmt.Printf("   State:      %s\n", status.Status)
		fmt.Printf("   Completed:  %d vehicles\n", status.TotalCompleted)
	}
	fmt.Printf("   Error log:  %s\n", cfg.Run.ErrorLogPath)

	return runErr
}
