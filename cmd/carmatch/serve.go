package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dealermetrics/carmatch/internal/api"
	"github.com/dealermetrics/carmatch/internal/config"
	"github.com/dealermetrics/carmatch/internal/tasks"
	"github.com/dealermetrics/carmatch/internal/types"
)

var (
	triggerSites     []string
	triggerVehicleID string
	triggerIgnoreOld bool
	triggerFull      bool
)

// serveCmd creates the "serve" subcommand.
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the REST control API and NATS task listener",
		Long: `Serve the control API: trigger and stop runs, read run status, read
priced vehicles, upload inventory sheets. With tasks.enabled, runs can also
be triggered and revoked over NATS.`,
		RunE: runServe,
	}
}

// runServe executes the serve command.
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := setupLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := buildStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close(context.Background())

	runFn := func(runCtx context.Context, taskID string, opts types.RunOptions) {
		logger.Info("run triggered", "task_id", taskID)
		vehicles, err := loadVehicles(cfg, opts, "", logger)
		if err != nil {
			logger.Error("run aborted, inventory load failed", "task_id", taskID, "error", err)
			return
		}
		if err := st.coord.Run(runCtx, vehicles, opts); err != nil {
			logger.Error("run ended with error", "task_id", taskID, "error", err)
		}
	}

	var broker *tasks.Broker
	if cfg.Tasks.Enabled {
		broker, err = tasks.NewBroker(cfg.Tasks, runFn, logger)
		if err != nil {
			return err
		}
		if err := broker.Listen(); err != nil {
			broker.Close()
			return err
		}
	} else {
		broker = tasks.NewLocalBroker(runFn, logger)
	}
	defer broker.Close()

	srv := api.NewServer(cfg, st.store, broker, st.coord.Metrics().Handler(), logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down...", "signal", sig)
	case err := <-errCh:
		return err
	}

	broker.StopCurrent("")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// triggerCmd creates the "trigger" subcommand.
func triggerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Publish a run trigger over NATS",
		RunE:  runTrigger,
	}

	cmd.Flags().StringSliceVarP(&triggerSites, "sites", "s", nil, "sites to scrape")
	cmd.Flags().StringVar(&triggerVehicleID, "vehicle", "", "restrict the run to one vehicle id")
	cmd.Flags().BoolVar(&triggerIgnoreOld, "ignore-old", false, "skip sites already recorded for a vehicle")
	cmd.Flags().BoolVar(&triggerFull, "full", false, "process the full sheet instead of a sample")

	return cmd
}

// runTrigger executes the trigger command.
func runTrigger(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	opts := types.DefaultRunOptions()
	opts.MileageTolerance = cfg.Run.MileageTolerance
	if len(triggerSites) > 0 {
		opts.Sites = triggerSites
	}
	opts.VehicleID = triggerVehicleID
	opts.IgnoreOld = triggerIgnoreOld
	opts.SampleMode = !triggerFull

	taskID, err := tasks.Publish(cfg.Tasks, opts)
	if err != nil {
		return err
	}
	fmt.Printf("Task %s published to %s\n", taskID, cfg.Tasks.StartSubject)
	return nil
}
