package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dealermetrics/carmatch/internal/observability"
	"github.com/dealermetrics/carmatch/internal/pipeline"
	"github.com/dealermetrics/carmatch/internal/sites"
	"github.com/dealermetrics/carmatch/internal/storage"
	"github.com/dealermetrics/carmatch/internal/types"
)

// Coordinator owns one scraping run end to end: it walks the vehicle list
// sequentially and fans each vehicle out across its sites with a small
// worker pool. Vehicles are sequential on purpose; the per-site fan-out is
// where the latency is, and a second level of parallelism would multiply
// pressure on the same scraping intermediaries.
type Coordinator struct {
	store       storage.Store
	pipe        *pipeline.Pipeline
	registry    *sites.Registry
	errlog      *ErrorLog
	metrics     *observability.Metrics
	siteWorkers int
	logger      *slog.Logger
}

// New creates a coordinator.
func New(store storage.Store, pipe *pipeline.Pipeline, registry *sites.Registry, errlog *ErrorLog, siteWorkers int, logger *slog.Logger) *Coordinator {
	if siteWorkers < 1 {
		siteWorkers = 2
	}
	return &Coordinator{
		store:       store,
		pipe:        pipe,
		registry:    registry,
		errlog:      errlog,
		metrics:     observability.NewMetrics(),
		siteWorkers: siteWorkers,
		logger:      logger.With("component", "coordinator"),
	}
}

// Metrics exposes the run counters for the metrics endpoint.
func (c *Coordinator) Metrics() *observability.Metrics { return c.metrics }

// siteOutcome is one site's result for one vehicle.
type siteOutcome struct {
	site       string
	candidates []*types.CandidateListing
	err        error
}

// Run executes a scraping run over the given vehicles. Per-site failures
// are journaled and cost that site's candidates only; storage failures
// abort the run. A cancelled context marks the run stopped.
func (c *Coordinator) Run(ctx context.Context, vehicles []*types.SourceVehicle, opts types.RunOptions) error {
	if len(vehicles) == 0 {
		return types.ErrNoVehicles
	}
	c.metrics.RunsTotal.Add(1)

	started := time.Now()
	if err := c.store.UpdateStatus(ctx, &types.RunStatus{
		Status:       types.RunStarting,
		StartedAt:    &started,
		TotalRunning: len(vehicles),
	}); err != nil {
		return err
	}

	status := &types.RunStatus{
		Status:       types.RunRunning,
		StartedAt:    &started,
		TotalRunning: len(vehicles),
	}
	if err := c.store.UpdateStatus(ctx, status); err != nil {
		return err
	}

	for i, vehicle := range vehicles {
		if err := ctx.Err(); err != nil {
			return c.finish(status, types.RunStopped, types.ErrRunStopped)
		}

		c.logger.Info("processing vehicle",
			"vehicle_id", vehicle.ID, "index", i+1, "total", len(vehicles))

		if err := c.processVehicle(ctx, vehicle, opts); err != nil {
			if errors.Is(err, context.Canceled) {
				return c.finish(status, types.RunStopped, types.ErrRunStopped)
			}
			c.errlog.Record(vehicle.ID, err)
			return c.finish(status, types.RunFailed, err)
		}

		status.TotalCompleted = i + 1
		status.TotalRunning = len(vehicles) - status.TotalCompleted
		if err := c.store.UpdateStatus(ctx, status); err != nil {
			return c.finish(status, types.RunFailed, err)
		}
	}

	return c.finish(status, types.RunSuccess, nil)
}

// finish writes the terminal status row. The run error wins over a status
// write failure; the write failure is only logged.
func (c *Coordinator) finish(status *types.RunStatus, state types.RunState, runErr error) error {
	now := time.Now()
	status.Status = state
	status.StoppedAt = &now
	if state == types.RunFailed {
		c.metrics.RunsFailed.Add(1)
	}

	// Terminal status must land even when the run context is gone.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.store.UpdateStatus(ctx, status); err != nil {
		c.logger.Error("failed to write terminal status", "state", state, "error", err)
	}
	c.logger.Info("run finished", "state", state,
		"completed", status.TotalCompleted, "error", runErr)
	return runErr
}

// processVehicle persists the vehicle, selects its sites, fans out the
// acquisition pipeline, and saves the merged candidate set.
func (c *Coordinator) processVehicle(ctx context.Context, vehicle *types.SourceVehicle, opts types.RunOptions) error {
	if err := c.store.SaveVehicle(ctx, vehicle); err != nil {
		return err
	}

	siteNames, err := c.selectSites(ctx, vehicle, opts)
	if err != nil {
		return err
	}
	if len(siteNames) == 0 {
		c.logger.Info("no sites to scrape for vehicle", "vehicle_id", vehicle.ID)
		return nil
	}

	outcomes := c.fanOut(ctx, vehicle, siteNames, opts.MileageTolerance)

	var merged []*types.CandidateListing
	for _, out := range outcomes {
		if out.err != nil {
			if errors.Is(out.err, context.Canceled) {
				return out.err
			}
			// One site degrading does not fail the vehicle.
			c.logger.Warn("site acquisition failed",
				"vehicle_id", vehicle.ID, "site", out.site, "error", out.err)
			c.errlog.Record(vehicle.ID, out.err)
			continue
		}
		merged = append(merged, out.candidates...)
	}

	merged = types.DedupListings(merged)
	if err := c.store.SaveComparisons(ctx, merged); err != nil {
		return err
	}
	c.metrics.CandidatesTotal.Add(int64(len(merged)))
	c.metrics.VehiclesCompleted.Add(1)
	c.logger.Info("vehicle done", "vehicle_id", vehicle.ID, "candidates", len(merged))
	return nil
}

// selectSites filters the requested sites to registered ones, minus the
// domains already recorded for the vehicle when ignore_old is set.
func (c *Coordinator) selectSites(ctx context.Context, vehicle *types.SourceVehicle, opts types.RunOptions) ([]string, error) {
	requested := opts.Sites
	if len(requested) == 0 {
		requested = c.registry.Names()
	}

	var recorded map[string]struct{}
	if opts.IgnoreOld {
		domains, err := c.store.VehicleDomains(ctx, vehicle.ID)
		if err != nil {
			return nil, err
		}
		recorded = make(map[string]struct{}, len(domains))
		for _, d := range domains {
			recorded[d] = struct{}{}
		}
	}

	var selected []string
	for _, name := range requested {
		site, err := c.registry.Get(name)
		if err != nil {
			c.logger.Warn("skipping unregistered site", "site", name)
			continue
		}
		if recorded != nil {
			if _, done := recorded[site.Domain()]; done {
				c.logger.Info("skipping already-recorded site",
					"vehicle_id", vehicle.ID, "site", name)
				continue
			}
		}
		selected = append(selected, name)
	}
	return selected, nil
}

// fanOut runs the pipeline for each site with at most siteWorkers in
// flight and returns all outcomes. tolerance is the run's mileage window,
// passed through to query building.
func (c *Coordinator) fanOut(ctx context.Context, vehicle *types.SourceVehicle, siteNames []string, tolerance int) []siteOutcome {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes []siteOutcome
	)
	sem := make(chan struct{}, c.siteWorkers)

	for _, name := range siteNames {
		wg.Add(1)
		go func(site string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			result, err := c.pipe.Run(ctx, site, vehicle, tolerance)
			out := siteOutcome{site: site, err: err}
			if result != nil {
				out.candidates = result.Candidates
			}

			mu.Lock()
			outcomes = append(outcomes, out)
			mu.Unlock()
		}(name)
	}

	wg.Wait()
	return outcomes
}
