package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dealermetrics/carmatch/internal/config"
	"github.com/dealermetrics/carmatch/internal/fetcher"
	"github.com/dealermetrics/carmatch/internal/observability"
	"github.com/dealermetrics/carmatch/internal/scoring"
	"github.com/dealermetrics/carmatch/internal/sites"
	"github.com/dealermetrics/carmatch/internal/types"
)

// Result is the outcome of one vehicle/site acquisition.
type Result struct {
	Site       string
	VehicleID  string
	Candidates []*types.CandidateListing

	// QueryLabel names the escalation step that produced the candidates,
	// empty when every query missed.
	QueryLabel string

	// Misses counts queries that were tried and rejected before the
	// accepted one.
	Misses int
}

// Pipeline runs the acquisition sequence for one vehicle against one site:
// plan the filter, derive the query ladder, then walk it most specific
// first until a query yields an acceptable result set. Each query is a
// single retryable unit covering fetch, extraction, and scoring, because
// intermediaries fail in ways only visible after extraction.
type Pipeline struct {
	registry      *sites.Registry
	scorer        scoring.Scorer
	retry         *fetcher.RetryPolicy
	tolerance     int
	missThreshold int
	metrics       *observability.Metrics
	logger        *slog.Logger
}

// WithMetrics attaches a counter set; nil metrics are simply not stamped.
func (p *Pipeline) WithMetrics(m *observability.Metrics) *Pipeline {
	p.metrics = m
	return p
}

// New creates a pipeline over the given registry and scorer.
func New(cfg *config.Config, registry *sites.Registry, scorer scoring.Scorer, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		registry:      registry,
		scorer:        scorer,
		retry:         fetcher.NewRetryPolicy(cfg.Fetcher.MaxAttempts, cfg.Fetcher.RetryBaseDelay, logger),
		tolerance:     cfg.Run.MileageTolerance,
		missThreshold: cfg.Run.MissThreshold,
		logger:        logger.With("component", "pipeline"),
	}
}

// Run acquires candidates for one vehicle on one site. tolerance is the
// mileage window for this run; zero or negative falls back to the
// configured default. A planning failure is returned to the caller; query
// misses are not errors. When every query in the ladder misses, the result
// carries zero candidates.
func (p *Pipeline) Run(ctx context.Context, siteName string, vehicle *types.SourceVehicle, tolerance int) (*Result, error) {
	site, err := p.registry.Get(siteName)
	if err != nil {
		return nil, err
	}
	logger := p.logger.With("site", siteName, "vehicle_id", vehicle.ID)
	result := &Result{Site: siteName, VehicleID: vehicle.ID}

	logger.Info("planning filter")
	filter, err := site.PlanFilter(ctx, vehicle)
	if err != nil {
		return nil, err
	}

	if tolerance <= 0 {
		tolerance = p.tolerance
	}
	queries := site.BuildQueries(vehicle, filter, tolerance)
	logger.Info("query ladder built", "queries", len(queries))

	timestamp := types.Now()
	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logger.Info("executing query", "step", i, "label", q.Label, "basic", q.Basic)
		if p.metrics != nil {
			p.metrics.QueriesTotal.Add(1)
		}

		var candidates []*types.CandidateListing
		attempts := 0
		err := p.retry.Do(ctx, siteName+"/"+q.Label, func(ctx context.Context) error {
			attempts++
			if p.metrics != nil {
				p.metrics.SiteFetch(siteName)
				if attempts > 1 {
					p.metrics.RetriesTotal.Add(1)
				}
			}
			resp, err := site.Fetch(ctx, q)
			if err != nil {
				if p.metrics != nil {
					p.metrics.FetchErrorsTotal.Add(1)
				}
				return err
			}
			extracted, err := site.Extract(resp, vehicle.ID, timestamp)
			if err != nil {
				return err
			}
			scored, err := p.score(ctx, vehicle, extracted)
			if err != nil {
				return err
			}
			candidates = scored
			return nil
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			// Exhausted retries on one step degrade to a miss; broader
			// queries may still succeed.
			logger.Warn("query failed, treating as miss", "label", q.Label, "error", err)
			result.Misses++
			if p.metrics != nil {
				p.metrics.QueryMissesTotal.Add(1)
			}
			continue
		}

		if len(candidates) < p.missThreshold && !q.Basic {
			logger.Info("below threshold, escalating",
				"label", q.Label, "candidates", len(candidates), "threshold", p.missThreshold)
			result.Misses++
			if p.metrics != nil {
				p.metrics.QueryMissesTotal.Add(1)
			}
			continue
		}

		result.Candidates = candidates
		result.QueryLabel = q.Label
		logger.Info("query accepted", "label", q.Label, "candidates", len(candidates))
		return result, nil
	}

	logger.Warn("all queries missed", "misses", result.Misses)
	return result, nil
}

// score runs the scorer over each candidate, writing the match percentage
// and rationale in place.
func (p *Pipeline) score(ctx context.Context, vehicle *types.SourceVehicle, candidates []*types.CandidateListing) ([]*types.CandidateListing, error) {
	for _, c := range candidates {
		pct, reason, err := p.scorer.Score(ctx, vehicle, c)
		if err != nil {
			return nil, err
		}
		c.MatchPercentage = pct
		c.MatchReason = reason
	}
	return candidates, nil
}
