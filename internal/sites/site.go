package sites

import (
	"context"
	"log/slog"
	"sort"

	"github.com/dealermetrics/carmatch/internal/config"
	"github.com/dealermetrics/carmatch/internal/fetcher"
	"github.com/dealermetrics/carmatch/internal/llm"
	"github.com/dealermetrics/carmatch/internal/types"
)

// Integration is one marketplace behind a uniform capability surface. The
// three sites share no markup, no filter vocabulary, and no transport
// quirks, but the pipeline treats them identically through this interface.
type Integration interface {
	// Name is the registry key ("lacentrale", "leboncoin", "autoscout24").
	Name() string

	// Domain is the site's canonical URL, recorded on every candidate.
	Domain() string

	// PlanFilter maps the vehicle onto the site's filter vocabulary. The
	// vocabulary is fetched live; an empty vocabulary degrades the LLM
	// call, a failed fetch or LLM call returns a PlanError.
	PlanFilter(ctx context.Context, vehicle *types.SourceVehicle) (*types.SiteFilter, error)

	// BuildQueries derives the escalation sequence from the mapped filter.
	// Queries come back most-specific-first; the last one is the basic
	// query whose results are accepted regardless of count.
	BuildQueries(vehicle *types.SourceVehicle, filter *types.SiteFilter, toleranceKm int) []types.Query

	// Fetch obtains the page or payload for one query.
	Fetch(ctx context.Context, q types.Query) (*fetcher.Response, error)

	// Extract turns a fetched response into at most maxCandidates
	// normalized listings for the given parent vehicle.
	Extract(resp *fetcher.Response, parentVehicleID, timestamp string) ([]*types.CandidateListing, error)
}

// Registry maps site keys to integrations. Selection by key keeps the
// coordinator free of per-site knowledge.
type Registry struct {
	integrations map[string]Integration
}

// NewRegistry builds the registry of enabled integrations from config.
func NewRegistry(cfg *config.Config, client *llm.Client, fetchers *FetcherSet, logger *slog.Logger) *Registry {
	r := &Registry{integrations: make(map[string]Integration)}

	for name, siteCfg := range cfg.Sites.Integration {
		if !siteCfg.Enabled {
			continue
		}
		switch name {
		case "lacentrale":
			r.Register(NewLaCentrale(cfg, client, fetchers, logger))
		case "leboncoin":
			r.Register(NewLeboncoin(cfg, client, fetchers, logger))
		case "autoscout24":
			r.Register(NewAutoScout24(cfg, client, fetchers, logger))
		default:
			logger.Warn("unknown site in config, skipping", "site", name)
		}
	}

	return r
}

// Register adds an integration.
func (r *Registry) Register(site Integration) {
	if r.integrations == nil {
		r.integrations = make(map[string]Integration)
	}
	r.integrations[site.Name()] = site
}

// Get returns the integration for a site key.
func (r *Registry) Get(name string) (Integration, error) {
	site, ok := r.integrations[name]
	if !ok {
		return nil, types.ErrUnknownSite
	}
	return site, nil
}

// Names returns all registered site keys, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.integrations))
	for name := range r.integrations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Domains returns the canonical domain of every registered site.
func (r *Registry) Domains() []string {
	domains := make([]string, 0, len(r.integrations))
	for _, name := range r.Names() {
		domains = append(domains, r.integrations[name].Domain())
	}
	return domains
}

// FetcherSet bundles the available fetch strategies so each site can pick
// per its configured strategy.
type FetcherSet struct {
	Direct    fetcher.Fetcher
	ScrapeAPI fetcher.Fetcher
	Browser   fetcher.Fetcher
}

// ForStrategy returns the fetcher matching a site's configured strategy,
// falling back to direct.
func (fs *FetcherSet) ForStrategy(strategy string) fetcher.Fetcher {
	switch strategy {
	case "scrape_api":
		if fs.ScrapeAPI != nil {
			return fs.ScrapeAPI
		}
	case "browser":
		if fs.Browser != nil {
			return fs.Browser
		}
	}
	return fs.Direct
}

// reverseQueries flips a base-first escalation sequence into the
// most-specific-first execution order and marks the final (basic) query.
func reverseQueries(qs []types.Query) []types.Query {
	out := make([]types.Query, len(qs))
	for i, q := range qs {
		out[len(qs)-1-i] = q
	}
	if len(out) > 0 {
		out[len(out)-1].Basic = true
	}
	return out
}
