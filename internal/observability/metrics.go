package observability

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects run counters with atomics and exposes them in the
// Prometheus text format. Counters are cheap enough to stamp from the hot
// fetch path without coordination.
type Metrics struct {
	startTime time.Time

	FetchesTotal      atomic.Int64
	FetchErrorsTotal  atomic.Int64
	RetriesTotal      atomic.Int64
	QueriesTotal      atomic.Int64
	QueryMissesTotal  atomic.Int64
	CandidatesTotal   atomic.Int64
	VehiclesCompleted atomic.Int64
	RunsTotal         atomic.Int64
	RunsFailed        atomic.Int64

	mu             sync.Mutex
	fetchesPerSite map[string]*atomic.Int64
}

// NewMetrics creates a metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime:      time.Now(),
		fetchesPerSite: make(map[string]*atomic.Int64),
	}
}

// SiteFetch records one fetch against a site.
func (m *Metrics) SiteFetch(site string) {
	m.FetchesTotal.Add(1)
	m.mu.Lock()
	counter, ok := m.fetchesPerSite[site]
	if !ok {
		counter = &atomic.Int64{}
		m.fetchesPerSite[site] = counter
	}
	m.mu.Unlock()
	counter.Add(1)
}

// Handler serves the text exposition.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		write := func(name, help string, value int64) {
			fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, value)
		}
		write("carmatch_fetches_total", "Pages and payloads fetched.", m.FetchesTotal.Load())
		write("carmatch_fetch_errors_total", "Fetches that returned an error.", m.FetchErrorsTotal.Load())
		write("carmatch_retries_total", "Retry attempts across all queries.", m.RetriesTotal.Load())
		write("carmatch_queries_total", "Escalation queries executed.", m.QueriesTotal.Load())
		write("carmatch_query_misses_total", "Queries rejected below the candidate threshold.", m.QueryMissesTotal.Load())
		write("carmatch_candidates_total", "Candidate listings persisted.", m.CandidatesTotal.Load())
		write("carmatch_vehicles_completed_total", "Source vehicles fully processed.", m.VehiclesCompleted.Load())
		write("carmatch_runs_total", "Scraping runs started.", m.RunsTotal.Load())
		write("carmatch_runs_failed_total", "Scraping runs that ended failed.", m.RunsFailed.Load())

		m.mu.Lock()
		sites := make([]string, 0, len(m.fetchesPerSite))
		for site := range m.fetchesPerSite {
			sites = append(sites, site)
		}
		sort.Strings(sites)
		fmt.Fprintf(w, "# HELP carmatch_site_fetches_total Fetches per site.\n# TYPE carmatch_site_fetches_total counter\n")
		for _, site := range sites {
			fmt.Fprintf(w, "carmatch_site_fetches_total{site=%q} %d\n", site, m.fetchesPerSite[site].Load())
		}
		m.mu.Unlock()

		fmt.Fprintf(w, "# HELP carmatch_uptime_seconds Seconds since process start.\n# TYPE carmatch_uptime_seconds gauge\ncarmatch_uptime_seconds %d\n",
			int64(time.Since(m.startTime).Seconds()))
	})
}
