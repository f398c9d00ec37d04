package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsExposition(t *testing.T) {
	m := NewMetrics()
	m.SiteFetch("leboncoin")
	m.SiteFetch("leboncoin")
	m.SiteFetch("lacentrale")
	m.QueriesTotal.Add(5)
	m.QueryMissesTotal.Add(2)
	m.RunsTotal.Add(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"carmatch_fetches_total 3",
		"carmatch_queries_total 5",
		"carmatch_query_misses_total 2",
		"carmatch_runs_total 1",
		`carmatch_site_fetches_total{site="leboncoin"} 2`,
		`carmatch_site_fetches_total{site="lacentrale"} 1`,
		"carmatch_uptime_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestMetricsSiteFetchConcurrent(t *testing.T) {
	m := NewMetrics()
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				m.SiteFetch("autoscout24")
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	if got := m.FetchesTotal.Load(); got != 800 {
		t.Errorf("FetchesTotal = %d, want 800", got)
	}
}
