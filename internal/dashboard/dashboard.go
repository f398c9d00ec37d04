// Package dashboard serves a single-page run overview backed by the REST
// API. It carries no state of its own: the page polls /api/status and
// /api/cars from the browser.
package dashboard

import "net/http"

// Handler returns the dashboard page handler.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(dashboardHTML))
	})
}
