package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dealermetrics/carmatch/internal/config"
	"github.com/dealermetrics/carmatch/internal/dashboard"
	"github.com/dealermetrics/carmatch/internal/storage"
	"github.com/dealermetrics/carmatch/internal/tasks"
	"github.com/dealermetrics/carmatch/internal/types"
)

// priceBand is how far a vehicle may sit from the comparable average and
// still be considered on-market.
const priceBand = 500.0

// matchCutoff is the minimum score for a candidate to count toward the
// comparable average. Weaker matches are kept in storage for inspection
// but excluded from pricing math.
const matchCutoff = 95.0

// Server is the REST control surface: trigger and stop runs, read status,
// read priced vehicles, upload a new inventory sheet.
type Server struct {
	cfg     *config.Config
	store   storage.Store
	broker  *tasks.Broker
	metrics http.Handler
	logger  *slog.Logger
	httpSrv *http.Server
}

// NewServer creates the REST server. The metrics handler may be nil when
// the metrics endpoint is disabled.
func NewServer(cfg *config.Config, store storage.Store, broker *tasks.Broker, metrics http.Handler, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		store:   store,
		broker:  broker,
		metrics: metrics,
		logger:  logger.With("component", "api"),
	}

	mux := http.NewServeMux()
	mux.Handle("GET /{$}", dashboard.Handler())
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/cars", s.handleCars)
	mux.HandleFunc("GET /api/cars/{id}/comparisons", s.handleComparisons)
	mux.HandleFunc("POST /api/tasks", s.handleStartTask)
	mux.HandleFunc("POST /api/tasks/{id}/stop", s.handleStopTask)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	if cfg.Metrics.Enabled && metrics != nil {
		mux.Handle("GET "+cfg.Metrics.Path, metrics)
	}

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.API.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving HTTP until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("api listening", "addr", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": config.Version,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.store.GetStatus(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"run":          status,
		"current_task": s.broker.Running(),
	})
}

// pricedVehicle is a source vehicle with its market positioning.
type pricedVehicle struct {
	*types.SourceVehicle

	ComparableCount int     `json:"comparable_count"`
	AveragePrice    float64 `json:"average_price"`
	PriceDelta      float64 `json:"price_delta"`

	// CardColor bands the vehicle's list price against the comparable
	// average: green below the band, yellow inside it, red above.
	CardColor string `json:"card_color"`
}

func (s *Server) handleCars(w http.ResponseWriter, r *http.Request) {
	vehicles, err := s.store.ListVehicles(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]*pricedVehicle, 0, len(vehicles))
	for _, v := range vehicles {
		comps, err := s.store.ListComparisons(r.Context(), v.ID)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out = append(out, positionVehicle(v, comps))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"cars": out, "count": len(out)})
}

// positionVehicle computes a vehicle's pricing position from its strong
// comparables.
func positionVehicle(v *types.SourceVehicle, comps []*types.CandidateListing) *pricedVehicle {
	pv := &pricedVehicle{SourceVehicle: v, CardColor: "gray"}

	var sum float64
	for _, c := range comps {
		if c.MatchPercentage < matchCutoff || c.Price <= 0 {
			continue
		}
		sum += c.Price
		pv.ComparableCount++
	}
	if pv.ComparableCount == 0 {
		return pv
	}

	pv.AveragePrice = sum / float64(pv.ComparableCount)
	pv.PriceDelta = v.PriceWithTax - pv.AveragePrice
	switch {
	case pv.PriceDelta < -priceBand:
		pv.CardColor = "green"
	case pv.PriceDelta > priceBand:
		pv.CardColor = "red"
	default:
		pv.CardColor = "yellow"
	}
	return pv
}

func (s *Server) handleComparisons(w http.ResponseWriter, r *http.Request) {
	vehicleID := r.PathValue("id")
	comps, err := s.store.ListComparisons(r.Context(), vehicleID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"comparisons": comps, "count": len(comps)})
}

func (s *Server) handleStartTask(w http.ResponseWriter, r *http.Request) {
	opts := types.DefaultRunOptions()
	if r.Body != nil {
		// An empty body means default options; anything else must decode.
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil && err != io.EOF {
			s.writeError(w, http.StatusBadRequest, "malformed run options: "+err.Error())
			return
		}
	}

	taskID, err := s.broker.StartLocal(opts)
	if err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

func (s *Server) handleStopTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	if !s.broker.StopCurrent(taskID) {
		s.writeError(w, http.StatusNotFound, "no matching running task")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"task_id": taskID, "status": "stopping"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed upload: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing file field: "+err.Error())
		return
	}
	defer file.Close()

	if filepath.Ext(header.Filename) != ".xlsx" {
		s.writeError(w, http.StatusBadRequest, "only .xlsx uploads are accepted")
		return
	}

	if err := os.MkdirAll(s.cfg.Ingest.UploadDir, 0o755); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dest := filepath.Join(s.cfg.Ingest.UploadDir, filepath.Base(header.Filename))
	out, err := os.Create(dest)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer out.Close()

	size, err := io.Copy(out, file)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("inventory uploaded", "file", dest, "bytes", size)
	s.writeJSON(w, http.StatusCreated, map[string]any{"path": dest, "bytes": size})
}
