package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dealermetrics/carmatch/internal/config"
	"github.com/dealermetrics/carmatch/internal/storage"
	"github.com/dealermetrics/carmatch/internal/tasks"
	"github.com/dealermetrics/carmatch/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

func newTestServer(t *testing.T) (*Server, storage.Store) {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.NewFileStore(config.StorageConfig{
		OutputPath: filepath.Join(dir, "store.json"),
	}, testLogger)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Ingest.UploadDir = filepath.Join(dir, "uploads")

	broker := tasks.NewLocalBroker(func(ctx context.Context, _ string, _ types.RunOptions) {
		<-ctx.Done()
	}, testLogger)

	return NewServer(cfg, store, broker, nil, testLogger), store
}

func doJSON(t *testing.T, h http.Handler, method, path string, body []byte) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode %s %s response: %v\n%s", method, path, err, rec.Body.String())
		}
	}
	return rec, decoded
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestDashboardPage(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "carmatch") {
		t.Error("page does not render the dashboard")
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	if err := store.UpdateStatus(context.Background(), &types.RunStatus{
		Status: types.RunRunning, TotalCompleted: 4, TotalRunning: 6,
	}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	run := body["run"].(map[string]any)
	if run["status"] != "running" || run["total_completed"] != 4.0 {
		t.Errorf("run = %v", run)
	}
}

func TestCarsPricePositioning(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	vehicle := &types.SourceVehicle{ID: "veh-1", Make: "Peugeot", Model: "3008", PriceWithTax: 27000}
	if err := store.SaveVehicle(ctx, vehicle); err != nil {
		t.Fatalf("SaveVehicle: %v", err)
	}
	comps := []*types.CandidateListing{
		// Two strong comparables average 28000: the vehicle undercuts the
		// market by 1000, past the band, so the card is green.
		{ID: "a_veh-1", ParentVehicleID: "veh-1", Price: 27500, MatchPercentage: 96},
		{ID: "b_veh-1", ParentVehicleID: "veh-1", Price: 28500, MatchPercentage: 98},
		// Weak match and zero price are excluded from the average.
		{ID: "c_veh-1", ParentVehicleID: "veh-1", Price: 99999, MatchPercentage: 50},
		{ID: "d_veh-1", ParentVehicleID: "veh-1", Price: 0, MatchPercentage: 97},
	}
	if err := store.SaveComparisons(ctx, comps); err != nil {
		t.Fatalf("SaveComparisons: %v", err)
	}

	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/api/cars", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	cars := body["cars"].([]any)
	if len(cars) != 1 {
		t.Fatalf("cars = %d, want 1", len(cars))
	}
	car := cars[0].(map[string]any)
	if car["comparable_count"] != 2.0 {
		t.Errorf("comparable_count = %v, want 2", car["comparable_count"])
	}
	if car["average_price"] != 28000.0 {
		t.Errorf("average_price = %v, want 28000", car["average_price"])
	}
	if car["card_color"] != "green" {
		t.Errorf("card_color = %v, want green", car["card_color"])
	}
}

func TestPositionVehicleBands(t *testing.T) {
	comps := []*types.CandidateListing{
		{Price: 28000, MatchPercentage: 96},
	}
	tests := []struct {
		name  string
		price float64
		want  string
	}{
		{"well under market", 27000, "green"},
		{"inside band low", 27600, "yellow"},
		{"at market", 28000, "yellow"},
		{"inside band high", 28400, "yellow"},
		{"well over market", 29000, "red"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &types.SourceVehicle{ID: "v", PriceWithTax: tt.price}
			if got := positionVehicle(v, comps); got.CardColor != tt.want {
				t.Errorf("CardColor = %q, want %q", got.CardColor, tt.want)
			}
		})
	}

	// No strong comparables leaves the card gray.
	v := &types.SourceVehicle{ID: "v", PriceWithTax: 27000}
	if got := positionVehicle(v, nil); got.CardColor != "gray" {
		t.Errorf("CardColor = %q, want gray", got.CardColor)
	}
}

func TestStartAndStopTask(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/api/tasks", []byte(`{"sample_mode":true}`))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start status = %d: %v", rec.Code, body)
	}
	taskID := body["task_id"].(string)
	if taskID == "" {
		t.Fatal("empty task id")
	}

	// Second start conflicts while the first is in flight.
	rec, _ = doJSON(t, srv.Handler(), http.MethodPost, "/api/tasks", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("second start status = %d, want conflict", rec.Code)
	}

	rec, _ = doJSON(t, srv.Handler(), http.MethodPost, "/api/tasks/"+taskID+"/stop", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("stop status = %d", rec.Code)
	}

	rec, _ = doJSON(t, srv.Handler(), http.MethodPost, "/api/tasks/nosuch/stop", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("stop unknown status = %d", rec.Code)
	}
}

func TestUpload(t *testing.T) {
	srv, _ := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "inventory.xlsx")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write([]byte("not a real sheet, transport only"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	// Wrong extension is rejected.
	buf.Reset()
	mw = multipart.NewWriter(&buf)
	fw, _ = mw.CreateFormFile("file", "notes.txt")
	fw.Write([]byte("nope"))
	mw.Close()

	req = httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("txt upload status = %d, want rejection", rec.Code)
	}
}
