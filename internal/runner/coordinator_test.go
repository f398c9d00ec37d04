package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dealermetrics/carmatch/internal/config"
	"github.com/dealermetrics/carmatch/internal/fetcher"
	"github.com/dealermetrics/carmatch/internal/pipeline"
	"github.com/dealermetrics/carmatch/internal/sites"
	"github.com/dealermetrics/carmatch/internal/storage"
	"github.com/dealermetrics/carmatch/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

// fakeSite yields a fixed candidate batch per vehicle, or a plan failure
// for vehicles listed in failPlan.
type fakeSite struct {
	name         string
	domain       string
	perQuery     int
	failPlan     map[string]bool
	gotTolerance int
}

func (f *fakeSite) Name() string   { return f.name }
func (f *fakeSite) Domain() string { return f.domain }

func (f *fakeSite) PlanFilter(_ context.Context, v *types.SourceVehicle) (*types.SiteFilter, error) {
	if f.failPlan[v.ID] {
		return nil, &types.PlanError{Site: f.name, Err: errors.New("vocabulary fetch failed")}
	}
	return &types.SiteFilter{Make: v.Make, Model: v.Model}, nil
}

func (f *fakeSite) BuildQueries(_ *types.SourceVehicle, _ *types.SiteFilter, tolerance int) []types.Query {
	f.gotTolerance = tolerance
	return []types.Query{{Label: "base", Basic: true}}
}

func (f *fakeSite) Fetch(context.Context, types.Query) (*fetcher.Response, error) {
	return &fetcher.Response{Body: []byte("ok")}, nil
}

func (f *fakeSite) Extract(_ *fetcher.Response, parentID, timestamp string) ([]*types.CandidateListing, error) {
	out := make([]*types.CandidateListing, f.perQuery)
	for i := range out {
		link := "https://" + f.name + ".test/" + parentID + "/" + strings.Repeat("x", i+1)
		out[i] = &types.CandidateListing{
			ID:              types.ListingID(link, parentID),
			Name:            "candidate",
			Link:            link,
			Domain:          f.domain,
			ParentVehicleID: parentID,
			UpdatedAt:       timestamp,
		}
	}
	return out, nil
}

type stubScorer struct{}

func (stubScorer) Score(context.Context, *types.SourceVehicle, *types.CandidateListing) (float64, string, error) {
	return 75, "stub", nil
}

type fixture struct {
	coord *Coordinator
	store storage.Store
	site  *fakeSite
	log   string
}

func newFixture(t *testing.T, site *fakeSite) *fixture {
	t.Helper()

	dir := t.TempDir()
	store, err := storage.NewFileStore(config.StorageConfig{
		OutputPath: filepath.Join(dir, "store.json"),
	}, testLogger)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	registry := &sites.Registry{}
	registry.Register(site)

	cfg := config.DefaultConfig()
	cfg.Fetcher.MaxAttempts = 1
	cfg.Fetcher.RetryBaseDelay = time.Millisecond
	cfg.Run.MissThreshold = 2

	pipe := pipeline.New(cfg, registry, stubScorer{}, testLogger)

	logPath := filepath.Join(dir, "error_log.txt")
	errlog, err := OpenErrorLog(logPath, testLogger)
	if err != nil {
		t.Fatalf("OpenErrorLog: %v", err)
	}
	t.Cleanup(func() { errlog.Close() })

	return &fixture{
		coord: New(store, pipe, registry, errlog, 2, testLogger),
		store: store,
		site:  site,
		log:   logPath,
	}
}

func testVehicles(ids ...string) []*types.SourceVehicle {
	out := make([]*types.SourceVehicle, len(ids))
	for i, id := range ids {
		out[i] = &types.SourceVehicle{ID: id, Make: "Fiat", Model: "500"}
	}
	return out
}

func TestRunPersistsVehiclesAndComparisons(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, &fakeSite{name: "fake", domain: "https://fake.test/", perQuery: 3})

	err := fx.coord.Run(ctx, testVehicles("veh-1", "veh-2"), types.RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	vehicles, err := fx.store.ListVehicles(ctx)
	if err != nil {
		t.Fatalf("ListVehicles: %v", err)
	}
	if len(vehicles) != 2 {
		t.Errorf("vehicles = %d, want 2", len(vehicles))
	}

	comps, err := fx.store.ListComparisons(ctx, "veh-1")
	if err != nil {
		t.Fatalf("ListComparisons: %v", err)
	}
	if len(comps) != 3 {
		t.Fatalf("comparisons = %d, want 3", len(comps))
	}
	if comps[0].MatchPercentage != 75 {
		t.Errorf("MatchPercentage = %v, want scored", comps[0].MatchPercentage)
	}

	status, err := fx.store.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.Status != types.RunSuccess {
		t.Errorf("status = %q, want success", status.Status)
	}
	if status.TotalCompleted != 2 || status.TotalRunning != 0 {
		t.Errorf("counters = %d/%d, want 2/0", status.TotalCompleted, status.TotalRunning)
	}
	if status.StartedAt == nil || status.StoppedAt == nil {
		t.Error("timestamps not recorded")
	}
}

func TestRunOptionsToleranceReachesQueryBuilding(t *testing.T) {
	ctx := context.Background()
	site := &fakeSite{name: "fake", domain: "https://fake.test/", perQuery: 3}
	fx := newFixture(t, site)

	err := fx.coord.Run(ctx, testVehicles("veh-1"), types.RunOptions{MileageTolerance: 1234})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if site.gotTolerance != 1234 {
		t.Errorf("BuildQueries tolerance = %d, want the run option 1234", site.gotTolerance)
	}

	if err := fx.coord.Run(ctx, testVehicles("veh-2"), types.RunOptions{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if site.gotTolerance != config.DefaultConfig().Run.MileageTolerance {
		t.Errorf("BuildQueries tolerance = %d, want the config default", site.gotTolerance)
	}
}

func TestRunSiteFailureIsJournaledNotFatal(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, &fakeSite{
		name: "fake", domain: "https://fake.test/", perQuery: 3,
		failPlan: map[string]bool{"veh-2": true},
	})

	err := fx.coord.Run(ctx, testVehicles("veh-1", "veh-2", "veh-3"), types.RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	status, _ := fx.store.GetStatus(ctx)
	if status.Status != types.RunSuccess || status.TotalCompleted != 3 {
		t.Errorf("status = %+v, want all vehicles completed", status)
	}

	comps, _ := fx.store.ListComparisons(ctx, "veh-2")
	if len(comps) != 0 {
		t.Errorf("comparisons for failed site = %d, want 0", len(comps))
	}

	data, err := os.ReadFile(fx.log)
	if err != nil {
		t.Fatalf("read error log: %v", err)
	}
	if !strings.Contains(string(data), "vehicle=veh-2") {
		t.Errorf("error log missing entry:\n%s", data)
	}
	if !strings.Contains(string(data), "PlanError") {
		t.Errorf("error log missing failure type:\n%s", data)
	}
}

func TestRunIgnoreOldSkipsRecordedDomains(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, &fakeSite{name: "fake", domain: "https://fake.test/", perQuery: 3})

	// First pass records candidates for veh-1.
	if err := fx.coord.Run(ctx, testVehicles("veh-1"), types.RunOptions{}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	first, _ := fx.store.ListComparisons(ctx, "veh-1")

	// Second pass with ignore_old must skip the already-recorded domain.
	fx.site.perQuery = 5
	if err := fx.coord.Run(ctx, testVehicles("veh-1"), types.RunOptions{IgnoreOld: true}); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	second, _ := fx.store.ListComparisons(ctx, "veh-1")
	if len(second) != len(first) {
		t.Errorf("comparisons = %d, want unchanged %d", len(second), len(first))
	}
}

func TestRunStoppedContext(t *testing.T) {
	fx := newFixture(t, &fakeSite{name: "fake", domain: "https://fake.test/", perQuery: 3})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fx.coord.Run(ctx, testVehicles("veh-1"), types.RunOptions{})
	if !errors.Is(err, types.ErrRunStopped) {
		t.Fatalf("err = %v, want ErrRunStopped", err)
	}

	status, _ := fx.store.GetStatus(context.Background())
	if status.Status != types.RunStopped {
		t.Errorf("status = %q, want stopped", status.Status)
	}
}

func TestRunNoVehicles(t *testing.T) {
	fx := newFixture(t, &fakeSite{name: "fake", domain: "https://fake.test/"})
	if err := fx.coord.Run(context.Background(), nil, types.RunOptions{}); !errors.Is(err, types.ErrNoVehicles) {
		t.Fatalf("err = %v, want ErrNoVehicles", err)
	}
}
