package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dealermetrics/carmatch/internal/config"
	"github.com/dealermetrics/carmatch/internal/types"
)

// FileStore keeps everything in memory and snapshots to a JSON file on
// every write. It exists for local runs and tests; it is not safe across
// processes.
type FileStore struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger

	state fileState
}

type fileState struct {
	Vehicles    map[string]*types.SourceVehicle    `json:"vehicles"`
	Comparisons map[string]*types.CandidateListing `json:"comparisons"`
	Status      *types.RunStatus                   `json:"status,omitempty"`
}

// NewFileStore opens (or creates) the JSON snapshot at OutputPath.
func NewFileStore(cfg config.StorageConfig, logger *slog.Logger) (*FileStore, error) {
	path := cfg.OutputPath
	if path == "" {
		path = "./carmatch.json"
	}
	s := &FileStore{
		path:   path,
		logger: logger.With("component", "file_store"),
		state: fileState{
			Vehicles:    map[string]*types.SourceVehicle{},
			Comparisons: map[string]*types.CandidateListing{},
		},
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First run, nothing to load.
	case err != nil:
		return nil, &types.StorageError{Backend: "file", Err: err}
	default:
		if err := json.Unmarshal(data, &s.state); err != nil {
			return nil, &types.StorageError{Backend: "file", Err: err}
		}
		if s.state.Vehicles == nil {
			s.state.Vehicles = map[string]*types.SourceVehicle{}
		}
		if s.state.Comparisons == nil {
			s.state.Comparisons = map[string]*types.CandidateListing{}
		}
	}
	return s, nil
}

// flush writes the snapshot atomically. Caller holds the lock.
func (s *FileStore) flush() error {
	data, err := json.MarshalIndent(&s.state, "", "  ")
	if err != nil {
		return &types.StorageError{Backend: "file", Err: err}
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return &types.StorageError{Backend: "file", Err: err}
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &types.StorageError{Backend: "file", Err: err}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return &types.StorageError{Backend: "file", Err: err}
	}
	return nil
}

func (s *FileStore) SaveVehicle(_ context.Context, v *types.SourceVehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Vehicles[v.ID] = v
	return s.flush()
}

func (s *FileStore) SaveComparisons(_ context.Context, listings []*types.CandidateListing) error {
	if len(listings) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range listings {
		s.state.Comparisons[l.ID] = l
	}
	return s.flush()
}

func (s *FileStore) VehicleDomains(_ context.Context, vehicleID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	for _, l := range s.state.Comparisons {
		if l.ParentVehicleID == vehicleID {
			seen[l.Domain] = struct{}{}
		}
	}
	domains := make([]string, 0, len(seen))
	for d := range seen {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains, nil
}

func (s *FileStore) ListVehicles(context.Context) ([]*types.SourceVehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vehicles := make([]*types.SourceVehicle, 0, len(s.state.Vehicles))
	for _, v := range s.state.Vehicles {
		vehicles = append(vehicles, v)
	}
	sort.Slice(vehicles, func(i, j int) bool { return vehicles[i].ID < vehicles[j].ID })
	return vehicles, nil
}

func (s *FileStore) ListComparisons(_ context.Context, vehicleID string) ([]*types.CandidateListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var listings []*types.CandidateListing
	for _, l := range s.state.Comparisons {
		if l.ParentVehicleID == vehicleID {
			listings = append(listings, l)
		}
	}
	sort.Slice(listings, func(i, j int) bool {
		return listings[i].MatchPercentage > listings[j].MatchPercentage
	})
	return listings, nil
}

func (s *FileStore) UpdateStatus(_ context.Context, status *types.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *status
	copied.ID = types.StatusRowID
	s.state.Status = &copied
	return s.flush()
}

func (s *FileStore) GetStatus(context.Context) (*types.RunStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status == nil {
		return &types.RunStatus{ID: types.StatusRowID}, nil
	}
	copied := *s.state.Status
	return &copied, nil
}

func (s *FileStore) Close(context.Context) error { return nil }
