package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dealermetrics/carmatch/internal/config"
	"github.com/dealermetrics/carmatch/internal/types"
)

// Store is the persistence boundary. All writes are idempotent upserts
// keyed on stable IDs so a re-run supersedes rather than duplicates.
type Store interface {
	// SaveVehicle upserts one source vehicle.
	SaveVehicle(ctx context.Context, v *types.SourceVehicle) error

	// SaveComparisons upserts a batch of scored candidates.
	SaveComparisons(ctx context.Context, listings []*types.CandidateListing) error

	// VehicleDomains returns the candidate domains already recorded for a
	// vehicle, used to skip re-scraping when ignore_old is set.
	VehicleDomains(ctx context.Context, vehicleID string) ([]string, error)

	// ListVehicles returns all persisted source vehicles.
	ListVehicles(ctx context.Context) ([]*types.SourceVehicle, error)

	// ListComparisons returns the candidates recorded for one vehicle.
	ListComparisons(ctx context.Context, vehicleID string) ([]*types.CandidateListing, error)

	// UpdateStatus writes the singleton run status row.
	UpdateStatus(ctx context.Context, status *types.RunStatus) error

	// GetStatus reads the singleton run status row. A missing row comes
	// back as a zero-valued status, not an error.
	GetStatus(ctx context.Context) (*types.RunStatus, error)

	// Close releases the backend connection.
	Close(ctx context.Context) error
}

// New opens the configured backend.
func New(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case "mongo":
		return NewMongoStore(ctx, cfg, logger)
	case "postgres":
		return NewPostgresStore(ctx, cfg, logger)
	case "file":
		return NewFileStore(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
