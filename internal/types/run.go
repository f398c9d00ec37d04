package types

import "time"

// RunState is the lifecycle state of a scraping run.
type RunState string

const (
	RunStarting RunState = "starting"
	RunRunning  RunState = "running"
	RunSuccess  RunState = "success"
	RunFailed   RunState = "failed"
	RunStopped  RunState = "stopped"
)

// RunStatus is the singleton-per-run status record. It is written only by
// the run coordinator (single-writer discipline) and read by the status
// endpoint.
type RunStatus struct {
	ID             int        `json:"id" bson:"id"`
	Status         RunState   `json:"status" bson:"status"`
	StartedAt      *time.Time `json:"started_at,omitempty" bson:"started_at,omitempty"`
	StoppedAt      *time.Time `json:"stopped_at,omitempty" bson:"stopped_at,omitempty"`
	TotalCompleted int        `json:"total_completed" bson:"total_completed"`
	TotalRunning   int        `json:"total_running" bson:"total_running"`
}

// StatusRowID keys the single status row.
const StatusRowID = 1

// RunOptions parameterize one scraping run.
type RunOptions struct {
	// MileageTolerance widens the mileage escalation window (km, ±).
	MileageTolerance int `json:"mileage_plus_minus"`

	// IgnoreOld skips sites already recorded for a vehicle.
	IgnoreOld bool `json:"ignore_old"`

	// Sites restricts the run to a subset of registered integrations.
	Sites []string `json:"sites_to_scrape"`

	// SampleMode ingests a bounded random sample instead of the full sheet.
	SampleMode bool `json:"sample_mode"`

	// VehicleID, when set, restricts the run to a single source vehicle.
	VehicleID string `json:"vehicle_id,omitempty"`
}

// DefaultRunOptions returns the options used when a trigger omits fields.
func DefaultRunOptions() RunOptions {
	return RunOptions{
		MileageTolerance: 10000,
		Sites:            []string{"leboncoin", "lacentrale"},
		SampleMode:       true,
	}
}
