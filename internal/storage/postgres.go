package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealermetrics/carmatch/internal/config"
	"github.com/dealermetrics/carmatch/internal/types"
)

// PostgresStore persists vehicles, comparisons and run status in Postgres.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS vehicles (
	id                TEXT PRIMARY KEY,
	make              TEXT NOT NULL,
	model             TEXT NOT NULL,
	version           TEXT NOT NULL DEFAULT '',
	color             TEXT NOT NULL DEFAULT '',
	mileage           DOUBLE PRECISION NOT NULL DEFAULT 0,
	fuel_type         INTEGER NOT NULL DEFAULT 0,
	boite_de_vitesse  INTEGER NOT NULL DEFAULT 0,
	price_with_tax    DOUBLE PRECISION NOT NULL DEFAULT 0,
	price_without_tax DOUBLE PRECISION NOT NULL DEFAULT 0,
	year_from         INTEGER NOT NULL DEFAULT 0,
	year_to           INTEGER NOT NULL DEFAULT 0,
	four_wheel_drive  BOOLEAN NOT NULL DEFAULT FALSE,
	equipment         JSONB NOT NULL DEFAULT '{}',
	listing_url       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS comparisons (
	id                         TEXT PRIMARY KEY,
	name                       TEXT NOT NULL DEFAULT '',
	price                      DOUBLE PRECISION NOT NULL DEFAULT 0,
	deal_type                  TEXT NOT NULL DEFAULT '',
	link                       TEXT NOT NULL DEFAULT '',
	image                      TEXT NOT NULL DEFAULT '',
	mileage                    DOUBLE PRECISION NOT NULL DEFAULT 0,
	car_metadata               TEXT NOT NULL DEFAULT '',
	domain                     TEXT NOT NULL DEFAULT '',
	fuel_type                  TEXT NOT NULL DEFAULT '',
	boite_de_vitesse           TEXT NOT NULL DEFAULT '',
	parent_car_id              TEXT NOT NULL,
	updated_at                 TEXT NOT NULL DEFAULT '',
	matching_percentage        DOUBLE PRECISION NOT NULL DEFAULT 0,
	matching_percentage_reason TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS comparisons_parent_domain_idx
	ON comparisons (parent_car_id, domain);

CREATE TABLE IF NOT EXISTS status (
	id              INTEGER PRIMARY KEY,
	status          TEXT NOT NULL DEFAULT '',
	started_at      TIMESTAMPTZ,
	stopped_at      TIMESTAMPTZ,
	total_completed INTEGER NOT NULL DEFAULT 0,
	total_running   INTEGER NOT NULL DEFAULT 0
);
`

// NewPostgresStore connects to Postgres and ensures the schema.
func NewPostgresStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, &types.StorageError{Backend: "postgres", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &types.StorageError{Backend: "postgres", Err: err}
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, &types.StorageError{Backend: "postgres", Err: err}
	}
	return &PostgresStore{pool: pool, logger: logger.With("component", "postgres_store")}, nil
}

func (s *PostgresStore) SaveVehicle(ctx context.Context, v *types.SourceVehicle) error {
	equipment, err := json.Marshal(v.Equipment)
	if err != nil {
		return &types.StorageError{Backend: "postgres", Table: "vehicles", Err: err}
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO vehicles (
			id, make, model, version, color, mileage, fuel_type,
			boite_de_vitesse, price_with_tax, price_without_tax,
			year_from, year_to, four_wheel_drive, equipment, listing_url
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (id) DO UPDATE SET
			make = EXCLUDED.make, model = EXCLUDED.model,
			version = EXCLUDED.version, color = EXCLUDED.color,
			mileage = EXCLUDED.mileage, fuel_type = EXCLUDED.fuel_type,
			boite_de_vitesse = EXCLUDED.boite_de_vitesse,
			price_with_tax = EXCLUDED.price_with_tax,
			price_without_tax = EXCLUDED.price_without_tax,
			year_from = EXCLUDED.year_from, year_to = EXCLUDED.year_to,
			four_wheel_drive = EXCLUDED.four_wheel_drive,
			equipment = EXCLUDED.equipment, listing_url = EXCLUDED.listing_url`,
		v.ID, v.Make, v.Model, v.Version, v.Color, v.Mileage, v.FuelType,
		v.Gearbox, v.PriceWithTax, v.PriceWithoutTax,
		v.YearFrom, v.YearTo, v.FourWheelDrive, equipment, v.ListingURL)
	if err != nil {
		return &types.StorageError{Backend: "postgres", Table: "vehicles", Err: err}
	}
	return nil
}

func (s *PostgresStore) SaveComparisons(ctx context.Context, listings []*types.CandidateListing) error {
	if len(listings) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, l := range listings {
		batch.Queue(`
			INSERT INTO comparisons (
				id, name, price, deal_type, link, image, mileage,
				car_metadata, domain, fuel_type, boite_de_vitesse,
				parent_car_id, updated_at, matching_percentage,
				matching_percentage_reason
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name, price = EXCLUDED.price,
				deal_type = EXCLUDED.deal_type, link = EXCLUDED.link,
				image = EXCLUDED.image, mileage = EXCLUDED.mileage,
				car_metadata = EXCLUDED.car_metadata,
				domain = EXCLUDED.domain, fuel_type = EXCLUDED.fuel_type,
				boite_de_vitesse = EXCLUDED.boite_de_vitesse,
				parent_car_id = EXCLUDED.parent_car_id,
				updated_at = EXCLUDED.updated_at,
				matching_percentage = EXCLUDED.matching_percentage,
				matching_percentage_reason = EXCLUDED.matching_percentage_reason`,
			l.ID, l.Name, l.Price, l.DealType, l.Link, l.Image, l.Mileage,
			l.Metadata, l.Domain, l.FuelType, l.Gearbox,
			l.ParentVehicleID, l.UpdatedAt, l.MatchPercentage, l.MatchReason)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range listings {
		if _, err := results.Exec(); err != nil {
			return &types.StorageError{Backend: "postgres", Table: "comparisons", Err: err}
		}
	}
	return nil
}

func (s *PostgresStore) VehicleDomains(ctx context.Context, vehicleID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT domain FROM comparisons WHERE parent_car_id = $1`, vehicleID)
	if err != nil {
		return nil, &types.StorageError{Backend: "postgres", Table: "comparisons", Err: err}
	}
	defer rows.Close()

	var domains []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, &types.StorageError{Backend: "postgres", Table: "comparisons", Err: err}
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

func (s *PostgresStore) ListVehicles(ctx context.Context) ([]*types.SourceVehicle, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, make, model, version, color, mileage, fuel_type,
			boite_de_vitesse, price_with_tax, price_without_tax,
			year_from, year_to, four_wheel_drive, equipment, listing_url
		FROM vehicles ORDER BY id`)
	if err != nil {
		return nil, &types.StorageError{Backend: "postgres", Table: "vehicles", Err: err}
	}
	defer rows.Close()

	var vehicles []*types.SourceVehicle
	for rows.Next() {
		var v types.SourceVehicle
		var equipment []byte
		if err := rows.Scan(&v.ID, &v.Make, &v.Model, &v.Version, &v.Color,
			&v.Mileage, &v.FuelType, &v.Gearbox, &v.PriceWithTax,
			&v.PriceWithoutTax, &v.YearFrom, &v.YearTo, &v.FourWheelDrive,
			&equipment, &v.ListingURL); err != nil {
			return nil, &types.StorageError{Backend: "postgres", Table: "vehicles", Err: err}
		}
		if len(equipment) > 0 {
			if err := json.Unmarshal(equipment, &v.Equipment); err != nil {
				s.logger.Warn("bad equipment blob", "vehicle_id", v.ID, "error", err)
			}
		}
		vehicles = append(vehicles, &v)
	}
	return vehicles, rows.Err()
}

func (s *PostgresStore) ListComparisons(ctx context.Context, vehicleID string) ([]*types.CandidateListing, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, price, deal_type, link, image, mileage,
			car_metadata, domain, fuel_type, boite_de_vitesse,
			parent_car_id, updated_at, matching_percentage,
			matching_percentage_reason
		FROM comparisons WHERE parent_car_id = $1
		ORDER BY matching_percentage DESC`, vehicleID)
	if err != nil {
		return nil, &types.StorageError{Backend: "postgres", Table: "comparisons", Err: err}
	}
	defer rows.Close()

	var listings []*types.CandidateListing
	for rows.Next() {
		var l types.CandidateListing
		if err := rows.Scan(&l.ID, &l.Name, &l.Price, &l.DealType, &l.Link,
			&l.Image, &l.Mileage, &l.Metadata, &l.Domain, &l.FuelType,
			&l.Gearbox, &l.ParentVehicleID, &l.UpdatedAt,
			&l.MatchPercentage, &l.MatchReason); err != nil {
			return nil, &types.StorageError{Backend: "postgres", Table: "comparisons", Err: err}
		}
		listings = append(listings, &l)
	}
	return listings, rows.Err()
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, status *types.RunStatus) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO status (id, status, started_at, stopped_at, total_completed, total_running)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			started_at = EXCLUDED.started_at,
			stopped_at = EXCLUDED.stopped_at,
			total_completed = EXCLUDED.total_completed,
			total_running = EXCLUDED.total_running`,
		types.StatusRowID, string(status.Status), status.StartedAt, status.StoppedAt,
		status.TotalCompleted, status.TotalRunning)
	if err != nil {
		return &types.StorageError{Backend: "postgres", Table: "status", Err: err}
	}
	return nil
}

func (s *PostgresStore) GetStatus(ctx context.Context) (*types.RunStatus, error) {
	var (
		status           types.RunStatus
		state            string
		started, stopped *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT status, started_at, stopped_at, total_completed, total_running
		FROM status WHERE id = $1`, types.StatusRowID).
		Scan(&state, &started, &stopped, &status.TotalCompleted, &status.TotalRunning)
	if errors.Is(err, pgx.ErrNoRows) {
		return &types.RunStatus{ID: types.StatusRowID}, nil
	}
	if err != nil {
		return nil, &types.StorageError{Backend: "postgres", Table: "status", Err: err}
	}
	status.ID = types.StatusRowID
	status.Status = types.RunState(state)
	status.StartedAt = started
	status.StoppedAt = stopped
	return &status, nil
}

func (s *PostgresStore) Close(context.Context) error {
	s.pool.Close()
	return nil
}
