package storage

import (
	"context"
	"errors"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dealermetrics/carmatch/internal/config"
	"github.com/dealermetrics/carmatch/internal/types"
)

const (
	vehiclesCollection    = "vehicles"
	comparisonsCollection = "comparisons"
	statusCollection      = "status"
)

// MongoStore persists vehicles, comparisons and run status in MongoDB.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// NewMongoStore connects to MongoDB and prepares the collections.
func NewMongoStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, &types.StorageError{Backend: "mongo", Err: err}
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, &types.StorageError{Backend: "mongo", Err: err}
	}

	s := &MongoStore{
		client: client,
		db:     client.Database(cfg.Database),
		logger: logger.With("component", "mongo_store"),
	}

	// Comparisons are looked up per vehicle; the compound index also
	// backs the ignore_old domain query.
	_, err = s.db.Collection(comparisonsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "parent_car_id", Value: 1}, {Key: "domain", Value: 1}},
	})
	if err != nil {
		logger.Warn("failed to ensure comparisons index", "error", err)
	}

	return s, nil
}

func (s *MongoStore) SaveVehicle(ctx context.Context, v *types.SourceVehicle) error {
	_, err := s.db.Collection(vehiclesCollection).ReplaceOne(ctx,
		bson.M{"id": v.ID}, v, options.Replace().SetUpsert(true))
	if err != nil {
		return &types.StorageError{Backend: "mongo", Table: vehiclesCollection, Err: err}
	}
	return nil
}

func (s *MongoStore) SaveComparisons(ctx context.Context, listings []*types.CandidateListing) error {
	if len(listings) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(listings))
	for _, l := range listings {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"id": l.ID}).
			SetReplacement(l).
			SetUpsert(true))
	}
	_, err := s.db.Collection(comparisonsCollection).BulkWrite(ctx, models,
		options.BulkWrite().SetOrdered(false))
	if err != nil {
		return &types.StorageError{Backend: "mongo", Table: comparisonsCollection, Err: err}
	}
	return nil
}

func (s *MongoStore) VehicleDomains(ctx context.Context, vehicleID string) ([]string, error) {
	raw, err := s.db.Collection(comparisonsCollection).Distinct(ctx, "domain",
		bson.M{"parent_car_id": vehicleID})
	if err != nil {
		return nil, &types.StorageError{Backend: "mongo", Table: comparisonsCollection, Err: err}
	}
	domains := make([]string, 0, len(raw))
	for _, v := range raw {
		if d, ok := v.(string); ok {
			domains = append(domains, d)
		}
	}
	return domains, nil
}

func (s *MongoStore) ListVehicles(ctx context.Context) ([]*types.SourceVehicle, error) {
	cur, err := s.db.Collection(vehiclesCollection).Find(ctx, bson.M{})
	if err != nil {
		return nil, &types.StorageError{Backend: "mongo", Table: vehiclesCollection, Err: err}
	}
	defer cur.Close(ctx)

	var vehicles []*types.SourceVehicle
	if err := cur.All(ctx, &vehicles); err != nil {
		return nil, &types.StorageError{Backend: "mongo", Table: vehiclesCollection, Err: err}
	}
	return vehicles, nil
}

func (s *MongoStore) ListComparisons(ctx context.Context, vehicleID string) ([]*types.CandidateListing, error) {
	cur, err := s.db.Collection(comparisonsCollection).Find(ctx, bson.M{"parent_car_id": vehicleID})
	if err != nil {
		return nil, &types.StorageError{Backend: "mongo", Table: comparisonsCollection, Err: err}
	}
	defer cur.Close(ctx)

	var listings []*types.CandidateListing
	if err := cur.All(ctx, &listings); err != nil {
		return nil, &types.StorageError{Backend: "mongo", Table: comparisonsCollection, Err: err}
	}
	return listings, nil
}

func (s *MongoStore) UpdateStatus(ctx context.Context, status *types.RunStatus) error {
	status.ID = types.StatusRowID
	_, err := s.db.Collection(statusCollection).ReplaceOne(ctx,
		bson.M{"id": types.StatusRowID}, status, options.Replace().SetUpsert(true))
	if err != nil {
		return &types.StorageError{Backend: "mongo", Table: statusCollection, Err: err}
	}
	return nil
}

func (s *MongoStore) GetStatus(ctx context.Context) (*types.RunStatus, error) {
	var status types.RunStatus
	err := s.db.Collection(statusCollection).FindOne(ctx, bson.M{"id": types.StatusRowID}).Decode(&status)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &types.RunStatus{ID: types.StatusRowID}, nil
	}
	if err != nil {
		return nil, &types.StorageError{Backend: "mongo", Table: statusCollection, Err: err}
	}
	return &status, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
