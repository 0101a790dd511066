package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ArowuTest/raffle-engine/internal/models"
	"github.com/ArowuTest/raffle-engine/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RaffleRepository implements the repositories.RaffleRepository interface
type RaffleRepository struct {
	collection *mongo.Collection
}

var _ repositories.RaffleRepository = (*RaffleRepository)(nil)

// NewRaffleRepository creates a new RaffleRepository
func NewRaffleRepository(db *mongo.Database) *RaffleRepository {
	return &RaffleRepository{
		collection: db.Collection("raffles"),
	}
}

// EnsureIndexes creates the unique raffle id index and the attention query index
func (r *RaffleRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "raffleId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "prizeDispersed", Value: 1}, {Key: "generatedTokensDispersed", Value: 1}}},
		{Keys: bson.D{{Key: "creator", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create raffle indexes: %w", err)
	}
	return nil
}

// Create inserts a new raffle
func (r *RaffleRepository) Create(ctx context.Context, raffle *models.Raffle) error {
	now := time.Now()
	raffle.CreatedAt = now
	raffle.UpdatedAt = now
	raffle.Version = 1
	res, err := r.collection.InsertOne(ctx, raffle)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("raffle %s: %w", raffle.RaffleID, repositories.ErrDuplicateRaffle)
		}
		return fmt.Errorf("failed to insert raffle: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		raffle.ID = id
	}
	return nil
}

// FindByID finds a raffle by its raffle id
func (r *RaffleRepository) FindByID(ctx context.Context, raffleID string) (*models.Raffle, error) {
	var raffle models.Raffle
	err := r.collection.FindOne(ctx, bson.M{"raffleId": raffleID}).Decode(&raffle)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("raffle %s: %w", raffleID, repositories.ErrRaffleNotFound)
		}
		return nil, fmt.Errorf("failed to find raffle: %w", err)
	}
	return &raffle, nil
}

// FindAll lists raffles matching the filter, most entries first
func (r *RaffleRepository) FindAll(ctx context.Context, filter models.RaffleFilter) ([]*models.Raffle, error) {
	query := bson.M{}
	if filter.Creator != "" {
		query["creator"] = filter.Creator
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	opts := options.Find().SetSort(bson.D{{Key: "totalEntries", Value: -1}, {Key: "createdAt", Value: 1}})
	return r.find(ctx, query, opts)
}

// FindNeedingAttention finds raffles the scheduler still has work for
func (r *RaffleRepository) FindNeedingAttention(ctx context.Context) ([]*models.Raffle, error) {
	query := bson.M{"$or": bson.A{
		bson.M{"status": models.RaffleStatusLive},
		bson.M{"prizeDispersed": false},
		bson.M{"generatedTokensDispersed": false},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "expiresAt", Value: 1}})
	return r.find(ctx, query, opts)
}

func (r *RaffleRepository) find(ctx context.Context, query bson.M, opts *options.FindOptions) ([]*models.Raffle, error) {
	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to execute find query: %w", err)
	}
	defer cursor.Close(ctx)

	var raffles []*models.Raffle
	if err := cursor.All(ctx, &raffles); err != nil {
		return nil, fmt.Errorf("failed to decode raffles: %w", err)
	}
	if raffles == nil {
		raffles = []*models.Raffle{}
	}
	return raffles, nil
}

// Update replaces the raffle if nobody else wrote it since it was read
func (r *RaffleRepository) Update(ctx context.Context, raffle *models.Raffle) error {
	expected := raffle.Version
	raffle.Version = expected + 1
	raffle.UpdatedAt = time.Now()

	res, err := r.collection.ReplaceOne(ctx, bson.M{"raffleId": raffle.RaffleID, "version": expected}, raffle)
	if err != nil {
		raffle.Version = expected
		return fmt.Errorf("failed to update raffle: %w", err)
	}
	if res.MatchedCount == 0 {
		raffle.Version = expected
		if _, findErr := r.FindByID(ctx, raffle.RaffleID); findErr != nil {
			return findErr
		}
		return fmt.Errorf("raffle %s at version %d: %w", raffle.RaffleID, expected, repositories.ErrVersionConflict)
	}
	return nil
}

// ClaimSettlementLease takes the lease when it is free or stale
func (r *RaffleRepository) ClaimSettlementLease(ctx context.Context, raffle *models.Raffle, holder string, now time.Time, maxHold time.Duration) (bool, error) {
	filter := bson.M{
		"raffleId": raffle.RaffleID,
		"$or": bson.A{
			bson.M{"settlementLease.active": false},
			bson.M{"settlementLease.acquiredAt": bson.M{"$lte": now.Add(-maxHold)}},
		},
	}
	update := bson.M{
		"$set": bson.M{
			"settlementLease": models.Lease{Active: true, Holder: holder, AcquiredAt: now},
			"updatedAt":       now,
		},
		"$inc": bson.M{"version": 1},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var persisted models.Raffle
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&persisted)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, fmt.Errorf("failed to claim settlement lease: %w", err)
	}
	*raffle = persisted
	return true, nil
}

// ReleaseSettlementLease clears the lease if holder still owns it
func (r *RaffleRepository) ReleaseSettlementLease(ctx context.Context, raffle *models.Raffle, holder string) (bool, error) {
	filter := bson.M{
		"raffleId":               raffle.RaffleID,
		"settlementLease.active": true,
		"settlementLease.holder": holder,
	}
	err := r.clearLease(ctx, filter, raffle)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to release settlement lease: %w", err)
	}
	return true, nil
}

// ForceReleaseSettlementLease clears the lease whoever holds it
func (r *RaffleRepository) ForceReleaseSettlementLease(ctx context.Context, raffle *models.Raffle) error {
	err := r.clearLease(ctx, bson.M{"raffleId": raffle.RaffleID}, raffle)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("raffle %s: %w", raffle.RaffleID, repositories.ErrRaffleNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to release settlement lease: %w", err)
	}
	return nil
}

func (r *RaffleRepository) clearLease(ctx context.Context, filter bson.M, raffle *models.Raffle) error {
	update := bson.M{
		"$set": bson.M{
			"settlementLease": models.Lease{},
			"updatedAt":       time.Now(),
		},
		"$inc": bson.M{"version": 1},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var persisted models.Raffle
	if err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&persisted); err != nil {
		return err
	}
	*raffle = persisted
	return nil
}
