package mongodb

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"go.peddle.app/authcore/domain"
	"go.peddle.app/authcore/errors"
)

// ProfileRepository implements domain.ProfileStore on MongoDB. A unique
// index on user_id is what makes concurrent provisioning from multiple
// devices converge on a single row: the loser of the insert race gets a
// duplicate-key error, which callers treat as success.
type ProfileRepository struct {
	collection *mongo.Collection
}

// NewProfileRepository creates the repository and ensures its indexes.
func NewProfileRepository(ctx context.Context, db *mongo.Database) (*ProfileRepository, error) {
	coll := db.Collection(ProfilesCollection)

	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := coll.Indexes().CreateOne(ctx, indexModel); err != nil {
		return nil, fmt.Errorf("failed to create user_id index on %s: %w", ProfilesCollection, err)
	}

	return &ProfileRepository{collection: coll}, nil
}

// CreateProfile implements domain.ProfileStore. Duplicates are detected
// via the server's duplicate-key error code, not by matching error text.
func (r *ProfileRepository) CreateProfile(ctx context.Context, userID, email string) (*domain.Profile, error) {
	profile := &domain.Profile{
		ID:        uuid.NewString(),
		UserID:    userID,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}

	if _, err := r.collection.InsertOne(ctx, profile); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, errors.ErrProfileExists
		}
		return nil, fmt.Errorf("failed to insert profile: %w", err)
	}

	log.Ctx(ctx).Info().Str("user_id", userID).Msg("profile created")
	return profile, nil
}

// GetProfile implements domain.ProfileStore.
func (r *ProfileRepository) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	var profile domain.Profile
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&profile)
	if stderrors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	return &profile, nil
}
