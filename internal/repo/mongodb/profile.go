package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nguyentranbao-ct/team-messaging/internal/models"
)

type ProfileRepository interface {
	GetByID(ctx context.Context, userID string) (*models.Profile, error)
	ListActive(ctx context.Context) ([]*models.Profile, error)
	Upsert(ctx context.Context, userID string, req models.UpdateProfileRequest) (*models.Profile, error)
}

type profileRepo struct {
	baseRepo[models.Profile]
}

func NewProfileRepository(db *DB) ProfileRepository {
	return &profileRepo{
		baseRepo: newBaseRepo[models.Profile](db),
	}
}

func (r *profileRepo) GetByID(ctx context.Context, userID string) (*models.Profile, error) {
	return r.FindOne(ctx, bson.M{"_id": userID})
}

func (r *profileRepo) ListActive(ctx context.Context) ([]*models.Profile, error) {
	opts := options.Find().SetSort(bson.D{{Key: "full_name", Value: 1}})
	profiles, err := r.Find(ctx, bson.M{"is_active": true}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, nil
}

func (r *profileRepo) Upsert(ctx context.Context, userID string, req models.UpdateProfileRequest) (*models.Profile, error) {
	now := time.Now()
	set := bson.M{
		"full_name":  req.FullName,
		"is_active":  true,
		"updated_at": now,
	}
	if req.AvatarURL != nil {
		set["avatar_url"] = *req.AvatarURL
	}
	if req.Email != "" {
		set["email"] = req.Email
	}

	profile, err := r.UpsertOne(ctx, bson.M{"_id": userID}, UpsertOpts{
		Set:         set,
		SetOnInsert: bson.M{"created_at": now},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert profile: %w", err)
	}
	return profile, nil
}
