package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nguyentranbao-ct/team-messaging/internal/models"
)

type ReactionRepository interface {
	// Add is idempotent on (message, user, emoji).
	Add(ctx context.Context, messageID primitive.ObjectID, userID, emoji string) (*models.Reaction, error)
	// Remove returns the removed reaction, nil when there was none.
	Remove(ctx context.Context, messageID primitive.ObjectID, userID, emoji string) (*models.Reaction, error)
}

type reactionRepo struct {
	baseRepo[models.Reaction]
}

func NewReactionRepository(db *DB) ReactionRepository {
	return &reactionRepo{
		baseRepo: newBaseRepo[models.Reaction](db),
	}
}

func (r *reactionRepo) Add(ctx context.Context, messageID primitive.ObjectID, userID, emoji string) (*models.Reaction, error) {
	filter := bson.M{
		"message_id": messageID,
		"user_id":    userID,
		"emoji":      emoji,
	}
	reaction, err := r.UpsertOne(ctx, filter, UpsertOpts{
		SetOnInsert: bson.M{"created_at": time.Now()},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add reaction: %w", err)
	}
	return reaction, nil
}

func (r *reactionRepo) Remove(ctx context.Context, messageID primitive.ObjectID, userID, emoji string) (*models.Reaction, error) {
	reaction, err := r.FindOneAndDelete(ctx, bson.M{
		"message_id": messageID,
		"user_id":    userID,
		"emoji":      emoji,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to remove reaction: %w", err)
	}
	return reaction, nil
}
