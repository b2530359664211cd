package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nguyentranbao-ct/team-messaging/internal/models"
)

type MentionRepository interface {
	CreateMany(ctx context.Context, messageID primitive.ObjectID, userIDs []string) error
}

type mentionRepo struct {
	baseRepo[models.Mention]
}

func NewMentionRepository(db *DB) MentionRepository {
	return &mentionRepo{
		baseRepo: newBaseRepo[models.Mention](db),
	}
}

// CreateMany records the mentions of a message. Mentions that already exist
// are skipped so that retries are harmless.
func (r *mentionRepo) CreateMany(ctx context.Context, messageID primitive.ObjectID, userIDs []string) error {
	now := time.Now()
	mentions := make([]*models.Mention, 0, len(userIDs))
	for _, userID := range userIDs {
		mentions = append(mentions, &models.Mention{
			ID:              primitive.NewObjectID(),
			MessageID:       messageID,
			MentionedUserID: userID,
			CreatedAt:       now,
		})
	}

	err := r.InsertMany(ctx, mentions)
	if errors.Is(err, models.ErrAlreadyExists) {
		return nil
	}
	return err
}
