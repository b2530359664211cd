package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nguyentranbao-ct/team-messaging/internal/models"
)

type AttachmentRepository interface {
	Create(ctx context.Context, attachment *models.Attachment) error
}

type attachmentRepo struct {
	baseRepo[models.Attachment]
}

func NewAttachmentRepository(db *DB) AttachmentRepository {
	return &attachmentRepo{
		baseRepo: newBaseRepo[models.Attachment](db),
	}
}

func (r *attachmentRepo) Create(ctx context.Context, attachment *models.Attachment) error {
	if attachment.ID.IsZero() {
		attachment.ID = primitive.NewObjectID()
	}
	attachment.CreatedAt = time.Now()
	if _, err := r.Insert(ctx, attachment); err != nil {
		return fmt.Errorf("failed to create attachment: %w", err)
	}
	return nil
}
