package mongodb

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nguyentranbao-ct/team-messaging/internal/models"
)

type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Message, error)
	// GetWithRelations loads one message with its sender, reactions,
	// attachments and mentions.
	GetWithRelations(ctx context.Context, id primitive.ObjectID) (*models.Message, error)
	// ListByChannel pages newest first by offset and returns the page in
	// chronological order. Deleted messages are excluded.
	ListByChannel(ctx context.Context, channelID primitive.ObjectID, limit, offset int64) ([]*models.Message, error)
	UpdateContent(ctx context.Context, id primitive.ObjectID, content string) (*models.Message, error)
	SoftDelete(ctx context.Context, id primitive.ObjectID) (*models.Message, error)
	Search(ctx context.Context, query string, channelIDs []primitive.ObjectID, limit int64) ([]*models.Message, error)
}

type messageRepo struct {
	collection *mongo.Collection
}

func NewMessageRepository(db *DB) MessageRepository {
	return &messageRepo{
		collection: db.Collection(collMessages),
	}
}

func (r *messageRepo) Create(ctx context.Context, message *models.Message) error {
	now := time.Now()
	message.ID = primitive.NewObjectID()
	message.CreatedAt = now
	message.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r *messageRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Message, error) {
	var message models.Message
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&message)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &message, nil
}

func (r *messageRepo) GetWithRelations(ctx context.Context, id primitive.ObjectID) (*models.Message, error) {
	pipeline := append([]bson.M{
		{"$match": bson.M{"_id": id}},
	}, messageRelations()...)

	messages, err := aggregate[models.Message](ctx, r.collection, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	if len(messages) == 0 {
		return nil, models.ErrNotFound
	}
	return messages[0], nil
}

func (r *messageRepo) ListByChannel(ctx context.Context, channelID primitive.ObjectID, limit, offset int64) ([]*models.Message, error) {
	pipeline := append([]bson.M{
		{
			"$match": bson.M{
				"channel_id": channelID,
				"is_deleted": false,
			},
		},
		{"$sort": bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		{"$skip": offset},
		{"$limit": limit},
	}, messageRelations()...)

	messages, err := aggregate[models.Message](ctx, r.collection, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to list channel messages: %w", err)
	}
	slices.Reverse(messages)
	return messages, nil
}

func (r *messageRepo) UpdateContent(ctx context.Context, id primitive.ObjectID, content string) (*models.Message, error) {
	filter := bson.M{
		"_id":        id,
		"is_deleted": false,
	}
	update := bson.M{
		"$set": bson.M{
			"content":    content,
			"is_edited":  true,
			"updated_at": time.Now(),
		},
	}
	return r.findOneAndUpdate(ctx, filter, update)
}

func (r *messageRepo) SoftDelete(ctx context.Context, id primitive.ObjectID) (*models.Message, error) {
	filter := bson.M{
		"_id":        id,
		"is_deleted": false,
	}
	update := bson.M{
		"$set": bson.M{
			"is_deleted": true,
			"updated_at": time.Now(),
		},
	}
	return r.findOneAndUpdate(ctx, filter, update)
}

func (r *messageRepo) Search(ctx context.Context, query string, channelIDs []primitive.ObjectID, limit int64) ([]*models.Message, error) {
	if len(channelIDs) == 0 {
		return nil, nil
	}
	pipeline := append([]bson.M{
		{
			"$match": bson.M{
				"$text":      bson.M{"$search": query},
				"channel_id": bson.M{"$in": channelIDs},
				"is_deleted": false,
			},
		},
		{"$sort": bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		{"$limit": limit},
	}, messageRelations()...)

	messages, err := aggregate[models.Message](ctx, r.collection, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	return messages, nil
}

func (r *messageRepo) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*models.Message, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var message models.Message
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&message)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update message: %w", err)
	}
	return &message, nil
}

// messageRelations joins the sender profile, reactions, attachments, mentions
// and the number of live replies onto each message.
func messageRelations() []bson.M {
	lookup := func(from, as string) bson.M {
		return bson.M{
			"$lookup": bson.M{
				"from":         from,
				"localField":   "_id",
				"foreignField": "message_id",
				"as":           as,
			},
		}
	}

	return []bson.M{
		{
			"$lookup": bson.M{
				"from":         collProfiles,
				"localField":   "sender_id",
				"foreignField": "_id",
				"as":           "user",
			},
		},
		{
			"$unwind": bson.M{
				"path":                       "$user",
				"preserveNullAndEmptyArrays": true,
			},
		},
		lookup(collReactions, "reactions"),
		lookup(collAttachments, "attachments"),
		lookup(collMentions, "mentions"),
		{
			"$lookup": bson.M{
				"from": collMessages,
				"let":  bson.M{"message_id": "$_id"},
				"pipeline": []bson.M{
					{
						"$match": bson.M{
							"$expr": bson.M{
								"$and": []bson.M{
									{"$eq": []any{"$parent_message_id", "$$message_id"}},
									{"$eq": []any{"$is_deleted", false}},
								},
							},
						},
					},
					{"$count": "n"},
				},
				"as": "replies",
			},
		},
		{
			"$addFields": bson.M{
				"reply_count": bson.M{
					"$ifNull": []any{
						bson.M{"$first": "$replies.n"},
						0,
					},
				},
			},
		},
		{"$project": bson.M{"replies": 0}},
	}
}
