package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nguyentranbao-ct/team-messaging/internal/models"
)

type ChannelRepository interface {
	Create(ctx context.Context, channel *models.Channel) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Channel, error)
	// ListForUser returns the non archived channels userID is an active member
	// of, most recent activity first, with the unread count of userID.
	ListForUser(ctx context.Context, userID string) ([]*models.Channel, error)
	// CreateDirectMessageChannel finds or creates the direct channel between
	// two distinct users. created reports whether a new channel was inserted.
	CreateDirectMessageChannel(ctx context.Context, userA, userB string) (channel *models.Channel, created bool, err error)
	Archive(ctx context.Context, id primitive.ObjectID) error
	TouchLastMessage(ctx context.Context, id primitive.ObjectID, at time.Time) error
}

type channelRepo struct {
	collection *mongo.Collection
	members    *mongo.Collection
	memberRepo MemberRepository
}

func NewChannelRepository(db *DB, members MemberRepository) ChannelRepository {
	return &channelRepo{
		collection: db.Collection(collChannels),
		members:    db.Collection(collMembers),
		memberRepo: members,
	}
}

func (r *channelRepo) Create(ctx context.Context, channel *models.Channel) error {
	now := time.Now()
	channel.ID = primitive.NewObjectID()
	channel.CreatedAt = now
	channel.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, channel)
	if err != nil {
		return fmt.Errorf("failed to create channel: %w", err)
	}
	return nil
}

func (r *channelRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Channel, error) {
	var channel models.Channel
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&channel)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return &channel, nil
}

func (r *channelRepo) ListForUser(ctx context.Context, userID string) ([]*models.Channel, error) {
	pipeline := []bson.M{
		{
			"$match": bson.M{
				"user_id":   userID,
				"is_active": true,
			},
		},
		{
			"$lookup": bson.M{
				"from":         collChannels,
				"localField":   "channel_id",
				"foreignField": "_id",
				"as":           "channel",
			},
		},
		{"$unwind": "$channel"},
		{
			"$match": bson.M{
				"channel.is_archived": false,
			},
		},
		{
			"$lookup": bson.M{
				"from": collMessages,
				"let": bson.M{
					"channel_id": "$channel_id",
					"read_at":    "$last_read_at",
				},
				"pipeline": []bson.M{
					{
						"$match": bson.M{
							"$expr": bson.M{
								"$and": []bson.M{
									{"$eq": []any{"$channel_id", "$$channel_id"}},
									{"$gt": []any{"$created_at", "$$read_at"}},
									{"$ne": []any{"$sender_id", userID}},
									{"$eq": []any{"$is_deleted", false}},
								},
							},
						},
					},
					{"$count": "n"},
				},
				"as": "unread",
			},
		},
		{
			"$addFields": bson.M{
				"channel.unread_count": bson.M{
					"$ifNull": []any{
						bson.M{"$first": "$unread.n"},
						0,
					},
				},
			},
		},
		{"$replaceRoot": bson.M{"newRoot": "$channel"}},
		{
			"$sort": bson.D{
				{Key: "last_message_at", Value: -1},
				{Key: "updated_at", Value: -1},
			},
		},
	}

	channels, err := aggregate[models.Channel](ctx, r.members, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels for user: %w", err)
	}
	return channels, nil
}

func (r *channelRepo) CreateDirectMessageChannel(ctx context.Context, userA, userB string) (*models.Channel, bool, error) {
	if userA == "" || userB == "" || userA == userB {
		return nil, false, fmt.Errorf("direct message needs two distinct users: %w", models.ErrInvalidArgument)
	}

	key := models.DirectMessageKey(userA, userB)
	now := time.Now()
	filter := bson.M{"dm_key": key}
	update := bson.M{
		"$setOnInsert": bson.M{
			"type":        models.ChannelTypeDirect,
			"dm_key":      key,
			"created_by":  userA,
			"is_archived": false,
			"created_at":  now,
			"updated_at":  now,
		},
	}

	created := false
	result, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	switch {
	case mongo.IsDuplicateKeyError(err):
		// lost the race against a concurrent creator, the channel exists now
	case err != nil:
		return nil, false, fmt.Errorf("failed to upsert direct channel: %w", err)
	default:
		created = result.UpsertedCount > 0
	}

	var channel models.Channel
	if err := r.collection.FindOne(ctx, filter).Decode(&channel); err != nil {
		return nil, false, fmt.Errorf("failed to load direct channel: %w", err)
	}

	for _, userID := range []string{userA, userB} {
		if _, err := r.memberRepo.Add(ctx, channel.ID, userID, models.MemberRoleMember); err != nil {
			return nil, false, err
		}
	}
	return &channel, created, nil
}

func (r *channelRepo) Archive(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"is_archived": true,
			"updated_at":  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to archive channel: %w", err)
	}
	if result.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *channelRepo) TouchLastMessage(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	filter := bson.M{"_id": id}
	update := bson.M{
		"$max": bson.M{"last_message_at": at},
		"$set": bson.M{"updated_at": time.Now()},
	}

	_, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to touch channel: %w", err)
	}
	return nil
}
