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

type MemberRepository interface {
	// Add makes userID an active member, reactivating a previous membership.
	// The role of a member that is already active is left as is.
	Add(ctx context.Context, channelID primitive.ObjectID, userID string, role models.MemberRole) (*models.ChannelMember, error)
	Get(ctx context.Context, channelID primitive.ObjectID, userID string) (*models.ChannelMember, error)
	ListActive(ctx context.Context, channelID primitive.ObjectID) ([]*models.ChannelMember, error)
	Deactivate(ctx context.Context, channelID primitive.ObjectID, userID string) error
	// MarkChannelAsRead advances the read watermark. It never moves it back.
	MarkChannelAsRead(ctx context.Context, channelID primitive.ObjectID, userID string, at time.Time) error
}

type memberRepo struct {
	collection *mongo.Collection
}

func NewMemberRepository(db *DB) MemberRepository {
	return &memberRepo{
		collection: db.Collection(collMembers),
	}
}

func (r *memberRepo) Add(ctx context.Context, channelID primitive.ObjectID, userID string, role models.MemberRole) (*models.ChannelMember, error) {
	now := time.Now()
	filter := bson.M{
		"channel_id": channelID,
		"user_id":    userID,
	}
	// an active member keeps its role; a new or returning one takes role
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"role": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$is_active", true}}, "$role", role,
			}},
			"is_active":    true,
			"joined_at":    bson.M{"$ifNull": bson.A{"$joined_at", now}},
			"last_read_at": bson.M{"$ifNull": bson.A{"$last_read_at", now}},
			"is_muted":     bson.M{"$ifNull": bson.A{"$is_muted", false}},
		}}},
		{{Key: "$unset", Value: "left_at"}},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var member models.ChannelMember
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&member)
	if err != nil {
		return nil, fmt.Errorf("failed to add member %s: %w", userID, err)
	}
	return &member, nil
}

func (r *memberRepo) Get(ctx context.Context, channelID primitive.ObjectID, userID string) (*models.ChannelMember, error) {
	var member models.ChannelMember
	err := r.collection.FindOne(ctx, bson.M{
		"channel_id": channelID,
		"user_id":    userID,
	}).Decode(&member)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return &member, nil
}

func (r *memberRepo) ListActive(ctx context.Context, channelID primitive.ObjectID) ([]*models.ChannelMember, error) {
	pipeline := []bson.M{
		{
			"$match": bson.M{
				"channel_id": channelID,
				"is_active":  true,
			},
		},
		{
			"$lookup": bson.M{
				"from":         collProfiles,
				"localField":   "user_id",
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
		{
			"$sort": bson.D{{Key: "joined_at", Value: 1}, {Key: "_id", Value: 1}},
		},
	}

	members, err := aggregate[models.ChannelMember](ctx, r.collection, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to list channel members: %w", err)
	}
	return members, nil
}

func (r *memberRepo) Deactivate(ctx context.Context, channelID primitive.ObjectID, userID string) error {
	filter := bson.M{
		"channel_id": channelID,
		"user_id":    userID,
		"is_active":  true,
	}
	update := bson.M{
		"$set": bson.M{
			"is_active": false,
			"left_at":   time.Now(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to deactivate member: %w", err)
	}
	if result.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *memberRepo) MarkChannelAsRead(ctx context.Context, channelID primitive.ObjectID, userID string, at time.Time) error {
	filter := bson.M{
		"channel_id": channelID,
		"user_id":    userID,
		"is_active":  true,
	}
	update := bson.M{
		"$max": bson.M{"last_read_at": at},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to mark channel as read: %w", err)
	}
	if result.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}
