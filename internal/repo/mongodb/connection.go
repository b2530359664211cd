package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nguyentranbao-ct/team-messaging/internal/config"
)

const (
	collChannels    = "channels"
	collMembers     = "channel_members"
	collMessages    = "messages"
	collReactions   = "message_reactions"
	collAttachments = "message_attachments"
	collMentions    = "message_mentions"
	collProfiles    = "profiles"
	collMigrations  = "migrations"
)

type DB struct {
	Client   *mongo.Client
	Database *mongo.Database
}

func NewConnection(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetAppName("team-messaging").
		SetMaxPoolSize(50).
		SetMaxConnIdleTime(30 * time.Second).
		SetTimeout(10 * time.Second)
	if cfg.Direct {
		clientOptions.SetDirect(true)
	}

	if cfg.Username != "" {
		clientOptions.SetAuth(options.Credential{
			AuthSource: cfg.AuthDB,
			Username:   cfg.Username,
			Password:   cfg.Password,
		})
	}

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	return &DB{
		Client:   client,
		Database: client.Database(cfg.Database),
	}, nil
}

func (db *DB) Ping(ctx context.Context) error {
	if err := db.Client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return nil
}

func (db *DB) Close(ctx context.Context) error {
	return db.Client.Disconnect(ctx)
}

func (db *DB) Collection(name string) *mongo.Collection {
	return db.Database.Collection(name)
}
