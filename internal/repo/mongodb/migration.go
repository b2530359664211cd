package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	log "github.com/nguyentranbao-ct/team-messaging/pkg/logger/logctx"
)

const (
	MigrationPending   = "pending"
	MigrationRunning   = "running"
	MigrationCompleted = "completed"
	MigrationFailed    = "failed"
)

// MigrationRepository creates the collections' indexes and records which
// migrations already ran.
type MigrationRepository interface {
	Migrate(ctx context.Context) error
	GetMigrationStatus(ctx context.Context, migrationName string) (*MigrationStatus, error)
	SetMigrationStatus(ctx context.Context, migrationName string, status string, result *MigrationResult) error
}

type migrationRepo struct {
	db         *DB
	migrations []migration
}

type migration struct {
	name string
	run  func(ctx context.Context, db *DB) (*MigrationResult, error)
}

// MigrationStatus tracks the status of database migrations
type MigrationStatus struct {
	Name        string           `bson:"name" json:"name"`
	Status      string           `bson:"status" json:"status"`
	StartedAt   *time.Time       `bson:"started_at" json:"started_at"`
	CompletedAt *time.Time       `bson:"completed_at" json:"completed_at"`
	Result      *MigrationResult `bson:"result,omitempty" json:"result,omitempty"`
	CreatedAt   time.Time        `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `bson:"updated_at" json:"updated_at"`
}

type MigrationResult struct {
	IndexesCreated []string `bson:"indexes_created,omitempty" json:"indexes_created,omitempty"`
	Errors         []string `bson:"errors,omitempty" json:"errors,omitempty"`
	Duration       string   `bson:"duration" json:"duration"`
}

func NewMigrationRepository(db *DB) MigrationRepository {
	return &migrationRepo{
		db: db,
		migrations: []migration{
			{name: "create_indexes_v1", run: createIndexes},
		},
	}
}

func (r *migrationRepo) Migrate(ctx context.Context) error {
	for _, m := range r.migrations {
		if err := r.runOnce(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (r *migrationRepo) runOnce(ctx context.Context, m migration) error {
	status, err := r.GetMigrationStatus(ctx, m.name)
	if err == nil && status.Status == MigrationCompleted {
		log.Infow(ctx, "Migration already completed", "migration", m.name)
		return nil
	}

	startTime := time.Now()
	if err := r.SetMigrationStatus(ctx, m.name, MigrationRunning, nil); err != nil {
		return fmt.Errorf("failed to set migration status: %w", err)
	}
	log.Infow(ctx, "Starting migration", "migration", m.name)

	result, err := m.run(ctx, r.db)
	if result == nil {
		result = &MigrationResult{}
	}
	result.Duration = time.Since(startTime).String()
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		if setErr := r.SetMigrationStatus(ctx, m.name, MigrationFailed, result); setErr != nil {
			log.Errorw(ctx, "Failed to set migration failure status", "error", setErr)
		}
		return fmt.Errorf("migration %s: %w", m.name, err)
	}

	if err := r.SetMigrationStatus(ctx, m.name, MigrationCompleted, result); err != nil {
		log.Errorw(ctx, "Failed to set migration completion status", "error", err)
	}
	log.Infow(ctx, "Migration completed successfully",
		"migration", m.name,
		"indexes", len(result.IndexesCreated),
		"duration", result.Duration)
	return nil
}

func (r *migrationRepo) GetMigrationStatus(ctx context.Context, migrationName string) (*MigrationStatus, error) {
	var status MigrationStatus
	err := r.db.Collection(collMigrations).FindOne(ctx, bson.M{"name": migrationName}).Decode(&status)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &MigrationStatus{Name: migrationName, Status: MigrationPending}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get migration status: %w", err)
	}
	return &status, nil
}

func (r *migrationRepo) SetMigrationStatus(ctx context.Context, migrationName string, status string, result *MigrationResult) error {
	now := time.Now()
	set := bson.M{
		"name":       migrationName,
		"status":     status,
		"updated_at": now,
	}
	switch status {
	case MigrationRunning:
		set["started_at"] = now
	case MigrationCompleted, MigrationFailed:
		set["completed_at"] = now
		if result != nil {
			set["result"] = result
		}
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"created_at": now},
	}

	opts := options.Update().SetUpsert(true)
	_, err := r.db.Collection(collMigrations).UpdateOne(ctx, bson.M{"name": migrationName}, update, opts)
	if err != nil {
		return fmt.Errorf("failed to set migration status: %w", err)
	}
	return nil
}

func createIndexes(ctx context.Context, db *DB) (*MigrationResult, error) {
	specs := map[string][]mongo.IndexModel{
		collChannels: {
			{
				Keys:    bson.D{{Key: "dm_key", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true),
			},
			{Keys: bson.D{{Key: "last_message_at", Value: -1}}},
		},
		collMembers: {
			{
				Keys:    bson.D{{Key: "channel_id", Value: 1}, {Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "is_active", Value: 1}}},
		},
		collMessages: {
			{Keys: bson.D{{Key: "channel_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "parent_message_id", Value: 1}}, Options: options.Index().SetSparse(true)},
			{Keys: bson.D{{Key: "content", Value: "text"}}},
		},
		collReactions: {
			{
				Keys:    bson.D{{Key: "message_id", Value: 1}, {Key: "user_id", Value: 1}, {Key: "emoji", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		collAttachments: {
			{Keys: bson.D{{Key: "message_id", Value: 1}}},
		},
		collMentions: {
			{
				Keys:    bson.D{{Key: "message_id", Value: 1}, {Key: "mentioned_user_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "mentioned_user_id", Value: 1}}},
		},
		collProfiles: {
			{Keys: bson.D{{Key: "is_active", Value: 1}, {Key: "full_name", Value: 1}}},
		},
	}

	result := &MigrationResult{}
	for coll, indexes := range specs {
		names, err := db.Collection(coll).Indexes().CreateMany(ctx, indexes)
		if err != nil {
			return result, fmt.Errorf("create indexes on %s: %w", coll, err)
		}
		for _, name := range names {
			result.IndexesCreated = append(result.IndexesCreated, coll+"."+name)
		}
	}
	return result, nil
}
