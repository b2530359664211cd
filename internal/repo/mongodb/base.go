package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nguyentranbao-ct/team-messaging/internal/models"
)

type IEntity interface {
	CollectionName() string
}

// baseRepo holds the queries shared by the simple single-collection repos.
type baseRepo[E IEntity] struct {
	coll *mongo.Collection
}

func newBaseRepo[E IEntity](db *DB) baseRepo[E] {
	var entity E
	return baseRepo[E]{
		coll: db.Collection(entity.CollectionName()),
	}
}

func (r *baseRepo[E]) Insert(ctx context.Context, entity *E, opts ...*options.InsertOneOptions) (any, error) {
	result, err := r.coll.InsertOne(ctx, entity, opts...)
	if err != nil {
		return nil, fmt.Errorf("insert one: %w", err)
	}
	return result.InsertedID, nil
}

// InsertMany inserts unordered so that one duplicate does not stop the rest.
// Duplicate key errors are reported to the caller as models.ErrAlreadyExists.
func (r *baseRepo[E]) InsertMany(ctx context.Context, entities []*E) error {
	if len(entities) == 0 {
		return nil
	}
	docs := make([]any, 0, len(entities))
	for _, e := range entities {
		docs = append(docs, e)
	}
	_, err := r.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("insert many: %w", models.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert many: %w", err)
	}
	return nil
}

func (r *baseRepo[E]) Find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]*E, error) {
	cursor, err := r.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	var entities []*E
	if err := cursor.All(ctx, &entities); err != nil {
		return nil, err
	}
	return entities, nil
}

func (r *baseRepo[E]) FindOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*E, error) {
	var entity E
	err := r.coll.FindOne(ctx, filter, opts...).Decode(&entity)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

type UpsertOpts struct {
	Set         bson.M
	SetOnInsert bson.M
	Unset       bson.M
}

func (r *baseRepo[E]) UpsertOne(ctx context.Context, filter bson.M, upsert UpsertOpts, opts ...*options.FindOneAndUpdateOptions) (*E, error) {
	update := bson.M{}
	if len(upsert.Set) > 0 {
		update["$set"] = upsert.Set
	}
	if len(upsert.SetOnInsert) > 0 {
		update["$setOnInsert"] = upsert.SetOnInsert
	}
	if len(upsert.Unset) > 0 {
		update["$unset"] = upsert.Unset
	}
	upsertOpt := options.
		FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)
	opts = append(opts, upsertOpt)

	var updated E
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts...).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// FindOneAndDelete returns the removed document, or nil when nothing matched.
func (r *baseRepo[E]) FindOneAndDelete(ctx context.Context, filter bson.M) (*E, error) {
	var deleted E
	err := r.coll.FindOneAndDelete(ctx, filter).Decode(&deleted)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &deleted, nil
}

// aggregate runs pipeline on coll and decodes every result into T.
func aggregate[T any](ctx context.Context, coll *mongo.Collection, pipeline any) ([]*T, error) {
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*T
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
