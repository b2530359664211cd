package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/nguyentranbao-ct/team-messaging/internal/config"
	"github.com/nguyentranbao-ct/team-messaging/internal/models"
)

// PresenceRepository stores one presence record per user. Writes are upserts
// and the last writer wins.
type PresenceRepository interface {
	Upsert(ctx context.Context, presence *models.Presence) error
	Get(ctx context.Context, userID string) (*models.Presence, error)
	GetMany(ctx context.Context, userIDs []string) ([]*models.Presence, error)
	// Touch refreshes last_seen of a user without changing the status. A user
	// without a record is stored as online.
	Touch(ctx context.Context, userID string, at time.Time) (*models.Presence, error)
	// ListStale returns users that are not offline and were last seen before
	// the given time.
	ListStale(ctx context.Context, before time.Time, limit int64) ([]string, error)
}

type presenceRepo struct {
	client *redis.Client
	prefix string
}

func NewPresenceRepository(client *redis.Client, conf *config.Config) PresenceRepository {
	return &presenceRepo{
		client: client,
		prefix: conf.Redis.KeyPrefix,
	}
}

func (r *presenceRepo) key(userID string) string {
	return r.prefix + "presence:" + userID
}

func (r *presenceRepo) indexKey() string {
	return r.prefix + "presence:last_seen"
}

func (r *presenceRepo) Upsert(ctx context.Context, presence *models.Presence) error {
	if presence.UserID == "" {
		return fmt.Errorf("presence without user: %w", models.ErrInvalidArgument)
	}
	presence.UpdatedAt = time.Now()
	data, err := json.Marshal(presence)
	if err != nil {
		return fmt.Errorf("marshal presence: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(presence.UserID), data, 0)
		if presence.Status == models.PresenceOffline {
			pipe.ZRem(ctx, r.indexKey(), presence.UserID)
		} else {
			pipe.ZAdd(ctx, r.indexKey(), &redis.Z{
				Score:  float64(presence.LastSeen.Unix()),
				Member: presence.UserID,
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save presence: %w", err)
	}
	return nil
}

func (r *presenceRepo) Get(ctx context.Context, userID string) (*models.Presence, error) {
	data, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get presence: %w", err)
	}

	var presence models.Presence
	if err := json.Unmarshal(data, &presence); err != nil {
		return nil, fmt.Errorf("unmarshal presence: %w", err)
	}
	return &presence, nil
}

func (r *presenceRepo) GetMany(ctx context.Context, userIDs []string) ([]*models.Presence, error) {
	if len(userIDs) == 0 {
		return []*models.Presence{}, nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = r.key(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("get presences: %w", err)
	}

	out := make([]*models.Presence, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var presence models.Presence
		if err := json.Unmarshal([]byte(raw), &presence); err != nil {
			return nil, fmt.Errorf("unmarshal presence: %w", err)
		}
		out = append(out, &presence)
	}
	return out, nil
}

func (r *presenceRepo) Touch(ctx context.Context, userID string, at time.Time) (*models.Presence, error) {
	presence, err := r.Get(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		presence = &models.Presence{UserID: userID, Status: models.PresenceOnline}
	} else if err != nil {
		return nil, err
	}
	presence.LastSeen = at
	if err := r.Upsert(ctx, presence); err != nil {
		return nil, err
	}
	return presence, nil
}

func (r *presenceRepo) ListStale(ctx context.Context, before time.Time, limit int64) ([]string, error) {
	ids, err := r.client.ZRangeByScore(ctx, r.indexKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "(" + strconv.FormatInt(before.Unix(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list stale presences: %w", err)
	}
	return ids, nil
}
