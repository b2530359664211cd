package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/fx"

	"github.com/nguyentranbao-ct/team-messaging/internal/config"
	"github.com/nguyentranbao-ct/team-messaging/internal/repo/mongodb"
	pkgmdw "github.com/nguyentranbao-ct/team-messaging/internal/server/middleware"
	"github.com/nguyentranbao-ct/team-messaging/internal/usecase"
	log "github.com/nguyentranbao-ct/team-messaging/pkg/logger/logctx"
)

const connectTimeout = 10 * time.Second

func newMongoDB(lc fx.Lifecycle, cfg *config.Config) (*mongodb.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	db, err := mongodb.NewConnection(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init mongo client: %w", err)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := db.Ping(ctx); err != nil {
				return err
			}
			log.Infow(ctx, "connected to MongoDB", "database", cfg.Database.Database)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return db.Close(ctx)
		},
	})
	return db, nil
}

func newRedisClient(lc fx.Lifecycle, cfg *config.Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("failed to ping redis: %w", err)
			}
			log.Infow(ctx, "connected to Redis", "addr", cfg.Redis.Addr)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client
}

func newTokenVerifier(auth *usecase.AuthUseCase) pkgmdw.TokenVerifier {
	return auth
}
