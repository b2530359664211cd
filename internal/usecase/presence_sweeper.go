package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/fx"

	"github.com/nguyentranbao-ct/team-messaging/internal/config"
	"github.com/nguyentranbao-ct/team-messaging/internal/models"
	"github.com/nguyentranbao-ct/team-messaging/internal/realtime"
	redisrepo "github.com/nguyentranbao-ct/team-messaging/internal/repo/redis"
	log "github.com/nguyentranbao-ct/team-messaging/pkg/logger/logctx"
)

const sweepBatch = 500

// PresenceSweeper marks users offline when their last heartbeat is older than
// the stale threshold. It covers connections that died without releasing
// their presence.
type PresenceSweeper struct {
	repo       redisrepo.PresenceRepository
	publisher  realtime.Publisher
	expr       string
	staleAfter time.Duration
	now        func() time.Time
}

func NewPresenceSweeper(conf *config.Config, repo redisrepo.PresenceRepository, publisher realtime.Publisher) (*PresenceSweeper, error) {
	if !gronx.IsValid(conf.Presence.SweepCron) {
		return nil, fmt.Errorf("invalid PRESENCE_SWEEP_CRON %q", conf.Presence.SweepCron)
	}
	if conf.Presence.StaleAfter <= 0 {
		return nil, fmt.Errorf("PRESENCE_STALE_AFTER must be positive, got %s", conf.Presence.StaleAfter)
	}
	return &PresenceSweeper{
		repo:       repo,
		publisher:  publisher,
		expr:       conf.Presence.SweepCron,
		staleAfter: conf.Presence.StaleAfter,
		now:        time.Now,
	}, nil
}

// Sweep runs one pass and returns the number of users set offline.
func (s *PresenceSweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	before := now.Add(-s.staleAfter)

	userIDs, err := s.repo.ListStale(ctx, before, sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list stale presence: %w", err)
	}

	swept := 0
	for _, userID := range userIDs {
		presence, err := s.repo.Get(ctx, userID)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return swept, fmt.Errorf("get presence of %s: %w", userID, err)
		}
		// refreshed between the index read and now
		if presence.Status == models.PresenceOffline || presence.LastSeen.After(before) {
			continue
		}

		presence.Status = models.PresenceOffline
		presence.UpdatedAt = now
		if err := s.repo.Upsert(ctx, presence); err != nil {
			return swept, fmt.Errorf("set %s offline: %w", userID, err)
		}
		publishPresence(ctx, s.publish, presence)
		swept++
	}
	return swept, nil
}

func (s *PresenceSweeper) publish(ctx context.Context, ev models.ChangeEvent) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Errorw(ctx, "publish presence change", "user_id", ev.UserID, "error", err)
	}
}

// Run sweeps on every tick of the cron expression until ctx is done.
func (s *PresenceSweeper) Run(ctx context.Context) error {
	for {
		next, err := gronx.NextTickAfter(s.expr, s.now(), false)
		if err != nil {
			return fmt.Errorf("next sweep tick: %w", err)
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		swept, err := s.Sweep(ctx)
		if err != nil {
			log.Errorw(ctx, "presence sweep failed", "swept", swept, "error", err)
			continue
		}
		if swept > 0 {
			log.Infow(ctx, "presence sweep", "swept", swept)
		}
	}
}

func StartPresenceSweeper(lc fx.Lifecycle, sweeper *PresenceSweeper) {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = log.WithFields(ctx, "job", "presence_sweeper")
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := sweeper.Run(ctx); err != nil {
					log.Errorw(ctx, "presence sweeper stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
