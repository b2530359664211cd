package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyentranbao-ct/team-messaging/internal/config"
	"github.com/nguyentranbao-ct/team-messaging/internal/models"
)

func testOutbox() *outbox {
	return newOutbox(config.OutboxConfig{
		Workers:      2,
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
		Timeout:      time.Second,
	})
}

func TestOutboxRetriesTransientFailures(t *testing.T) {
	o := testOutbox()
	var attempts atomic.Int32
	o.Submit(context.Background(), "flaky", func(ctx context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	o.Stop()
	assert.Equal(t, int32(3), attempts.Load())
}

func TestOutboxGivesUp(t *testing.T) {
	o := testOutbox()
	var transient, permanent atomic.Int32
	o.Submit(context.Background(), "down", func(ctx context.Context) error {
		transient.Add(1)
		return errors.New("unreachable")
	})
	o.Submit(context.Background(), "gone", func(ctx context.Context) error {
		permanent.Add(1)
		return models.ErrNotFound
	})
	o.Stop()
	assert.Equal(t, int32(4), transient.Load())
	assert.Equal(t, int32(1), permanent.Load())
}

func TestOutboxDetachesFromRequestContext(t *testing.T) {
	o := testOutbox()
	ctx, cancel := context.WithCancel(models.WithActor(context.Background(), "alice"))
	cancel()

	var sawActor atomic.Bool
	o.Submit(ctx, "after_request", func(ctx context.Context) error {
		userID, ok := models.ActorFrom(ctx)
		sawActor.Store(ok && userID == "alice" && ctx.Err() == nil)
		return nil
	})
	o.Stop()
	assert.True(t, sawActor.Load())
}

func TestOutboxStopDrainsAndRejects(t *testing.T) {
	o := testOutbox()
	var done atomic.Bool
	o.Submit(context.Background(), "slow", func(ctx context.Context) error {
		time.Sleep(20 * time.Millisecond)
		done.Store(true)
		return nil
	})
	o.Stop()
	require.True(t, done.Load())

	var late atomic.Bool
	o.Submit(context.Background(), "late", func(ctx context.Context) error {
		late.Store(true)
		return nil
	})
	assert.False(t, late.Load())
}
