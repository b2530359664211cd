package session

import (
	"context"
	"sync"
	"time"

	"github.com/nguyentranbao-ct/team-messaging/internal/models"
	"github.com/nguyentranbao-ct/team-messaging/internal/usecase"
	log "github.com/nguyentranbao-ct/team-messaging/pkg/logger/logctx"
	"github.com/nguyentranbao-ct/team-messaging/pkg/util"
)

const releaseTimeout = 5 * time.Second

// presenceLease keeps the user online while the session lives: acquire sets
// the status and starts a heartbeat, release stops it and sets the user
// offline. Release happens at most once.
type presenceLease struct {
	api       usecase.Messaging
	heartbeat time.Duration

	mu       sync.Mutex
	acquired bool
	released bool
	stop     chan struct{}
	done     chan struct{}
}

func newPresenceLease(api usecase.Messaging, heartbeat time.Duration) *presenceLease {
	return &presenceLease{api: api, heartbeat: heartbeat}
}

func (l *presenceLease) acquire(ctx context.Context) (*models.Presence, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.acquired || l.released {
		return nil, nil
	}

	presence, err := l.api.UpdatePresence(ctx, models.UpdatePresenceRequest{Status: models.PresenceOnline})
	if err != nil {
		return nil, err
	}
	l.acquired = true
	if l.heartbeat > 0 {
		l.stop = make(chan struct{})
		l.done = make(chan struct{})
		go l.beat(context.WithoutCancel(ctx), l.stop, l.done)
	}
	return presence, nil
}

func (l *presenceLease) beat(ctx context.Context, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := l.api.TouchPresence(ctx); err != nil {
				log.Warnw(ctx, "presence heartbeat", "error", err)
			}
		}
	}
}

func (l *presenceLease) release(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.acquired || l.released {
		l.released = true
		return
	}
	l.released = true
	if l.stop != nil {
		close(l.stop)
		<-l.done
	}

	ctx, cancel := util.NewTimeoutContext(ctx, releaseTimeout)
	defer cancel()
	if _, err := l.api.UpdatePresence(ctx, models.UpdatePresenceRequest{Status: models.PresenceOffline}); err != nil {
		log.Errorw(ctx, "release presence", "error", err)
	}
}
