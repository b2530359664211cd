package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/eapache/go-resiliency/retrier"
	"github.com/gammazero/workerpool"
	"go.uber.org/fx"

	"github.com/nguyentranbao-ct/team-messaging/internal/config"
	"github.com/nguyentranbao-ct/team-messaging/internal/models"
	log "github.com/nguyentranbao-ct/team-messaging/pkg/logger/logctx"
)

// Outbox runs best effort side effects off the request path. A task is
// retried with exponential backoff and dropped, with an error log, once the
// retries are exhausted.
type Outbox interface {
	Submit(ctx context.Context, name string, task func(ctx context.Context) error)
}

type outbox struct {
	mu      sync.RWMutex
	stopped bool
	pool    *workerpool.WorkerPool
	retries int
	backoff time.Duration
	timeout time.Duration
}

func NewOutbox(lc fx.Lifecycle, conf *config.Config) Outbox {
	o := newOutbox(conf.Outbox)
	lc.Append(fx.StopHook(func(ctx context.Context) {
		log.Infof(ctx, "draining outbox, %d tasks waiting", o.pool.WaitingQueueSize())
		o.Stop()
	}))
	return o
}

func newOutbox(conf config.OutboxConfig) *outbox {
	return &outbox{
		pool:    workerpool.New(conf.Workers),
		retries: conf.MaxRetries,
		backoff: conf.RetryBackoff,
		timeout: conf.Timeout,
	}
}

func (o *outbox) Submit(ctx context.Context, name string, task func(ctx context.Context) error) {
	// keep request scoped values (request id, actor) but not the deadline
	base := context.WithoutCancel(ctx)

	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.stopped {
		log.Warnw(base, "outbox stopped, dropping task", "task", name)
		return
	}

	o.pool.Submit(func() {
		attempts := 0
		r := retrier.New(retrier.ExponentialBackoff(o.retries, o.backoff), permanentClassifier{})
		err := r.RunCtx(base, func(ctx context.Context) error {
			attempts++
			ctx, cancel := context.WithTimeout(ctx, o.timeout)
			defer cancel()
			return task(ctx)
		})
		if err != nil {
			log.Errorw(base, "outbox task dropped",
				"task", name,
				"attempts", attempts,
				"error", err)
			return
		}
		log.Debugw(base, "outbox task done", "task", name, "attempts", attempts)
	})
}

// Stop waits for queued tasks to finish. Later submissions are dropped.
func (o *outbox) Stop() {
	o.mu.Lock()
	o.stopped = true
	o.mu.Unlock()
	o.pool.StopWait()
}

// permanentClassifier does not retry failures that would fail again.
type permanentClassifier struct{}

func (permanentClassifier) Classify(err error) retrier.Action {
	if err == nil {
		return retrier.Succeed
	}
	switch models.ReasonOf(err) {
	case models.ReasonNotFound,
		models.ReasonPermissionDenied,
		models.ReasonInvalidArgument,
		models.ReasonAlreadyExists,
		models.ReasonUnauthenticated:
		return retrier.Fail
	}
	return retrier.Retry
}
