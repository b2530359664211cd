package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nguyentranbao-ct/team-messaging/internal/config"
	"github.com/nguyentranbao-ct/team-messaging/internal/models"
	"github.com/nguyentranbao-ct/team-messaging/internal/realtime"
	"github.com/nguyentranbao-ct/team-messaging/pkg/logger"
	log "github.com/nguyentranbao-ct/team-messaging/pkg/logger/logctx"
	"github.com/nguyentranbao-ct/team-messaging/pkg/util"
)

type Consumer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// changeConsumer relays the shared change topic into the local hub. Each
// process joins its own consumer group so every instance sees every event.
type changeConsumer struct {
	group          sarama.ConsumerGroup
	topic          string
	groupID        string
	hub            realtime.Publisher
	metrics        *prometheus.HistogramVec
	consumeTimeout time.Duration
}

func NewConsumer(conf *config.Config, hub *realtime.Hub) (Consumer, error) {
	if !conf.Kafka.Enabled {
		return &noopConsumer{}, nil
	}
	cfg, err := newSaramaConfig(conf.Kafka)
	if err != nil {
		return nil, err
	}
	groupID := conf.Kafka.GroupPrefix + "-" + uuid.NewString()
	group, err := sarama.NewConsumerGroup(conf.Kafka.Brokers, groupID, cfg)
	if err != nil {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return newChangeConsumer(group, conf.Kafka.Topic, groupID, hub)
}

func newChangeConsumer(group sarama.ConsumerGroup, topic, groupID string, hub realtime.Publisher) (*changeConsumer, error) {
	metrics, err := util.GetHistogramVec("kafka_messages_consumed", "status", "topic", "group")
	if err != nil {
		return nil, fmt.Errorf("get histogram vec: %w", err)
	}
	return &changeConsumer{
		group:          group,
		topic:          topic,
		groupID:        groupID,
		hub:            hub,
		metrics:        metrics,
		consumeTimeout: 10 * time.Second,
	}, nil
}

func (c *changeConsumer) Start(ctx context.Context) error {
	log.Infof(ctx, "starting change consumer for topic %s, group %s", c.topic, c.groupID)
	for {
		err := c.group.Consume(ctx, []string{c.topic}, c)
		switch {
		case errors.Is(err, sarama.ErrClosedConsumerGroup):
			return nil
		case err != nil:
			log.Errorw(ctx, "consume change topic", "error", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *changeConsumer) Stop(ctx context.Context) error {
	log.Infof(ctx, "stopping change consumer")
	return c.group.Close()
}

func (c *changeConsumer) Setup(sess sarama.ConsumerGroupSession) error {
	log.Infow(sess.Context(), "change consumer session started",
		"member_id", sess.MemberID(),
		"claims", sess.Claims())
	return nil
}

func (c *changeConsumer) Cleanup(sess sarama.ConsumerGroupSession) error {
	return nil
}

func (c *changeConsumer) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			c.processMessage(ctx, msg)
			sess.MarkMessage(msg, "")
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *changeConsumer) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) {
	start := time.Now()
	lagMs := start.Sub(msg.Timestamp).Milliseconds()

	err := c.handle(ctx, msg)
	duration := time.Since(start)

	code := getCode(err)
	content := "success"
	if err != nil {
		content = err.Error()
	}

	log.Logw(ctx, getLogLevel(code), content,
		"code", code,
		"duration_ms", duration.Milliseconds(),
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"lag_ms", lagMs,
		"key", string(msg.Key),
	)

	c.metrics.
		WithLabelValues(code.String(), msg.Topic, c.groupID).
		Observe(duration.Seconds())
}

func (c *changeConsumer) handle(msgCtx context.Context, msg *sarama.ConsumerMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := make([]byte, 4096)
			length := runtime.Stack(stack, false)
			err = fmt.Errorf("PANIC RECOVER: %+v / %s", r, string(stack[:length]))
		}
	}()

	var event models.ChangeEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return status.Errorf(codes.InvalidArgument, "unmarshal change event: %v", err)
	}
	if event.Table == "" || event.Type == "" {
		return status.Errorf(codes.InvalidArgument, "change event without table or type")
	}

	ctx, cancel := context.WithTimeout(msgCtx, c.consumeTimeout)
	defer cancel()
	return c.hub.Publish(ctx, event)
}

func getCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return codes.DeadlineExceeded
	}
	if errors.Is(err, context.Canceled) {
		return codes.Canceled
	}
	return status.Code(err)
}

func getLogLevel(code codes.Code) logger.Level {
	switch code {
	case codes.OK:
		return logger.DebugLevel
	case codes.Canceled,
		codes.InvalidArgument,
		codes.NotFound,
		codes.AlreadyExists,
		codes.PermissionDenied,
		codes.Unauthenticated,
		codes.ResourceExhausted,
		codes.FailedPrecondition,
		codes.Aborted,
		codes.Unimplemented,
		codes.OutOfRange:
		return logger.WarnLevel
	default:
		return logger.ErrorLevel
	}
}

// noopConsumer is used when kafka is disabled
type noopConsumer struct{}

func (n *noopConsumer) Start(ctx context.Context) error {
	log.Infof(ctx, "kafka consumer is disabled, change events stay in process")
	return nil
}

func (n *noopConsumer) Stop(ctx context.Context) error {
	return nil
}
