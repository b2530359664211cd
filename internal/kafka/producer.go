package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/fx"

	"github.com/nguyentranbao-ct/team-messaging/internal/config"
	"github.com/nguyentranbao-ct/team-messaging/internal/models"
	"github.com/nguyentranbao-ct/team-messaging/internal/realtime"
	log "github.com/nguyentranbao-ct/team-messaging/pkg/logger/logctx"
)

type changePublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewPublisher returns the publisher used by the messaging usecases. With
// kafka disabled, events go straight to the local hub. Otherwise they are
// written to the change topic and every instance relays them to its own hub
// through the consumer.
func NewPublisher(lc fx.Lifecycle, conf *config.Config, hub *realtime.Hub) (realtime.Publisher, error) {
	if !conf.Kafka.Enabled {
		return hub, nil
	}
	cfg, err := newSaramaConfig(conf.Kafka)
	if err != nil {
		return nil, err
	}
	producer, err := sarama.NewSyncProducer(conf.Kafka.Brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	lc.Append(fx.StopHook(func(ctx context.Context) error {
		log.Infof(ctx, "closing kafka producer")
		return producer.Close()
	}))
	return newChangePublisher(producer, conf.Kafka.Topic), nil
}

func newChangePublisher(producer sarama.SyncProducer, topic string) *changePublisher {
	return &changePublisher{producer: producer, topic: topic}
}

func (p *changePublisher) Publish(ctx context.Context, event models.ChangeEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(event.Key()),
		Value:     sarama.ByteEncoder(raw),
		Timestamp: event.At,
	})
	if err != nil {
		return fmt.Errorf("send change event to %s: %w", p.topic, err)
	}
	log.Debugw(ctx, "change event published",
		"table", event.Table,
		"type", event.Type,
		"record_id", event.RecordID,
		"partition", partition,
		"offset", offset)
	return nil
}
