package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nguyentranbao-ct/team-messaging/internal/models"
	"github.com/nguyentranbao-ct/team-messaging/internal/realtime"
	"github.com/nguyentranbao-ct/team-messaging/pkg/logger"
)

func TestPublisherKeysByChannel(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "c1" {
			return fmt.Errorf("unexpected key %q", key)
		}
		if msg.Topic != "changes" {
			return fmt.Errorf("unexpected topic %q", msg.Topic)
		}
		return nil
	})

	pub := newChangePublisher(producer, "changes")
	ev := models.ChangeEvent{Table: models.TableMessages, Type: models.EventInsert, RecordID: "m1", ChannelID: "c1", At: time.Now()}
	require.NoError(t, pub.Publish(context.Background(), ev))
	require.NoError(t, producer.Close())
}

func TestPublisherSendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub := newChangePublisher(producer, "changes")
	err := pub.Publish(context.Background(), models.ChangeEvent{Table: models.TablePresence, Type: models.EventUpdate, UserID: "u1"})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, producer.Close())
}

func TestConsumerRelaysToHub(t *testing.T) {
	hub := realtime.NewHub()
	sub := hub.Subscribe(realtime.Filter{Table: models.TableMessages, ChannelID: "c1"})
	defer sub.Close()

	c, err := newChangeConsumer(nil, "changes", "group-test", hub)
	require.NoError(t, err)

	raw, err := json.Marshal(models.ChangeEvent{Table: models.TableMessages, Type: models.EventInsert, RecordID: "m1", ChannelID: "c1"})
	require.NoError(t, err)
	c.processMessage(context.Background(), &sarama.ConsumerMessage{Topic: "changes", Value: raw, Timestamp: time.Now()})

	select {
	case ev := <-sub.C():
		assert.Equal(t, "m1", ev.RecordID)
		assert.Equal(t, models.EventInsert, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("event was not relayed")
	}
}

func TestConsumerRejectsMalformed(t *testing.T) {
	c, err := newChangeConsumer(nil, "changes", "group-test", realtime.NewHub())
	require.NoError(t, err)

	err = c.handle(context.Background(), &sarama.ConsumerMessage{Value: []byte("{")})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	err = c.handle(context.Background(), &sarama.ConsumerMessage{Value: []byte(`{"record_id":"x"}`)})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, codes.OK, getCode(nil))
	assert.Equal(t, codes.DeadlineExceeded, getCode(fmt.Errorf("wrap: %w", context.DeadlineExceeded)))
	assert.Equal(t, codes.Canceled, getCode(context.Canceled))
	assert.Equal(t, codes.NotFound, getCode(models.ErrNotFound))
	assert.Equal(t, codes.Unknown, getCode(errors.New("boom")))
}

func TestGetLogLevel(t *testing.T) {
	assert.Equal(t, logger.DebugLevel, getLogLevel(codes.OK))
	assert.Equal(t, logger.WarnLevel, getLogLevel(codes.InvalidArgument))
	assert.Equal(t, logger.ErrorLevel, getLogLevel(codes.Internal))
}
