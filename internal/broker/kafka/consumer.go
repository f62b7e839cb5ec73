package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/AndeanRace/ChronoGate/internal/broker/messages"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads race notifications; the simulator uses it to stop once the
// RaceStatusChanged(terminated) event for its race arrives.
type Consumer struct {
	r messageReader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	return &Consumer{
		r: kafka.NewReader(cfg),
	}
}

func newConsumerWithReader(r messageReader) *Consumer {
	return &Consumer{r: r}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

// Consume decodes each message into a Notification and hands it to the
// handler. Commit happens only after the handler succeeds, so a failing
// handler does not lose the message.
func (c *Consumer) Consume(ctx context.Context, handler func(n messages.Notification) error) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch message")
		}

		var n messages.Notification
		if err := json.Unmarshal(msg.Value, &n); err != nil {
			return errors.Wrap(err, "decode notification")
		}
		if err := handler(n); err != nil {
			return err
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit message")
		}
	}
}
