package kafka

import (
	"context"
	"encoding/json"

	"github.com/AndeanRace/ChronoGate/internal/broker/messages"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Producer publishes race notifications to a single topic, keyed by race so
// observers see per-race ordering.
type Producer struct {
	w     messageWriter
	topic string
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Balancer: &kafka.LeastBytes{},
		},
		topic: topic,
	}
}

func newProducerWithWriter(w messageWriter, topic string) *Producer {
	return &Producer{w: w, topic: topic}
}

func (p *Producer) Emit(ctx context.Context, n messages.Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return errors.Wrap(err, "marshal notification")
	}
	if err := p.w.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(n.RaceID()),
		Value: b,
	}); err != nil {
		return errors.Wrap(err, "kafka publish")
	}
	return nil
}
