package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/AndeanRace/ChronoGate/internal/broker/messages"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	last []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.last = append([]kafka.Message{}, msgs...)
	return w.err
}

func TestProducer_Emit(t *testing.T) {
	fw := &fakeWriter{}
	p := newProducerWithWriter(fw, "race.notifications")

	n := messages.NewTimeAdded(messages.TimeAdded{
		RaceID:     "race-1",
		RunnerID:   "12345678",
		Time:       time.Now().UTC(),
		TimesCount: 2,
	})
	require.NoError(t, p.Emit(context.Background(), n))
	require.Len(t, fw.last, 1)
	require.Equal(t, "race.notifications", fw.last[0].Topic)
	require.Equal(t, []byte("race-1"), fw.last[0].Key)

	var got messages.Notification
	require.NoError(t, json.Unmarshal(fw.last[0].Value, &got))
	require.Equal(t, messages.TypeTimeAdded, got.Type)
	require.NotNil(t, got.TimeAdded)
	require.Equal(t, "12345678", got.TimeAdded.RunnerID)
	require.Nil(t, got.RaceStatusChanged)
}

func TestNewProducer(t *testing.T) {
	p := NewProducer([]string{"localhost:0"}, "t")
	require.NotNil(t, p)
}
