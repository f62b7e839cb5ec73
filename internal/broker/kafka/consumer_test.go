package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/AndeanRace/ChronoGate/internal/broker/messages"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	msgs []kafka.Message
	err  error
	i    int

	committed int
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if r.i < len(r.msgs) {
		m := r.msgs[r.i]
		r.i++
		return m, nil
	}
	if r.err != nil {
		return kafka.Message{}, r.err
	}
	return kafka.Message{}, errors.New("eof")
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.committed += len(msgs)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func notificationMsg(t *testing.T, n messages.Notification) kafka.Message {
	t.Helper()
	b, err := json.Marshal(n)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(n.RaceID()), Value: b}
}

func TestConsumer_Consume_DecodesAndCommits(t *testing.T) {
	n := messages.NewRaceStatusChanged(messages.RaceStatusChanged{RaceID: "race-1", Terminated: true})
	fr := &fakeReader{
		msgs: []kafka.Message{notificationMsg(t, n)},
		err:  errors.New("stop"),
	}
	c := newConsumerWithReader(fr)

	var got messages.Notification
	err := c.Consume(context.Background(), func(n messages.Notification) error {
		got = n
		return nil
	})
	require.Error(t, err) // reader drained
	require.Equal(t, messages.TypeRaceStatusChanged, got.Type)
	require.True(t, got.RaceStatusChanged.Terminated)
	require.Equal(t, 1, fr.committed)
}

func TestConsumer_Consume_HandlerErrorStopsWithoutCommit(t *testing.T) {
	n := messages.NewSimulationStarted(messages.SimulationStarted{SimulationID: "s1", RaceID: "race-1"})
	fr := &fakeReader{msgs: []kafka.Message{notificationMsg(t, n)}}
	c := newConsumerWithReader(fr)

	want := errors.New("handler failed")
	err := c.Consume(context.Background(), func(messages.Notification) error { return want })
	require.ErrorIs(t, err, want)
	require.Zero(t, fr.committed)
}

func TestNewConsumer_Close(t *testing.T) {
	c := NewConsumer([]string{"localhost:0"}, "t", "g")
	require.NotNil(t, c)
	require.NoError(t, c.Close())
}
