package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/AndeanRace/ChronoGate/internal/broker/messages"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu          sync.Mutex
	races       int
	registered  int
	checkpoints int
	failCreate  bool
}

func (f *fakeAPI) server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /races", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failCreate {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"sectionCount must be >= 1"}`))
			return
		}
		f.races++
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("POST /races/{raceId}/runners", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.registered++
		f.mu.Unlock()
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("POST /checkpoint", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.checkpoints++
		f.mu.Unlock()
		w.Write([]byte(`{"recordUpdated":true}`))
	})
	return httptest.NewServer(mux)
}

type fakeEmitter struct {
	mu    sync.Mutex
	notes []messages.Notification
}

func (e *fakeEmitter) Emit(ctx context.Context, n messages.Notification) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notes = append(e.notes, n)
	return nil
}

func (e *fakeEmitter) types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.notes))
	for _, n := range e.notes {
		out = append(out, n.Type)
	}
	return out
}

type fakeConsumer struct {
	n *messages.Notification
}

func (c *fakeConsumer) Consume(ctx context.Context, handler func(n messages.Notification) error) error {
	if c.n != nil {
		_ = handler(*c.n)
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestSimulator_RunsAllSections(t *testing.T) {
	api := &fakeAPI{}
	srv := api.server()
	defer srv.Close()

	em := &fakeEmitter{}
	sim := NewSimulator(simulatorOpts{
		raceKey:      "sim-test",
		runnerCount:  3,
		sectionCount: 2,
	}, newAPIClient(srv.URL), em, nil, nil)
	sim.sleep = func(ctx context.Context, d time.Duration) bool { return true }

	require.NoError(t, sim.Run(context.Background()))

	require.Equal(t, 1, api.races)
	require.Equal(t, 1, api.registered)
	require.Equal(t, 6, api.checkpoints)

	types := em.types()
	require.Equal(t, []string{messages.TypeSimulationStarted, messages.TypeSimulationStopped}, types)
	require.Equal(t, "completed", em.notes[1].SimulationStopped.Reason)
	require.Equal(t, 3, em.notes[0].SimulationStarted.Runners)
}

func TestSimulator_StopsWhenRaceTerminates(t *testing.T) {
	api := &fakeAPI{}
	srv := api.server()
	defer srv.Close()

	em := &fakeEmitter{}
	done := messages.NewRaceStatusChanged(messages.RaceStatusChanged{RaceID: "sim-test", Terminated: true})
	sim := NewSimulator(simulatorOpts{
		raceKey:      "sim-test",
		runnerCount:  1,
		sectionCount: 50,
		sectionPace:  10 * time.Second,
	}, newAPIClient(srv.URL), em, &fakeConsumer{n: &done}, nil)

	start := time.Now()
	require.NoError(t, sim.Run(context.Background()))
	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, "terminated", em.notes[len(em.notes)-1].SimulationStopped.Reason)
}

func TestSimulator_IgnoresStatusNotificationWithoutPayload(t *testing.T) {
	api := &fakeAPI{}
	srv := api.server()
	defer srv.Close()

	em := &fakeEmitter{}
	// Otro productor puede publicar en el tópico sin el payload esperado.
	bare := messages.Notification{Type: messages.TypeRaceStatusChanged, OccurredAt: time.Now().UTC()}
	sim := NewSimulator(simulatorOpts{
		raceKey:      "sim-test",
		runnerCount:  2,
		sectionCount: 2,
	}, newAPIClient(srv.URL), em, &fakeConsumer{n: &bare}, nil)
	sim.sleep = func(ctx context.Context, d time.Duration) bool { return true }

	require.NoError(t, sim.Run(context.Background()))
	require.Equal(t, 4, api.checkpoints)
	require.Equal(t, "completed", em.notes[len(em.notes)-1].SimulationStopped.Reason)
}

func TestSimulator_CreateRaceFailureStops(t *testing.T) {
	api := &fakeAPI{failCreate: true}
	srv := api.server()
	defer srv.Close()

	sim := NewSimulator(simulatorOpts{raceKey: "sim-test"}, newAPIClient(srv.URL), nil, nil, nil)
	require.Error(t, sim.Run(context.Background()))
	require.Equal(t, 0, api.checkpoints)
}
