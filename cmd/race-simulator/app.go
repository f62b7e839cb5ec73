package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/AndeanRace/ChronoGate/internal/broker/messages"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type simulatorOpts struct {
	apiBaseURL   string
	raceKey      string
	runnerCount  int
	sectionCount int32
	sectionPace  time.Duration
	runnerJitter time.Duration
}

func (o *simulatorOpts) fillDefaults() {
	if o.raceKey == "" {
		o.raceKey = "sim-" + uuid.NewString()[:8]
	}
	if o.runnerCount <= 0 {
		o.runnerCount = 5
	}
	if o.sectionCount < 1 {
		o.sectionCount = 3
	}
	if o.sectionPace <= 0 {
		o.sectionPace = 2 * time.Second
	}
}

type emitter interface {
	Emit(ctx context.Context, n messages.Notification) error
}

type notificationConsumer interface {
	Consume(ctx context.Context, handler func(n messages.Notification) error) error
}

// Simulator drives a full race through the public API: it seeds the race and
// its runners via the admin endpoints, then posts checkpoint events at the
// configured pace. It stops early when the notifications topic reports the
// race terminated, which exercises the completion detector end to end.
type Simulator struct {
	opts     simulatorOpts
	api      *apiClient
	producer emitter
	consumer notificationConsumer
	log      *slog.Logger

	sleep func(ctx context.Context, d time.Duration) bool
}

func NewSimulator(opts simulatorOpts, api *apiClient, producer emitter, consumer notificationConsumer, log *slog.Logger) *Simulator {
	opts.fillDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Simulator{
		opts:     opts,
		api:      api,
		producer: producer,
		consumer: consumer,
		log:      log,
		sleep:    sleepCtx,
	}
}

func (s *Simulator) Run(ctx context.Context) error {
	simulationID := uuid.NewString()

	if err := s.api.createRace(ctx, s.opts.raceKey, s.opts.sectionCount); err != nil {
		return errors.Wrap(err, "create race")
	}
	docs := make([]string, 0, s.opts.runnerCount)
	for i := 1; i <= s.opts.runnerCount; i++ {
		docs = append(docs, fmt.Sprintf("SIM%05d", i))
	}
	if err := s.api.registerRunners(ctx, s.opts.raceKey, docs); err != nil {
		return errors.Wrap(err, "register runners")
	}

	s.emit(ctx, messages.NewSimulationStarted(messages.SimulationStarted{
		SimulationID: simulationID,
		RaceID:       s.opts.raceKey,
		Runners:      s.opts.runnerCount,
	}))
	s.log.Info("simulation started", "simulation", simulationID, "race", s.opts.raceKey, "runners", s.opts.runnerCount)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	terminated := make(chan struct{}, 1)
	if s.consumer != nil {
		go func() {
			_ = s.consumer.Consume(runCtx, func(n messages.Notification) error {
				// El tópico es compartido: un payload ausente no debe tumbar el proceso.
				if n.Type == messages.TypeRaceStatusChanged &&
					n.RaceStatusChanged != nil &&
					n.RaceStatusChanged.RaceID == s.opts.raceKey &&
					n.RaceStatusChanged.Terminated {
					select {
					case terminated <- struct{}{}:
					default:
					}
					cancel()
				}
				return nil
			})
		}()
	}

	reason := "completed"
	err := s.runSections(runCtx, docs)
	switch {
	case err == nil:
	case runCtx.Err() != nil && len(terminated) > 0:
		reason = "terminated"
		err = nil
	case runCtx.Err() != nil:
		reason = "cancelled"
		err = nil
	default:
		reason = "error: " + err.Error()
	}

	s.emit(ctx, messages.NewSimulationStopped(messages.SimulationStopped{
		SimulationID: simulationID,
		RaceID:       s.opts.raceKey,
		Reason:       reason,
	}))
	s.log.Info("simulation stopped", "simulation", simulationID, "race", s.opts.raceKey, "reason", reason)
	return err
}

func (s *Simulator) runSections(ctx context.Context, docs []string) error {
	for section := int32(1); section <= s.opts.sectionCount; section++ {
		for _, doc := range docs {
			if s.opts.runnerJitter > 0 {
				if !s.sleep(ctx, time.Duration(rand.Int63n(int64(s.opts.runnerJitter)))) {
					return ctx.Err()
				}
			}
			n := section
			if err := s.api.postCheckpoint(ctx, s.opts.raceKey, doc, time.Now().UTC(), &n); err != nil {
				return errors.Wrapf(err, "checkpoint runner %s section %d", doc, section)
			}
		}
		if section < s.opts.sectionCount {
			if !s.sleep(ctx, s.opts.sectionPace) {
				return ctx.Err()
			}
		}
	}
	return nil
}

func (s *Simulator) emit(ctx context.Context, n messages.Notification) {
	if s.producer == nil {
		return
	}
	if err := s.producer.Emit(ctx, n); err != nil {
		s.log.Warn("emit simulation notification failed", "type", n.Type, "err", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

type apiClient struct {
	baseURL string
	hc      *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{baseURL: baseURL, hc: &http.Client{Timeout: 10 * time.Second}}
}

func (c *apiClient) createRace(ctx context.Context, raceKey string, sections int32) error {
	return c.postJSON(ctx, "/races", map[string]any{
		"raceId":       raceKey,
		"name":         "Carrera simulada " + raceKey,
		"sectionCount": sections,
	})
}

func (c *apiClient) registerRunners(ctx context.Context, raceKey string, docs []string) error {
	runners := make([]map[string]any, 0, len(docs))
	for i, doc := range docs {
		runners = append(runners, map[string]any{
			"document": doc,
			"name":     fmt.Sprintf("Corredor simulado %d", i+1),
		})
	}
	return c.postJSON(ctx, "/races/"+raceKey+"/runners", map[string]any{"runners": runners})
}

func (c *apiClient) postCheckpoint(ctx context.Context, raceKey, doc string, at time.Time, number *int32) error {
	return c.postJSON(ctx, "/checkpoint", map[string]any{
		"runnerId":         doc,
		"raceId":           raceKey,
		"time":             at.Format(time.RFC3339Nano),
		"checkpointNumber": number,
	})
}

func (c *apiClient) postJSON(ctx context.Context, path string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("POST %s: %d %s", path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
