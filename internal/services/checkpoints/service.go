package checkpoints

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/AndeanRace/ChronoGate/internal/broker/messages"
	"github.com/AndeanRace/ChronoGate/internal/cache/rediscache"
	"github.com/AndeanRace/ChronoGate/internal/models"
	"github.com/AndeanRace/ChronoGate/internal/services/archive"
	"github.com/AndeanRace/ChronoGate/internal/storage/pgrace"
	"github.com/pkg/errors"
)

type Repository interface {
	CreateRace(ctx context.Context, in models.RaceCreateInput) (*models.Race, error)
	GetRaceByKey(ctx context.Context, raceKey string) (*models.Race, error)
	TerminateRace(ctx context.Context, raceKey string) (bool, error)
	GetRecord(ctx context.Context, raceKey, runnerDocument string) (*models.Record, error)
	ListRecordsByRace(ctx context.Context, raceKey string) ([]*models.Record, error)
	AppendCheckpointTime(ctx context.Context, raceKey, runnerDocument string, eventTime time.Time) (pgrace.AppendResult, error)
	CreateOrGetRunners(ctx context.Context, items []models.RunnerCreateInput) ([]*models.Runner, error)
	RegisterRunners(ctx context.Context, raceKey string, documents []string) (int, error)
	ResetRaceRecords(ctx context.Context, raceKey string) error
}

// Archiver is the backup trail. Archive never fails hard; the read side
// (List/Stats/Purge) is off the hot path.
type Archiver interface {
	Archive(ctx context.Context, raceKey, runnerKey string, eventTime time.Time, checkpointNumber *int32) bool
	List(ctx context.Context, raceKey string) ([]json.RawMessage, error)
	Stats(ctx context.Context, raceKey string) (archive.Stats, error)
	Purge(ctx context.Context, raceKey string, retentionDays int) (int, error)
}

type Emitter interface {
	Emit(ctx context.Context, n messages.Notification) error
}

// Recents is the bounded window backing the advisory duplicate check.
type Recents interface {
	Record(ctx context.Context, raceKey, runnerID string, at time.Time) error
	Window(ctx context.Context, raceKey string) ([]rediscache.Sighting, error)
}

type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type Service struct {
	repo    Repository
	archive Archiver
	emitter Emitter
	recents Recents

	cache    BytesCache
	cacheTTL time.Duration

	log *slog.Logger
}

func New(repo Repository, a Archiver, e Emitter, r Recents, c BytesCache, cacheTTL time.Duration, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, archive: a, emitter: e, recents: r, cache: c, cacheTTL: cacheTTL, log: log}
}

// IngestOutcome is the aggregate result of one checkpoint ingestion.
// RecordUpdated=false with a nil error means the runner was already complete
// and the hit was a no-op.
type IngestOutcome struct {
	BackedUp      bool
	RecordUpdated bool
	RaceCompleted bool
	Time          time.Time
	Warning       string
}

// Process runs the full ingest pipeline for one event: shape validation,
// race/runner existence, advisory duplicate check, best-effort backup,
// guarded append, completion check. Validation and not-found failures return
// before any side effect; backup and completion failures never fail the call.
func (s *Service) Process(ctx context.Context, ev models.CheckpointEvent) (IngestOutcome, error) {
	var out IngestOutcome

	if verr := ValidateShape(ev); verr != nil {
		return out, verr
	}

	race, err := s.repo.GetRaceByKey(ctx, ev.RaceID)
	if err != nil {
		return out, &PersistenceError{Op: "get race", Err: err}
	}
	if race == nil {
		return out, ErrRaceNotFound
	}

	rec, err := s.repo.GetRecord(ctx, ev.RaceID, ev.RunnerID)
	if err != nil {
		return out, &PersistenceError{Op: "get record", Err: err}
	}
	if rec == nil {
		return out, ErrRunnerNotRegistered
	}

	if s.recents != nil {
		window, werr := s.recents.Window(ctx, ev.RaceID)
		if werr != nil {
			// Redis caído degrada a ventana vacía; el chequeo es consultivo.
			s.log.Warn("recent-events window unavailable", "race", ev.RaceID, "err", werr)
			window = nil
		}
		if dup, msg := DetectSuspicious(ev, window); dup {
			out.Warning = msg
			s.log.Warn("suspicious checkpoint", "race", ev.RaceID, "runner", ev.RunnerID, "time", ev.Time)
		}
		if rerr := s.recents.Record(ctx, ev.RaceID, ev.RunnerID, ev.Time); rerr != nil {
			s.log.Warn("record sighting failed", "race", ev.RaceID, "err", rerr)
		}
	}

	out.BackedUp = s.archive.Archive(ctx, ev.RaceID, ev.RunnerID, ev.Time, ev.CheckpointNumber)

	res, err := s.repo.AppendCheckpointTime(ctx, ev.RaceID, ev.RunnerID, ev.Time)
	if err != nil {
		return out, &PersistenceError{Op: "append checkpoint time", Err: err}
	}
	out.Time = ev.Time

	switch res {
	case pgrace.AppendNotFound:
		// El registro desapareció entre la validación y el append.
		return out, ErrRunnerNotRegistered
	case pgrace.AppendRejectedAlreadyComplete:
		out.RecordUpdated = false
	case pgrace.AppendUpdated:
		out.RecordUpdated = true
	}

	if out.RecordUpdated {
		// Count derived from the pre-append read. Informational payload, a
		// concurrent hit may make it undercount.
		timesCount := len(rec.Times) + 1
		s.emit(ctx, messages.NewTimeAdded(messages.TimeAdded{
			RaceID:     ev.RaceID,
			RunnerID:   ev.RunnerID,
			Time:       ev.Time,
			TimesCount: timesCount,
			Completed:  int32(timesCount) >= race.SectionCount,
		}))
		s.invalidate(ctx, ev.RaceID)
	}

	out.RaceCompleted = s.CheckRaceCompletion(ctx, ev.RaceID)
	return out, nil
}

// CreateRace registers a race if its key is unknown, otherwise returns the
// existing one untouched.
func (s *Service) CreateRace(ctx context.Context, in models.RaceCreateInput) (*models.Race, error) {
	if in.RaceKey == "" {
		return nil, errors.New("raceKey is required")
	}
	if in.SectionCount < 1 {
		return nil, errors.New("sectionCount must be >= 1")
	}
	return s.repo.CreateRace(ctx, in)
}

// RegisterRunners upserts the runners and enrolls them in the race with
// sequential bib numbers. Already-enrolled runners keep their bib.
func (s *Service) RegisterRunners(ctx context.Context, raceKey string, runners []models.RunnerCreateInput) (int, error) {
	if raceKey == "" {
		return 0, errors.New("raceKey is required")
	}
	if len(runners) == 0 {
		return 0, errors.New("runners is empty")
	}
	for _, r := range runners {
		if r.Document == "" {
			return 0, errors.New("document is required")
		}
	}

	race, err := s.repo.GetRaceByKey(ctx, raceKey)
	if err != nil {
		return 0, &PersistenceError{Op: "get race", Err: err}
	}
	if race == nil {
		return 0, ErrRaceNotFound
	}

	if _, err := s.repo.CreateOrGetRunners(ctx, runners); err != nil {
		return 0, &PersistenceError{Op: "create runners", Err: err}
	}
	docs := make([]string, 0, len(runners))
	for _, r := range runners {
		docs = append(docs, r.Document)
	}
	created, err := s.repo.RegisterRunners(ctx, raceKey, docs)
	if err != nil {
		return 0, &PersistenceError{Op: "register runners", Err: err}
	}
	s.invalidate(ctx, raceKey)
	return created, nil
}

// ResetRace clears every record's times and un-terminates the race. This is
// the administrative escape hatch; the ingest pipeline re-derives completion
// from current data on the next event, so resets are always safe.
func (s *Service) ResetRace(ctx context.Context, raceKey string) error {
	race, err := s.repo.GetRaceByKey(ctx, raceKey)
	if err != nil {
		return &PersistenceError{Op: "get race", Err: err}
	}
	if race == nil {
		return ErrRaceNotFound
	}
	if err := s.repo.ResetRaceRecords(ctx, raceKey); err != nil {
		return &PersistenceError{Op: "reset race records", Err: err}
	}
	s.invalidate(ctx, raceKey)
	s.emit(ctx, messages.NewRaceStatusChanged(messages.RaceStatusChanged{
		RaceID:     raceKey,
		Terminated: false,
	}))
	return nil
}

func (s *Service) ListBackups(ctx context.Context, raceKey string) ([]json.RawMessage, error) {
	return s.archive.List(ctx, raceKey)
}

func (s *Service) BackupStats(ctx context.Context, raceKey string) (archive.Stats, error) {
	return s.archive.Stats(ctx, raceKey)
}

func (s *Service) PurgeBackups(ctx context.Context, raceKey string, retentionDays int) (int, error) {
	return s.archive.Purge(ctx, raceKey, retentionDays)
}

// emit publishes a notification, absorbing failures. Broadcast is
// best-effort, like the backup trail.
func (s *Service) emit(ctx context.Context, n messages.Notification) {
	if s.emitter == nil {
		return
	}
	if err := s.emitter.Emit(ctx, n); err != nil {
		s.log.Warn("emit notification failed", "type", n.Type, "err", err)
	}
}

func (s *Service) invalidate(ctx context.Context, raceKey string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, statusKey(raceKey), reportKey(raceKey))
}
