package checkpoints

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/AndeanRace/ChronoGate/internal/models"
	"github.com/AndeanRace/ChronoGate/internal/services/archive"
)

const (
	ReportSuccess                   = "SUCCESS"
	ReportFailedShape               = "FAILED_SHAPE"
	ReportFailedRaceNotFound        = "FAILED_RACE_NOT_FOUND"
	ReportFailedRunnerNotRegistered = "FAILED_RUNNER_NOT_REGISTERED"
)

type ReportStage struct {
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

// ValidationReport is the staged dry-run result of the validation gates.
// Stages after the first failing one are left zero-valued.
type ValidationReport struct {
	Status           string      `json:"status"`
	Shape            ReportStage `json:"shape"`
	RaceExists       ReportStage `json:"raceExists"`
	RunnerRegistered ReportStage `json:"runnerRegistered"`
	Suspicious       bool        `json:"suspicious"`
	Warning          string      `json:"warning,omitempty"`
}

// GenerateReport runs the validation gates in pipeline order without
// mutating anything: no backup write, no append, no sighting recorded.
func (s *Service) GenerateReport(ctx context.Context, ev models.CheckpointEvent) (ValidationReport, error) {
	var rep ValidationReport

	if verr := ValidateShape(ev); verr != nil {
		rep.Status = ReportFailedShape
		rep.Shape = ReportStage{Passed: false, Message: verr.Message}
		return rep, nil
	}
	rep.Shape = ReportStage{Passed: true}

	race, err := s.repo.GetRaceByKey(ctx, ev.RaceID)
	if err != nil {
		return rep, &PersistenceError{Op: "get race", Err: err}
	}
	if race == nil {
		rep.Status = ReportFailedRaceNotFound
		rep.RaceExists = ReportStage{Passed: false, Message: ErrRaceNotFound.Message}
		return rep, nil
	}
	rep.RaceExists = ReportStage{Passed: true}

	rec, err := s.repo.GetRecord(ctx, ev.RaceID, ev.RunnerID)
	if err != nil {
		return rep, &PersistenceError{Op: "get record", Err: err}
	}
	if rec == nil {
		rep.Status = ReportFailedRunnerNotRegistered
		rep.RunnerRegistered = ReportStage{Passed: false, Message: ErrRunnerNotRegistered.Message}
		return rep, nil
	}
	rep.RunnerRegistered = ReportStage{Passed: true}

	if s.recents != nil {
		window, werr := s.recents.Window(ctx, ev.RaceID)
		if werr != nil {
			window = nil
		}
		rep.Suspicious, rep.Warning = DetectSuspicious(ev, window)
	}

	rep.Status = ReportSuccess
	return rep, nil
}

type RunnerStatus struct {
	Document   string `json:"document"`
	Bib        int32  `json:"bib"`
	TimesCount int    `json:"timesCount"`
	Status     string `json:"status"`
}

type RaceStatusView struct {
	RaceID       string         `json:"raceId"`
	Name         string         `json:"name,omitempty"`
	SectionCount int32          `json:"sectionCount"`
	Terminated   bool           `json:"terminated"`
	Runners      []RunnerStatus `json:"runners"`
}

// RaceStatus returns race metadata plus per-runner completion, served from
// the short-TTL cache when fresh. Ingest never reads this cache.
func (s *Service) RaceStatus(ctx context.Context, raceKey string) (*RaceStatusView, error) {
	key := statusKey(raceKey)
	if b, ok := s.cachedGet(ctx, key); ok {
		var v RaceStatusView
		if json.Unmarshal(b, &v) == nil {
			return &v, nil
		}
	}

	race, err := s.repo.GetRaceByKey(ctx, raceKey)
	if err != nil {
		return nil, &PersistenceError{Op: "get race", Err: err}
	}
	if race == nil {
		return nil, ErrRaceNotFound
	}
	records, err := s.repo.ListRecordsByRace(ctx, raceKey)
	if err != nil {
		return nil, &PersistenceError{Op: "list records", Err: err}
	}

	v := &RaceStatusView{
		RaceID:       race.RaceKey,
		Name:         race.Name,
		SectionCount: race.SectionCount,
		Terminated:   race.Terminated,
		Runners:      make([]RunnerStatus, 0, len(records)),
	}
	for _, r := range records {
		v.Runners = append(v.Runners, RunnerStatus{
			Document:   r.RunnerDocument,
			Bib:        r.Bib,
			TimesCount: len(r.Times),
			Status:     r.Status(race.SectionCount),
		})
	}

	s.cachedSet(ctx, key, v)
	return v, nil
}

type RaceReportView struct {
	RaceID        string         `json:"raceId"`
	SectionCount  int32          `json:"sectionCount"`
	Terminated    bool           `json:"terminated"`
	TotalRunners  int            `json:"totalRunners"`
	CompletionPct float64        `json:"completionPct"`
	StatusCounts  map[string]int `json:"statusCounts"`
	Backup        archive.Stats  `json:"backup"`
}

// RaceReport combines completion percentage, per-status runner counts, and
// backup-store aggregates.
func (s *Service) RaceReport(ctx context.Context, raceKey string) (*RaceReportView, error) {
	key := reportKey(raceKey)
	if b, ok := s.cachedGet(ctx, key); ok {
		var v RaceReportView
		if json.Unmarshal(b, &v) == nil {
			return &v, nil
		}
	}

	race, err := s.repo.GetRaceByKey(ctx, raceKey)
	if err != nil {
		return nil, &PersistenceError{Op: "get race", Err: err}
	}
	if race == nil {
		return nil, ErrRaceNotFound
	}
	records, err := s.repo.ListRecordsByRace(ctx, raceKey)
	if err != nil {
		return nil, &PersistenceError{Op: "list records", Err: err}
	}

	counts := map[string]int{
		models.RecordStatusNotStarted: 0,
		models.RecordStatusInProgress: 0,
		models.RecordStatusCompleted:  0,
	}
	for _, r := range records {
		counts[r.Status(race.SectionCount)]++
	}

	pct := 0.0
	if len(records) > 0 {
		pct = float64(counts[models.RecordStatusCompleted]) / float64(len(records)) * 100
		pct = math.Round(pct*100) / 100
	}

	stats, err := s.archive.Stats(ctx, raceKey)
	if err != nil {
		// El backup es forense; sin él el reporte sigue siendo válido.
		s.log.Warn("backup stats unavailable", "race", raceKey, "err", err)
		stats = archive.Stats{RaceID: raceKey}
	}

	v := &RaceReportView{
		RaceID:        race.RaceKey,
		SectionCount:  race.SectionCount,
		Terminated:    race.Terminated,
		TotalRunners:  len(records),
		CompletionPct: pct,
		StatusCounts:  counts,
		Backup:        stats,
	}
	s.cachedSet(ctx, key, v)
	return v, nil
}

func (s *Service) cachedGet(ctx context.Context, key string) ([]byte, bool) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return nil, false
	}
	b, ok, err := s.cache.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	return b, true
}

func (s *Service) cachedSet(ctx context.Context, key string, v any) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, key, b, s.cacheTTL)
}

func statusKey(raceKey string) string { return fmt.Sprintf("race:%s:status", raceKey) }

func reportKey(raceKey string) string { return fmt.Sprintf("race:%s:report", raceKey) }
