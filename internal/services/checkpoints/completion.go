package checkpoints

import (
	"context"

	"github.com/AndeanRace/ChronoGate/internal/broker/messages"
)

// CheckRaceCompletion reports whether every registered runner of the race
// has a full set of checkpoint times, flipping the race's terminated flag
// on the transition. The flag moves false->true at most once; re-checking a
// terminated race is a no-op that returns true. Failures log and return
// false, they never fail the ingest call that triggered the check.
func (s *Service) CheckRaceCompletion(ctx context.Context, raceKey string) bool {
	race, err := s.repo.GetRaceByKey(ctx, raceKey)
	if err != nil {
		s.log.Warn("completion check: get race", "race", raceKey, "err", err)
		return false
	}
	if race == nil {
		return false
	}
	if race.Terminated {
		return true
	}

	records, err := s.repo.ListRecordsByRace(ctx, raceKey)
	if err != nil {
		s.log.Warn("completion check: list records", "race", raceKey, "err", err)
		return false
	}
	if len(records) == 0 {
		return false
	}
	for _, r := range records {
		if int32(len(r.Times)) < race.SectionCount {
			return false
		}
	}

	flipped, err := s.repo.TerminateRace(ctx, raceKey)
	if err != nil {
		s.log.Warn("completion check: terminate race", "race", raceKey, "err", err)
		return false
	}
	if flipped {
		s.log.Info("race completed", "race", raceKey, "runners", len(records))
		s.emit(ctx, messages.NewRaceStatusChanged(messages.RaceStatusChanged{
			RaceID:     raceKey,
			Terminated: true,
		}))
		s.invalidate(ctx, raceKey)
	}
	return true
}
