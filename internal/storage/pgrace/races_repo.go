package pgrace

import (
	"context"
	"time"

	"github.com/AndeanRace/ChronoGate/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) CreateRace(ctx context.Context, in models.RaceCreateInput) (*models.Race, error) {
	now := time.Now().UTC()

	var id uint64
	err := s.db.QueryRow(ctx, `
INSERT INTO races (race_key, name, start_at, participant_limit, section_count, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$6)
ON CONFLICT (race_key)
DO UPDATE SET updated_at = races.updated_at
RETURNING id
`, in.RaceKey, in.Name, in.StartAt, in.ParticipantLimit, in.SectionCount, now).Scan(&id)
	if err != nil {
		return nil, errors.Wrap(err, "insert race")
	}

	return s.GetRaceByKey(ctx, in.RaceKey)
}

// GetRaceByKey returns (nil, nil) when the race does not exist; callers
// decide whether that is an error.
func (s *Storage) GetRaceByKey(ctx context.Context, raceKey string) (*models.Race, error) {
	var r models.Race
	err := s.db.QueryRow(ctx, `
SELECT
  id, race_key, name,
  start_at, registration_opens_at, participant_limit,
  section_count, terminated,
  created_at, updated_at
FROM races
WHERE race_key = $1
`, raceKey).Scan(
		&r.ID, &r.RaceKey, &r.Name,
		&r.StartAt, &r.RegistrationOpensAt, &r.ParticipantLimit,
		&r.SectionCount, &r.Terminated,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select race")
	}
	return &r, nil
}

// TerminateRace flips the terminated flag false->true. The WHERE clause makes
// the flip idempotent: the write happens at most once per race.
func (s *Storage) TerminateRace(ctx context.Context, raceKey string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE races SET terminated = TRUE, updated_at = now()
WHERE race_key = $1 AND terminated = FALSE
`, raceKey)
	if err != nil {
		return false, errors.Wrap(err, "terminate race")
	}
	return tag.RowsAffected() > 0, nil
}
