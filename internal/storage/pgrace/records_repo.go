package pgrace

import (
	"context"
	"time"

	"github.com/AndeanRace/ChronoGate/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// AppendResult is the outcome of AppendCheckpointTime.
type AppendResult int

const (
	AppendUpdated AppendResult = iota
	// AppendRejectedAlreadyComplete: the record already has section_count
	// times. Not an error, a no-op for the caller.
	AppendRejectedAlreadyComplete
	AppendNotFound
)

// GetRecord returns (nil, nil) when no record exists for the pair.
func (s *Storage) GetRecord(ctx context.Context, raceKey, runnerDocument string) (*models.Record, error) {
	var r models.Record
	err := s.db.QueryRow(ctx, `
SELECT id, race_key, runner_document, bib, times, created_at, updated_at
FROM records
WHERE race_key = $1 AND runner_document = $2
`, raceKey, runnerDocument).Scan(
		&r.ID, &r.RaceKey, &r.RunnerDocument, &r.Bib, &r.Times, &r.CreatedAt, &r.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select record")
	}
	return &r, nil
}

func (s *Storage) ListRecordsByRace(ctx context.Context, raceKey string) ([]*models.Record, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, race_key, runner_document, bib, times, created_at, updated_at
FROM records
WHERE race_key = $1
ORDER BY bib ASC
`, raceKey)
	if err != nil {
		return nil, errors.Wrap(err, "select records")
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		var r models.Record
		if err := rows.Scan(
			&r.ID, &r.RaceKey, &r.RunnerDocument, &r.Bib, &r.Times, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan record")
		}
		out = append(out, &r)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// AppendCheckpointTime appends eventTime to the record's times sequence,
// guarded by the race's section count. Guard and append are one statement, so
// two concurrent hits for the same runner can never both pass the length
// check: Postgres row locking serializes them and the loser re-evaluates the
// cardinality predicate.
func (s *Storage) AppendCheckpointTime(ctx context.Context, raceKey, runnerDocument string, eventTime time.Time) (AppendResult, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE records r
SET times = array_append(r.times, $3), updated_at = now()
FROM races c
WHERE r.race_key = $1
  AND r.runner_document = $2
  AND c.race_key = r.race_key
  AND cardinality(r.times) < c.section_count
`, raceKey, runnerDocument, eventTime.UTC())
	if err != nil {
		return AppendNotFound, errors.Wrap(err, "append checkpoint time")
	}
	if tag.RowsAffected() > 0 {
		return AppendUpdated, nil
	}

	// Zero rows: either the pair is unknown or the runner is already
	// complete. The append itself already happened-or-not atomically, so a
	// plain re-read is enough to tell the two apart.
	rec, err := s.GetRecord(ctx, raceKey, runnerDocument)
	if err != nil {
		return AppendNotFound, err
	}
	if rec == nil {
		return AppendNotFound, nil
	}
	race, err := s.GetRaceByKey(ctx, raceKey)
	if err != nil {
		return AppendNotFound, err
	}
	if race == nil {
		return AppendNotFound, nil
	}
	return AppendRejectedAlreadyComplete, nil
}

// RegisterRunners creates records for the given runner documents in a race,
// assigning sequential bib numbers after the current maximum. Documents
// without a runner row or already registered are skipped. Returns the number
// of records created.
func (s *Storage) RegisterRunners(ctx context.Context, raceKey string, documents []string) (int, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the race row so two concurrent registrations cannot read the same
	// MAX(bib) and hand out duplicate numbers.
	if _, err := tx.Exec(ctx, `
SELECT 1 FROM races WHERE race_key = $1 FOR UPDATE
`, raceKey); err != nil {
		return 0, errors.Wrap(err, "lock race")
	}

	var nextBib int32
	if err := tx.QueryRow(ctx, `
SELECT COALESCE(MAX(bib), 0) + 1 FROM records WHERE race_key = $1
`, raceKey).Scan(&nextBib); err != nil {
		return 0, errors.Wrap(err, "select next bib")
	}

	created := 0
	for _, doc := range documents {
		tag, err := tx.Exec(ctx, `
INSERT INTO records (race_key, runner_document, bib, times, created_at, updated_at)
SELECT $1, document, $3, '{}', $4, $4
FROM runners
WHERE document = $2
ON CONFLICT (race_key, runner_document) DO NOTHING
`, raceKey, doc, nextBib, now)
		if err != nil {
			return 0, errors.Wrap(err, "insert record")
		}
		if tag.RowsAffected() > 0 {
			created++
			nextBib++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "commit tx")
	}
	return created, nil
}

// ResetRaceRecords clears every record's times and un-terminates the race.
// Administrative operation: the ingest pipeline tolerates it by re-deriving
// completion from current data on every call.
func (s *Storage) ResetRaceRecords(ctx context.Context, raceKey string) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
UPDATE records SET times = '{}', updated_at = now() WHERE race_key = $1
`, raceKey); err != nil {
		return errors.Wrap(err, "reset records")
	}
	if _, err := tx.Exec(ctx, `
UPDATE races SET terminated = FALSE, updated_at = now() WHERE race_key = $1
`, raceKey); err != nil {
		return errors.Wrap(err, "reset race flag")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}
