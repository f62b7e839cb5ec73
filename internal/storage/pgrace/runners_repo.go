package pgrace

import (
	"context"
	"time"

	"github.com/AndeanRace/ChronoGate/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// CreateOrGetRunners inserts runners by natural key (document), keeping
// existing rows untouched. The document is immutable once created.
func (s *Storage) CreateOrGetRunners(ctx context.Context, items []models.RunnerCreateInput) ([]*models.Runner, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	docs := make([]string, 0, len(items))
	for _, it := range items {
		_, err := tx.Exec(ctx, `
INSERT INTO runners (document, name, nationality, birth_date, phone, email, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (document) DO NOTHING
`, it.Document, it.Name, it.Nationality, it.BirthDate, it.Phone, it.Email, now)
		if err != nil {
			return nil, errors.Wrap(err, "insert runner")
		}
		docs = append(docs, it.Document)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	return s.GetRunnersByDocuments(ctx, docs)
}

func (s *Storage) GetRunnersByDocuments(ctx context.Context, documents []string) ([]*models.Runner, error) {
	if len(documents) == 0 {
		return []*models.Runner{}, nil
	}

	rows, err := s.db.Query(ctx, `
SELECT id, document, name, nationality, birth_date, phone, email, created_at
FROM runners
WHERE document = ANY($1)
`, documents)
	if err != nil {
		return nil, errors.Wrap(err, "select runners")
	}
	defer rows.Close()

	out := make([]*models.Runner, 0, len(documents))
	for rows.Next() {
		var r models.Runner
		if err := rows.Scan(
			&r.ID, &r.Document, &r.Name, &r.Nationality, &r.BirthDate, &r.Phone, &r.Email, &r.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan runner")
		}
		out = append(out, &r)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
