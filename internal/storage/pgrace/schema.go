package pgrace

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS runners (
  id BIGSERIAL PRIMARY KEY,
  document TEXT NOT NULL,
  name TEXT NOT NULL,
  nationality TEXT NOT NULL DEFAULT '',
  birth_date TEXT NOT NULL DEFAULT '',
  phone TEXT NOT NULL DEFAULT '',
  email TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL,
  UNIQUE (document)
)`,
		`
CREATE TABLE IF NOT EXISTS races (
  id BIGSERIAL PRIMARY KEY,
  race_key TEXT NOT NULL,
  name TEXT NOT NULL,
  start_at TIMESTAMPTZ NULL,
  registration_opens_at TIMESTAMPTZ NULL,
  participant_limit INT NOT NULL DEFAULT 0,
  section_count INT NOT NULL CHECK (section_count >= 1),
  terminated BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  UNIQUE (race_key)
)`,
		`
CREATE TABLE IF NOT EXISTS records (
  id BIGSERIAL PRIMARY KEY,
  race_key TEXT NOT NULL REFERENCES races(race_key) ON DELETE CASCADE,
  runner_document TEXT NOT NULL REFERENCES runners(document),
  bib INT NOT NULL,
  times TIMESTAMPTZ[] NOT NULL DEFAULT '{}',
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  UNIQUE (race_key, runner_document)
)`,
		`CREATE INDEX IF NOT EXISTS idx_records_race_key ON records(race_key)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
