package migrations

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var Migrations = migrate.NewMigrations()

const createSchemaSQL = `
CREATE TABLE IF NOT EXISTS quizzes (
    id   TEXT PRIMARY KEY,
    data JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
    id          TEXT PRIMARY KEY,
    quiz_id     TEXT NOT NULL,
    host_id     TEXT NOT NULL,
    code        TEXT NOT NULL UNIQUE,
    token       TEXT NOT NULL UNIQUE,
    is_active   BOOLEAN NOT NULL DEFAULT TRUE,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS sessions_active_idx ON sessions (is_active);

CREATE TABLE IF NOT EXISTS participants (
    id           TEXT PRIMARY KEY,
    session_id   TEXT NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
    user_id      TEXT NOT NULL DEFAULT '',
    display_name TEXT NOT NULL,
    joined_at    TIMESTAMPTZ NOT NULL,
    jokers_used  INTEGER NOT NULL DEFAULT 0,
    UNIQUE (session_id, display_name)
);

CREATE TABLE IF NOT EXISTS question_runs (
    id               TEXT PRIMARY KEY,
    session_id       TEXT NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
    question_id      TEXT NOT NULL,
    run_order        INTEGER NOT NULL,
    duration_seconds INTEGER NOT NULL,
    starts_at        TIMESTAMPTZ,
    ends_at          TIMESTAMPTZ,
    UNIQUE (session_id, run_order)
);

CREATE TABLE IF NOT EXISTS responses (
    id              TEXT PRIMARY KEY,
    question_run_id TEXT NOT NULL REFERENCES question_runs (id) ON DELETE CASCADE,
    participant_id  TEXT NOT NULL REFERENCES participants (id) ON DELETE CASCADE,
    option_id       TEXT NOT NULL,
    is_correct      BOOLEAN NOT NULL,
    latency_ms      INTEGER NOT NULL,
    answered_at     TIMESTAMPTZ NOT NULL,
    UNIQUE (question_run_id, participant_id)
);
CREATE INDEX IF NOT EXISTS responses_participant_idx ON responses (participant_id);
`

const dropSchemaSQL = `
DROP TABLE IF EXISTS responses;
DROP TABLE IF EXISTS question_runs;
DROP TABLE IF EXISTS participants;
DROP TABLE IF EXISTS sessions;
DROP TABLE IF EXISTS quizzes;
`

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createSchemaSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, dropSchemaSQL)
			return err
		},
	)
}
