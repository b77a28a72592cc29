package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_turns (
	id         BIGSERIAL PRIMARY KEY,
	session_id TEXT        NOT NULL,
	role       TEXT        NOT NULL,
	text       TEXT        NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_session_turns_session
	ON session_turns (session_id, created_at);

CREATE TABLE IF NOT EXISTS session_corrections (
	id         BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL,
	kind       TEXT NOT NULL,
	original   TEXT NOT NULL,
	corrected  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_session_corrections_session
	ON session_corrections (session_id);
`

// Migrate creates or ensures the required tables and indexes exist. It is
// idempotent and safe to run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}
