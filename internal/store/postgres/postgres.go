// Package postgres persists transcript turns and correction records.
//
// The session manager treats persistence as a downstream consumer: turns and
// corrections are handed off as they finalise, and a write failure never
// interrupts the live conversation.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxtutor/voxtutor/pkg/types"
)

// Store writes transcript turns and corrections to PostgreSQL.
// All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database at dsn and ensures the schema exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool. The caller is responsible for running
// [Migrate]. Used by tests that manage their own pool lifecycle.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// WriteTurn appends one finalised transcript turn for sessionID.
func (s *Store) WriteTurn(ctx context.Context, sessionID string, turn types.TranscriptTurn) error {
	const q = `
		INSERT INTO session_turns (session_id, role, text, created_at)
		VALUES ($1, $2, $3, $4)`

	_, err := s.pool.Exec(ctx, q, sessionID, string(turn.Role), turn.Text, turn.Timestamp)
	if err != nil {
		return fmt.Errorf("store: write turn: %w", err)
	}
	return nil
}

// WriteCorrection appends one correction record for sessionID.
func (s *Store) WriteCorrection(ctx context.Context, sessionID string, rec types.CorrectionRecord) error {
	const q = `
		INSERT INTO session_corrections (session_id, kind, original, corrected)
		VALUES ($1, $2, $3, $4)`

	_, err := s.pool.Exec(ctx, q, sessionID, string(rec.Kind), rec.Original, rec.Corrected)
	if err != nil {
		return fmt.Errorf("store: write correction: %w", err)
	}
	return nil
}

// Turns returns all turns for sessionID in chronological order.
func (s *Store) Turns(ctx context.Context, sessionID string) ([]types.TranscriptTurn, error) {
	const q = `
		SELECT role, text, created_at
		FROM   session_turns
		WHERE  session_id = $1
		ORDER  BY created_at, id`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: list turns: %w", err)
	}
	defer rows.Close()

	var turns []types.TranscriptTurn
	for rows.Next() {
		var (
			role string
			t    types.TranscriptTurn
		)
		if err := rows.Scan(&role, &t.Text, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("store: scan turn: %w", err)
		}
		t.Role = types.Role(role)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate turns: %w", err)
	}
	return turns, nil
}

// Corrections returns all correction records for sessionID in insertion
// order.
func (s *Store) Corrections(ctx context.Context, sessionID string) ([]types.CorrectionRecord, error) {
	const q = `
		SELECT kind, original, corrected
		FROM   session_corrections
		WHERE  session_id = $1
		ORDER  BY id`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: list corrections: %w", err)
	}
	defer rows.Close()

	var recs []types.CorrectionRecord
	for rows.Next() {
		var (
			kind string
			r    types.CorrectionRecord
		)
		if err := rows.Scan(&kind, &r.Original, &r.Corrected); err != nil {
			return nil, fmt.Errorf("store: scan correction: %w", err)
		}
		r.Kind = types.CorrectionKind(kind)
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate corrections: %w", err)
	}
	return recs, nil
}

// Ping verifies database connectivity. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
