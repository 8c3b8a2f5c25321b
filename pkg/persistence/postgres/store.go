// Package postgres is a PostgreSQL-backed implementation of
// [persistence.Store], storing one row per session for the latest snapshot
// and an append-only table for the event stream.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/simbridge/medsim/pkg/persistence"
)

var _ persistence.Store = (*Store)(nil)

const ddlSnapshots = `
CREATE TABLE IF NOT EXISTS session_snapshots (
    session_id TEXT        PRIMARY KEY,
    state      JSONB        NOT NULL,
    saved_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);`

const ddlEvents = `
CREATE TABLE IF NOT EXISTS session_events (
    id         BIGSERIAL    PRIMARY KEY,
    session_id TEXT         NOT NULL,
    type       TEXT         NOT NULL,
    data       JSONB        NOT NULL DEFAULT '{}',
    ts         TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_session_events_session_id ON session_events (session_id, ts);`

// Store is a PostgreSQL-backed [persistence.Store].
//
// All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the PostgreSQL database at dsn and ensures the
// snapshot and event tables exist.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence/postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("persistence/postgres: ping: %w", err)
	}
	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("persistence/postgres: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlSnapshots); err != nil {
		return fmt.Errorf("create session_snapshots: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlEvents); err != nil {
		return fmt.Errorf("create session_events: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// SaveSnapshot upserts the latest snapshot for snap.SessionID.
func (s *Store) SaveSnapshot(ctx context.Context, snap persistence.Snapshot) error {
	const q = `
		INSERT INTO session_snapshots (session_id, state, saved_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE SET state = EXCLUDED.state, saved_at = EXCLUDED.saved_at`

	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	if _, err := s.pool.Exec(ctx, q, snap.SessionID, snap.State, savedAt); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the most recently saved snapshot for sessionID, or
// (nil, nil) when none exists.
func (s *Store) LoadSnapshot(ctx context.Context, sessionID string) (*persistence.Snapshot, error) {
	const q = `SELECT state, saved_at FROM session_snapshots WHERE session_id = $1`

	var state json.RawMessage
	var savedAt time.Time
	err := s.pool.QueryRow(ctx, q, sessionID).Scan(&state, &savedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	return &persistence.Snapshot{SessionID: sessionID, State: state, SavedAt: savedAt}, nil
}

// AppendEvent appends evt to the session_events table.
func (s *Store) AppendEvent(ctx context.Context, evt persistence.Event) error {
	const q = `INSERT INTO session_events (session_id, type, data, ts) VALUES ($1, $2, $3, $4)`

	data, err := json.Marshal(evt.Data)
	if err != nil {
		return fmt.Errorf("append event: marshal data: %w", err)
	}

	ts := evt.Ts
	if ts.IsZero() {
		ts = time.Now()
	}

	if _, err := s.pool.Exec(ctx, q, evt.SessionID, evt.Type, data, ts); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}
