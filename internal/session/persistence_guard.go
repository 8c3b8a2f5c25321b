package session

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/simbridge/medsim/pkg/persistence"
)

// PersistenceGuard wraps a [persistence.Store] and makes all operations
// non-fatal. If the underlying store fails, operations are logged and
// swallowed instead of propagating an error into the session's critical
// path, matching the "failures are logged but never thrown up" contract of
// the persistence adapter.
//
// PersistenceGuard implements [persistence.Store].
//
// All methods are safe for concurrent use.
type PersistenceGuard struct {
	store    persistence.Store
	degraded atomic.Bool
}

// NewPersistenceGuard creates a new [PersistenceGuard] wrapping the given
// store.
func NewPersistenceGuard(store persistence.Store) *PersistenceGuard {
	return &PersistenceGuard{store: store}
}

// SaveSnapshot attempts to save snap to the underlying store. On failure the
// error is logged and swallowed; the guard is marked as degraded.
func (g *PersistenceGuard) SaveSnapshot(ctx context.Context, snap persistence.Snapshot) error {
	err := g.store.SaveSnapshot(ctx, snap)
	if err != nil {
		g.degraded.Store(true)
		slog.Warn("persistence guard: SaveSnapshot failed, swallowing error",
			"session_id", snap.SessionID,
			"error", err,
		)
		return nil
	}
	g.degraded.Store(false)
	return nil
}

// LoadSnapshot attempts to load the snapshot for sessionID. On failure nil
// is returned and the guard is marked as degraded.
func (g *PersistenceGuard) LoadSnapshot(ctx context.Context, sessionID string) (*persistence.Snapshot, error) {
	snap, err := g.store.LoadSnapshot(ctx, sessionID)
	if err != nil {
		g.degraded.Store(true)
		slog.Warn("persistence guard: LoadSnapshot failed, returning none",
			"session_id", sessionID,
			"error", err,
		)
		return nil, nil
	}
	g.degraded.Store(false)
	return snap, nil
}

// AppendEvent attempts to append evt to the underlying store. On failure the
// error is logged and swallowed; the guard is marked as degraded.
func (g *PersistenceGuard) AppendEvent(ctx context.Context, evt persistence.Event) error {
	err := g.store.AppendEvent(ctx, evt)
	if err != nil {
		g.degraded.Store(true)
		slog.Warn("persistence guard: AppendEvent failed, swallowing error",
			"session_id", evt.SessionID,
			"type", evt.Type,
			"error", err,
		)
		return nil
	}
	g.degraded.Store(false)
	return nil
}

// IsDegraded reports whether the store is currently operating in degraded
// mode (i.e., the most recent operation on the underlying store failed).
func (g *PersistenceGuard) IsDegraded() bool {
	return g.degraded.Load()
}

// Compile-time check that PersistenceGuard satisfies persistence.Store.
var _ persistence.Store = (*PersistenceGuard)(nil)
