// Package mock provides an in-memory test double for [persistence.Store].
package mock

import (
	"context"
	"sync"

	"github.com/simbridge/medsim/pkg/persistence"
)

// Store is a configurable, call-recording test double for [persistence.Store].
// All methods are safe for concurrent use.
type Store struct {
	mu sync.Mutex

	snapshots map[string]persistence.Snapshot
	events    []persistence.Event

	// SaveSnapshotErr, if non-nil, is returned from every SaveSnapshot call.
	SaveSnapshotErr error

	// LoadSnapshotErr, if non-nil, is returned from every LoadSnapshot call.
	LoadSnapshotErr error

	// AppendEventErr, if non-nil, is returned from every AppendEvent call.
	AppendEventErr error
}

var _ persistence.Store = (*Store)(nil)

// New creates an empty mock Store.
func New() *Store {
	return &Store{snapshots: make(map[string]persistence.Snapshot)}
}

func (s *Store) SaveSnapshot(_ context.Context, snap persistence.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveSnapshotErr != nil {
		return s.SaveSnapshotErr
	}
	s.snapshots[snap.SessionID] = snap
	return nil
}

func (s *Store) LoadSnapshot(_ context.Context, sessionID string) (*persistence.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadSnapshotErr != nil {
		return nil, s.LoadSnapshotErr
	}
	snap, ok := s.snapshots[sessionID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (s *Store) AppendEvent(_ context.Context, evt persistence.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AppendEventErr != nil {
		return s.AppendEventErr
	}
	s.events = append(s.events, evt)
	return nil
}

// Events returns every event appended so far, in order.
func (s *Store) Events() []persistence.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]persistence.Event, len(s.events))
	copy(out, s.events)
	return out
}
