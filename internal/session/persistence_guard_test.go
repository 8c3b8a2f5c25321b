package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/simbridge/medsim/pkg/persistence"
	persistmock "github.com/simbridge/medsim/pkg/persistence/mock"
)

func TestPersistenceGuard_SaveSnapshot_Success(t *testing.T) {
	store := persistmock.New()
	g := NewPersistenceGuard(store)

	err := g.SaveSnapshot(context.Background(), persistence.Snapshot{SessionID: "s1", State: []byte(`{}`)})
	require.NoError(t, err)
	require.False(t, g.IsDegraded())
}

func TestPersistenceGuard_SaveSnapshot_FailureIsSwallowed(t *testing.T) {
	store := persistmock.New()
	store.SaveSnapshotErr = errors.New("disk full")
	g := NewPersistenceGuard(store)

	err := g.SaveSnapshot(context.Background(), persistence.Snapshot{SessionID: "s1"})
	require.NoError(t, err)
	require.True(t, g.IsDegraded())
}

func TestPersistenceGuard_RecoversFromDegradedAfterSuccess(t *testing.T) {
	store := persistmock.New()
	store.SaveSnapshotErr = errors.New("temporary failure")
	g := NewPersistenceGuard(store)

	_ = g.SaveSnapshot(context.Background(), persistence.Snapshot{SessionID: "s1"})
	require.True(t, g.IsDegraded())

	store.SaveSnapshotErr = nil
	_ = g.SaveSnapshot(context.Background(), persistence.Snapshot{SessionID: "s1"})
	require.False(t, g.IsDegraded())
}

func TestPersistenceGuard_LoadSnapshot_Success(t *testing.T) {
	store := persistmock.New()
	require.NoError(t, store.SaveSnapshot(context.Background(), persistence.Snapshot{SessionID: "s1", State: []byte(`{"a":1}`)}))
	g := NewPersistenceGuard(store)

	got, err := g.LoadSnapshot(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.JSONEq(t, `{"a":1}`, string(got.State))
}

func TestPersistenceGuard_LoadSnapshot_FailureReturnsNilNotError(t *testing.T) {
	store := persistmock.New()
	store.LoadSnapshotErr = errors.New("connection refused")
	g := NewPersistenceGuard(store)

	got, err := g.LoadSnapshot(context.Background(), "s1")
	require.NoError(t, err)
	require.Nil(t, got)
	require.True(t, g.IsDegraded())
}

func TestPersistenceGuard_AppendEvent_Success(t *testing.T) {
	store := persistmock.New()
	g := NewPersistenceGuard(store)

	err := g.AppendEvent(context.Background(), persistence.Event{SessionID: "s1", Type: "budget.soft", Ts: time.Now()})
	require.NoError(t, err)
	require.Len(t, store.Events(), 1)
}

func TestPersistenceGuard_AppendEvent_FailureIsSwallowed(t *testing.T) {
	store := persistmock.New()
	store.AppendEventErr = errors.New("index corrupted")
	g := NewPersistenceGuard(store)

	err := g.AppendEvent(context.Background(), persistence.Event{SessionID: "s1", Type: "budget.soft"})
	require.NoError(t, err)
	require.True(t, g.IsDegraded())
}

func TestPersistenceGuard_IsDegraded_InitiallyFalse(t *testing.T) {
	g := NewPersistenceGuard(persistmock.New())
	require.False(t, g.IsDegraded())
}

func TestPersistenceGuard_MixedOperationsTrackDegradedState(t *testing.T) {
	store := persistmock.New()
	g := NewPersistenceGuard(store)

	require.NoError(t, g.SaveSnapshot(context.Background(), persistence.Snapshot{SessionID: "s1"}))
	require.False(t, g.IsDegraded())

	store.AppendEventErr = errors.New("oops")
	_ = g.AppendEvent(context.Background(), persistence.Event{SessionID: "s1"})
	require.True(t, g.IsDegraded())

	store.AppendEventErr = nil
	require.NoError(t, g.SaveSnapshot(context.Background(), persistence.Snapshot{SessionID: "s1"}))
	require.False(t, g.IsDegraded())
}

func TestPersistenceGuard_ImplementsStore(t *testing.T) {
	var _ persistence.Store = NewPersistenceGuard(persistmock.New())
}
