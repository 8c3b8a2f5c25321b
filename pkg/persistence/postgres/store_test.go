package postgres_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/simbridge/medsim/pkg/persistence"
	"github.com/simbridge/medsim/pkg/persistence/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if MEDSIM_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("MEDSIM_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MEDSIM_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	cleanPool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(cleanPool.Close)
	_, err = cleanPool.Exec(ctx, `DROP TABLE IF EXISTS session_snapshots, session_events`)
	require.NoError(t, err)

	store, err := postgres.NewStore(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestSaveAndLoadSnapshot_RoundTrips(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	state, err := json.Marshal(map[string]any{"stageId": "svt_onset"})
	require.NoError(t, err)

	require.NoError(t, store.SaveSnapshot(ctx, persistence.Snapshot{
		SessionID: "sess-1", State: state, SavedAt: time.Now(),
	}))

	got, err := store.LoadSnapshot(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.JSONEq(t, string(state), string(got.State))
}

func TestLoadSnapshot_UnknownSessionReturnsNil(t *testing.T) {
	store := newTestStore(t)
	got, err := store.LoadSnapshot(context.Background(), "nonexistent")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSaveSnapshot_OverwritesPrevious(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, _ := json.Marshal(map[string]any{"stageId": "presentation"})
	second, _ := json.Marshal(map[string]any{"stageId": "treatment"})

	require.NoError(t, store.SaveSnapshot(ctx, persistence.Snapshot{SessionID: "sess-1", State: first}))
	require.NoError(t, store.SaveSnapshot(ctx, persistence.Snapshot{SessionID: "sess-1", State: second}))

	got, err := store.LoadSnapshot(ctx, "sess-1")
	require.NoError(t, err)
	require.JSONEq(t, string(second), string(got.State))
}

func TestAppendEvent_Succeeds(t *testing.T) {
	store := newTestStore(t)
	err := store.AppendEvent(context.Background(), persistence.Event{
		SessionID: "sess-1",
		Type:      "tool.intent.accepted",
		Data:      map[string]any{"intent": "intent_applyTreatment"},
		Ts:        time.Now(),
	})
	require.NoError(t, err)
}
