package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/simbridge/medsim/internal/costctl"
	"github.com/simbridge/medsim/internal/eventlog"
	"github.com/simbridge/medsim/internal/scenario"
	"github.com/simbridge/medsim/internal/statelock"
	"github.com/simbridge/medsim/pkg/persistence"
	"github.com/simbridge/medsim/pkg/provider/realtime"
	"github.com/simbridge/medsim/pkg/provider/stt"
)

// Runtime is the full set of live state for one session: the scenario
// engine, its definition, the lock serializing mutations, the event log,
// the cost controller, and whatever voice-path sessions are currently open.
// Every field below the lock line is mutated only while holding lock.
type Runtime struct {
	SessionID string
	Def       *scenario.ScenarioDefinition
	Engine    *scenario.Engine

	lock   *statelock.Lock
	events *eventlog.Log
	cost   *costctl.Controller
	store  persistence.Store

	voiceMu    sync.Mutex
	realtime   realtime.Session // non-nil once connected for the patient voice
	sttSession stt.SessionHandle
	aiPaused   bool
	lastCmdAt  map[string]time.Time
	transcript []transcriptTurn

	// dueOrders tracks pending orders' ETAs so the heartbeat can auto-complete
	// them. Only ever touched while r.lock is held (submission happens inside
	// dispatchCommand's locked section, draining happens inside the
	// heartbeat's locked tick), so it needs no mutex of its own.
	dueOrders map[string]dueOrder
}

type dueOrder struct {
	orderType scenario.OrderType
	dueAt     time.Time
}

type transcriptTurn struct {
	speaker string
	text    string
	ts      time.Time
}

// newRuntime constructs a Runtime with a freshly built engine and, when store
// has a prior snapshot for sessionID, hydrates from it instead of starting
// cold.
func newRuntime(ctx context.Context, sessionID string, def *scenario.ScenarioDefinition, locks *statelock.Registry, store persistence.Store, cost costctl.Config, eventCapacity int, now time.Time) *Runtime {
	eng := buildEngine(def, now)

	if store != nil {
		if snap, err := store.LoadSnapshot(ctx, sessionID); err == nil && snap != nil {
			var state scenario.State
			if json.Unmarshal(snap.State, &state) == nil {
				eng.Hydrate(state)
			}
		}
	}

	return &Runtime{
		SessionID: sessionID,
		Def:       def,
		Engine:    eng,
		lock:      locks.Get(sessionID),
		events:    eventlog.New(eventlog.Config{Store: store, SessionID: sessionID, Capacity: eventCapacity}),
		cost:      costctl.New(cost),
		store:     store,
		lastCmdAt: make(map[string]time.Time),
		dueOrders: make(map[string]dueOrder),
	}
}

// persist saves the current engine state as the session's snapshot,
// best-effort.
func (r *Runtime) persist(ctx context.Context) {
	if r.store == nil {
		return
	}
	data, err := json.Marshal(r.Engine.State())
	if err != nil {
		return
	}
	_ = r.store.SaveSnapshot(ctx, persistence.Snapshot{
		SessionID: r.SessionID,
		State:     data,
		SavedAt:   time.Now(),
	})
}
