// Package session implements the connection-fan-out and speaking-floor
// manager: one record per running simulation session, tracking the live
// connections on each side of the gateway and mediating who may speak.
package session

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Role distinguishes the two connection populations a session tracks. A
// presenter runs the scenario (the facilitator console); a participant is a
// learner taking part in the simulation.
type Role string

const (
	RolePresenter   Role = "presenter"
	RoleParticipant Role = "participant"
)

// Conn is anything the manager can push a serialized outbound frame to. The
// production implementation wraps a single WebSocket connection; tests use
// an in-memory recorder.
type Conn interface {
	Send(data []byte) error
}

// record holds the per-session state: the live connections by role, the
// current floor holder, and the fallback flag.
type record struct {
	mu           sync.Mutex
	byRole       map[Role]map[Conn]struct{}
	floorHolder  string // userId, empty when unheld
	fallback     bool
	emptyFired   bool
}

func newRecord() *record {
	return &record{
		byRole: map[Role]map[Conn]struct{}{
			RolePresenter:   {},
			RoleParticipant: {},
		},
	}
}

func (r *record) isEmpty() bool {
	return len(r.byRole[RolePresenter]) == 0 && len(r.byRole[RoleParticipant]) == 0
}

// Manager tracks every live session's connections, fans out broadcasts, and
// arbitrates the single-holder speaking floor. Safe for concurrent use.
type Manager struct {
	mu   sync.Mutex
	sess map[string]*record

	// onSessionEmpty is invoked exactly once, outside the manager's lock,
	// when a session's last connection disconnects.
	onSessionEmpty func(sessionID string)
}

// NewManager creates an empty Manager. onSessionEmpty may be nil.
func NewManager(onSessionEmpty func(sessionID string)) *Manager {
	return &Manager{
		sess:           make(map[string]*record),
		onSessionEmpty: onSessionEmpty,
	}
}

// AddClient inserts conn into sessionID's role set, creating the session
// record if this is the first client to join it.
func (m *Manager) AddClient(sessionID string, role Role, conn Conn) {
	m.mu.Lock()
	rec, ok := m.sess[sessionID]
	if !ok {
		rec = newRecord()
		m.sess[sessionID] = rec
	}
	m.mu.Unlock()

	rec.mu.Lock()
	rec.byRole[role][conn] = struct{}{}
	rec.mu.Unlock()
}

// RemoveClient removes conn from sessionID's role set. If both role sets are
// now empty, onSessionEmpty fires exactly once and the record is dropped.
func (m *Manager) RemoveClient(sessionID string, role Role, conn Conn) {
	m.mu.Lock()
	rec, ok := m.sess[sessionID]
	m.mu.Unlock()
	if !ok {
		return
	}

	rec.mu.Lock()
	delete(rec.byRole[role], conn)
	fireEmpty := rec.isEmpty() && !rec.emptyFired
	if fireEmpty {
		rec.emptyFired = true
	}
	rec.mu.Unlock()

	if !fireEmpty {
		return
	}

	m.mu.Lock()
	delete(m.sess, sessionID)
	m.mu.Unlock()

	if m.onSessionEmpty != nil {
		m.onSessionEmpty(sessionID)
	}
}

// BroadcastToSession serializes msg once and sends it to every live
// connection in sessionID, presenters and participants alike. A failing send
// is logged and does not affect siblings.
func (m *Manager) BroadcastToSession(sessionID string, msg any) {
	m.broadcast(sessionID, msg, RolePresenter, RoleParticipant)
}

// BroadcastToPresenters sends msg only to the session's presenter
// connections.
func (m *Manager) BroadcastToPresenters(sessionID string, msg any) {
	m.broadcast(sessionID, msg, RolePresenter)
}

// BroadcastToParticipants sends msg only to the session's participant
// connections.
func (m *Manager) BroadcastToParticipants(sessionID string, msg any) {
	m.broadcast(sessionID, msg, RoleParticipant)
}

func (m *Manager) broadcast(sessionID string, msg any, roles ...Role) {
	m.mu.Lock()
	rec, ok := m.sess[sessionID]
	m.mu.Unlock()
	if !ok {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("broadcast: marshal failed", "session_id", sessionID, "error", err)
		return
	}

	rec.mu.Lock()
	var targets []Conn
	for _, role := range roles {
		for c := range rec.byRole[role] {
			targets = append(targets, c)
		}
	}
	rec.mu.Unlock()

	for _, c := range targets {
		if err := c.Send(data); err != nil {
			slog.Warn("broadcast: send failed, dropping for this connection", "session_id", sessionID, "error", err)
		}
	}
}

// FloorGrant is the result of a RequestFloor call.
type FloorGrant struct {
	Granted  bool
	Previous string // previous holder's userId, set only when a different user held the floor
}

// RequestFloor grants the speaking floor to userId if it is unheld or
// already held by userId. If a different user holds it, RequestFloor denies
// the request and returns the previous holder so the caller can notify them.
// Ties are broken first-writer-wins: the existing holder is never displaced
// by a later request.
func (m *Manager) RequestFloor(sessionID, userID string) FloorGrant {
	m.mu.Lock()
	rec, ok := m.sess[sessionID]
	m.mu.Unlock()
	if !ok {
		return FloorGrant{Granted: false}
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.floorHolder == "" || rec.floorHolder == userID {
		rec.floorHolder = userID
		return FloorGrant{Granted: true}
	}
	return FloorGrant{Granted: false, Previous: rec.floorHolder}
}

// ReleaseFloor releases the floor only when userId currently holds it.
// Returns true if the floor was released.
func (m *Manager) ReleaseFloor(sessionID, userID string) bool {
	m.mu.Lock()
	rec, ok := m.sess[sessionID]
	m.mu.Unlock()
	if !ok {
		return false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.floorHolder != userID {
		return false
	}
	rec.floorHolder = ""
	return true
}

// FloorHolder returns the current floor holder's userId, or "" if unheld.
func (m *Manager) FloorHolder(sessionID string) string {
	m.mu.Lock()
	rec, ok := m.sess[sessionID]
	m.mu.Unlock()
	if !ok {
		return ""
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.floorHolder
}

// SetFallback sets the session-scoped voice-fallback flag.
func (m *Manager) SetFallback(sessionID string, fallback bool) {
	m.mu.Lock()
	rec, ok := m.sess[sessionID]
	m.mu.Unlock()
	if !ok {
		return
	}
	rec.mu.Lock()
	rec.fallback = fallback
	rec.mu.Unlock()
}

// IsFallback reports whether sessionID is currently in voice fallback.
// Returns false for an unknown session.
func (m *Manager) IsFallback(sessionID string) bool {
	m.mu.Lock()
	rec, ok := m.sess[sessionID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.fallback
}
