// Package eventlog provides an in-memory, append-only ring of per-session
// scenario/tool/voice/budget events, used for tracing and best-effort
// forwarded to the persistence adapter's event stream.
package eventlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/simbridge/medsim/pkg/persistence"
)

// Entry is one recorded event.
type Entry struct {
	Ts   time.Time
	Type string
	Data map[string]any
}

// defaultCapacity is the number of entries retained per session before the
// oldest are evicted.
const defaultCapacity = 500

// Log is a per-session append-only ring of [Entry] values, also forwarded
// (best-effort) to a [persistence.Store] as events. Safe for concurrent use.
type Log struct {
	store     persistence.Store
	sessionID string
	capacity  int

	mu      sync.Mutex
	entries []Entry
	next    int // insertion index into entries once ring is full
	full    bool
}

// Config configures a [Log].
type Config struct {
	// Store receives every appended entry as a persistence event,
	// best-effort. May be nil to disable forwarding.
	Store persistence.Store

	// SessionID tags forwarded events.
	SessionID string

	// Capacity bounds the number of entries retained in memory. Defaults to
	// 500 if zero.
	Capacity int
}

// New creates an empty [Log].
func New(cfg Config) *Log {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Log{
		store:     cfg.Store,
		sessionID: cfg.SessionID,
		capacity:  capacity,
		entries:   make([]Entry, capacity),
	}
}

// Append records an event of the given type with attached data, evicting the
// oldest entry if the ring is full, and forwards it to the persistence store
// best-effort (a forwarding failure is logged, never returned to the
// caller — the in-memory ring is always up to date regardless).
func (l *Log) Append(ctx context.Context, eventType string, data map[string]any) {
	entry := Entry{Ts: time.Now(), Type: eventType, Data: data}

	l.mu.Lock()
	l.entries[l.next] = entry
	l.next = (l.next + 1) % l.capacity
	if l.next == 0 {
		l.full = true
	}
	l.mu.Unlock()

	if l.store == nil {
		return
	}
	if err := l.store.AppendEvent(ctx, persistence.Event{
		SessionID: l.sessionID,
		Type:      eventType,
		Data:      data,
		Ts:        entry.Ts,
	}); err != nil {
		slog.Warn("eventlog: failed to forward event to persistence store",
			"session_id", l.sessionID,
			"type", eventType,
			"error", err,
		)
	}
}

// Recent returns the retained entries in chronological order (oldest
// first). The returned slice is a copy.
func (l *Log) Recent() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.full {
		out := make([]Entry, l.next)
		copy(out, l.entries[:l.next])
		return out
	}

	out := make([]Entry, l.capacity)
	copy(out, l.entries[l.next:])
	copy(out[l.capacity-l.next:], l.entries[:l.next])
	return out
}

// Len returns the number of entries currently retained.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.full {
		return l.capacity
	}
	return l.next
}
