// Package statelock provides a per-session async mutex with FIFO
// acquisition and a timeout, used to serialize scenario-state mutations
// arriving concurrently from the heartbeat, intent handlers, and adapter
// callbacks.
package statelock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/simbridge/medsim/internal/gatewayerr"
)

const (
	defaultTimeout          = 5 * time.Second
	contentionWarnThreshold = 100 * time.Millisecond
)

// Lock is a FIFO-acquiring timed mutex, one per session. Safe for
// concurrent use.
type Lock struct {
	name    string
	timeout time.Duration

	// ch is a 1-buffered channel used as a ticket mutex: acquiring means
	// receiving the single token, releasing means sending it back. Waiters
	// queue on the channel receive in FIFO order.
	ch chan struct{}
}

// New creates a [Lock] for the named session. timeout defaults to 5s if
// zero or negative.
func New(name string, timeout time.Duration) *Lock {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	l := &Lock{name: name, timeout: timeout, ch: make(chan struct{}, 1)}
	l.ch <- struct{}{}
	return l
}

// WithStateLock runs fn while holding the lock, naming the critical section
// operation for logging. If the lock cannot be acquired within the
// configured timeout, fn is not called and a
// [gatewayerr.KindStateLockTimeout] error is returned; no partial mutation
// occurs. Contention exceeding 100ms is logged as a warning.
func (l *Lock) WithStateLock(ctx context.Context, operation string, fn func() error) error {
	start := time.Now()

	timeoutCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	select {
	case <-l.ch:
	case <-timeoutCtx.Done():
		return gatewayerr.NewStateLockTimeout("statelock", fmt.Sprintf("%s/%s", l.name, operation))
	}

	if waited := time.Since(start); waited > contentionWarnThreshold {
		slog.Warn("state lock contention",
			"session_id", l.name,
			"operation", operation,
			"waited", waited,
		)
	}

	defer func() { l.ch <- struct{}{} }()

	return fn()
}

// TryWithStateLock attempts the critical section without blocking. If the
// lock is currently held, it returns false immediately without calling fn,
// for best-effort low-priority work that should not wait behind a handler.
// The returned error is fn's error when
// acquired, nil otherwise.
func (l *Lock) TryWithStateLock(operation string, fn func() error) (acquired bool, err error) {
	select {
	case <-l.ch:
	default:
		return false, nil
	}

	defer func() { l.ch <- struct{}{} }()

	return true, fn()
}

// Registry manages one [Lock] per session, created lazily.
type Registry struct {
	timeout time.Duration

	mu    sync.Mutex
	locks map[string]*Lock
}

// NewRegistry creates a [Registry] whose locks all share the given timeout
// (5s default if zero).
func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{timeout: timeout, locks: make(map[string]*Lock)}
}

// Get returns the [Lock] for sessionID, creating it on first use.
func (r *Registry) Get(sessionID string) *Lock {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[sessionID]
	if !ok {
		l = New(sessionID, r.timeout)
		r.locks[sessionID] = l
	}
	return l
}

// Remove discards the lock for sessionID, called on session-empty cleanup.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.locks, sessionID)
}
