package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/simbridge/medsim/pkg/provider/realtime"
)

// Default reconnection parameters.
const (
	defaultMaxRetries = 10
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// Reconnector monitors a realtime provider session and automatically
// reconnects on disconnection, preserving the character's configuration
// (voice, instructions, tools) across the new session.
//
// Callers obtain the initial session via [Reconnector.Connect], then rely on
// the Callbacks' OnDisconnect hook (wired in automatically) to trigger
// reconnection with exponential backoff. On success the configured
// OnReconnect callback is invoked with the new session.
//
// All methods are safe for concurrent use.
type Reconnector struct {
	provider    realtime.Provider
	cfg         realtime.SessionConfig
	maxRetries  int
	backoff     time.Duration
	maxBackoff  time.Duration
	onReconnect func(realtime.Session)
	onGiveUp    func(err error)

	mu       sync.Mutex
	sess     realtime.Session
	done     chan struct{}
	stopOnce sync.Once
}

// ReconnectorConfig configures a [Reconnector].
type ReconnectorConfig struct {
	// Provider is the realtime backend used to establish sessions.
	Provider realtime.Provider

	// SessionConfig is used for the initial connection and every
	// reconnection attempt. Its Callbacks.OnDisconnect is wrapped to trigger
	// automatic reconnection; the caller's own OnDisconnect (if set) is
	// still invoked first, for every disconnect including transient ones.
	SessionConfig realtime.SessionConfig

	// MaxRetries is the maximum number of reconnection attempts before giving up.
	// Defaults to 10 if zero.
	MaxRetries int

	// Backoff is the initial backoff duration between retries. Doubles each
	// attempt up to MaxBackoff. Defaults to 1s if zero.
	Backoff time.Duration

	// MaxBackoff is the upper limit on backoff duration. Defaults to 30s if zero.
	MaxBackoff time.Duration

	// OnReconnect is called after a successful reconnection with the new
	// session. May be nil.
	OnReconnect func(realtime.Session)

	// OnGiveUp is called if reconnection fails after MaxRetries attempts.
	// May be nil.
	OnGiveUp func(err error)
}

// NewReconnector creates a new [Reconnector] with the given configuration.
func NewReconnector(cfg ReconnectorConfig) *Reconnector {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	return &Reconnector{
		provider:    cfg.Provider,
		cfg:         cfg.SessionConfig,
		maxRetries:  maxRetries,
		backoff:     backoff,
		maxBackoff:  maxBackoff,
		onReconnect: cfg.OnReconnect,
		onGiveUp:    cfg.OnGiveUp,
		done:        make(chan struct{}),
	}
}

// Connect performs the initial connection, wrapping the caller's
// OnDisconnect so that an unexpected disconnect (err != nil) triggers
// automatic reconnection with exponential backoff.
func (r *Reconnector) Connect(ctx context.Context) (realtime.Session, error) {
	sess, err := r.provider.Connect(ctx, r.sessionConfig())
	if err != nil {
		return nil, fmt.Errorf("reconnector initial connect: %w", err)
	}

	r.mu.Lock()
	r.sess = sess
	r.mu.Unlock()

	return sess, nil
}

// sessionConfig returns a copy of r.cfg with OnDisconnect wrapped to trigger
// reconnection on an unexpected drop.
func (r *Reconnector) sessionConfig() realtime.SessionConfig {
	cfg := r.cfg
	userOnDisconnect := cfg.Callbacks.OnDisconnect
	cfg.Callbacks.OnDisconnect = func(err error) {
		if userOnDisconnect != nil {
			userOnDisconnect(err)
		}
		if err != nil {
			go r.attemptReconnect(context.Background())
		}
	}
	return cfg
}

// Stop halts any in-flight reconnection and closes the current session.
// Safe to call multiple times.
func (r *Reconnector) Stop() error {
	r.stopOnce.Do(func() {
		close(r.done)
	})

	r.mu.Lock()
	sess := r.sess
	r.sess = nil
	r.mu.Unlock()

	if sess != nil {
		return sess.Close()
	}
	return nil
}

// Session returns the current active session. May return nil during
// reconnection.
func (r *Reconnector) Session() realtime.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sess
}

// attemptReconnect tries to reconnect with exponential backoff.
func (r *Reconnector) attemptReconnect(ctx context.Context) {
	currentBackoff := r.backoff

	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		select {
		case <-r.done:
			return
		default:
		}

		slog.Info("attempting realtime session reconnection",
			"attempt", attempt,
			"max_retries", r.maxRetries,
			"backoff", currentBackoff,
		)

		sess, err := r.provider.Connect(ctx, r.sessionConfig())
		if err == nil {
			r.mu.Lock()
			r.sess = sess
			r.mu.Unlock()

			slog.Info("realtime session reconnection successful", "attempt", attempt)

			if r.onReconnect != nil {
				r.onReconnect(sess)
			}
			return
		}

		slog.Warn("realtime session reconnection attempt failed",
			"attempt", attempt,
			"error", err,
		)

		select {
		case <-r.done:
			return
		case <-time.After(currentBackoff):
		}

		currentBackoff *= 2
		if currentBackoff > r.maxBackoff {
			currentBackoff = r.maxBackoff
		}
	}

	slog.Error("realtime session reconnection failed after max retries", "max_retries", r.maxRetries)
	if r.onGiveUp != nil {
		r.onGiveUp(fmt.Errorf("reconnector: exhausted %d attempts", r.maxRetries))
	}
}
