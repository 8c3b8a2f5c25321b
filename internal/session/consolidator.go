package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/simbridge/medsim/pkg/persistence"
)

// defaultConsolidationInterval is the default period between consolidation
// ticks.
const defaultConsolidationInterval = 30 * time.Minute

// Consolidator periodically flushes a session's hot conversation context to
// the persistence adapter's event stream. This ensures a long-running
// session's transcript survives a process crash even if the in-memory
// context window has since been pruned by summarisation.
//
// All methods are safe for concurrent use.
type Consolidator struct {
	store      persistence.Store
	contextMgr *ContextManager
	interval   time.Duration
	sessionID  string

	mu sync.Mutex
	// lastIndex tracks how many messages have already been consolidated
	// to avoid writing duplicates.
	lastIndex int
	done      chan struct{}
	stopOnce  sync.Once
}

// ConsolidatorConfig configures a [Consolidator].
type ConsolidatorConfig struct {
	// Store receives consolidated transcript entries as events.
	Store persistence.Store

	// ContextMgr is the context manager whose messages are consolidated.
	ContextMgr *ContextManager

	// SessionID identifies the simulation session.
	SessionID string

	// Interval is how often to consolidate. Defaults to 30 minutes if zero.
	Interval time.Duration
}

// NewConsolidator creates a new [Consolidator] with the given configuration.
func NewConsolidator(cfg ConsolidatorConfig) *Consolidator {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultConsolidationInterval
	}
	return &Consolidator{
		store:      cfg.Store,
		contextMgr: cfg.ContextMgr,
		interval:   interval,
		sessionID:  cfg.SessionID,
		done:       make(chan struct{}),
	}
}

// Start begins periodic consolidation in a background goroutine.
// The goroutine runs until [Consolidator.Stop] is called or ctx is cancelled.
func (c *Consolidator) Start(ctx context.Context) {
	go c.loop(ctx)
}

// Stop halts the consolidation loop. Safe to call multiple times.
func (c *Consolidator) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
}

// ConsolidateNow performs an immediate consolidation, appending any new
// messages from the context manager as events on the persistence store.
func (c *Consolidator) ConsolidateNow(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.consolidate(ctx)
}

// loop runs the periodic consolidation ticker.
func (c *Consolidator) loop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			if err := c.consolidate(ctx); err != nil {
				slog.Warn("periodic consolidation failed",
					"session_id", c.sessionID,
					"error", err,
				)
			}
			c.mu.Unlock()
		}
	}
}

// consolidate appends new messages as persistence events. Must be called
// with c.mu held.
func (c *Consolidator) consolidate(ctx context.Context) error {
	msgs := c.contextMgr.Messages()

	// Skip synthetic summary messages (prefixed with "[Previous conversation
	// summary]") and only persist actual conversation turns. We track by
	// index into the full message list to avoid duplicates.
	if c.lastIndex >= len(msgs) {
		return nil // nothing new
	}

	var appendErr error
	for i := c.lastIndex; i < len(msgs); i++ {
		m := msgs[i]
		if len(m.Content) > 0 && m.Content[0] == '[' {
			continue
		}

		evt := persistence.Event{
			SessionID: c.sessionID,
			Type:      "transcript.entry",
			Data: map[string]any{
				"speaker": m.Name,
				"role":    m.Role,
				"text":    m.Content,
			},
			Ts: time.Now(),
		}

		if err := c.store.AppendEvent(ctx, evt); err != nil {
			appendErr = fmt.Errorf("consolidate entry %d: %w", i, err)
			slog.Warn("failed to append consolidation entry",
				"session_id", c.sessionID,
				"index", i,
				"error", err,
			)
			// Continue writing remaining entries; partial consolidation is
			// better than none.
		}
	}

	c.lastIndex = len(msgs)
	return appendErr
}
