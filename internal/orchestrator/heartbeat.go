package orchestrator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/simbridge/medsim/internal/handlers"
)

// Run drives the heartbeat loop: every cfg.HeartbeatInterval it ticks each
// live session's scenario engine, completes any orders whose ETA has
// elapsed, persists, and rebroadcasts sim_state. It blocks until ctx is
// canceled, at which point it returns ctx.Err(). Intended to be started as
// its own goroutine from main alongside the HTTP server.
func (o *Orchestrator) Run(ctx context.Context) error {
	interval := o.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.tickAll(ctx)
		}
	}
}

// tickAll fans a tick out across every live session concurrently and waits
// for all of them to finish before the next interval. Every tick closure
// returns nil, so gctx is never canceled by a sibling session's tick.
func (o *Orchestrator) tickAll(ctx context.Context) {
	o.mu.RLock()
	runtimes := make([]*Runtime, 0, len(o.runtimes))
	for _, r := range o.runtimes {
		runtimes = append(runtimes, r)
	}
	o.mu.RUnlock()

	now := o.now()
	group, gctx := errgroup.WithContext(ctx)
	for _, r := range runtimes {
		r := r
		group.Go(func() error {
			o.tickOne(gctx, r, now)
			return nil
		})
	}
	_ = group.Wait()
}

// tickOne advances one session's engine, completes due orders, and
// rebroadcasts sim_state if anything changed.
func (o *Orchestrator) tickOne(ctx context.Context, r *Runtime, now time.Time) {
	changed := false

	err := r.lock.WithStateLock(ctx, "heartbeat", func() error {
		events := r.Engine.Tick(now)
		if len(events) > 0 {
			changed = true
		}
		for _, evt := range events {
			r.events.Append(ctx, evt.Type, evt.Data)
		}

		for id, due := range r.dueOrders {
			if now.Before(due.dueAt) {
				continue
			}
			if handlers.CompleteOrder(r.Engine, id, due.orderType, now) {
				r.events.Append(ctx, "order.completed", map[string]any{"id": id, "type": due.orderType})
				changed = true
			}
			delete(r.dueOrders, id)
		}
		return nil
	})
	if err != nil {
		return
	}

	if !changed {
		return
	}
	r.persist(ctx)
	broadcastSimState(o.manager, r)
}
