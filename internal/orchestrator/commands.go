package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/simbridge/medsim/internal/handlers"
	"github.com/simbridge/medsim/internal/scenario"
	"github.com/simbridge/medsim/internal/validate"
)

// dispatchCommand runs the voice_command frame's handler under the
// session's state lock and broadcasts the resulting sim_state. Commands
// that touch the scenario engine go through internal/handlers; the four
// session/floor-level commands (pause_ai, resume_ai, end_turn, mute_user)
// are handled directly here since they operate on [session.Manager] and
// the runtime's AI-pause flag, not the scenario engine.
func (o *Orchestrator) dispatchCommand(ctx context.Context, r *Runtime, userID string, frame validate.VoiceCommandFrame) {
	now := time.Now()

	switch frame.CommandType {
	case validate.CommandPauseAI:
		r.voiceMu.Lock()
		r.aiPaused = true
		r.voiceMu.Unlock()
		r.events.Append(ctx, "ai.paused", map[string]any{"userId": userID})
		return

	case validate.CommandResumeAI:
		if r.cost.OverHardLimit() {
			r.events.Append(ctx, "ai.resume_blocked", map[string]any{"userId": userID})
			return
		}
		r.voiceMu.Lock()
		r.aiPaused = false
		r.voiceMu.Unlock()
		r.events.Append(ctx, "ai.resumed", map[string]any{"userId": userID})
		return

	case validate.CommandEndTurn:
		o.manager.ReleaseFloor(r.SessionID, userID)
		r.events.Append(ctx, "floor.released", map[string]any{"userId": userID})
		return

	case validate.CommandMuteUser:
		r.events.Append(ctx, "user.muted", map[string]any{"userId": userID})
		return
	}

	var outcome handlers.Outcome
	err := r.lock.WithStateLock(ctx, frame.CommandType, func() error {
		outcome = runHandler(r, frame, now)
		trackOrderDue(r, outcome, now)
		return nil
	})
	if err != nil {
		r.events.Append(ctx, "handler.lock_timeout", map[string]any{"commandType": frame.CommandType})
		return
	}

	for _, evt := range outcome.Events {
		r.events.Append(ctx, evt.Type, evt.Data)
	}
	if !outcome.Accepted {
		return
	}

	r.persist(ctx)
	broadcastSimState(o.manager, r)
}

// trackOrderDue records the ETA of any order the outcome just submitted, by
// scanning its events for the "order.submitted" marker internal/scenario
// emits. Called with r.lock already held.
func trackOrderDue(r *Runtime, outcome handlers.Outcome, now time.Time) {
	for _, evt := range outcome.Events {
		if evt.Type != "order.submitted" {
			continue
		}
		id, _ := evt.Data["id"].(string)
		orderType, _ := evt.Data["type"].(scenario.OrderType)
		if id == "" {
			continue
		}
		r.dueOrders[id] = dueOrder{orderType: orderType, dueAt: now.Add(handlers.OrderETA(orderType))}
	}
}

// runHandler is the commandType → internal/handlers dispatch table. Must be
// called with the session's state lock held.
func runHandler(r *Runtime, frame validate.VoiceCommandFrame, now time.Time) handlers.Outcome {
	switch frame.CommandType {
	case validate.CommandOrder:
		var payload handlers.OrderPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			return handlers.Outcome{Accepted: false, Reason: "malformed payload"}
		}
		return handlers.HandleOrder(r.Engine, r.Def, payload, now)

	case validate.CommandExam:
		var payload handlers.ExamPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			return handlers.Outcome{Accepted: false, Reason: "malformed payload"}
		}
		return handlers.HandleExam(r.Engine, r.Def, payload, now)

	case validate.CommandTreatment:
		var payload handlers.TreatmentPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			return handlers.Outcome{Accepted: false, Reason: "malformed payload"}
		}
		return handlers.HandleTreatment(r.Engine, r.Def, payload, now)

	case validate.CommandToggleTelemetry:
		return handlers.HandleToggleTelemetry(r.Engine, now)

	case validate.CommandShowEKG:
		return handlers.HandleShowEKG(r.Engine, now)

	case validate.CommandForceReply:
		var payload handlers.ForceReplyPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			return handlers.Outcome{Accepted: false, Reason: "malformed payload"}
		}
		return handlers.HandleForceReply(payload, now)

	case validate.CommandScenarioEvent:
		var payload handlers.ScenarioEventPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			return handlers.Outcome{Accepted: false, Reason: "malformed payload"}
		}
		return handlers.HandleScenarioEvent(r.Engine, r.Def, payload, now)

	case validate.CommandFreeze:
		return handlers.HandleFreeze(r.Engine, now)

	case validate.CommandUnfreeze:
		if r.cost.OverHardLimit() {
			return handlers.Outcome{Accepted: false, Reason: "budget hard limit: resume blocked"}
		}
		return handlers.HandleUnfreeze(r.Engine, now)

	case validate.CommandSkipStage:
		var payload handlers.SkipStagePayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			return handlers.Outcome{Accepted: false, Reason: "malformed payload"}
		}
		return handlers.HandleSkipStage(r.Engine, r.Def, payload, now)

	default:
		return handlers.Outcome{Accepted: false, Reason: "unhandled commandType: " + frame.CommandType}
	}
}
