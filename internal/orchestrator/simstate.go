package orchestrator

import (
	"log/slog"

	"github.com/simbridge/medsim/internal/scenario"
	"github.com/simbridge/medsim/internal/session"
	"github.com/simbridge/medsim/internal/validate"
)

// buildSimState assembles the outbound sim_state payload for role. A
// participant only ever sees completed orders (their results), matching the
// gateway's completed-order visibility rule; a presenter sees pending
// orders too, since they are running the scenario and need to know what is
// in flight.
func buildSimState(r *Runtime, role session.Role) map[string]any {
	state := r.Engine.State()

	findings := make([]string, 0, len(state.Findings))
	for id, revealed := range state.Findings {
		if revealed {
			findings = append(findings, id)
		}
	}

	var interventions []string
	if state.Interventions.IV.Placed {
		interventions = append(interventions, "iv")
	}
	if state.Interventions.Oxygen.Mode != "" {
		interventions = append(interventions, "oxygen")
	}
	if state.Interventions.Monitor {
		interventions = append(interventions, "monitor")
	}
	if state.Interventions.ETT.Placed {
		interventions = append(interventions, "ett")
	}

	orders := make([]any, 0, len(state.Orders))
	for _, o := range state.Orders {
		if role == session.RoleParticipant && o.Status != scenario.OrderComplete {
			continue
		}
		orders = append(orders, map[string]any{
			"id":     o.ID,
			"type":   string(o.Type),
			"status": string(o.Status),
			"result": o.Result,
		})
	}

	return map[string]any{
		"type":       "sim_state",
		"sessionId":  r.SessionID,
		"stageId":    state.StageID,
		"scenarioId": state.ScenarioID,
		"vitals": map[string]any{
			"hr":   state.Vitals.HR,
			"spo2": state.Vitals.SpO2,
			"rr":   state.Vitals.RR,
			"temp": state.Vitals.Temp,
			"bp":   state.Vitals.BP,
		},
		"interventions": interventions,
		"telemetry": map[string]any{
			"on":     state.Telemetry,
			"rhythm": state.RhythmSummary,
		},
		"findings":      findings,
		"orders":        orders,
		"fallback":      r.cost.Fallback(),
		"voiceFallback": r.cost.Fallback(),
		"correlationId": r.SessionID,
	}
}

// broadcastSimState validates and sends role-specific sim_state snapshots.
// A validation failure drops the broadcast for that role only; it never
// tears down the session.
func broadcastSimState(mgr *session.Manager, r *Runtime) {
	for _, role := range []session.Role{session.RolePresenter, session.RoleParticipant} {
		payload := buildSimState(r, role)
		if err := validate.ValidateOutboundSimState(payload); err != nil {
			slog.Warn("orchestrator: dropping sim_state broadcast", "session_id", r.SessionID, "role", role, "error", err)
			continue
		}
		switch role {
		case session.RolePresenter:
			mgr.BroadcastToPresenters(r.SessionID, payload)
		case session.RoleParticipant:
			mgr.BroadcastToParticipants(r.SessionID, payload)
		}
	}
}
