package handlers

import (
	"time"

	"github.com/simbridge/medsim/internal/scenario"
	"github.com/simbridge/medsim/internal/scenario/svt"
	"github.com/simbridge/medsim/internal/toolgate"
)

// OrderPayload is the decoded voice_command payload for commandType "order".
type OrderPayload struct {
	OrderType string `json:"orderType"`
	OrderedBy string `json:"orderedBy,omitempty"`
}

// orderETA declares how long a diagnostic order takes to come back, used by
// the orchestrator heartbeat to decide when to auto-complete a pending
// order.
var orderETA = map[scenario.OrderType]time.Duration{
	scenario.OrderVitals:      5 * time.Second,
	scenario.OrderEKG:         15 * time.Second,
	scenario.OrderLabs:        45 * time.Second,
	scenario.OrderImaging:     60 * time.Second,
	scenario.OrderCardiacExam: 3 * time.Second,
	scenario.OrderLungExam:    3 * time.Second,
	scenario.OrderGeneralExam: 3 * time.Second,
	scenario.OrderIVAccess:    10 * time.Second,
}

// OrderETA returns the declared turnaround time for t, or a 10s default for
// an order type not in the table.
func OrderETA(t scenario.OrderType) time.Duration {
	if d, ok := orderETA[t]; ok {
		return d
	}
	return 10 * time.Second
}

// SyntheticOrderResult produces a canned result string for an order once its
// ETA elapses. Real deployments would replace this with a generated lab
// value / EKG summary grounded in the current vitals; a fixed phrase keeps
// the representative scenarios deterministic.
func SyntheticOrderResult(t scenario.OrderType, state scenario.State) string {
	switch t {
	case scenario.OrderVitals:
		return "vitals confirmed"
	case scenario.OrderEKG:
		return "narrow-complex tachycardia, rate >220"
	case scenario.OrderLabs:
		return "BMP and CBC within normal limits"
	case scenario.OrderImaging:
		return "no acute findings"
	case scenario.OrderCardiacExam:
		return "tachycardic, no murmur"
	case scenario.OrderLungExam:
		return "clear bilaterally"
	case scenario.OrderGeneralExam:
		return "alert, mild distress"
	case scenario.OrderIVAccess:
		return "22g IV placed, patent"
	default:
		return "complete"
	}
}

// HandleOrder submits a diagnostic order. A second submission of the same
// order type while one is already pending is debounced: it is rejected
// rather than coalesced into the existing pending order, so the client sees
// an explicit rejection instead of a silently merged request.
func HandleOrder(eng *scenario.Engine, def *scenario.ScenarioDefinition, payload OrderPayload, now time.Time) Outcome {
	orderType := scenario.OrderType(payload.OrderType)

	if _, pending := eng.PendingOrderOfType(orderType); pending {
		return rejected("order already pending: "+payload.OrderType, now)
	}

	intent := scenario.Intent{
		Tag: scenario.IntentTagSubmitOrder,
		Order: scenario.OrderSubmission{
			Type:      orderType,
			OrderedBy: payload.OrderedBy,
		},
	}

	stage, ok := currentStage(def, eng)
	if !ok {
		return rejected("no active stage", now)
	}
	decision := toolgate.Evaluate(stage, intent)
	if !decision.Allowed {
		return rejected(decision.Reason, now)
	}

	result := eng.ApplyIntent(intent, now)
	markOrderSubmitted(eng, orderType, now)

	return Outcome{Accepted: true, Events: result.Events, Result: map[string]any{"orderType": payload.OrderType}}
}

// markOrderSubmitted stamps the SVT sub-engine's order-specific timestamps.
// The core [scenario.ExtendedHook] interface has no "order submitted" hook,
// so this type-asserts directly to *svt.State, mirroring the pattern
// svt.Hook itself already uses to reach into its own opaque state.
func markOrderSubmitted(eng *scenario.Engine, t scenario.OrderType, now time.Time) {
	s, ok := eng.State().Extended.(*svt.State)
	if !ok || s == nil {
		return
	}
	switch t {
	case scenario.OrderIVAccess:
		if s.IVAccessTs.IsZero() {
			s.IVAccessTs = now
		}
	case scenario.OrderEKG:
		if s.ECGOrderedTs.IsZero() {
			s.ECGOrderedTs = now
		}
	}
}

// CompleteOrder transitions a pending order to complete once its ETA has
// elapsed and appends an EKG history entry when the completed order is an
// EKG. Called by the orchestrator heartbeat, and by [HandleExam] to complete
// its exam order at once.
func CompleteOrder(eng *scenario.Engine, orderID string, orderType scenario.OrderType, now time.Time) bool {
	result := SyntheticOrderResult(orderType, eng.State())
	if !eng.CompleteOrder(orderID, result, now) {
		return false
	}
	if orderType == scenario.OrderEKG {
		eng.AppendEkgHistory(scenario.EkgEntry{Ts: now, Summary: result})
	}
	return true
}
