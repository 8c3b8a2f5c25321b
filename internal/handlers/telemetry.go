package handlers

import (
	"time"

	"github.com/simbridge/medsim/internal/scenario"
)

// HandleToggleTelemetry flips whether the monitor strip is actively
// streaming. Unlike the other handlers it carries no payload and is never
// gated against a stage's allowed-intents set: muting or unmuting the
// telemetry feed is a presenter UI affordance, not a clinical action the
// scenario definition needs to permit or deny.
func HandleToggleTelemetry(eng *scenario.Engine, now time.Time) Outcome {
	state := eng.State()
	on := !state.Telemetry
	eng.SetTelemetry(on)

	return Outcome{
		Accepted: true,
		Events: []scenario.Event{
			{Ts: now, Type: "telemetry.toggled", Data: map[string]any{"on": on}},
		},
		Result: map[string]any{"telemetry": on},
	}
}
