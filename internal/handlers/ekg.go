package handlers

import (
	"time"

	"github.com/simbridge/medsim/internal/scenario"
)

// HandleShowEKG appends the synthetic EKG summary ([SyntheticOrderResult])
// to the bounded EKG history immediately, reports the current rhythm in its
// event and result, and, if an EKG order is already pending, completes it early
// with the same summary rather than leaving it to the heartbeat's ETA. This
// lets a presenter pull up a strip on demand without first needing to have
// ordered one.
func HandleShowEKG(eng *scenario.Engine, now time.Time) Outcome {
	state := eng.State()
	rhythm := state.RhythmSummary
	if rhythm == "" {
		rhythm = eng.GetDynamicRhythm()
	}
	summary := SyntheticOrderResult(scenario.OrderEKG, state)

	eng.AppendEkgHistory(scenario.EkgEntry{Ts: now, Summary: summary})

	if order, pending := eng.PendingOrderOfType(scenario.OrderEKG); pending {
		eng.CompleteOrder(order.ID, summary, now)
	}

	return Outcome{
		Accepted: true,
		Events: []scenario.Event{
			{Ts: now, Type: "ekg.shown", Data: map[string]any{"rhythm": rhythm, "summary": summary}},
		},
		Result: map[string]any{"rhythm": rhythm, "summary": summary},
	}
}
