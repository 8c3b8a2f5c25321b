package handlers

import (
	"time"

	"github.com/simbridge/medsim/internal/scenario"
	"github.com/simbridge/medsim/internal/scenario/svt"
)

// HandleFreeze pauses the scenario clock. For a complex scenario this stops
// the SVT sub-engine's elapsed-time accounting (used by pause-adjusted
// scoring); a simple scenario has no clock-pause concept at the core-engine
// level, so freezing one only records the event for the debrief/audit trail.
func HandleFreeze(eng *scenario.Engine, now time.Time) Outcome {
	if s, ok := eng.State().Extended.(*svt.State); ok && s != nil {
		s.Pause(now)
	}
	return Outcome{
		Accepted: true,
		Events: []scenario.Event{
			{Ts: now, Type: "scenario.frozen", Data: map[string]any{}},
		},
	}
}

// HandleUnfreeze resumes a scenario previously paused by [HandleFreeze].
func HandleUnfreeze(eng *scenario.Engine, now time.Time) Outcome {
	if s, ok := eng.State().Extended.(*svt.State); ok && s != nil {
		s.Resume(now)
	}
	return Outcome{
		Accepted: true,
		Events: []scenario.Event{
			{Ts: now, Type: "scenario.unfrozen", Data: map[string]any{}},
		},
	}
}
