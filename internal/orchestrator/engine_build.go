// Package orchestrator ties every other component together into the
// concrete [transport.Router] implementation: it owns one [Runtime] per
// live session, runs the heartbeat that advances scenario time, routes
// voice audio through the realtime or STT/LLM/TTS fallback path, dispatches
// voice_command frames to internal/handlers, and broadcasts role-gated
// sim_state snapshots.
package orchestrator

import (
	"time"

	"github.com/simbridge/medsim/internal/scenario"
	"github.com/simbridge/medsim/internal/scenario/svt"
)

// negate flips the sign of a vitals delta so it can be scheduled as a decay
// reversal for a treatment effect.
func negate(d scenario.VitalsDelta) scenario.VitalsDelta {
	return scenario.VitalsDelta{
		HR:   -d.HR,
		SpO2: -d.SpO2,
		RR:   -d.RR,
		Temp: -d.Temp,
	}
}

// withDecayIntents returns a copy of table in which every entry declaring a
// DecayMs but no DecayIntent is given one that reverses its own DeltaVitals.
// [scenario.DefaultTreatmentTable] leaves DecayIntent nil on all five of its
// entries, which means the core engine's
// "if effect.DecayIntent != nil && effect.DecayMs > 0" guard in
// applyTreatment never schedules a reversal — oxygen and antipyretic would
// otherwise have a permanent effect. This is engine-construction-time
// wiring, not a per-call handler concern, since DecayIntent is a property
// of the table the Engine is built with.
func withDecayIntents(table map[string]scenario.TreatmentEffect) map[string]scenario.TreatmentEffect {
	out := make(map[string]scenario.TreatmentEffect, len(table))
	for name, effect := range table {
		if effect.DecayMs > 0 && effect.DecayIntent == nil && effect.DeltaVitals != (scenario.VitalsDelta{}) {
			reversal := scenario.Intent{
				Tag:         scenario.IntentTagUpdateVitals,
				VitalsDelta: negate(effect.DeltaVitals),
			}
			effect.DecayIntent = &reversal
		}
		out[name] = effect
	}
	return out
}

// buildEngine constructs a fresh [scenario.Engine] for def, wiring the
// correct [scenario.ExtendedHook] for its [scenario.ScenarioKind] and
// seeding the SVT sub-engine's opaque state before the first tick. Without
// this seeding step svt.Hook's type assertion on scenario.Extended fails
// and every SVT-specific effect silently no-ops.
func buildEngine(def *scenario.ScenarioDefinition, now time.Time) *scenario.Engine {
	table := withDecayIntents(scenario.DefaultTreatmentTable())

	var hook scenario.ExtendedHook
	if def.Kind == scenario.KindSVT {
		hook = svt.Hook{}
	}

	eng := scenario.New(def, def.Demographics, table, hook)

	if def.Kind == scenario.KindSVT {
		state := eng.State()
		state.Extended = svt.NewState(now)
		eng.Hydrate(state)
	}

	eng.Start(now)
	return eng
}
