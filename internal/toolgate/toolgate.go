// Package toolgate validates a proposed tool intent against the current
// stage's declared policy before it is allowed to reach the scenario
// engine. It is a pure function of (stage, intent) — no state, no I/O.
package toolgate

import (
	"fmt"

	"github.com/simbridge/medsim/internal/scenario"
)

// Decision is the result of evaluating a proposed intent against a stage's
// policy.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(format string, args ...any) Decision {
	return Decision{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// tagFor maps an intent's Tag to the stage-policy tag that governs it.
func tagFor(tag scenario.IntentTag) (scenario.AllowedIntentTag, bool) {
	switch tag {
	case scenario.IntentTagUpdateVitals:
		return scenario.IntentUpdateVitals, true
	case scenario.IntentTagRevealFinding:
		return scenario.IntentRevealFinding, true
	case scenario.IntentTagApplyTreatment:
		return scenario.IntentApplyTreatment, true
	case scenario.IntentTagSubmitOrder:
		return scenario.IntentSubmitOrder, true
	case scenario.IntentTagSetStage:
		return scenario.IntentSetStage, true
	default:
		return "", false
	}
}

// Evaluate checks whether stage permits intent, including stage-configured
// value bounds on vitals deltas. On reject, callers must append a
// tool.intent.rejected event and must not mutate engine state.
func Evaluate(stage *scenario.Definition, intent scenario.Intent) Decision {
	if stage == nil {
		return deny("no active stage")
	}

	policyTag, known := tagFor(intent.Tag)
	if !known {
		return deny("unknown intent tag %q", intent.Tag)
	}

	if !stage.AllowedIntents[policyTag] {
		return deny("intent %q not permitted in stage %q", intent.Tag, stage.ID)
	}

	if intent.Tag == scenario.IntentTagUpdateVitals {
		if d := checkVitalsBounds(stage.Bounds, intent.VitalsDelta); !d.Allowed {
			return d
		}
	}

	return allow()
}

// checkVitalsBounds rejects a vitals delta that exceeds the stage's
// configured bounds. A zero bound means unbounded for that field.
func checkVitalsBounds(bounds scenario.ValueBounds, delta scenario.VitalsDelta) Decision {
	if bounds.MaxHRDelta > 0 && abs(delta.HR) > bounds.MaxHRDelta {
		return deny("HR delta %d exceeds stage bound %d", delta.HR, bounds.MaxHRDelta)
	}
	if bounds.MaxSpO2Delta > 0 && abs(delta.SpO2) > bounds.MaxSpO2Delta {
		return deny("SpO2 delta %d exceeds stage bound %d", delta.SpO2, bounds.MaxSpO2Delta)
	}
	if bounds.MaxTempDelta > 0 && absf(delta.Temp) > bounds.MaxTempDelta {
		return deny("temp delta %.2f exceeds stage bound %.2f", delta.Temp, bounds.MaxTempDelta)
	}
	return allow()
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
