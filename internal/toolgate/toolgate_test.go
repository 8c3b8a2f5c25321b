package toolgate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/simbridge/medsim/internal/scenario"
)

func stageWith(allowed ...scenario.AllowedIntentTag) *scenario.Definition {
	m := make(map[scenario.AllowedIntentTag]bool)
	for _, a := range allowed {
		m[a] = true
	}
	return &scenario.Definition{ID: "stage-1", AllowedIntents: m}
}

func TestEvaluate_AllowsPermittedIntent(t *testing.T) {
	stage := stageWith(scenario.IntentRevealFinding)
	d := Evaluate(stage, scenario.Intent{Tag: scenario.IntentTagRevealFinding, FindingID: "murmur"})
	require.True(t, d.Allowed)
	require.Empty(t, d.Reason)
}

func TestEvaluate_DeniesIntentNotInPolicy(t *testing.T) {
	stage := stageWith(scenario.IntentRevealFinding)
	d := Evaluate(stage, scenario.Intent{Tag: scenario.IntentTagSetStage, SetStageID: "stage-2"})
	require.False(t, d.Allowed)
	require.Contains(t, d.Reason, "not permitted")
}

func TestEvaluate_DeniesOnNilStage(t *testing.T) {
	d := Evaluate(nil, scenario.Intent{Tag: scenario.IntentTagUpdateVitals})
	require.False(t, d.Allowed)
}

func TestEvaluate_DeniesUnknownIntentTag(t *testing.T) {
	stage := stageWith(scenario.IntentRevealFinding)
	d := Evaluate(stage, scenario.Intent{Tag: "bogus"})
	require.False(t, d.Allowed)
	require.Contains(t, d.Reason, "unknown intent")
}

func TestEvaluate_VitalsWithinBoundsAllowed(t *testing.T) {
	stage := stageWith(scenario.IntentUpdateVitals)
	stage.Bounds = scenario.ValueBounds{MaxHRDelta: 20, MaxSpO2Delta: 5, MaxTempDelta: 1.0}

	d := Evaluate(stage, scenario.Intent{
		Tag:         scenario.IntentTagUpdateVitals,
		VitalsDelta: scenario.VitalsDelta{HR: 15, SpO2: -3},
	})
	require.True(t, d.Allowed)
}

func TestEvaluate_VitalsExceedingHRBoundDenied(t *testing.T) {
	stage := stageWith(scenario.IntentUpdateVitals)
	stage.Bounds = scenario.ValueBounds{MaxHRDelta: 10}

	d := Evaluate(stage, scenario.Intent{
		Tag:         scenario.IntentTagUpdateVitals,
		VitalsDelta: scenario.VitalsDelta{HR: 25},
	})
	require.False(t, d.Allowed)
	require.Contains(t, d.Reason, "HR delta")
}

func TestEvaluate_VitalsExceedingSpO2BoundDenied(t *testing.T) {
	stage := stageWith(scenario.IntentUpdateVitals)
	stage.Bounds = scenario.ValueBounds{MaxSpO2Delta: 2}

	d := Evaluate(stage, scenario.Intent{
		Tag:         scenario.IntentTagUpdateVitals,
		VitalsDelta: scenario.VitalsDelta{SpO2: -10},
	})
	require.False(t, d.Allowed)
	require.Contains(t, d.Reason, "SpO2 delta")
}

func TestEvaluate_VitalsExceedingTempBoundDenied(t *testing.T) {
	stage := stageWith(scenario.IntentUpdateVitals)
	stage.Bounds = scenario.ValueBounds{MaxTempDelta: 0.5}

	d := Evaluate(stage, scenario.Intent{
		Tag:         scenario.IntentTagUpdateVitals,
		VitalsDelta: scenario.VitalsDelta{Temp: 1.2},
	})
	require.False(t, d.Allowed)
	require.Contains(t, d.Reason, "temp delta")
}

func TestEvaluate_ZeroBoundIsUnbounded(t *testing.T) {
	stage := stageWith(scenario.IntentUpdateVitals)

	d := Evaluate(stage, scenario.Intent{
		Tag:         scenario.IntentTagUpdateVitals,
		VitalsDelta: scenario.VitalsDelta{HR: 1000},
	})
	require.True(t, d.Allowed)
}
