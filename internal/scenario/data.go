package scenario

import "time"

// DefaultTreatmentTable returns the declared treatment effect table shared by
// all scenarios. Dose math and SVT-specific ledger updates are handled by the
// [ExtendedHook]; this table only carries the vitals-level effect and decay
// scheduling that every scenario shares.
func DefaultTreatmentTable() map[string]TreatmentEffect {
	sinus := "sinus"
	return map[string]TreatmentEffect{
		"vagal_maneuver": {
			DeltaVitals: VitalsDelta{},
			NurseLine:   "Attempting a vagal maneuver.",
		},
		"adenosine": {
			ComputeDose: func(weightKg float64, _ int, ordered float64) float64 {
				if ordered > 0 {
					return ordered
				}
				dose := weightKg * 0.1
				if dose > 6 {
					dose = 6
				}
				return dose
			},
			DeltaVitals: VitalsDelta{},
			DecayMs:     30000,
			NurseLine:   "Adenosine pushed.",
		},
		"cardioversion": {
			DeltaVitals:  VitalsDelta{},
			RhythmEffect: &sinus,
			NurseLine:    "Synchronized cardioversion delivered.",
		},
		"oxygen": {
			DeltaVitals: VitalsDelta{SpO2: 4},
			DecayMs:     60000,
			NurseLine:   "High-flow oxygen applied.",
		},
		"antipyretic": {
			DeltaVitals: VitalsDelta{Temp: -0.8},
			DecayMs:     600000,
			NurseLine:   "Antipyretic given.",
		},
	}
}

// AgeGroupBaseline declares the baseline/critical vitals table used by the
// scenario_event handler's age-group-aware presenter injects.
type AgeGroupBaseline struct {
	HRBaseline   int
	HRCritical   int
	SpO2Baseline int
	RRBaseline   int
}

// AgeGroupBaselines is the declared age-group → baseline/critical vitals
// table (§4.C10 "Scenario event").
var AgeGroupBaselines = map[AgeGroup]AgeGroupBaseline{
	AgeGroupInfant:    {HRBaseline: 130, HRCritical: 220, SpO2Baseline: 98, RRBaseline: 35},
	AgeGroupToddler:   {HRBaseline: 110, HRCritical: 210, SpO2Baseline: 98, RRBaseline: 28},
	AgeGroupPreschool: {HRBaseline: 100, HRCritical: 200, SpO2Baseline: 98, RRBaseline: 24},
	AgeGroupChild:     {HRBaseline: 90, HRCritical: 200, SpO2Baseline: 98, RRBaseline: 20},
	AgeGroupTeen:      {HRBaseline: 75, HRCritical: 190, SpO2Baseline: 98, RRBaseline: 16},
}

// TeenSVTComplexV1 is the built-in declared definition for the representative
// complex scenario used throughout the end-to-end test scenarios.
func TeenSVTComplexV1() *ScenarioDefinition {
	presentation := &Definition{
		ID: "presentation",
		AllowedIntents: map[AllowedIntentTag]bool{
			IntentUpdateVitals: true, IntentRevealFinding: true, IntentSubmitOrder: true, IntentSetStage: true,
		},
		ExitRules: []ExitRule{
			{ToStageID: "svt_onset", Guard: func(s *State, _ time.Duration, lastAction string) bool {
				return lastAction == "monitor_on" || s.Interventions.Monitor
			}},
		},
	}
	svtOnset := &Definition{
		ID: "svt_onset",
		AllowedIntents: map[AllowedIntentTag]bool{
			IntentUpdateVitals: true, IntentApplyTreatment: true, IntentSubmitOrder: true, IntentSetStage: true,
		},
		ExitRules: []ExitRule{
			{ToStageID: "initial_management", Guard: func(s *State, timeInStage time.Duration, _ string) bool {
				return timeInStage >= 30*time.Second
			}},
		},
	}
	initialManagement := &Definition{
		ID: "initial_management",
		AllowedIntents: map[AllowedIntentTag]bool{
			IntentUpdateVitals: true, IntentApplyTreatment: true, IntentSubmitOrder: true, IntentRevealFinding: true, IntentSetStage: true,
		},
	}
	treatment := &Definition{
		ID: "treatment",
		AllowedIntents: map[AllowedIntentTag]bool{
			IntentUpdateVitals: true, IntentApplyTreatment: true, IntentSetStage: true,
		},
	}
	postTreatment := &Definition{
		ID:             "post_treatment",
		AllowedIntents: map[AllowedIntentTag]bool{IntentUpdateVitals: true, IntentSubmitOrder: true, IntentSetStage: true},
	}
	decompensating := &Definition{
		ID:             "decompensating",
		AllowedIntents: map[AllowedIntentTag]bool{IntentUpdateVitals: true, IntentApplyTreatment: true, IntentSetStage: true},
	}
	resolution := &Definition{
		ID:             "resolution",
		AllowedIntents: map[AllowedIntentTag]bool{IntentUpdateVitals: true, IntentSetStage: true},
	}

	return &ScenarioDefinition{
		ID:   "teen_svt_complex_v1",
		Kind: KindSVT,
		StageIDs: []string{
			"presentation", "svt_onset", "initial_management", "treatment",
			"post_treatment", "decompensating", "resolution",
		},
		Stages: map[string]*Definition{
			"presentation":        presentation,
			"svt_onset":           svtOnset,
			"initial_management":  initialManagement,
			"treatment":           treatment,
			"post_treatment":      postTreatment,
			"decompensating":      decompensating,
			"resolution":          resolution,
		},
		Demographics: Demographics{AgeYears: 15, WeightKg: 55, AgeGroup: AgeGroupTeen},
	}
}

// SimpleFeverV1 is a minimal non-complex scenario used for tests and as an
// example of a simple-kind definition (no extended sub-engine).
func SimpleFeverV1() *ScenarioDefinition {
	triage := &Definition{
		ID: "triage",
		AllowedIntents: map[AllowedIntentTag]bool{
			IntentUpdateVitals: true, IntentRevealFinding: true, IntentSubmitOrder: true, IntentApplyTreatment: true, IntentSetStage: true,
		},
	}
	return &ScenarioDefinition{
		ID:           "pediatric_fever_v1",
		Kind:         KindSimple,
		StageIDs:     []string{"triage"},
		Stages:       map[string]*Definition{"triage": triage},
		Demographics: Demographics{AgeYears: 4, WeightKg: 17, AgeGroup: AgeGroupPreschool},
	}
}
