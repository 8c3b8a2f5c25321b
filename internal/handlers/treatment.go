package handlers

import (
	"time"

	"github.com/simbridge/medsim/internal/scenario"
	"github.com/simbridge/medsim/internal/toolgate"
)

// TreatmentPayload is the decoded voice_command payload for commandType
// "treatment".
type TreatmentPayload struct {
	TreatmentType string  `json:"treatmentType"`
	Dose          float64 `json:"dose,omitempty"`
	Route         string  `json:"route,omitempty"`
	Joules        float64 `json:"joules,omitempty"`
	Sedated       bool    `json:"sedated,omitempty"`
	Synchronized  bool    `json:"synchronized,omitempty"`
	FlushGiven    bool    `json:"flushGiven,omitempty"`
}

// HandleTreatment applies a treatment. The tool gate is checked against a
// zero-valued VitalsDelta (treatments are gated purely on the stage's
// allowed-intents set, not on a magnitude bound) before the treatment
// effect table and the scenario's extended hook run.
func HandleTreatment(eng *scenario.Engine, def *scenario.ScenarioDefinition, payload TreatmentPayload, now time.Time) Outcome {
	intent := scenario.Intent{
		Tag: scenario.IntentTagApplyTreatment,
		Treatment: scenario.TreatmentApplication{
			TreatmentType: payload.TreatmentType,
			Dose:          payload.Dose,
			Route:         payload.Route,
			Joules:        payload.Joules,
			Sedated:       payload.Sedated,
			Synchronized:  payload.Synchronized,
			FlushGiven:    payload.FlushGiven,
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
	return Outcome{Accepted: true, Events: result.Events, Result: map[string]any{"treatmentType": payload.TreatmentType}}
}
