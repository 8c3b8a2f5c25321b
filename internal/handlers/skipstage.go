package handlers

import (
	"time"

	"github.com/simbridge/medsim/internal/scenario"
	"github.com/simbridge/medsim/internal/toolgate"
)

// SkipStagePayload is the decoded voice_command payload for commandType
// "skip_stage".
type SkipStagePayload struct {
	StageID string `json:"stageId"`
}

// HandleSkipStage forces an immediate transition to a named stage, bypassing
// that stage's own exit rules. It is still gated through the tool gate
// against the current stage's allowed-intents set: an instructor override
// is only permitted where the scenario definition declares stage control as
// an allowed action for that stage.
func HandleSkipStage(eng *scenario.Engine, def *scenario.ScenarioDefinition, payload SkipStagePayload, now time.Time) Outcome {
	if _, known := def.Stage(payload.StageID); !known {
		return rejected("unknown stage: "+payload.StageID, now)
	}

	intent := scenario.Intent{Tag: scenario.IntentTagSetStage, SetStageID: payload.StageID}

	stage, ok := currentStage(def, eng)
	if !ok {
		return rejected("no active stage", now)
	}
	decision := toolgate.Evaluate(stage, intent)
	if !decision.Allowed {
		return rejected(decision.Reason, now)
	}

	result := eng.ApplyIntent(intent, now)
	return Outcome{Accepted: true, Events: result.Events, Result: map[string]any{"stageId": payload.StageID}}
}
