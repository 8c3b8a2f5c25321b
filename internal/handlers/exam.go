package handlers

import (
	"fmt"
	"time"

	"github.com/simbridge/medsim/internal/scenario"
	"github.com/simbridge/medsim/internal/toolgate"
)

// ExamPayload is the decoded voice_command payload for commandType "exam".
type ExamPayload struct {
	ExamType string `json:"examType"`
}

const (
	ExamCardiac = "cardiac"
	ExamLungs   = "lungs"
	ExamGeneral = "general"
)

var examOrderType = map[string]scenario.OrderType{
	ExamCardiac: scenario.OrderCardiacExam,
	ExamLungs:   scenario.OrderLungExam,
	ExamGeneral: scenario.OrderGeneralExam,
}

// HandleExam reveals a physical exam subset. Unlike a diagnostic order, an
// exam reveal completes immediately: the presenter is physically examining
// the simulated patient, not waiting on a lab turnaround. It both updates
// the exam findings and submits+completes a matching order, so that the
// completed-order visibility rule in the outbound sim_state gating applies
// uniformly to exam data.
func HandleExam(eng *scenario.Engine, def *scenario.ScenarioDefinition, payload ExamPayload, now time.Time) Outcome {
	orderType, known := examOrderType[payload.ExamType]
	if !known {
		return rejected("unknown examType: "+payload.ExamType, now)
	}

	findingID := "exam_" + payload.ExamType
	intent := scenario.Intent{Tag: scenario.IntentTagRevealFinding, FindingID: findingID}

	stage, ok := currentStage(def, eng)
	if !ok {
		return rejected("no active stage", now)
	}
	decision := toolgate.Evaluate(stage, intent)
	if !decision.Allowed {
		return rejected(decision.Reason, now)
	}

	result := eng.ApplyIntent(intent, now)
	applyExamFinding(eng, payload.ExamType)

	submitResult := eng.ApplyIntent(scenario.Intent{
		Tag:   scenario.IntentTagSubmitOrder,
		Order: scenario.OrderSubmission{Type: orderType, OrderedBy: "presenter"},
	}, now)
	events := append(result.Events, submitResult.Events...)

	if id, pending := eng.PendingOrderOfType(orderType); pending {
		CompleteOrder(eng, id.ID, orderType, now)
	}

	return Outcome{Accepted: true, Events: events, Result: map[string]any{"examType": payload.ExamType}}
}

// applyExamFinding writes a canned exam description derived from the
// current rhythm/vitals into the matching Exam field.
func applyExamFinding(eng *scenario.Engine, examType string) {
	state := eng.State()
	ex := state.Exam
	rhythm := state.RhythmSummary
	if rhythm == "" {
		rhythm = eng.GetDynamicRhythm()
	}

	switch examType {
	case ExamCardiac:
		ex.Cardio = fmt.Sprintf("heart rate %d, rhythm %s, no murmur", state.Vitals.HR, rhythm)
		ex.HeartAudioURL = "audio://exam/heart/" + rhythm
	case ExamLungs:
		ex.Lungs = fmt.Sprintf("respiratory rate %d, clear bilaterally", state.Vitals.RR)
		ex.LungAudioURL = "audio://exam/lungs/clear"
	case ExamGeneral:
		ex.General = "alert, appropriate for age"
		ex.Perfusion = "warm, cap refill <2s"
		ex.Neuro = "moves all extremities, age-appropriate responsiveness"
	}
	eng.SetExam(ex)
}
