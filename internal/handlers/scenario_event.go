package handlers

import (
	"time"

	"github.com/simbridge/medsim/internal/scenario"
	"github.com/simbridge/medsim/internal/scenario/svt"
	"github.com/simbridge/medsim/internal/toolgate"
)

// ScenarioEventPayload is the decoded voice_command payload for commandType
// "scenario_event".
type ScenarioEventPayload struct {
	EventType string `json:"eventType"`
}

// Declared scenario event types. Each names a narrative beat a presenter can
// inject rather than a raw vitals edit, so the same event reads consistently
// across scenarios built on different baselines.
const (
	EventDeteriorate        = "deteriorate"
	EventStabilize          = "stabilize"
	EventRevealParentHistory = "reveal_parent_history"
	EventVagalFails         = "vagal_fails"
	EventReboundSVT         = "rebound_svt"
	EventMonitorAlarm       = "monitor_alarm"
	EventCodeBlue           = "code_blue"
	EventTransferReady      = "transfer_ready"
	EventReassurePatient    = "reassure_patient"
	EventInformParent       = "inform_parent"
	EventDischargeReady     = "discharge_ready"
	EventConsultCalled      = "consult_called"
)

// eventVitalsDelta returns the vitals delta a given event type applies.
// rebound_svt and code_blue are scaled off the session's age-group baseline;
// deteriorate and stabilize apply the same fixed delta at every age. Events
// with no vitals component return the zero delta.
func eventVitalsDelta(eventType string, baseline scenario.AgeGroupBaseline) scenario.VitalsDelta {
	switch eventType {
	case EventDeteriorate:
		return scenario.VitalsDelta{HR: 20, SpO2: -4, RR: 6}
	case EventStabilize:
		return scenario.VitalsDelta{HR: -15, SpO2: 3, RR: -3}
	case EventReboundSVT:
		return scenario.VitalsDelta{HR: baseline.HRCritical - baseline.HRBaseline}
	case EventCodeBlue:
		return scenario.VitalsDelta{HR: -baseline.HRBaseline, SpO2: -20, RR: -baseline.RRBaseline}
	default:
		return scenario.VitalsDelta{}
	}
}

// HandleScenarioEvent injects a named narrative beat. Events that move
// vitals are gated through the tool gate's vitals-bounds check like any
// other updateVitals intent; purely narrative events (reassure_patient,
// inform_parent, consult_called, transfer_ready, discharge_ready,
// monitor_alarm, reveal_parent_history, vagal_fails) only append an event
// and, where applicable, set an SVT flag.
func HandleScenarioEvent(eng *scenario.Engine, def *scenario.ScenarioDefinition, payload ScenarioEventPayload, now time.Time) Outcome {
	demographics := eng.GetDemographics()
	baseline := scenario.AgeGroupBaselines[demographics.AgeGroup]
	delta := eventVitalsDelta(payload.EventType, baseline)

	events := []scenario.Event{
		{Ts: now, Type: "scenario_event." + payload.EventType, Data: map[string]any{}},
	}

	if delta != (scenario.VitalsDelta{}) {
		intent := scenario.Intent{Tag: scenario.IntentTagUpdateVitals, VitalsDelta: delta}
		stage, ok := currentStage(def, eng)
		if !ok {
			return rejected("no active stage", now)
		}
		decision := toolgate.Evaluate(stage, intent)
		if !decision.Allowed {
			return rejected(decision.Reason, now)
		}
		result := eng.ApplyIntent(intent, now)
		events = append(events, result.Events...)
	}

	applySVTFlag(eng, payload.EventType, now)

	return Outcome{Accepted: true, Events: events, Result: map[string]any{"eventType": payload.EventType}}
}

// applySVTFlag records narrative-only events that the SVT debrief checklist
// reads back from [svt.State]'s Flags/RuleTriggers/TimelineEvents.
func applySVTFlag(eng *scenario.Engine, eventType string, now time.Time) {
	s, ok := eng.State().Extended.(*svt.State)
	if !ok || s == nil {
		return
	}

	switch eventType {
	case EventReassurePatient:
		s.Flags.PatientReassured = true
	case EventInformParent:
		s.Flags.ParentInformed = true
	case EventReboundSVT:
		s.Flags.ReboundSVT = true
	case EventVagalFails:
		s.RuleTriggers = append(s.RuleTriggers, EventVagalFails)
	}

	s.TimelineEvents = append(s.TimelineEvents, svt.TimelineEvent{
		Ts:          now,
		Type:        eventType,
		Description: eventType,
		Negative:    eventType == EventDeteriorate || eventType == EventCodeBlue || eventType == EventVagalFails,
	})
}
