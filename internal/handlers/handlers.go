// Package handlers implements the per-command intent handlers that sit
// between a parsed voice_command frame and the scenario engine: order
// submission, exam reveal, treatment application, telemetry toggling, EKG
// capture, forced character replies, scenario events, stage control, and
// transcript analysis. Every handler is a pure function of (engine, stage
// policy, payload, now) — the caller (the orchestrator) is responsible for
// serializing access via the per-session state lock, persisting the
// resulting state, and broadcasting the outcome.
package handlers

import (
	"time"

	"github.com/simbridge/medsim/internal/scenario"
)

// Character identifies which simulated voice/role a frame addresses or a
// forced reply targets.
type Character string

const (
	CharacterPatient    Character = "patient"
	CharacterNurse      Character = "nurse"
	CharacterTech       Character = "tech"
	CharacterConsultant Character = "consultant"
	CharacterImaging    Character = "imaging"
	CharacterParent     Character = "parent"
)

// IsValid reports whether c is one of the recognized characters.
func (c Character) IsValid() bool {
	switch c {
	case CharacterPatient, CharacterNurse, CharacterTech, CharacterConsultant, CharacterImaging, CharacterParent:
		return true
	default:
		return false
	}
}

// ReplyPolicy selects how a character's line is produced.
type ReplyPolicy string

const (
	// ReplyPolicyAI routes the reply through the configured LLM/Realtime
	// voice pipeline.
	ReplyPolicyAI ReplyPolicy = "ai"
	// ReplyPolicyStub returns a canned line from Templates without calling
	// any provider — used for characters that never need generative
	// variance (e.g. a nurse reading back a vitals order).
	ReplyPolicyStub ReplyPolicy = "stub"
)

// CharacterProfile declares a character's voice and reply behavior.
type CharacterProfile struct {
	VoiceID     string
	ReplyPolicy ReplyPolicy
	Templates   map[string]string
}

// DefaultCharacterProfiles returns the declared voice/reply-policy table for
// every recognized [Character]. The patient is the only AI-driven voice;
// every supporting character replies from a fixed template set, matching
// the source's NPC roster pattern of one generative lead and several
// scripted supporting voices.
func DefaultCharacterProfiles() map[Character]CharacterProfile {
	return map[Character]CharacterProfile{
		CharacterPatient: {
			VoiceID:     "patient",
			ReplyPolicy: ReplyPolicyAI,
		},
		CharacterNurse: {
			VoiceID:     "nurse",
			ReplyPolicy: ReplyPolicyStub,
			Templates: map[string]string{
				"force_reply":      "Right away, doctor.",
				"order":            "Order placed.",
				"treatment":        "Treatment given.",
				"show_ekg":         "Pulling up the strip now.",
				"toggle_telemetry": "Adjusting the monitor.",
			},
		},
		CharacterTech: {
			VoiceID:     "tech",
			ReplyPolicy: ReplyPolicyStub,
			Templates: map[string]string{
				"force_reply": "On it.",
				"order":       "Running that now.",
			},
		},
		CharacterConsultant: {
			VoiceID:     "consultant",
			ReplyPolicy: ReplyPolicyStub,
			Templates: map[string]string{
				"force_reply": "Give me a moment to review the chart.",
			},
		},
		CharacterImaging: {
			VoiceID:     "imaging",
			ReplyPolicy: ReplyPolicyStub,
			Templates: map[string]string{
				"force_reply": "Images are up on the viewer.",
			},
		},
		CharacterParent: {
			VoiceID:     "parent",
			ReplyPolicy: ReplyPolicyStub,
			Templates: map[string]string{
				"force_reply": "Is she going to be okay?",
			},
		},
	}
}

// Outcome is the common result shape returned by every handler in this
// package. Accepted is false when the tool gate or a domain guard rejected
// the request; Events and Result are only populated when Accepted is true,
// except that a rejection still appends a tool.intent.rejected-style event
// to Events for audit purposes.
type Outcome struct {
	Accepted bool
	Reason   string
	Events   []scenario.Event
	Result   map[string]any
}

func rejected(reason string, now time.Time) Outcome {
	return Outcome{
		Accepted: false,
		Reason:   reason,
		Events: []scenario.Event{
			{Ts: now, Type: "handler.rejected", Data: map[string]any{"reason": reason}},
		},
	}
}

// currentStage looks up the stage [scenario.Definition] governing eng's
// current state. Handlers that submit an intent must gate it against this
// before calling ApplyIntent.
func currentStage(def *scenario.ScenarioDefinition, eng *scenario.Engine) (*scenario.Definition, bool) {
	return def.Stage(eng.State().StageID)
}
