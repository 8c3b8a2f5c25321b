// Package validate shape-checks every frame crossing the WebSocket boundary.
// Inbound frames are a closed discriminated union keyed by a "type" field;
// anything outside that set, or a voice_command with an unrecognized
// commandType, is rejected before it reaches the transport's routing switch.
// Outbound sim_state snapshots are checked against a generated JSON schema
// before broadcast, so a shape regression drops the broadcast instead of
// reaching a client.
package validate

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/simbridge/medsim/internal/gatewayerr"
)

// Inbound frame type tags. This set is closed; ParseInbound rejects anything
// else.
const (
	TypeJoin              = "join"
	TypeStartSpeaking     = "start_speaking"
	TypeStopSpeaking      = "stop_speaking"
	TypeDoctorAudio       = "doctor_audio"
	TypeSetScenario       = "set_scenario"
	TypeAnalyzeTranscript = "analyze_transcript"
	TypeVoiceCommand      = "voice_command"
	TypePing              = "ping"
)

// voice_command commandType tags. Also closed.
const (
	CommandPauseAI         = "pause_ai"
	CommandResumeAI        = "resume_ai"
	CommandForceReply      = "force_reply"
	CommandEndTurn         = "end_turn"
	CommandMuteUser        = "mute_user"
	CommandFreeze          = "freeze"
	CommandUnfreeze        = "unfreeze"
	CommandSkipStage       = "skip_stage"
	CommandOrder           = "order"
	CommandExam            = "exam"
	CommandToggleTelemetry = "toggle_telemetry"
	CommandTreatment       = "treatment"
	CommandShowEKG         = "show_ekg"
	CommandScenarioEvent   = "scenario_event"
)

var validCommandTypes = map[string]bool{
	CommandPauseAI:         true,
	CommandResumeAI:        true,
	CommandForceReply:      true,
	CommandEndTurn:         true,
	CommandMuteUser:        true,
	CommandFreeze:          true,
	CommandUnfreeze:        true,
	CommandSkipStage:       true,
	CommandOrder:           true,
	CommandExam:            true,
	CommandToggleTelemetry: true,
	CommandTreatment:       true,
	CommandShowEKG:         true,
	CommandScenarioEvent:   true,
}

var validRoles = map[string]bool{"presenter": true, "participant": true}

// JoinFrame is the mandatory first frame on a new connection.
type JoinFrame struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Role      string `json:"role"`
	AuthToken string `json:"authToken,omitempty"`
}

type StartSpeakingFrame struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

type StopSpeakingFrame struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

type DoctorAudioFrame struct {
	SessionID   string `json:"sessionId"`
	UserID      string `json:"userId"`
	AudioBase64 string `json:"audioBase64"`
	ContentType string `json:"contentType"`
	Character   string `json:"character,omitempty"`
}

type SetScenarioFrame struct {
	SessionID  string `json:"sessionId"`
	UserID     string `json:"userId"`
	ScenarioID string `json:"scenarioId"`
}

// TranscriptTurn is one element of analyze_transcript's turns array.
type TranscriptTurn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

type AnalyzeTranscriptFrame struct {
	SessionID string           `json:"sessionId"`
	UserID    string           `json:"userId"`
	Turns     []TranscriptTurn `json:"turns"`
}

type VoiceCommandFrame struct {
	SessionID   string          `json:"sessionId"`
	UserID      string          `json:"userId"`
	Character   string          `json:"character,omitempty"`
	CommandType string          `json:"commandType"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

type PingFrame struct{}

type envelope struct {
	Type string `json:"type"`
}

// ParseInbound parses a raw client frame and returns the concrete frame
// value for its type (one of the *Frame types above, or PingFrame{}). On any
// parse or shape failure it returns a [gatewayerr.KindProtocol] error and a
// nil frame.
func ParseInbound(raw []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, gatewayerr.NewProtocol("validate", fmt.Sprintf("malformed frame: %v", err))
	}

	switch env.Type {
	case TypeJoin:
		var f JoinFrame
		if err := strictUnmarshal(raw, &f); err != nil {
			return nil, err
		}
		if f.SessionID == "" || f.UserID == "" {
			return nil, gatewayerr.NewProtocol("validate", "join requires sessionId and userId")
		}
		if !validRoles[f.Role] {
			return nil, gatewayerr.NewProtocol("validate", fmt.Sprintf("join has invalid role %q", f.Role))
		}
		return f, nil

	case TypeStartSpeaking:
		var f StartSpeakingFrame
		if err := strictUnmarshal(raw, &f); err != nil {
			return nil, err
		}
		if f.SessionID == "" || f.UserID == "" {
			return nil, gatewayerr.NewProtocol("validate", "start_speaking requires sessionId and userId")
		}
		return f, nil

	case TypeStopSpeaking:
		var f StopSpeakingFrame
		if err := strictUnmarshal(raw, &f); err != nil {
			return nil, err
		}
		if f.SessionID == "" || f.UserID == "" {
			return nil, gatewayerr.NewProtocol("validate", "stop_speaking requires sessionId and userId")
		}
		return f, nil

	case TypeDoctorAudio:
		var f DoctorAudioFrame
		if err := strictUnmarshal(raw, &f); err != nil {
			return nil, err
		}
		if f.SessionID == "" || f.UserID == "" || f.AudioBase64 == "" || f.ContentType == "" {
			return nil, gatewayerr.NewProtocol("validate", "doctor_audio requires sessionId, userId, audioBase64, contentType")
		}
		return f, nil

	case TypeSetScenario:
		var f SetScenarioFrame
		if err := strictUnmarshal(raw, &f); err != nil {
			return nil, err
		}
		if f.SessionID == "" || f.UserID == "" || f.ScenarioID == "" {
			return nil, gatewayerr.NewProtocol("validate", "set_scenario requires sessionId, userId, scenarioId")
		}
		return f, nil

	case TypeAnalyzeTranscript:
		var f AnalyzeTranscriptFrame
		if err := strictUnmarshal(raw, &f); err != nil {
			return nil, err
		}
		if f.SessionID == "" || f.UserID == "" {
			return nil, gatewayerr.NewProtocol("validate", "analyze_transcript requires sessionId and userId")
		}
		return f, nil

	case TypeVoiceCommand:
		var f VoiceCommandFrame
		if err := strictUnmarshal(raw, &f); err != nil {
			return nil, err
		}
		if f.SessionID == "" || f.UserID == "" {
			return nil, gatewayerr.NewProtocol("validate", "voice_command requires sessionId and userId")
		}
		if !validCommandTypes[f.CommandType] {
			return nil, gatewayerr.NewProtocol("validate", fmt.Sprintf("voice_command has unknown commandType %q", f.CommandType))
		}
		return f, nil

	case TypePing:
		return PingFrame{}, nil

	default:
		return nil, gatewayerr.NewProtocol("validate", fmt.Sprintf("unknown frame type %q", env.Type))
	}
}

func strictUnmarshal(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return gatewayerr.NewProtocol("validate", fmt.Sprintf("malformed frame: %v", err))
	}
	return nil
}

// SimState mirrors the outbound snapshot shape. Only the fields needed to
// anchor the generated schema are declared here; handlers build the actual
// broadcast payload as a map and this type exists purely to drive schema
// generation and spot-check required top-level fields.
type SimState struct {
	SessionID     string         `json:"sessionId"`
	StageID       string         `json:"stageId"`
	ScenarioID    string         `json:"scenarioId"`
	Vitals        map[string]any `json:"vitals"`
	Interventions []string       `json:"interventions"`
	Telemetry     map[string]any `json:"telemetry"`
	Findings      []string       `json:"findings"`
	Orders        []any          `json:"orders"`
	Fallback      bool           `json:"fallback"`
	VoiceFallback bool           `json:"voiceFallback"`
	CorrelationID string         `json:"correlationId"`
}

var (
	simStateSchemaOnce sync.Once
	simStateResolved    *jsonschema.Resolved
	simStateSchemaErr   error
)

func simStateSchema() (*jsonschema.Resolved, error) {
	simStateSchemaOnce.Do(func() {
		schema, err := jsonschema.For[SimState](nil)
		if err != nil {
			simStateSchemaErr = fmt.Errorf("validate: building sim_state schema: %w", err)
			return
		}
		resolved, err := schema.Resolve(nil)
		if err != nil {
			simStateSchemaErr = fmt.Errorf("validate: resolving sim_state schema: %w", err)
			return
		}
		simStateResolved = resolved
	})
	return simStateResolved, simStateSchemaErr
}

// ValidateOutboundSimState checks a proposed sim_state broadcast payload
// (typically a map[string]any assembled by the orchestrator) against the
// generated schema. On failure the caller must drop the broadcast, not the
// session.
func ValidateOutboundSimState(payload any) error {
	resolved, err := simStateSchema()
	if err != nil {
		return gatewayerr.New(gatewayerr.KindValidation, "validate", "sim_state schema unavailable", err)
	}
	if err := resolved.Validate(payload); err != nil {
		return gatewayerr.New(gatewayerr.KindValidation, "validate", "sim_state failed shape validation", err)
	}
	return nil
}
