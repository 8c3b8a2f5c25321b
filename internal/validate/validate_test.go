package validate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/simbridge/medsim/internal/gatewayerr"
)

func TestParseInbound_Join(t *testing.T) {
	raw := []byte(`{"type":"join","sessionId":"s1","userId":"u1","role":"presenter"}`)
	frame, err := ParseInbound(raw)
	require.NoError(t, err)

	f, ok := frame.(JoinFrame)
	require.True(t, ok)
	require.Equal(t, "s1", f.SessionID)
	require.Equal(t, "presenter", f.Role)
}

func TestParseInbound_JoinRejectsBadRole(t *testing.T) {
	raw := []byte(`{"type":"join","sessionId":"s1","userId":"u1","role":"admin"}`)
	_, err := ParseInbound(raw)
	require.Error(t, err)
	kind, ok := gatewayerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, gatewayerr.KindProtocol, kind)
}

func TestParseInbound_JoinRequiresSessionAndUser(t *testing.T) {
	raw := []byte(`{"type":"join","role":"presenter"}`)
	_, err := ParseInbound(raw)
	require.Error(t, err)
}

func TestParseInbound_DoctorAudio(t *testing.T) {
	raw := []byte(`{"type":"doctor_audio","sessionId":"s1","userId":"u1","audioBase64":"abc","contentType":"audio/pcm"}`)
	frame, err := ParseInbound(raw)
	require.NoError(t, err)

	f, ok := frame.(DoctorAudioFrame)
	require.True(t, ok)
	require.Equal(t, "abc", f.AudioBase64)
}

func TestParseInbound_DoctorAudioMissingFields(t *testing.T) {
	raw := []byte(`{"type":"doctor_audio","sessionId":"s1","userId":"u1"}`)
	_, err := ParseInbound(raw)
	require.Error(t, err)
}

func TestParseInbound_VoiceCommandValid(t *testing.T) {
	raw := []byte(`{"type":"voice_command","sessionId":"s1","userId":"u1","commandType":"order","payload":{"orderType":"ekg"}}`)
	frame, err := ParseInbound(raw)
	require.NoError(t, err)

	f, ok := frame.(VoiceCommandFrame)
	require.True(t, ok)
	require.Equal(t, CommandOrder, f.CommandType)
	require.JSONEq(t, `{"orderType":"ekg"}`, string(f.Payload))
}

func TestParseInbound_VoiceCommandUnknownType(t *testing.T) {
	raw := []byte(`{"type":"voice_command","sessionId":"s1","userId":"u1","commandType":"teleport"}`)
	_, err := ParseInbound(raw)
	require.Error(t, err)
	kind, ok := gatewayerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, gatewayerr.KindProtocol, kind)
}

func TestParseInbound_Ping(t *testing.T) {
	frame, err := ParseInbound([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	require.Equal(t, PingFrame{}, frame)
}

func TestParseInbound_SetScenario(t *testing.T) {
	raw := []byte(`{"type":"set_scenario","sessionId":"s1","userId":"u1","scenarioId":"teen_svt_complex_v1"}`)
	frame, err := ParseInbound(raw)
	require.NoError(t, err)

	f, ok := frame.(SetScenarioFrame)
	require.True(t, ok)
	require.Equal(t, "teen_svt_complex_v1", f.ScenarioID)
}

func TestParseInbound_AnalyzeTranscriptWithTurns(t *testing.T) {
	raw := []byte(`{"type":"analyze_transcript","sessionId":"s1","userId":"u1","turns":[{"speaker":"doctor","text":"give adenosine"}]}`)
	frame, err := ParseInbound(raw)
	require.NoError(t, err)

	f, ok := frame.(AnalyzeTranscriptFrame)
	require.True(t, ok)
	require.Len(t, f.Turns, 1)
	require.Equal(t, "doctor", f.Turns[0].Speaker)
}

func TestParseInbound_StartStopSpeaking(t *testing.T) {
	start, err := ParseInbound([]byte(`{"type":"start_speaking","sessionId":"s1","userId":"u1"}`))
	require.NoError(t, err)
	_, ok := start.(StartSpeakingFrame)
	require.True(t, ok)

	stop, err := ParseInbound([]byte(`{"type":"stop_speaking","sessionId":"s1","userId":"u1"}`))
	require.NoError(t, err)
	_, ok = stop.(StopSpeakingFrame)
	require.True(t, ok)
}

func TestParseInbound_UnknownType(t *testing.T) {
	_, err := ParseInbound([]byte(`{"type":"summon_npc"}`))
	require.Error(t, err)
	kind, ok := gatewayerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, gatewayerr.KindProtocol, kind)
}

func TestParseInbound_MalformedJSON(t *testing.T) {
	_, err := ParseInbound([]byte(`{not json`))
	require.Error(t, err)
}

func TestValidateOutboundSimState_AcceptsWellShapedPayload(t *testing.T) {
	payload := SimState{
		SessionID:     "s1",
		StageID:       "svt_onset",
		ScenarioID:    "teen_svt_complex_v1",
		Vitals:        map[string]any{"hr": 180},
		Interventions: []string{"monitor_on"},
		Telemetry:     map[string]any{},
		Findings:      []string{},
		Orders:        []any{},
		CorrelationID: "corr-1",
	}
	err := ValidateOutboundSimState(payload)
	require.NoError(t, err)
}

func TestValidateOutboundSimState_RejectsWrongShape(t *testing.T) {
	err := ValidateOutboundSimState(map[string]any{"vitals": "not-an-object"})
	require.Error(t, err)
	kind, ok := gatewayerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, gatewayerr.KindValidation, kind)
}
