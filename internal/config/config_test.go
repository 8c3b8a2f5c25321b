package config_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/simbridge/medsim/internal/config"
)

const sampleYAML = `
server:
  listen_addr: ":8080"
  log_level: info
  environment: production

heartbeat_interval_ms: 1000
command_cooldown_ms: 1000
order_debounce_ms: 2000

budget:
  soft_usd: 5.0
  hard_usd: 10.0
  pricing:
    input_per_1k_tokens_usd: 0.0025
    output_per_1k_tokens_usd: 0.01
    audio_per_second_usd: 0.0006

auth:
  mode: secure

voices:
  patient:
    provider: elevenlabs
    voice_id: voice-1
  nurse:
    provider: elevenlabs
    voice_id: voice-2

providers:
  stt:
    name: deepgram
    api_key: dg-test
  tts:
    name: elevenlabs
    api_key: el-test
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
  realtime:
    name: gemini-realtime

scenarios_dir: "./data/scenarios"
`

func TestLoadFromReader_ParsesSample(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.ListenAddr)
	require.Equal(t, config.EnvironmentProduction, cfg.Server.Environment)
	require.Equal(t, 5.0, cfg.Budget.SoftUSD)
	require.Equal(t, 10.0, cfg.Budget.HardUSD)
	require.Equal(t, "deepgram", cfg.Providers.STT.Name)
	require.Equal(t, "voice-1", cfg.Voices["patient"].VoiceID)
	require.Equal(t, "./data/scenarios", cfg.ScenariosDir)
}

func TestLoadFromReader_EmptyIsValid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	require.NoError(t, err)
	require.Equal(t, 1000, cfg.HeartbeatIntervalMs)
	require.Equal(t, config.AuthModeSecure, cfg.Auth.Mode)
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("bogus_field: true\n"))
	require.Error(t, err)
}

func TestLoadFromReader_InsecureAuthForbiddenInProduction(t *testing.T) {
	yaml := `
server:
  environment: production
auth:
  mode: insecure
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	require.Error(t, err)
	require.Contains(t, err.Error(), "insecure")
}

func TestLoadFromReader_InsecureAuthAllowedInDevelopment(t *testing.T) {
	yaml := `
server:
  environment: development
auth:
  mode: insecure
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	require.NoError(t, err)
	require.Equal(t, config.AuthModeInsecure, cfg.Auth.Mode)
}

func TestLoadFromReader_CommandCooldownFloor(t *testing.T) {
	yaml := "command_cooldown_ms: 100\n"
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	require.NoError(t, err)
	require.Equal(t, 1000, cfg.CommandCooldownMs)
}

func TestLoadFromReader_SoftExceedsHardIsInvalid(t *testing.T) {
	yaml := `
budget:
  soft_usd: 20
  hard_usd: 10
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	require.Error(t, err)
}

func TestLoadFromReader_ChaosForbiddenInProduction(t *testing.T) {
	yaml := `
server:
  environment: production
chaos:
  drop_probability: 0.1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	require.Error(t, err)
}
