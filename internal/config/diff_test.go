package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/simbridge/medsim/internal/config"
)

func TestDiff_DetectsLogLevelChange(t *testing.T) {
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogLevelInfo}}
	next := &config.Config{Server: config.ServerConfig{LogLevel: config.LogLevelDebug}}

	d := config.Diff(old, next)
	require.True(t, d.LogLevelChanged)
	require.Equal(t, config.LogLevelDebug, d.NewLogLevel)
}

func TestDiff_DetectsVoiceChange(t *testing.T) {
	old := &config.Config{Voices: map[string]config.VoiceConfig{"patient": {Provider: "elevenlabs", VoiceID: "a"}}}
	next := &config.Config{Voices: map[string]config.VoiceConfig{"patient": {Provider: "elevenlabs", VoiceID: "b"}}}

	d := config.Diff(old, next)
	require.True(t, d.VoicesChanged)
}

func TestDiff_NoChangeIsQuiet(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{LogLevel: config.LogLevelInfo}}
	d := config.Diff(cfg, cfg)
	require.False(t, d.LogLevelChanged)
	require.False(t, d.VoicesChanged)
	require.False(t, d.ChaosChanged)
}
