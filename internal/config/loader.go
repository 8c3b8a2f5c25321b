package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per adapter kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":      {"deepgram", "whisper", "whisper-native"},
	"tts":      {"elevenlabs", "coqui", "polly"},
	"llm":      {"openai", "anyllm", "anthropic"},
	"realtime": {"gemini-realtime", "openai-realtime"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in zero-value fields with the documented defaults.
func applyDefaults(cfg *Config) {
	if cfg.HeartbeatIntervalMs == 0 {
		cfg.HeartbeatIntervalMs = 1000
	}
	if cfg.CommandCooldownMs == 0 {
		cfg.CommandCooldownMs = 1000
	}
	if cfg.CommandCooldownMs < 1000 {
		// The auto-reply guard applies a per-session floor of 1s regardless;
		// surface that here so Current() never lies about the effective value.
		cfg.CommandCooldownMs = 1000
	}
	if cfg.OrderDebounceMs == 0 {
		cfg.OrderDebounceMs = 2000
	}
	if cfg.Server.Environment == "" {
		cfg.Server.Environment = EnvironmentProduction
	}
	if cfg.Auth.Mode == "" {
		cfg.Auth.Mode = AuthModeSecure
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.Environment != "" && !cfg.Server.Environment.IsValid() {
		errs = append(errs, fmt.Errorf("server.environment %q is invalid; valid values: production, development", cfg.Server.Environment))
	}
	if cfg.Auth.Mode != "" && !cfg.Auth.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("auth.mode %q is invalid; valid values: secure, insecure", cfg.Auth.Mode))
	}
	if cfg.Auth.Mode == AuthModeInsecure && cfg.Server.Environment == EnvironmentProduction {
		errs = append(errs, errors.New("auth.mode=insecure is forbidden when server.environment=production"))
	}

	if cfg.Budget.HardUSD > 0 && cfg.Budget.SoftUSD > cfg.Budget.HardUSD {
		errs = append(errs, fmt.Errorf("budget.soft_usd (%.2f) must not exceed budget.hard_usd (%.2f)", cfg.Budget.SoftUSD, cfg.Budget.HardUSD))
	}

	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("realtime", cfg.Providers.Realtime.Name)

	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; character fallback voices will not be able to generate responses")
	}

	for name, v := range cfg.Voices {
		if v.Provider == "" || v.VoiceID == "" {
			errs = append(errs, fmt.Errorf("voices[%s]: provider and voice_id are both required", name))
		}
	}

	if cfg.Server.Environment == EnvironmentProduction {
		if cfg.Chaos.DropProbability != 0 || cfg.Chaos.LatencyMs != 0 {
			errs = append(errs, errors.New("chaos knobs must be zero in production"))
		}
	}
	if cfg.Chaos.DropProbability < 0 || cfg.Chaos.DropProbability > 1 {
		errs = append(errs, fmt.Errorf("chaos.drop_probability %.2f must be in [0,1]", cfg.Chaos.DropProbability))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
