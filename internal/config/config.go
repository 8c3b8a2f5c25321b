// Package config provides the configuration schema, loader, and provider
// registry for the medical-simulation voice gateway.
package config

// Config is the root configuration structure for the gateway.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server              ServerConfig       `yaml:"server"`
	HeartbeatIntervalMs int                `yaml:"heartbeat_interval_ms"`
	CommandCooldownMs   int                `yaml:"command_cooldown_ms"`
	OrderDebounceMs      int               `yaml:"order_debounce_ms"`
	Budget              BudgetConfig       `yaml:"budget"`
	Auth                AuthConfig         `yaml:"auth"`
	Voices              map[string]VoiceConfig `yaml:"voices"`
	Providers           ProvidersConfig    `yaml:"providers"`
	Chaos               ChaosConfig        `yaml:"chaos"`
	ScenariosDir        string             `yaml:"scenarios_dir"`
}

// ServerConfig holds network and logging settings for the gateway.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`

	// Environment gates auth mode and chaos knobs. Valid values: "production", "development".
	Environment Environment `yaml:"environment"`
}

// LogLevel is the recognized set of slog verbosity levels.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether l is one of the recognized log levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// Environment distinguishes production from non-production deployments.
// Insecure auth mode and chaos knobs are only honored outside production.
type Environment string

const (
	EnvironmentProduction  Environment = "production"
	EnvironmentDevelopment Environment = "development"
)

// IsValid reports whether e is a recognized environment.
func (e Environment) IsValid() bool {
	switch e {
	case EnvironmentProduction, EnvironmentDevelopment:
		return true
	default:
		return false
	}
}

// BudgetConfig configures the per-session USD cost guard and its pricing model.
type BudgetConfig struct {
	SoftUSD float64       `yaml:"soft_usd"`
	HardUSD float64       `yaml:"hard_usd"`
	Pricing PricingConfig `yaml:"pricing"`
}

// PricingConfig is the opaque-to-the-core pricing model used to translate
// token/audio usage into a running USD estimate.
type PricingConfig struct {
	InputPer1KTokensUSD  float64 `yaml:"input_per_1k_tokens_usd"`
	OutputPer1KTokensUSD float64 `yaml:"output_per_1k_tokens_usd"`
	AudioPerSecondUSD    float64 `yaml:"audio_per_second_usd"`
}

// AuthMode selects how join tokens are verified.
type AuthMode string

const (
	AuthModeSecure   AuthMode = "secure"
	AuthModeInsecure AuthMode = "insecure"
)

// IsValid reports whether m is a recognized auth mode.
func (m AuthMode) IsValid() bool {
	switch m {
	case AuthModeSecure, AuthModeInsecure:
		return true
	default:
		return false
	}
}

// AuthConfig configures join-token verification.
type AuthConfig struct {
	Mode AuthMode `yaml:"mode"`

	// OIDCUserInfoURL is the userinfo endpoint an [AuthModeSecure] deployment
	// verifies join tokens against. Unused in [AuthModeInsecure].
	OIDCUserInfoURL string `yaml:"oidc_userinfo_url"`
}

// VoiceConfig maps a simulation character to a TTS provider voice.
type VoiceConfig struct {
	Provider string `yaml:"provider"`
	VoiceID  string `yaml:"voice_id"`
}

// ProvidersConfig declares which provider implementation to use for each of
// the four voice adapter kinds. Each field selects a named provider
// registered in the [Registry].
type ProvidersConfig struct {
	STT      ProviderEntry `yaml:"stt"`
	TTS      ProviderEntry `yaml:"tts"`
	LLM      ProviderEntry `yaml:"llm"`
	Realtime ProviderEntry `yaml:"realtime"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini", "nova-2").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// ChaosConfig configures fault injection for non-production testing.
// Outside [EnvironmentDevelopment], [Validate] rejects a config that sets
// either knob to a non-zero value.
type ChaosConfig struct {
	DropProbability float64 `yaml:"drop_probability"`
	LatencyMs       int     `yaml:"latency_ms"`
}
