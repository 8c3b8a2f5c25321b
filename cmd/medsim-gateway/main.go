// Command medsim-gateway is the main entry point for the medical-simulation
// voice gateway: a WebSocket server that fans scenario state, voice audio,
// and instructor commands between a presenter, any number of participants,
// and the scenario engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/simbridge/medsim/internal/config"
	"github.com/simbridge/medsim/internal/costctl"
	"github.com/simbridge/medsim/internal/handlers"
	"github.com/simbridge/medsim/internal/health"
	"github.com/simbridge/medsim/internal/orchestrator"
	"github.com/simbridge/medsim/internal/resilience"
	"github.com/simbridge/medsim/internal/scenario"
	"github.com/simbridge/medsim/internal/session"
	"github.com/simbridge/medsim/internal/statelock"
	"github.com/simbridge/medsim/internal/transport"
	"github.com/simbridge/medsim/pkg/persistence"
	"github.com/simbridge/medsim/pkg/persistence/mock"
	"github.com/simbridge/medsim/pkg/persistence/postgres"
	"github.com/simbridge/medsim/pkg/provider/llm"
	"github.com/simbridge/medsim/pkg/provider/realtime"
	"github.com/simbridge/medsim/pkg/provider/stt"
	"github.com/simbridge/medsim/pkg/provider/tts"
	"github.com/simbridge/medsim/pkg/types"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	postgresDSN := flag.String("postgres-dsn", "", "optional Postgres DSN for session snapshot/event persistence; an in-memory store is used if empty")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "medsim-gateway: config file %q not found — pass -config with the path to a YAML config file\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "medsim-gateway: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("medsim-gateway starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"environment", cfg.Server.Environment,
	)

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(ctx, *postgresDSN)
	if err != nil {
		slog.Error("failed to initialize persistence store", "err", err)
		return 1
	}

	scenarios, err := buildScenarios(cfg.ScenariosDir)
	if err != nil {
		slog.Error("failed to load scenarios", "err", err)
		return 1
	}
	slog.Info("scenarios loaded", "count", len(scenarios))

	var orch *orchestrator.Orchestrator
	manager := session.NewManager(func(sessionID string) {
		orch.Close(sessionID)
	})

	orch = orchestrator.New(orchestrator.Config{
		Manager:   manager,
		Scenarios: scenarios,
		Store:     store,
		Locks:     statelock.NewRegistry(5 * time.Second),

		HeartbeatInterval: time.Duration(cfg.HeartbeatIntervalMs) * time.Millisecond,
		CommandCooldown:   time.Duration(cfg.CommandCooldownMs) * time.Millisecond,

		Budget: costctl.Config{
			Pricing: costctl.Pricing{
				InputPer1KTokensUSD:  cfg.Budget.Pricing.InputPer1KTokensUSD,
				OutputPer1KTokensUSD: cfg.Budget.Pricing.OutputPer1KTokensUSD,
				AudioPerSecondUSD:    cfg.Budget.Pricing.AudioPerSecondUSD,
			},
			SoftLimitUSD: cfg.Budget.SoftUSD,
			HardLimitUSD: cfg.Budget.HardUSD,
			OnSoftLimit: func(usd float64) {
				slog.Warn("session over soft budget", "usd_estimate", usd)
			},
			OnHardLimit: func(usd float64) {
				slog.Warn("session over hard budget, degrading to fallback voice path", "usd_estimate", usd)
			},
		},

		STT:      providers.STT,
		LLM:      providers.LLM,
		TTS:      providers.TTS,
		Realtime: providers.Realtime,

		VoiceProfiles: buildVoiceProfiles(cfg.Voices),
		EventCapacity: 500,
	})

	var verifier transport.IdentityVerifier
	if cfg.Auth.Mode == config.AuthModeSecure {
		if cfg.Auth.OIDCUserInfoURL == "" {
			slog.Error("auth.mode=secure requires auth.oidc_userinfo_url")
			return 1
		}
		verifier = &transport.OAuth2Verifier{UserInfoURL: cfg.Auth.OIDCUserInfoURL}
	}

	srv := transport.New(transport.Config{
		Manager:  manager,
		Router:   orch,
		Verifier: verifier,
		AuthMode: cfg.Auth.Mode,
	})

	mux := http.NewServeMux()
	mux.Handle("/ws/voice", srv)
	health.New(
		health.Checker{Name: "scenarios", Check: func(context.Context) error {
			if len(scenarios) == 0 {
				return fmt.Errorf("no scenarios loaded")
			}
			return nil
		}},
	).Register(mux)

	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: mux,
	}

	heartbeatErr := make(chan error, 1)
	go func() { heartbeatErr <- orch.Run(ctx) }()

	serveErr := make(chan error, 1)
	go func() { serveErr <- httpServer.ListenAndServe() }()

	slog.Info("server ready — press Ctrl+C to shut down")

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
			return 1
		}
	}

	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// buildProviders instantiates the single configured backend for each of the
// four adapter kinds. STT, LLM and TTS are each wrapped in their
// internal/resilience fallback group so a transient failure trips a circuit
// breaker instead of bubbling straight into the voice path; the realtime
// provider is used as created, without a wrapper.
func buildProviders(cfg *config.Config, reg *config.Registry) (struct {
	STT      stt.Provider
	LLM      llm.Provider
	TTS      tts.Provider
	Realtime realtime.Provider
}, error) {
	var out struct {
		STT      stt.Provider
		LLM      llm.Provider
		TTS      tts.Provider
		Realtime realtime.Provider
	}

	fbCfg := resilience.FallbackConfig{CircuitBreaker: resilience.CircuitBreakerConfig{MaxFailures: 5, ResetTimeout: 30 * time.Second}}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return out, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		out.STT = resilience.NewSTTFallback(p, name, fbCfg)
		slog.Info("provider created", "kind", "stt", "name", name)
	}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return out, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		out.LLM = resilience.NewLLMFallback(p, name, fbCfg)
		slog.Info("provider created", "kind", "llm", "name", name)
	}

	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		if err != nil {
			return out, fmt.Errorf("create tts provider %q: %w", name, err)
		}
		out.TTS = resilience.NewTTSFallback(p, name, fbCfg)
		slog.Info("provider created", "kind", "tts", "name", name)
	}

	if name := cfg.Providers.Realtime.Name; name != "" {
		p, err := reg.CreateRealtime(cfg.Providers.Realtime)
		if err != nil {
			return out, fmt.Errorf("create realtime provider %q: %w", name, err)
		}
		out.Realtime = p
		slog.Info("provider created", "kind", "realtime", "name", name)
	}

	return out, nil
}

// buildStore opens a Postgres-backed store when dsn is set, otherwise an
// in-memory one suitable for local runs and smoke tests.
func buildStore(ctx context.Context, dsn string) (persistence.Store, error) {
	if dsn == "" {
		slog.Warn("no -postgres-dsn given; session snapshots are in-memory only and will not survive a restart")
		return mock.New(), nil
	}
	return postgres.NewStore(ctx, dsn)
}

// buildScenarios loads scenario definitions from dir if set, always
// supplementing with the two built-in representative scenarios so the
// gateway has something to run even with no scenarios_dir configured.
func buildScenarios(dir string) (map[string]*scenario.ScenarioDefinition, error) {
	out := map[string]*scenario.ScenarioDefinition{}

	svt := scenario.TeenSVTComplexV1()
	simple := scenario.SimpleFeverV1()
	out[svt.ID] = svt
	out[simple.ID] = simple

	if dir == "" {
		return out, nil
	}

	loaded, err := scenario.LoadScenarioDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scenarios_dir %q: %w", dir, err)
	}
	for id, def := range loaded {
		out[id] = def
	}
	return out, nil
}

// buildVoiceProfiles converts the config's character→voice mapping into the
// shape internal/orchestrator's voice paths expect.
func buildVoiceProfiles(voices map[string]config.VoiceConfig) map[handlers.Character]types.VoiceProfile {
	out := make(map[handlers.Character]types.VoiceProfile, len(voices))
	for name, v := range voices {
		character := handlers.Character(name)
		if !character.IsValid() {
			slog.Warn("ignoring voice config for unrecognized character", "character", name)
			continue
		}
		out[character] = types.VoiceProfile{ID: v.VoiceID, Provider: v.Provider}
	}
	return out
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogLevelDebug:
		lvl = slog.LevelDebug
	case config.LogLevelWarn:
		lvl = slog.LevelWarn
	case config.LogLevelError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
