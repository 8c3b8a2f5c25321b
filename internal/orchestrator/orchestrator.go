package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/simbridge/medsim/internal/costctl"
	"github.com/simbridge/medsim/internal/handlers"
	"github.com/simbridge/medsim/internal/scenario"
	"github.com/simbridge/medsim/internal/session"
	"github.com/simbridge/medsim/internal/statelock"
	"github.com/simbridge/medsim/internal/validate"
	"github.com/simbridge/medsim/pkg/persistence"
	"github.com/simbridge/medsim/pkg/provider/llm"
	"github.com/simbridge/medsim/pkg/provider/realtime"
	"github.com/simbridge/medsim/pkg/provider/stt"
	"github.com/simbridge/medsim/pkg/provider/tts"
	"github.com/simbridge/medsim/pkg/types"
)

// Config bundles everything the orchestrator needs to construct and run
// sessions. The STT, LLM and TTS providers are expected to already be wrapped
// in their internal/resilience fallback groups by the caller (main), so the
// orchestrator itself never chooses between backends — only between the
// realtime and fallback voice paths.
type Config struct {
	Manager   *session.Manager
	Scenarios map[string]*scenario.ScenarioDefinition
	Store     persistence.Store
	Locks     *statelock.Registry

	HeartbeatInterval time.Duration
	CommandCooldown   time.Duration

	Budget costctl.Config

	STT      stt.Provider
	LLM      llm.Provider
	TTS      tts.Provider
	Realtime realtime.Provider // optional; nil disables the low-latency patient path

	VoiceProfiles map[handlers.Character]types.VoiceProfile

	EventCapacity int
}

// Option customizes an [Orchestrator] beyond what Config covers. Mirrors
// the functional-option pattern used across this gateway's constructors
// (config registries, fallback groups).
type Option func(*Orchestrator)

// WithClock overrides the orchestrator's time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator is the concrete [transport.Router]: it owns one [Runtime]
// per live session and routes every inbound frame to the right handler.
type Orchestrator struct {
	cfg     Config
	manager *session.Manager
	now     func() time.Time

	mu       sync.RWMutex
	runtimes map[string]*Runtime
}

// New creates an Orchestrator. Sessions are created lazily on first frame.
func New(cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		manager:  cfg.Manager,
		now:      time.Now,
		runtimes: make(map[string]*Runtime),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// runtimeFor returns the existing Runtime for sessionID, or builds and
// registers one using scenarioID (falling back to the first configured
// scenario if scenarioID is empty or unknown).
func (o *Orchestrator) runtimeFor(ctx context.Context, sessionID, scenarioID string) *Runtime {
	o.mu.RLock()
	r, ok := o.runtimes[sessionID]
	o.mu.RUnlock()
	if ok {
		return r
	}

	def := o.cfg.Scenarios[scenarioID]
	if def == nil {
		for _, d := range o.cfg.Scenarios {
			def = d
			break
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if r, ok := o.runtimes[sessionID]; ok {
		return r
	}
	r = newRuntime(ctx, sessionID, def, o.cfg.Locks, o.cfg.Store, o.cfg.Budget, o.cfg.EventCapacity, o.now())
	o.runtimes[sessionID] = r
	return r
}

// Close tears down sessionID's runtime and releases its state lock. Wired
// as [session.Manager]'s onSessionEmpty callback.
func (o *Orchestrator) Close(sessionID string) {
	o.mu.Lock()
	r, ok := o.runtimes[sessionID]
	delete(o.runtimes, sessionID)
	o.mu.Unlock()
	if !ok {
		return
	}

	r.voiceMu.Lock()
	if r.realtime != nil {
		_ = r.realtime.Close()
	}
	if r.sttSession != nil {
		_ = r.sttSession.Close()
	}
	r.voiceMu.Unlock()

	o.cfg.Locks.Remove(sessionID)
}

// HandleFrame implements [transport.Router]. It is called once per inbound
// frame, already validated and type-switched by the transport layer into
// one of the validate package's frame types.
func (o *Orchestrator) HandleFrame(ctx context.Context, sessionID, userID string, role session.Role, frame any) {
	switch f := frame.(type) {
	case validate.SetScenarioFrame:
		o.handleSetScenario(ctx, sessionID, f)

	case validate.StartSpeakingFrame:
		o.handleStartSpeaking(sessionID, userID)

	case validate.StopSpeakingFrame:
		o.handleStopSpeaking(ctx, sessionID, userID)

	case validate.DoctorAudioFrame:
		o.handleDoctorAudio(ctx, sessionID, f)

	case validate.VoiceCommandFrame:
		r := o.runtimeFor(ctx, sessionID, "")
		if !o.cooldownOK(r, f.CommandType) {
			return
		}
		o.dispatchCommand(ctx, r, userID, f)

	case validate.AnalyzeTranscriptFrame:
		o.handleAnalyzeTranscript(ctx, sessionID, f)

	case validate.PingFrame:
		// No routing action; transport already answered the connection
		// liveness check implicitly by accepting the frame.

	default:
		slog.Debug("orchestrator: unhandled frame type", "session_id", sessionID)
	}
}

// HandleDisconnect implements [transport.Router]. The floor is released if
// the disconnecting user held it; the Runtime itself is only torn down once
// [session.Manager] reports the session fully empty (via Close).
func (o *Orchestrator) HandleDisconnect(sessionID, userID string, role session.Role) {
	o.manager.ReleaseFloor(sessionID, userID)
}

// cooldownOK enforces the configured per-command-type cooldown, rejecting a
// repeat of the same commandType within the window. Session/floor commands
// (pause_ai etc.) are exempt since they are idempotent toggles, not
// scenario mutations.
func (o *Orchestrator) cooldownOK(r *Runtime, commandType string) bool {
	if o.cfg.CommandCooldown <= 0 {
		return true
	}
	switch commandType {
	case validate.CommandPauseAI, validate.CommandResumeAI, validate.CommandEndTurn, validate.CommandMuteUser:
		return true
	}
	now := o.now()

	r.voiceMu.Lock()
	defer r.voiceMu.Unlock()
	last, seen := r.lastCmdAt[commandType]
	if seen && now.Sub(last) < o.cfg.CommandCooldown {
		return false
	}
	r.lastCmdAt[commandType] = now
	return true
}

func (o *Orchestrator) handleSetScenario(ctx context.Context, sessionID string, f validate.SetScenarioFrame) {
	o.mu.Lock()
	delete(o.runtimes, sessionID)
	o.mu.Unlock()
	r := o.runtimeFor(ctx, sessionID, f.ScenarioID)
	broadcastSimState(o.manager, r)
}

func (o *Orchestrator) handleAnalyzeTranscript(ctx context.Context, sessionID string, f validate.AnalyzeTranscriptFrame) {
	r := o.runtimeFor(ctx, sessionID, "")

	var outcome handlers.Outcome
	lockErr := r.lock.WithStateLock(ctx, "analyze_transcript", func() error {
		var err error
		outcome, err = handlers.HandleAnalyzeTranscript(r.Engine, f, o.now())
		return err
	})
	if lockErr != nil {
		r.events.Append(ctx, "analyze_transcript.rejected", map[string]any{"error": lockErr.Error()})
		return
	}
	for _, evt := range outcome.Events {
		r.events.Append(ctx, evt.Type, evt.Data)
	}
	if outcome.Accepted {
		o.manager.BroadcastToPresenters(sessionID, outcome.Result)
	}
}
