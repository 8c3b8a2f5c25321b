// Package realtime defines the Provider interface for full-duplex speech
// adapters: a single stateful session that accepts raw audio input and
// streams synthesised audio, transcript deltas, usage, and tool-intent
// events back out — bypassing the separate STT → LLM → TTS pipeline for
// the characters that need the lowest latency (e.g. the simulated patient
// voice).
//
// Unlike a channel-based session handle, a Session here owns no pointer
// back into orchestrator or scenario-engine state. Every event the
// provider produces is delivered through an explicit [Callbacks] record
// supplied at Connect time; the adapter's only job is to translate
// provider wire events into those calls. This keeps the adapter safely
// swappable (mock, chaos-wrapped, fallback) without it ever reaching back
// into engine internals.
//
// All implementations must be safe for concurrent use.
package realtime

import (
	"context"

	"github.com/simbridge/medsim/pkg/types"
)

// ToolIntent is a provider-proposed state-changing call, surfaced before it
// is validated and translated into a scenario intent by the tool gate.
type ToolIntent struct {
	// Name is the tool/function name the model invoked.
	Name string

	// Arguments is the JSON-encoded arguments string.
	Arguments string

	// CallID identifies this invocation so a result can be correlated back
	// to it via [Session.SubmitToolResult].
	CallID string
}

// Usage reports token/audio-second consumption for one exchange, forwarded
// to the cost controller.
type Usage struct {
	InputTokens  int
	OutputTokens int
	AudioSeconds float64
}

// Callbacks is the full set of events a Session can raise. Every field is
// optional; a nil callback is simply not invoked. Callbacks may be invoked
// from the adapter's internal receive goroutine — implementations must not
// call back into blocking Session methods from within a callback.
type Callbacks struct {
	// OnAudioOut is invoked with each chunk of synthesised PCM16 audio as it
	// becomes available.
	OnAudioOut func(chunk []byte)

	// OnTranscriptDelta is invoked as transcript text accumulates, for both
	// the participant's recognized speech and the character's generated
	// response.
	OnTranscriptDelta func(entry types.TranscriptEntry)

	// OnUsage is invoked once per completed exchange with consumption
	// figures for the cost controller.
	OnUsage func(u Usage)

	// OnToolIntent is invoked when the model requests a tool call. The
	// caller must eventually respond via [Session.SubmitToolResult].
	OnToolIntent func(intent ToolIntent)

	// OnDisconnect is invoked exactly once when the session ends, with nil
	// if it ended cleanly (a caller-initiated Close) or the error that
	// caused the disconnect otherwise.
	OnDisconnect func(err error)
}

// SessionConfig is the initial configuration for a new realtime session.
type SessionConfig struct {
	// Voice selects the synthesis voice for this character.
	Voice types.VoiceProfile

	// Instructions is the system-level prompt defining the character's
	// persona, clinical role, and behavioral constraints.
	Instructions string

	// Tools is the initial set of tool definitions the model may invoke.
	Tools []types.ToolDefinition

	// Callbacks receives every event the session raises. Required.
	Callbacks Callbacks
}

// Session represents one open full-duplex connection. Every method must
// return quickly; long-running work happens on the adapter's own
// goroutines and is reported back through the Callbacks supplied at
// Connect time.
type Session interface {
	// SendAudioChunk delivers one chunk of raw PCM16 input audio.
	SendAudioChunk(ctx context.Context, chunk []byte) error

	// CommitAudio signals that the current input utterance is complete and
	// a response should be generated. Providers that infer end-of-speech
	// server-side may treat this as a no-op.
	CommitAudio(ctx context.Context) error

	// CancelResponse stops the in-flight response and discards any
	// buffered but undelivered audio. Used for barge-in.
	CancelResponse(ctx context.Context) error

	// SubmitToolResult returns a tool's result for the given call ID and
	// resumes generation.
	SubmitToolResult(ctx context.Context, callID, result string) error

	// UpdateInstructions replaces the character's system-level
	// instructions, effective on the next turn.
	UpdateInstructions(ctx context.Context, instructions string) error

	// Close terminates the session and releases all resources. Idempotent;
	// triggers OnDisconnect(nil) on first call if not already disconnected.
	Close() error
}

// Capabilities describes static properties of a realtime provider.
type Capabilities struct {
	// ContextWindow is the maximum token count the model can maintain
	// across a session.
	ContextWindow int

	// MaxSessionDurationMs is the provider's hard session lifetime cap.
	// Zero means no documented limit.
	MaxSessionDurationMs int

	// Voices lists the voice profiles available for this provider.
	Voices []types.VoiceProfile
}

// Provider is the abstraction over any full-duplex realtime backend.
type Provider interface {
	// Connect establishes a new session. The returned Session is ready to
	// accept audio immediately; events begin arriving via cfg.Callbacks.
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)

	// Capabilities returns static metadata about this provider's model.
	Capabilities() Capabilities
}
