// Package gatewayerr defines the error taxonomy shared by the transport,
// orchestrator, and handler layers. Each kind maps to a specific wire-level
// response and logging treatment; see the package-level doc comments on each
// sentinel for the contract a caller must honor.
package gatewayerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purpose of choosing a wire response.
type Kind string

const (
	// KindProtocol covers malformed frames, missing join, and unknown message
	// types. The connection stays open unless the client is unauthenticated.
	KindProtocol Kind = "protocol"

	// KindAuth covers an invalid token or a subject mismatch. The socket is
	// closed after an error frame is sent.
	KindAuth Kind = "auth"

	// KindFloorConflict means the floor is held by a different user.
	// No broadcast follows.
	KindFloorConflict Kind = "floor_conflict"

	// KindAdapterFailure means an STT/TTS/LLM/Realtime call failed after
	// exhausting retries. The session enters voice fallback.
	KindAdapterFailure Kind = "adapter_failure"

	// KindBudgetSoft is informational; it never changes user-visible state.
	KindBudgetSoft Kind = "budget_soft"

	// KindBudgetHard forces fallback and blocks resume until the budget is
	// cleared externally.
	KindBudgetHard Kind = "budget_hard"

	// KindValidation covers an outbound sim_state that failed shape
	// validation; the broadcast is dropped, not the session.
	KindValidation Kind = "validation"

	// KindUnsafeContent means an auto-reply was suppressed by the safety
	// filter.
	KindUnsafeContent Kind = "unsafe_content"

	// KindStateLockTimeout means a critical section could not acquire the
	// per-session lock within its deadline. No partial mutation occurred.
	KindStateLockTimeout Kind = "state_lock_timeout"
)

// Error is a taxonomy-tagged error. Component is the subsystem that raised it
// (e.g. "transport", "toolgate") and is used only for logging context.
type Error struct {
	Kind      Kind
	Component string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Component, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Component, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a tagged [Error]. Use the New* helpers below for the common
// kinds instead of calling this directly.
func New(kind Kind, component, message string, err error) *Error {
	return &Error{Kind: kind, Component: component, Message: message, Err: err}
}

func NewProtocol(component, message string) *Error {
	return New(KindProtocol, component, message, nil)
}

func NewAuth(component, message string) *Error {
	return New(KindAuth, component, message, nil)
}

func NewFloorConflict(component string) *Error {
	return New(KindFloorConflict, component, "floor_taken", nil)
}

func NewAdapterFailure(component string, err error) *Error {
	return New(KindAdapterFailure, component, "adapter call failed after retries", err)
}

func NewStateLockTimeout(component, operation string) *Error {
	return New(KindStateLockTimeout, component, fmt.Sprintf("lock acquisition timed out: %s", operation), nil)
}

// ErrNotEnoughInteraction is returned by analyze_transcript when the minimum
// interaction guard rejects the request.
var ErrNotEnoughInteraction = errors.New("not enough interaction to analyze")

// ErrBudgetResumeBlocked is returned when resume_ai/unfreeze is attempted
// while the session is over its hard budget limit.
var ErrBudgetResumeBlocked = errors.New("resume blocked: over hard budget limit")

// ErrSessionNotFound is returned when an operation references a session that
// has no active runtime.
var ErrSessionNotFound = errors.New("session not found")

// KindOf extracts the [Kind] from err if it (or something it wraps) is a
// gatewayerr [Error]; ok is false otherwise.
func KindOf(err error) (Kind, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind, true
	}
	return "", false
}
