// Package svt implements the paediatric SVT complex scenario sub-engine: its
// own phase machine, dose/weight-based pharmacology with decay, cardioversion
// ledger, and pause-adjusted scoring. It is the representative complex
// scenario sub-engine; a Myocarditis variant would follow the same shape
// with its own phase list and effect tables.
package svt

import "time"

// Phase is the ordered SVT phase machine.
type Phase string

const (
	PhasePresentation      Phase = "presentation"
	PhaseOnset             Phase = "svt_onset"
	PhaseInitialManagement Phase = "initial_management"
	PhaseTreatment         Phase = "treatment"
	PhasePostTreatment     Phase = "post_treatment"
	PhaseDecompensating    Phase = "decompensating"
	PhaseResolution        Phase = "resolution"
)

// phaseOrder is the declared phase ordering. [Hook.Tick] does not read it;
// its phase changes are explicit transitions.
var phaseOrder = []Phase{
	PhasePresentation, PhaseOnset, PhaseInitialManagement, PhaseTreatment,
	PhasePostTreatment, PhaseDecompensating, PhaseResolution,
}

// AdenosineDose is one administered adenosine dose.
type AdenosineDose struct {
	Ts         time.Time
	DoseMg     float64
	DoseMgKg   float64
	DoseNumber int
	RapidPush  bool
	FlushGiven bool
}

// CardioversionAttempt is one synchronized cardioversion attempt.
type CardioversionAttempt struct {
	Ts          time.Time
	JoulesPerKg float64
	Sedated     bool
}

// TimelineEvent is an append-only narrative entry surfaced in the debrief.
type TimelineEvent struct {
	Ts          time.Time
	Type        string
	Description string
	Negative    bool
}

// Flags are the discrete scenario-specific boolean flags named in the spec.
type Flags struct {
	PatientReassured       bool
	ParentInformed         bool
	ValsalvaExplained      bool
	ReboundSVT             bool
	UnsedatedCardioversion bool
}

// State is the SVT extended state threaded through scenario.State.Extended.
type State struct {
	Phase           Phase
	StabilityLevel  int // 1..4
	CurrentRhythm   string
	Converted       bool
	ConversionMethod string

	VagalAttempts  int
	VagalAttemptTs time.Time

	AdenosineDoses        []AdenosineDose
	CardioversionAttempts []CardioversionAttempt

	IVAccessTs   time.Time
	MonitorOnTs  time.Time
	ECGOrderedTs time.Time

	ScenarioStartedAt  time.Time
	ScenarioClockPaused bool
	pauseStartedAt      time.Time
	TotalPausedMs       int64

	Flags Flags

	TimelineEvents []TimelineEvent

	RuleTriggers      []string
	PendingEffects    []string
	ChecklistCompleted map[string]bool
	BonusesEarned      []string
	PenaltiesIncurred  []string
	CurrentScore       int
}

// NewState returns a freshly initialized SVT state at phase "presentation"
// with stabilityLevel 2 (mildly unstable — the typical SVT presentation).
func NewState(now time.Time) *State {
	return &State{
		Phase:              PhasePresentation,
		StabilityLevel:     2,
		CurrentRhythm:      "svt",
		ScenarioStartedAt:  now,
		ChecklistCompleted: map[string]bool{},
	}
}

// ElapsedSinceStart returns now − ScenarioStartedAt − TotalPausedMs, the
// pause-adjusted elapsed time that drives all time-based scoring.
func (s *State) ElapsedSinceStart(now time.Time) time.Duration {
	elapsed := now.Sub(s.ScenarioStartedAt) - time.Duration(s.TotalPausedMs)*time.Millisecond
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// Pause marks the scenario clock paused. A no-op if already paused.
func (s *State) Pause(now time.Time) {
	if s.ScenarioClockPaused {
		return
	}
	s.ScenarioClockPaused = true
	s.pauseStartedAt = now
}

// Resume adds the elapsed pause duration into TotalPausedMs. A no-op if not
// currently paused.
func (s *State) Resume(now time.Time) {
	if !s.ScenarioClockPaused {
		return
	}
	s.ScenarioClockPaused = false
	s.TotalPausedMs += now.Sub(s.pauseStartedAt).Milliseconds()
}
