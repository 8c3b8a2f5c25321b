package svt

import (
	"time"

	"github.com/simbridge/medsim/internal/scenario"
)

const (
	underdoseThresholdMgKg    = 0.08
	correctUpperMgKg          = 0.15
	moderateOverdoseUpperMgKg = 0.25
	secondDoseThresholdMgKg   = 0.2

	cardioversionMinJPerKg = 0.5
	cardioversionMaxJPerKg = 2.0

	dwellBeforeInitialManagement = 30 * time.Second
)

// Hook adapts the SVT phase/dose/cardioversion logic to the core scenario
// engine's [scenario.ExtendedHook] contract. The core engine never inspects
// [State] directly — it only ever round-trips the opaque
// [scenario.Extended] value through Hook's methods.
type Hook struct{}

// ApplyTreatment updates the SVT dose ledger, cardioversion ledger, and
// conversion flags in response to a treatment application. See the
// package-level classification constants for the exact dose bands.
func (Hook) ApplyTreatment(extended scenario.Extended, app scenario.TreatmentApplication, weightKg float64, now time.Time) (scenario.Extended, []scenario.Event, *string) {
	s, ok := extended.(*State)
	if !ok || s == nil {
		return extended, nil, nil
	}

	var events []scenario.Event
	var rhythmOverride *string

	switch app.TreatmentType {
	case "vagal_maneuver":
		s.VagalAttempts++
		s.VagalAttemptTs = now
		s.Flags.ValsalvaExplained = true
		if s.VagalAttempts == 1 && vagalSucceeds(weightKg) {
			s.Converted = true
			s.ConversionMethod = "vagal"
			s.CurrentRhythm = "sinus"
			rhythm := "sinus"
			rhythmOverride = &rhythm
			s.TimelineEvents = append(s.TimelineEvents, TimelineEvent{Ts: now, Type: "conversion", Description: "Converted to sinus rhythm via vagal maneuver."})
			events = append(events, scenario.Event{Ts: now, Type: "svt.converted", Data: map[string]any{"method": "vagal"}})
		}

	case "adenosine":
		doseMg := app.Dose
		if doseMg <= 0 {
			doseMg = weightKg * 0.1
			if doseMg > 6 {
				doseMg = 6
			}
		}
		doseMgKg := doseMg / weightKg
		doseNumber := len(s.AdenosineDoses) + 1

		s.AdenosineDoses = append(s.AdenosineDoses, AdenosineDose{
			Ts: now, DoseMg: doseMg, DoseMgKg: doseMgKg, DoseNumber: doseNumber,
			RapidPush: true, FlushGiven: app.FlushGiven,
		})

		classification, penalty := classifyAdenosineDose(doseMgKg)
		if penalty != "" {
			s.PenaltiesIncurred = append(s.PenaltiesIncurred, penalty)
			s.TimelineEvents = append(s.TimelineEvents, TimelineEvent{Ts: now, Type: "dose_error", Description: classification, Negative: true})
		}

		if !s.Converted && app.FlushGiven {
			threshold := underdoseThresholdMgKg
			if doseNumber >= 2 {
				threshold = secondDoseThresholdMgKg
			}
			if doseMgKg >= threshold {
				s.Converted = true
				if doseNumber == 1 {
					s.ConversionMethod = "adenosine_first"
				} else {
					s.ConversionMethod = "adenosine_second"
				}
				s.CurrentRhythm = "sinus"
				rhythm := "sinus"
				rhythmOverride = &rhythm
				s.TimelineEvents = append(s.TimelineEvents, TimelineEvent{Ts: now, Type: "conversion", Description: "Converted to sinus rhythm via adenosine."})
				events = append(events, scenario.Event{Ts: now, Type: "svt.converted", Data: map[string]any{"method": s.ConversionMethod}})
			}
		}

	case "cardioversion":
		sedated := app.Sedated
		attempt := CardioversionAttempt{Ts: now, JoulesPerKg: app.Joules / weightKg, Sedated: sedated}
		s.CardioversionAttempts = append(s.CardioversionAttempts, attempt)

		if !sedated && s.Phase != PhaseDecompensating {
			s.Flags.UnsedatedCardioversion = true
			s.PenaltiesIncurred = append(s.PenaltiesIncurred, "unsedated_cardioversion")
			s.TimelineEvents = append(s.TimelineEvents, TimelineEvent{Ts: now, Type: "cardioversion_unsedated", Description: "Cardioversion performed without sedation.", Negative: true})
		}

		if attempt.JoulesPerKg >= cardioversionMinJPerKg && attempt.JoulesPerKg <= cardioversionMaxJPerKg {
			s.Converted = true
			s.ConversionMethod = "cardioversion"
			s.CurrentRhythm = "sinus"
			rhythm := "sinus"
			rhythmOverride = &rhythm
			s.TimelineEvents = append(s.TimelineEvents, TimelineEvent{Ts: now, Type: "conversion", Description: "Converted to sinus rhythm via synchronized cardioversion."})
			events = append(events, scenario.Event{Ts: now, Type: "svt.converted", Data: map[string]any{"method": "cardioversion"}})
		}
	}

	return s, events, rhythmOverride
}

// vagalSucceeds is deterministic so scoring stays reproducible: it always
// returns false, so a vagal maneuver never converts the rhythm in the
// representative scenario.
func vagalSucceeds(_ float64) bool { return false }

// classifyAdenosineDose returns a human-readable classification and, for any
// non-correct dose, the penalty ID to record. "Severe supersedes moderate":
// a dose matching the severe band never also emits the moderate penalty.
func classifyAdenosineDose(doseMgKg float64) (classification, penaltyID string) {
	switch {
	case doseMgKg < underdoseThresholdMgKg:
		return "adenosine dose below 0.08 mg/kg (underdose)", "adenosine_underdose"
	case doseMgKg <= correctUpperMgKg:
		return "adenosine dose within correct range", ""
	case doseMgKg <= moderateOverdoseUpperMgKg:
		return "adenosine dose 0.15-0.25 mg/kg (moderate overdose)", "adenosine_moderate_overdose"
	default:
		return "adenosine dose above 0.25 mg/kg (severe overdose)", "adenosine_severe_overdose"
	}
}

// Tick advances the phase machine based on stability and dwell time, and is
// a no-op once the patient has converted and entered resolution.
func (Hook) Tick(extended scenario.Extended, now time.Time) (scenario.Extended, []scenario.Event) {
	s, ok := extended.(*State)
	if !ok || s == nil {
		return extended, nil
	}

	var events []scenario.Event

	if s.Converted && s.Phase != PhaseResolution && s.Phase != PhasePostTreatment {
		from := s.Phase
		s.Phase = PhasePostTreatment
		events = append(events, scenario.Event{Ts: now, Type: "svt.phase", Data: map[string]any{"from": from, "to": s.Phase}})
		return s, events
	}

	if s.Phase == PhaseOnset && !s.ScenarioClockPaused {
		if now.Sub(s.ScenarioStartedAt) >= dwellBeforeInitialManagement || s.StabilityLevel <= 1 {
			s.Phase = PhaseInitialManagement
			events = append(events, scenario.Event{Ts: now, Type: "svt.phase", Data: map[string]any{"from": PhaseOnset, "to": s.Phase}})
		}
	}

	return s, events
}
