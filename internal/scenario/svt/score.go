package svt

import "time"

// Grade is the letter grade band assigned to a finished attempt.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// ChecklistItem is one declared scoring row. Predicate inspects the final
// state and pause-adjusted elapsed time and reports whether the item was
// satisfied.
type ChecklistItem struct {
	ID          string
	Description string
	Explanation string
	Points      int
	Predicate   func(s *State, elapsed time.Duration) bool
}

// earlyECGWindow is how soon after scenario start (pause-adjusted) an ECG
// order must land to earn the early-recognition bonus.
const earlyECGWindow = 60 * time.Second

// checklist is the declared core-skills checklist. Order is display order,
// not scoring order — every item is evaluated independently.
var checklist = []ChecklistItem{
	{
		ID: "monitor_applied", Description: "Cardiac monitor applied",
		Explanation: "Continuous monitoring is the first safety step for a tachyarrhythmia.",
		Points:      10,
		Predicate:   func(s *State, _ time.Duration) bool { return !s.MonitorOnTs.IsZero() },
	},
	{
		ID: "iv_access", Description: "IV access obtained",
		Explanation: "IV access is required before adenosine or sedation can be given.",
		Points:      10,
		Predicate:   func(s *State, _ time.Duration) bool { return !s.IVAccessTs.IsZero() },
	},
	{
		ID: "vagal_attempted", Description: "Vagal maneuver attempted before pharmacologic conversion",
		Explanation: "Vagal maneuvers are first-line for a stable SVT and carry no medication risk.",
		Points:      15,
		Predicate:   func(s *State, _ time.Duration) bool { return s.VagalAttempts > 0 },
	},
	{
		ID: "adenosine_correct_dose", Description: "Adenosine given within the correct dose range",
		Explanation: "0.08-0.15 mg/kg rapid IV push is the correct weight-based dose.",
		Points:      20,
		Predicate: func(s *State, _ time.Duration) bool {
			for _, d := range s.AdenosineDoses {
				if d.DoseMgKg >= underdoseThresholdMgKg && d.DoseMgKg <= correctUpperMgKg {
					return true
				}
			}
			return false
		},
	},
	{
		ID: "rapid_flush", Description: "Adenosine given with a rapid flush",
		Explanation: "Adenosine's half-life is under 10 seconds; a slow or absent flush fails to deliver it centrally.",
		Points:      10,
		Predicate: func(s *State, _ time.Duration) bool {
			for _, d := range s.AdenosineDoses {
				if d.FlushGiven {
					return true
				}
			}
			return false
		},
	},
	{
		ID: "sedation_before_cardioversion", Description: "Sedation given before any cardioversion attempt",
		Explanation: "Synchronized cardioversion on a responsive patient without sedation is painful and avoidable.",
		Points:      15,
		Predicate: func(s *State, _ time.Duration) bool {
			return len(s.CardioversionAttempts) == 0 || !s.Flags.UnsedatedCardioversion
		},
	},
	{
		ID: "ecg_ordered", Description: "12-lead ECG ordered",
		Explanation: "A 12-lead confirms SVT and documents the pre-conversion rhythm.",
		Points:      10,
		Predicate:   func(s *State, _ time.Duration) bool { return !s.ECGOrderedTs.IsZero() },
	},
	{
		ID: "converted", Description: "Patient converted to sinus rhythm",
		Explanation: "The scenario's terminal clinical goal.",
		Points:      20,
		Predicate:   func(s *State, _ time.Duration) bool { return s.Converted },
	},
}

// bonuses are declared extra-credit rows, evaluated independently of the
// checklist.
var bonuses = []ChecklistItem{
	{
		ID: "early_ecg", Description: "12-lead ECG ordered within 60s of (pause-adjusted) scenario start",
		Explanation: "Early rhythm capture speeds definitive diagnosis.",
		Points:      10,
		Predicate: func(s *State, _ time.Duration) bool {
			if s.ECGOrderedTs.IsZero() {
				return false
			}
			ecgElapsed := s.ElapsedSinceStart(s.ECGOrderedTs)
			return ecgElapsed <= earlyECGWindow
		},
	},
	{
		ID: "first_dose_conversion", Description: "Converted on the first adenosine dose",
		Explanation: "Avoids unnecessary repeat dosing and its associated risk.",
		Points:      10,
		Predicate:   func(s *State, _ time.Duration) bool { return s.ConversionMethod == "adenosine_first" },
	},
}

// penalties are declared point deductions for unsafe or incorrect actions.
// "Severe supersedes moderate": if both the severe and moderate adenosine
// penalty IDs are present (they cannot both fire from a single dose — see
// classifyAdenosineDose — but could across repeat doses), only the severe
// deduction counts.
var penaltyPoints = map[string]int{
	"adenosine_underdose":         -5,
	"adenosine_moderate_overdose": -10,
	"adenosine_severe_overdose":   -20,
	"unsedated_cardioversion":     -15,
}

// ScoreResult is the final debrief scoring payload.
type ScoreResult struct {
	Passed            bool
	Grade             Grade
	ChecklistResults  map[string]bool
	ChecklistScore    int
	BonusesEarned     []string
	BonusScore        int
	PenaltiesIncurred []string
	PenaltyScore      int
	TotalPoints       int
	MaxPoints         int
	Feedback          []string
}

// CalculateScore evaluates the full checklist/bonus/penalty table against
// the final SVT state and produces a debrief-ready result. elapsed is the
// pause-adjusted total scenario duration.
func CalculateScore(s *State, elapsed time.Duration) ScoreResult {
	result := ScoreResult{
		ChecklistResults: make(map[string]bool, len(checklist)),
	}

	maxPoints := 0
	for _, item := range checklist {
		maxPoints += item.Points
		ok := item.Predicate(s, elapsed)
		result.ChecklistResults[item.ID] = ok
		if ok {
			result.ChecklistScore += item.Points
			result.Feedback = append(result.Feedback, "✓ "+item.Description)
		} else {
			result.Feedback = append(result.Feedback, "✗ "+item.Description+" — "+item.Explanation)
		}
	}
	for _, item := range bonuses {
		maxPoints += item.Points
		if item.Predicate(s, elapsed) {
			result.BonusesEarned = append(result.BonusesEarned, item.ID)
			result.BonusScore += item.Points
			result.Feedback = append(result.Feedback, "bonus: "+item.Description)
		}
	}

	penaltyApplied := dedupePenalties(s.PenaltiesIncurred)
	for _, id := range penaltyApplied {
		points := penaltyPoints[id]
		result.PenaltiesIncurred = append(result.PenaltiesIncurred, id)
		result.PenaltyScore += points
	}

	result.MaxPoints = maxPoints
	result.TotalPoints = result.ChecklistScore + result.BonusScore + result.PenaltyScore
	if result.TotalPoints < 0 {
		result.TotalPoints = 0
	}

	result.Grade = gradeFor(result.TotalPoints, maxPoints)
	result.Passed = s.Converted && result.Grade != GradeF

	return result
}

// dedupePenalties collapses severe/moderate adenosine-overdose penalties
// down to the single worst one incurred; all other penalty IDs pass through
// unchanged, each counted once per occurrence.
func dedupePenalties(incurred []string) []string {
	hasSevere := false
	for _, id := range incurred {
		if id == "adenosine_severe_overdose" {
			hasSevere = true
			break
		}
	}
	out := make([]string, 0, len(incurred))
	for _, id := range incurred {
		if hasSevere && id == "adenosine_moderate_overdose" {
			continue
		}
		out = append(out, id)
	}
	return out
}

func gradeFor(points, max int) Grade {
	if max == 0 {
		return GradeF
	}
	pct := float64(points) / float64(max) * 100
	switch {
	case pct >= 90:
		return GradeA
	case pct >= 80:
		return GradeB
	case pct >= 70:
		return GradeC
	case pct >= 60:
		return GradeD
	default:
		return GradeF
	}
}
