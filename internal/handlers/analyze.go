package handlers

import (
	"time"

	"github.com/simbridge/medsim/internal/gatewayerr"
	"github.com/simbridge/medsim/internal/scenario"
	"github.com/simbridge/medsim/internal/scenario/svt"
	"github.com/simbridge/medsim/internal/validate"
)

// minTurnsForAnalysis and minTimelineEventsForAnalysis guard against scoring
// a session that never really ran: a debrief computed from a handful of
// turns and no scenario activity would be meaningless noise, not feedback.
const (
	minTurnsForAnalysis          = 3
	minTimelineEventsForAnalysis = 3
)

// AnalysisResult is the wire payload for a simple (non-SVT) scenario's
// transcript analysis: a lighter heuristic than the full SVT checklist,
// since a simple scenario declares no phase machine or scoring table of its
// own.
type AnalysisResult struct {
	TurnCount       int      `json:"turnCount"`
	FindingsRevealed int     `json:"findingsRevealed"`
	OrdersPlaced    int      `json:"ordersPlaced"`
	TreatmentsGiven int      `json:"treatmentsGiven"`
	Feedback        []string `json:"feedback"`
}

// HandleAnalyzeTranscript produces a debrief. A complex (SVT) scenario
// reports [svt.ScoreResult]; any other scenario reports [AnalysisResult].
// Returns [gatewayerr.ErrNotEnoughInteraction] when the session is too short
// to score meaningfully.
func HandleAnalyzeTranscript(eng *scenario.Engine, frame validate.AnalyzeTranscriptFrame, now time.Time) (Outcome, error) {
	state := eng.State()

	svtState, isSVT := state.Extended.(*svt.State)
	timelineCount := 0
	if isSVT && svtState != nil {
		timelineCount = len(svtState.TimelineEvents)
	}

	if len(frame.Turns) < minTurnsForAnalysis && timelineCount < minTimelineEventsForAnalysis {
		return Outcome{}, gatewayerr.ErrNotEnoughInteraction
	}

	if isSVT && svtState != nil {
		elapsed := svtState.ElapsedSinceStart(now)
		score := svt.CalculateScore(svtState, elapsed)
		return Outcome{
			Accepted: true,
			Events: []scenario.Event{
				{Ts: now, Type: "analyze_transcript.complex_debrief_result", Data: map[string]any{"grade": string(score.Grade), "totalPoints": score.TotalPoints}},
			},
			Result: map[string]any{"complex_debrief_result": score},
		}, nil
	}

	result := analyzeSimple(state, frame)
	return Outcome{
		Accepted: true,
		Events: []scenario.Event{
			{Ts: now, Type: "analyze_transcript.analysis_result", Data: map[string]any{"turnCount": result.TurnCount}},
		},
		Result: map[string]any{"analysis_result": result},
	}, nil
}

// analyzeSimple builds a heuristic feedback summary for a scenario with no
// dedicated scoring sub-engine: it counts what the presenter actually did
// rather than grading against a checklist.
func analyzeSimple(state scenario.State, frame validate.AnalyzeTranscriptFrame) AnalysisResult {
	revealed := 0
	for _, ok := range state.Findings {
		if ok {
			revealed++
		}
	}

	treatments := len(state.TreatmentHistory)
	orders := len(state.Orders)

	feedback := []string{}
	if orders == 0 {
		feedback = append(feedback, "no diagnostic orders were placed")
	}
	if treatments == 0 {
		feedback = append(feedback, "no treatments were given")
	}
	if revealed == 0 {
		feedback = append(feedback, "no exam findings were revealed")
	}
	if len(feedback) == 0 {
		feedback = append(feedback, "full workup completed")
	}

	return AnalysisResult{
		TurnCount:        len(frame.Turns),
		FindingsRevealed: revealed,
		OrdersPlaced:     orders,
		TreatmentsGiven:  treatments,
		Feedback:         feedback,
	}
}
