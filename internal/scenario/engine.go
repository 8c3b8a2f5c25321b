package scenario

import (
	"fmt"
	"sort"
	"time"
)

// ExtendedHook lets a complex sub-engine (SVT, Myocarditis) observe and
// react to core engine operations without the core engine importing the
// sub-engine package. The scenario engine calls these hooks synchronously,
// in place, with the extended state it currently holds; the returned value
// replaces it.
type ExtendedHook interface {
	// ApplyTreatment lets the sub-engine update its own ledgers (dose
	// ledger, cardioversion ledger, flags) in response to a treatment.
	// Returns the updated extended state, any additional events, and an
	// optional rhythm override.
	ApplyTreatment(extended Extended, app TreatmentApplication, weight float64, now time.Time) (Extended, []Event, *string)

	// Tick lets the sub-engine advance its phase machine and pause-adjusted
	// clock on every heartbeat.
	Tick(extended Extended, now time.Time) (Extended, []Event)
}

// TreatmentEffect is one row of the declared treatment effect table (§4.C10).
type TreatmentEffect struct {
	ComputeDose  func(weight float64, age int, ordered float64) float64
	DeltaVitals  VitalsDelta
	DecayMs      int
	DecayIntent  *Intent
	NurseLine    string
	TechLine     string
	RhythmEffect *string
}

// Engine is the deterministic, single-threaded state transformer for one
// session. All public methods are synchronous; callers must serialize access
// externally (the orchestrator does so via the state lock).
type Engine struct {
	def   *ScenarioDefinition
	state State
	hook  ExtendedHook

	treatmentTable map[string]TreatmentEffect
}

// New creates an Engine for the given scenario definition. demographics are
// fixed for the lifetime of the session.
func New(def *ScenarioDefinition, demographics Demographics, treatmentTable map[string]TreatmentEffect, hook ExtendedHook) *Engine {
	now := time.Time{}
	e := &Engine{
		def:            def,
		hook:           hook,
		treatmentTable: treatmentTable,
		state: State{
			ScenarioID:   def.ID,
			StageID:      def.StageIDs[0],
			StageIDs:     append([]string(nil), def.StageIDs...),
			Findings:     map[string]bool{},
			Demographics: demographics,
		},
	}
	_ = now
	return e
}

// Start stamps ScenarioStartedAt/StageEnteredAt. Called once, when the
// session's runtime is created (not at construction, so that hydration from
// a persisted snapshot can happen first).
func (e *Engine) Start(now time.Time) {
	if e.state.ScenarioStartedAt.IsZero() {
		e.state.ScenarioStartedAt = now
		e.state.StageEnteredAt = now
	}
}

// State returns a copy of the current state for broadcast/persistence.
// Slices/maps are shared read-only by convention; callers must not mutate
// them.
func (e *Engine) State() State { return e.state }

// GetDemographics returns the session's fixed demographics.
func (e *Engine) GetDemographics() Demographics { return e.state.Demographics }

// GetPatientWeight is a convenience accessor used by dose math.
func (e *Engine) GetPatientWeight() float64 { return e.state.Demographics.WeightKg }

// GetDynamicRhythm derives a rhythm label purely from current HR; extended
// state is not consulted. Used after any vitals-mutating
// treatment to re-derive the displayed rhythm.
func (e *Engine) GetDynamicRhythm() string {
	hr := e.state.Vitals.HR
	switch {
	case hr == 0:
		return "asystole"
	case hr > 220:
		return "svt"
	case hr < 60:
		return "bradycardia"
	case hr > 180:
		return "tachycardia"
	default:
		return "sinus"
	}
}

// ApplyIntent switches on intent.Tag and applies the corresponding
// transformation. Invalid/unknown tags are ignored with a rejected event;
// state is never partially mutated.
func (e *Engine) ApplyIntent(intent Intent, now time.Time) ApplyResult {
	switch intent.Tag {
	case IntentTagUpdateVitals:
		return e.applyUpdateVitals(intent.VitalsDelta)
	case IntentTagRevealFinding:
		return e.applyRevealFinding(intent.FindingID)
	case IntentTagApplyTreatment:
		return e.applyTreatment(intent.Treatment, now)
	case IntentTagSubmitOrder:
		return e.applySubmitOrder(intent.Order, now)
	case IntentTagSetStage:
		return e.applySetStage(intent.SetStageID, now)
	default:
		return ApplyResult{Events: []Event{{Ts: now, Type: "intent.rejected", Data: map[string]any{"reason": "unknown tag", "tag": intent.Tag}}}}
	}
}

func (e *Engine) applyUpdateVitals(d VitalsDelta) ApplyResult {
	v := e.state.Vitals
	v.HR += d.HR
	v.SpO2 += d.SpO2
	v.RR += d.RR
	v.Temp += d.Temp
	if d.BP != "" {
		v.BP = d.BP
	}
	e.state.Vitals = v.Clamp()
	return ApplyResult{Events: []Event{{Type: "vitals.updated"}}}
}

func (e *Engine) applyRevealFinding(id string) ApplyResult {
	if id == "" {
		return ApplyResult{}
	}
	e.state.Findings[id] = true
	return ApplyResult{Events: []Event{{Type: "finding.revealed", Data: map[string]any{"id": id}}}}
}

func (e *Engine) applyTreatment(app TreatmentApplication, now time.Time) ApplyResult {
	var events []Event
	effect, ok := e.treatmentTable[app.TreatmentType]
	if !ok {
		return ApplyResult{Events: []Event{{Ts: now, Type: "intent.rejected", Data: map[string]any{"reason": "unknown treatment", "treatmentType": app.TreatmentType}}}}
	}

	delta := effect.DeltaVitals
	e.applyUpdateVitals(delta)
	events = append(events, Event{Ts: now, Type: "treatment.applied", Data: map[string]any{"treatmentType": app.TreatmentType}})

	if effect.DecayIntent != nil && effect.DecayMs > 0 {
		e.schedule(now.Add(time.Duration(effect.DecayMs)*time.Millisecond), *effect.DecayIntent)
	}

	var rhythmOverride *string
	if e.hook != nil {
		updated, hookEvents, rhythm := e.hook.ApplyTreatment(e.state.Extended, app, e.state.Demographics.WeightKg, now)
		e.state.Extended = updated
		events = append(events, hookEvents...)
		rhythmOverride = rhythm
	}

	if rhythmOverride != nil {
		e.state.RhythmSummary = *rhythmOverride
	} else if effect.RhythmEffect != nil {
		e.state.RhythmSummary = *effect.RhythmEffect
	} else {
		e.state.RhythmSummary = e.GetDynamicRhythm()
	}

	e.state.TreatmentHistory = append(e.state.TreatmentHistory, TreatmentEntry{
		Ts: now, TreatmentType: app.TreatmentType,
	})

	return ApplyResult{Events: events}
}

func (e *Engine) applySubmitOrder(sub OrderSubmission, now time.Time) ApplyResult {
	e.state.nextOrderSeq++
	id := fmt.Sprintf("order-%d", e.state.nextOrderSeq)
	e.state.Orders = append(e.state.Orders, Order{
		ID:        id,
		Type:      sub.Type,
		Status:    OrderPending,
		OrderedBy: sub.OrderedBy,
		orderedAt: now,
	})
	return ApplyResult{Events: []Event{{Ts: now, Type: "order.submitted", Data: map[string]any{"id": id, "type": sub.Type}}}}
}

func (e *Engine) applySetStage(stageID string, now time.Time) ApplyResult {
	if stageID == "" {
		return ApplyResult{}
	}
	e.state.StageID = stageID
	e.state.StageEnteredAt = now
	return ApplyResult{Events: []Event{{Ts: now, Type: "stage.set", Data: map[string]any{"stageId": stageID}}}}
}

// CompleteOrder transitions a pending order (matched by ID) to complete with
// the given result. Used by the order handler once its ETA elapses.
func (e *Engine) CompleteOrder(id, result string, now time.Time) bool {
	for i := range e.state.Orders {
		if e.state.Orders[i].ID == id && e.state.Orders[i].Status == OrderPending {
			e.state.Orders[i].Status = OrderComplete
			e.state.Orders[i].Result = result
			t := now
			e.state.Orders[i].CompletedAt = &t
			return true
		}
	}
	return false
}

// PendingOrderOfType returns the most recent pending order of the given
// type, if any — used by the debounce guard.
func (e *Engine) PendingOrderOfType(t OrderType) (Order, bool) {
	for i := len(e.state.Orders) - 1; i >= 0; i-- {
		if e.state.Orders[i].Type == t && e.state.Orders[i].Status == OrderPending {
			return e.state.Orders[i], true
		}
	}
	return Order{}, false
}

// EvaluateAutomaticTransitions consults the current stage's declared,
// ordered exit rules. The first matching rule advances StageID. Rules are
// evaluated in declared order; at most one transition occurs per call.
func (e *Engine) EvaluateAutomaticTransitions(now time.Time, lastAction string) *Event {
	def, ok := e.def.Stage(e.state.StageID)
	if !ok {
		return nil
	}
	timeInStage := now.Sub(e.state.StageEnteredAt)
	for _, rule := range def.ExitRules {
		if rule.Guard(&e.state, timeInStage, lastAction) {
			from := e.state.StageID
			e.state.StageID = rule.ToStageID
			e.state.StageEnteredAt = now
			return &Event{Ts: now, Type: "stage.auto_transition", Data: map[string]any{"from": from, "to": rule.ToStageID}}
		}
	}
	return nil
}

// Tick advances elapsed time, applies any time-based auto-transitions, and
// fires any scheduled decay effects whose FireAt has arrived, in
// (FireAt, insertion order).
func (e *Engine) Tick(now time.Time) []Event {
	var events []Event

	if ev := e.EvaluateAutomaticTransitions(now, ""); ev != nil {
		events = append(events, *ev)
	}

	if e.hook != nil {
		updated, hookEvents := e.hook.Tick(e.state.Extended, now)
		e.state.Extended = updated
		events = append(events, hookEvents...)
	}

	due := e.popDueEffects(now)
	for _, pe := range due {
		r := e.ApplyIntent(pe.intent, now)
		events = append(events, r.Events...)
	}

	return events
}

func (e *Engine) schedule(fireAt time.Time, intent Intent) {
	e.state.nextOrderSeq++ // reuse as a monotonic insertion sequence too
	e.state.pendingEffects = append(e.state.pendingEffects, pendingEffect{
		fireAt: fireAt, seq: e.state.nextOrderSeq, intent: intent,
	})
}

func (e *Engine) popDueEffects(now time.Time) []pendingEffect {
	var due, remaining []pendingEffect
	for _, pe := range e.state.pendingEffects {
		if !pe.fireAt.After(now) {
			due = append(due, pe)
		} else {
			remaining = append(remaining, pe)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].fireAt.Equal(due[j].fireAt) {
			return due[i].fireAt.Before(due[j].fireAt)
		}
		return due[i].seq < due[j].seq
	})
	e.state.pendingEffects = remaining
	return due
}

// setters: direct mutators used by the orchestrator after handler-owned
// transformations that don't fit the intent pipeline (e.g. telemetry toggle).

func (e *Engine) SetVitals(v Vitals)                           { e.state.Vitals = v.Clamp() }
func (e *Engine) SetRhythm(summary string)                     { e.state.RhythmSummary = summary }
func (e *Engine) SetTelemetry(on bool)                         { e.state.Telemetry = on }
func (e *Engine) SetExam(ex Exam)                               { e.state.Exam = ex }
func (e *Engine) SetInterventions(iv Interventions)             { e.state.Interventions = iv }

func (e *Engine) AppendTreatmentHistory(entry TreatmentEntry) {
	e.state.TreatmentHistory = append(e.state.TreatmentHistory, entry)
}

// AppendEkgHistory appends and retains only the last 3 entries.
func (e *Engine) AppendEkgHistory(entry EkgEntry) {
	h := append(e.state.EkgHistory, entry)
	if len(h) > 3 {
		h = h[len(h)-3:]
	}
	e.state.EkgHistory = h
}

// AppendTelemetryHistory appends only when the rhythm actually changed.
func (e *Engine) AppendTelemetryHistory(entry TelemetryEntry) {
	if len(e.state.TelemetryHistory) > 0 {
		last := e.state.TelemetryHistory[len(e.state.TelemetryHistory)-1]
		if last.Rhythm == entry.Rhythm {
			return
		}
	}
	e.state.TelemetryHistory = append(e.state.TelemetryHistory, entry)
}

// Hydrate replaces the full state from a persisted snapshot.
func (e *Engine) Hydrate(s State) { e.state = s }

// Snapshot is an alias for State, naming the persistence-facing projection
// used by the hydrate(snapshot(s)) == s round-trip law.
func (e *Engine) Snapshot() State { return e.state }
