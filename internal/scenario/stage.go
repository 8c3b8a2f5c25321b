package scenario

import "time"

// AllowedIntentTag is a closed tag naming a kind of intent a stage permits.
type AllowedIntentTag string

const (
	IntentUpdateVitals   AllowedIntentTag = "intent_updateVitals"
	IntentRevealFinding  AllowedIntentTag = "intent_revealFinding"
	IntentApplyTreatment AllowedIntentTag = "intent_applyTreatment"
	IntentSubmitOrder    AllowedIntentTag = "intent_submitOrder"
	IntentSetStage       AllowedIntentTag = "intent_setStage"
)

// ValueBounds restricts the magnitude of a vitals delta a stage will permit
// through the tool gate. A zero Max means unbounded.
type ValueBounds struct {
	MaxHRDelta   int
	MaxSpO2Delta int
	MaxTempDelta float64
}

// ExitRule is one guard-predicate clause in a stage's declared, ordered exit
// rule list. The first rule whose Guard returns true wins.
type ExitRule struct {
	ToStageID string
	Guard     func(s *State, timeInStage time.Duration, lastAction string) bool
}

// Definition declares a single stage's policy: which intents are admitted by
// the tool gate, the value bounds on vitals intents, and the ordered list of
// exit rules evaluated on every [Engine.Tick].
type Definition struct {
	ID             string
	AllowedIntents map[AllowedIntentTag]bool
	Bounds         ValueBounds
	ExitRules      []ExitRule
}

// ScenarioKind distinguishes a plain scenario from one with an extended
// sub-engine (SVT, Myocarditis, ...).
type ScenarioKind string

const (
	KindSimple ScenarioKind = "simple"
	KindSVT    ScenarioKind = "svt"
)

// ScenarioDefinition is the full declared data for one scenario: its ordered
// stage list, the stage policies, and its kind.
type ScenarioDefinition struct {
	ID           string
	Kind         ScenarioKind
	StageIDs     []string
	Stages       map[string]*Definition
	Demographics Demographics
}

// Stage looks up a stage definition by ID.
func (d *ScenarioDefinition) Stage(id string) (*Definition, bool) {
	def, ok := d.Stages[id]
	return def, ok
}
