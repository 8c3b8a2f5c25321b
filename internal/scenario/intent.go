package scenario

// IntentTag is the closed set of state-changing intents the engine accepts,
// whether proposed by an upstream LLM (after the tool gate) or issued
// directly by an intent handler.
type IntentTag string

const (
	IntentTagUpdateVitals   IntentTag = "updateVitals"
	IntentTagRevealFinding  IntentTag = "revealFinding"
	IntentTagApplyTreatment IntentTag = "applyTreatment"
	IntentTagSubmitOrder    IntentTag = "submitOrder"
	IntentTagSetStage       IntentTag = "setStage"
)

// Intent is a proposed state change. Exactly one of the payload fields is
// populated, selected by Tag. This mirrors the tagged-variant redesign for
// dynamic dispatch: switch on Tag, never on payload-field presence alone.
type Intent struct {
	Tag IntentTag

	VitalsDelta   VitalsDelta
	FindingID     string
	Treatment     TreatmentApplication
	Order         OrderSubmission
	SetStageID    string
}

// VitalsDelta carries numeric deltas to apply to the current vitals. A zero
// field means "no change" for that key — there is no way to request a true
// zero delta distinctly, matching the source behavior.
type VitalsDelta struct {
	HR   int
	SpO2 int
	RR   int
	Temp float64
	BP   string // replaces BP wholesale when non-empty
}

// TreatmentApplication is the input to applyTreatment.
type TreatmentApplication struct {
	TreatmentType string
	Dose          float64
	Route         string
	Joules        float64
	Sedated       bool
	Synchronized  bool
	FlushGiven    bool
}

// OrderSubmission is the input to submitOrder.
type OrderSubmission struct {
	Type      OrderType
	OrderedBy string
}

// ApplyResult is returned by ApplyIntent: the events raised while applying
// it. The updated state is read back through [Engine.State].
type ApplyResult struct {
	Events []Event
}
