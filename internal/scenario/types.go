// Package scenario implements the deterministic, per-session clinical state
// machine: stages, vitals, exam findings, interventions, orders, rhythm, and
// treatment history. All exported Engine methods are synchronous, pure
// transformers of state — no blocking I/O, no locking. Callers (the
// orchestrator) serialize access via the per-session state lock.
package scenario

import "time"

// AgeGroup buckets a patient's age for baseline-vitals and dosing tables.
type AgeGroup string

const (
	AgeGroupInfant    AgeGroup = "infant"
	AgeGroupToddler   AgeGroup = "toddler"
	AgeGroupPreschool AgeGroup = "preschool"
	AgeGroupChild     AgeGroup = "child"
	AgeGroupTeen      AgeGroup = "teen"
)

// Demographics is immutable for the session once set by the first hydration
// or scenario selection.
type Demographics struct {
	AgeYears int
	WeightKg float64
	AgeGroup AgeGroup
}

// Vitals holds the recognized vitals keys. BP is stored as "sys/dia" to match
// the wire representation exactly; callers needing numeric sys/dia parse it.
type Vitals struct {
	HR   int
	BP   string
	SpO2 int
	RR   int
	Temp float64
}

// Clamp enforces the physiological bounds named in the engine contract.
func (v Vitals) Clamp() Vitals {
	if v.HR < 0 {
		v.HR = 0
	}
	if v.SpO2 < 0 {
		v.SpO2 = 0
	}
	if v.SpO2 > 100 {
		v.SpO2 = 100
	}
	if v.Temp < 30 {
		v.Temp = 30
	}
	if v.Temp > 43 {
		v.Temp = 43
	}
	if v.RR < 0 {
		v.RR = 0
	}
	return v
}

// Exam holds revealed physical exam findings. A zero value means nothing has
// been revealed yet for that line.
type Exam struct {
	General       string
	Cardio        string
	Lungs         string
	Perfusion     string
	Neuro         string
	HeartAudioURL string
	LungAudioURL  string
}

// IVAccess describes a placed intravenous line.
type IVAccess struct {
	Placed bool
	Gauge  string
	Site   string
}

// Oxygen describes current supplemental oxygen delivery.
type Oxygen struct {
	Mode string
	LPM  float64
}

// ETT describes a placed endotracheal tube.
type ETT struct {
	Placed bool
	Size   string
	Depth  string
}

// Interventions holds the currently-in-place supportive interventions.
type Interventions struct {
	IV      IVAccess
	Oxygen  Oxygen
	Monitor bool
	ETT     ETT
}

// OrderType is the closed set of diagnostic orders a participant may submit.
type OrderType string

const (
	OrderVitals      OrderType = "vitals"
	OrderEKG         OrderType = "ekg"
	OrderLabs        OrderType = "labs"
	OrderImaging     OrderType = "imaging"
	OrderCardiacExam OrderType = "cardiac_exam"
	OrderLungExam    OrderType = "lung_exam"
	OrderGeneralExam OrderType = "general_exam"
	OrderIVAccess    OrderType = "iv_access"
)

// OrderStatus is the two-state order lifecycle.
type OrderStatus string

const (
	OrderPending  OrderStatus = "pending"
	OrderComplete OrderStatus = "complete"
)

// Order is a single diagnostic order. Invariant: a pending order has no
// CompletedAt; a complete order has both CompletedAt and Result set.
type Order struct {
	ID          string
	Type        OrderType
	Status      OrderStatus
	Result      string
	CompletedAt *time.Time
	OrderedBy   string
	orderedAt   time.Time
}

// EkgEntry is one entry in the bounded (last 3) EKG history.
type EkgEntry struct {
	Ts       time.Time
	Summary  string
	ImageURL string
}

// TelemetryEntry records a rhythm change; appended only when rhythm changes.
type TelemetryEntry struct {
	Ts     time.Time
	Rhythm string
	Note   string
}

// TreatmentEntry is an append-only record of an applied treatment.
type TreatmentEntry struct {
	Ts            time.Time
	TreatmentType string
	Note          string
}

// Extended carries scenario-specific sub-engine state. Present exactly when
// the scenario's ScenarioKind is a complex one (see [ScenarioDefinition.Kind]).
// The concrete value is opaque to the Engine; it is threaded through
// unmodified so that a complex sub-engine (e.g. svt.State) can own its own
// state shape without the core engine knowing its fields.
type Extended any

// State is the full, deterministic scenario state for one session.
type State struct {
	ScenarioID        string
	StageID           string
	StageIDs          []string
	StageEnteredAt    time.Time
	ScenarioStartedAt time.Time

	Vitals        Vitals
	Exam          Exam
	Interventions Interventions
	Telemetry     bool
	RhythmSummary string

	Findings map[string]bool

	Orders []Order

	EkgHistory       []EkgEntry
	TelemetryHistory []TelemetryEntry
	TreatmentHistory []TreatmentEntry

	Extended     Extended
	Demographics Demographics

	// pendingEffects holds scheduled decay effects fired by the heartbeat
	// tick in (FireAt, insertion order) order.
	pendingEffects []pendingEffect

	nextOrderSeq int
}

type pendingEffect struct {
	fireAt time.Time
	seq    int
	intent Intent
}

// Event is a single record appended to the event log as a side effect of
// applying an intent or ticking time.
type Event struct {
	Ts   time.Time
	Type string
	Data map[string]any
}
