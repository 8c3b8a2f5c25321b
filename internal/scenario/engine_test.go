package scenario_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/simbridge/medsim/internal/scenario"
)

func newTestEngine(t *testing.T) *scenario.Engine {
	t.Helper()
	def := scenario.SimpleFeverV1()
	e := scenario.New(def, def.Demographics, scenario.DefaultTreatmentTable(), nil)
	e.Start(time.Unix(1000, 0))
	return e
}

func TestApplyIntent_UpdateVitalsClampsSpO2(t *testing.T) {
	e := newTestEngine(t)
	e.ApplyIntent(scenario.Intent{
		Tag:         scenario.IntentTagUpdateVitals,
		VitalsDelta: scenario.VitalsDelta{SpO2: 500},
	}, time.Unix(1001, 0))

	require.Equal(t, 100, e.State().Vitals.SpO2)
}

func TestApplyIntent_UpdateVitalsClampsHRNonNegative(t *testing.T) {
	e := newTestEngine(t)
	e.ApplyIntent(scenario.Intent{Tag: scenario.IntentTagUpdateVitals, VitalsDelta: scenario.VitalsDelta{HR: -500}}, time.Unix(1001, 0))
	require.Equal(t, 0, e.State().Vitals.HR)
}

func TestApplyIntent_UnknownTagIsRejectedWithoutMutation(t *testing.T) {
	e := newTestEngine(t)
	before := e.State()
	result := e.ApplyIntent(scenario.Intent{Tag: "bogus"}, time.Unix(1001, 0))

	require.Len(t, result.Events, 1)
	require.Equal(t, "intent.rejected", result.Events[0].Type)
	require.Equal(t, before, e.State())
}

func TestApplyIntent_SubmitOrder_PendingHasNoCompletedAtOrResult(t *testing.T) {
	e := newTestEngine(t)
	e.ApplyIntent(scenario.Intent{
		Tag:   scenario.IntentTagSubmitOrder,
		Order: scenario.OrderSubmission{Type: scenario.OrderVitals, OrderedBy: "user-1"},
	}, time.Unix(1001, 0))

	orders := e.State().Orders
	require.Len(t, orders, 1)
	require.Equal(t, scenario.OrderPending, orders[0].Status)
	require.Nil(t, orders[0].CompletedAt)
	require.Empty(t, orders[0].Result)
}

func TestCompleteOrder_SetsCompletedAtAndResult(t *testing.T) {
	e := newTestEngine(t)
	e.ApplyIntent(scenario.Intent{Tag: scenario.IntentTagSubmitOrder, Order: scenario.OrderSubmission{Type: scenario.OrderVitals}}, time.Unix(1001, 0))
	id := e.State().Orders[0].ID

	ok := e.CompleteOrder(id, "HR 110, SpO2 98%", time.Unix(1030, 0))
	require.True(t, ok)

	order := e.State().Orders[0]
	require.Equal(t, scenario.OrderComplete, order.Status)
	require.NotNil(t, order.CompletedAt)
	require.Equal(t, "HR 110, SpO2 98%", order.Result)
}

func TestEkgHistory_RetainsOnlyLastThree(t *testing.T) {
	e := newTestEngine(t)
	for i := 0; i < 5; i++ {
		e.AppendEkgHistory(scenario.EkgEntry{Summary: "entry"})
	}
	require.Len(t, e.State().EkgHistory, 3)
}

func TestTick_OxygenEffectUnchangedBeforeDecayMs(t *testing.T) {
	e := newTestEngine(t)
	e.ApplyIntent(scenario.Intent{
		Tag:       scenario.IntentTagApplyTreatment,
		Treatment: scenario.TreatmentApplication{TreatmentType: "oxygen"},
	}, time.Unix(1000, 0))

	require.Equal(t, 4, e.State().Vitals.SpO2)

	// Oxygen's DecayMs is 60s, and the default table gives it no DecayIntent,
	// so a tick 30s later leaves SpO2 unchanged.
	e.Tick(time.Unix(1030, 0))
	require.Equal(t, 4, e.State().Vitals.SpO2)
}

func TestTreatmentHistory_TimestampsNeverPrecedeScenarioStart(t *testing.T) {
	e := newTestEngine(t)
	start := e.State().ScenarioStartedAt
	e.ApplyIntent(scenario.Intent{Tag: scenario.IntentTagApplyTreatment, Treatment: scenario.TreatmentApplication{TreatmentType: "antipyretic"}}, time.Unix(2000, 0))

	for _, th := range e.State().TreatmentHistory {
		require.False(t, th.Ts.Before(start))
	}
}

func TestHydrate_RoundTripsSnapshot(t *testing.T) {
	e := newTestEngine(t)
	e.ApplyIntent(scenario.Intent{Tag: scenario.IntentTagUpdateVitals, VitalsDelta: scenario.VitalsDelta{HR: 20}}, time.Unix(1001, 0))
	snap := e.Snapshot()

	e2 := newTestEngine(t)
	e2.Hydrate(snap)
	require.Equal(t, snap, e2.Snapshot())
}
