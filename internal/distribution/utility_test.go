package distribution

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/signalsfoundry/recovery-simulator/core"
	"github.com/signalsfoundry/recovery-simulator/kb"
	"github.com/signalsfoundry/recovery-simulator/model"
)

func TestSystemMatrixShapeAndFill(t *testing.T) {
	store := newStore(t,
		supplierSpec("Plant", model.At(1), "Water", 5),
		consumer("House", model.At(2), "Water", 3),
	)
	sm := NewSystemMatrix("Water", store)
	if sm.Rows() != 4 || sm.Components() != 2 {
		t.Fatalf("matrix rows = %d components = %d, want 4 and 2", sm.Rows(), sm.Components())
	}
	first := sm.Snapshot()
	sm.Fill()
	second := sm.Snapshot()
	for r := range first {
		for c := range first[r] {
			if first[r][c] != second[r][c] {
				t.Fatalf("Fill not idempotent at (%d,%d): %v vs %v", r, c, first[r][c], second[r][c])
			}
		}
	}
	if got := sm.Supply(0); got != 5 {
		t.Fatalf("supply row 0 = %v, want 5", got)
	}
	if got := sm.Demand(1); got != 3 {
		t.Fatalf("demand row 1 = %v, want 3", got)
	}
	if got := sm.Supply(2); got != 0 {
		t.Fatalf("recovery row supply = %v, want 0", got)
	}
	if got := sm.Locality(3); got != model.At(2) {
		t.Fatalf("recovery row locality = %v, want [2]", got)
	}
	if got := sm.TotalDemand(model.LocalityScope(2)); got != 3 {
		t.Fatalf("TotalDemand(locality 2) = %v, want 3", got)
	}
}

func TestUtilityMeetsDemandExactly(t *testing.T) {
	store := newStore(t,
		supplierSpec("Plant", model.At(1), "Water", 5),
		consumer("A", model.At(1), "Water", 1),
		consumer("B", model.At(1), "Water", 4),
	)
	u := NewUtility("Water", store, inOrder(0, 1, 2))
	if err := u.Distribute(context.Background()); err != nil {
		t.Fatalf("Distribute error: %v", err)
	}
	all := model.AllScope()
	if got := u.TotalConsumption(all); got != 5 {
		t.Fatalf("TotalConsumption = %v, want 5", got)
	}
	if got, want := u.TotalConsumption(all), u.TotalDemand(all); got != want {
		t.Fatalf("consumption %v != demand %v in a feasible system", got, want)
	}
	for i := 1; i <= 2; i++ {
		if got := u.Matrix().DemandMet(i); got != 1 {
			t.Fatalf("demand met row %d = %v, want 1", i, got)
		}
		if got := output(store, i); got != 10 {
			t.Fatalf("output of %d = %v, want 10", i, got)
		}
	}
}

func TestUtilityShortfallFeedsBack(t *testing.T) {
	store := newStore(t,
		supplierSpec("Plant", model.At(1), "Water", 3),
		consumer("House", model.At(1), "Water", 4),
	)
	rec := &fakeRecorder{}
	u := NewUtility("Water", store, inOrder(0, 1), WithRecorder(rec))
	if err := u.Distribute(context.Background()); err != nil {
		t.Fatalf("Distribute error: %v", err)
	}
	if got := u.Matrix().DemandMet(1); math.Abs(got-0.75) > 1e-12 {
		t.Fatalf("demand met = %v, want 0.75", got)
	}
	if got := output(store, 1); math.Abs(got-7.5) > 1e-12 {
		t.Fatalf("output = %v, want 7.5", got)
	}
	if got := u.TotalConsumption(model.AllScope()); math.Abs(got-3) > 1e-12 {
		t.Fatalf("TotalConsumption = %v, want 3", got)
	}
	if rec.passes != 1 || len(rec.shortfalls) != 1 {
		t.Fatalf("recorder passes=%d shortfalls=%v, want 1 and one entry", rec.passes, rec.shortfalls)
	}
}

func TestUtilityRespectsPriorityOrder(t *testing.T) {
	store := newStore(t,
		supplierSpec("Plant", model.At(1), "Water", 4),
		consumer("A", model.At(1), "Water", 4),
		consumer("B", model.At(1), "Water", 4),
	)
	u := NewUtility("Water", store, inOrder(0, 2, 1))
	if err := u.Distribute(context.Background()); err != nil {
		t.Fatalf("Distribute error: %v", err)
	}
	if got := u.Matrix().DemandMet(2); got != 1 {
		t.Fatalf("first served demand met = %v, want 1", got)
	}
	if got := u.Matrix().DemandMet(1); got != 0 {
		t.Fatalf("second served demand met = %v, want 0", got)
	}
}

func TestUtilitySupplierAfterConsumerDoesNotServeIt(t *testing.T) {
	store := newStore(t,
		supplierSpec("Plant", model.At(1), "Water", 4),
		consumer("A", model.At(1), "Water", 4),
	)
	u := NewUtility("Water", store, inOrder(1, 0))
	if err := u.Distribute(context.Background()); err != nil {
		t.Fatalf("Distribute error: %v", err)
	}
	if got := u.Matrix().DemandMet(1); got != 0 {
		t.Fatalf("demand met = %v, want 0", got)
	}
}

func TestUtilityTransferCapacity(t *testing.T) {
	comps := []placed{
		supplierSpec("Plant", model.At(1), "Water", 5),
		consumer("House", model.At(2), "Water", 2),
	}
	cases := []struct {
		name     string
		transfer PathFinder
		want     float64
	}{
		{"no transfer model", nil, 1},
		{"enough capacity", fixedPath(3), 1},
		{"capacity equal to demand", fixedPath(2), 0},
		{"unreachable", fixedPath(0), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newStore(t, comps...)
			u := NewUtility("Water", store, inOrder(0, 1))
			if tc.transfer != nil {
				u.SetTransferService(tc.transfer)
			}
			if err := u.Distribute(context.Background()); err != nil {
				t.Fatalf("Distribute error: %v", err)
			}
			if got := u.Matrix().DemandMet(1); got != tc.want {
				t.Fatalf("demand met = %v, want %v", got, tc.want)
			}
		})
	}
}

// damagedPlant needs two repair crews while damaged.
func damagedPlant(t *testing.T, store *kb.ComponentStore, i int, damage float64) {
	t.Helper()
	if err := store.ApplyDamage(i, damage); err != nil {
		t.Fatalf("ApplyDamage error: %v", err)
	}
	if err := store.At(i).Update(1, nil); err != nil {
		t.Fatalf("Update error: %v", err)
	}
}

func plantSpec() core.ComponentSpec {
	return core.ComponentSpec{
		RecoveryModel: core.RecoveryModelSpec{
			Type:                        core.RecoverySingle,
			DamageFunctionalityRelation: core.RelationReverseBinary,
			Activities: []core.ActivitySpec{{
				Name:     "Repair",
				Duration: core.DistributionSpec{Kind: core.DistributionDeterministic, Value: 2},
				Demand:   []core.DemandSpec{{Resource: "RepairCrew", Amount: 2}},
			}},
		},
	}
}

func recoveryOrder() *StaticPriority {
	return &StaticPriority{
		ids:   []int{0, 1},
		types: []model.DemandType{model.OperationDemand, model.RecoveryDemand},
	}
}

func TestUtilityRecoveryShortfallGatesRepair(t *testing.T) {
	store := newStore(t,
		supplierSpec("Crew", model.At(1), "RepairCrew", 1),
		placed{"Plant", model.At(1), plantSpec()},
	)
	damagedPlant(t, store, 1, 0.5)

	u := NewUtility("RepairCrew", store, recoveryOrder())
	if err := u.Distribute(context.Background()); err != nil {
		t.Fatalf("Distribute error: %v", err)
	}
	// recovery row of component 1 in a two component matrix
	if got := u.Matrix().DemandMet(3); got != 0.5 {
		t.Fatalf("recovery row demand met = %v, want 0.5", got)
	}
	repair := store.At(1).RecoveryModel().(*core.SingleRecoveryActivity).Activity()
	if got := repair.DemandMet(); got != 0.5 {
		t.Fatalf("repair DemandMet = %v, want 0.5", got)
	}
	all := model.AllScope()
	if got := u.TotalConsumption(all); got != 1 {
		t.Fatalf("TotalConsumption = %v, want 1", got)
	}
	if got := u.TotalSupply(all); got != 1 {
		t.Fatalf("TotalSupply = %v, want 1", got)
	}
}

type failingRecoveryFeedback struct {
	Component
}

func (failingRecoveryFeedback) SetUnmetDemandForRecoveryActivities(resource string, _ float64) error {
	return fmt.Errorf("%w: %q", core.ErrUnknownRecoveryResource, resource)
}

func TestUtilityReturnsRecoveryFeedbackError(t *testing.T) {
	store := newStore(t,
		supplierSpec("Crew", model.At(1), "RepairCrew", 1),
		placed{"Plant", model.At(1), plantSpec()},
	)
	damagedPlant(t, store, 1, 0.5)

	u := NewUtility("RepairCrew", store, recoveryOrder())
	u.component = func(i int) Component { return failingRecoveryFeedback{store.At(i)} }
	if err := u.Distribute(context.Background()); !errors.Is(err, core.ErrUnknownRecoveryResource) {
		t.Fatalf("Distribute error = %v, want ErrUnknownRecoveryResource", err)
	}
}

func TestUtilityServesSuppliersInArrivalOrder(t *testing.T) {
	// Only same-locality transfers are possible. The link consumer can be
	// served by either plant; the first plant reached drains into it and the
	// house next to that plant is left without supply.
	store := newStore(t,
		supplierSpec("PlantA", model.At(1), "Water", 4),
		supplierSpec("PlantB", model.At(2), "Water", 4),
		consumer("Pump", model.Between(1, 2), "Water", 4),
		consumer("House", model.At(1), "Water", 4),
	)
	u := NewUtility("Water", store, inOrder(0, 1, 2, 3), WithTransferService(fixedPath(0)))
	if err := u.Distribute(context.Background()); err != nil {
		t.Fatalf("Distribute error: %v", err)
	}
	if got := u.Matrix().DemandMet(2); got != 1 {
		t.Fatalf("link consumer demand met = %v, want 1", got)
	}
	if got := u.Matrix().DemandMet(3); got != 0 {
		t.Fatalf("house demand met = %v, want 0", got)
	}
	if got := u.TotalConsumption(model.AllScope()); got != 4 {
		t.Fatalf("TotalConsumption = %v, want 4", got)
	}
}

func TestUtilityRejectsBadPriorityIndex(t *testing.T) {
	store := newStore(t, supplierSpec("Plant", model.At(1), "Water", 1))
	u := NewUtility("Water", store, inOrder(3))
	if err := u.Distribute(context.Background()); err == nil {
		t.Fatalf("Distribute with out-of-range priority should fail")
	}
}

func TestLocalityPairsDeduplicated(t *testing.T) {
	got := localityPairs(1, 1, model.At(2))
	if len(got) != 1 || got[0] != [2]int{1, 2} {
		t.Fatalf("localityPairs = %v, want [[1 2]]", got)
	}
	got = localityPairs(1, 2, model.Between(2, 3))
	if len(got) != 4 {
		t.Fatalf("localityPairs = %v, want four pairs", got)
	}
}

func TestNewRejectsUnknownModel(t *testing.T) {
	store := newStore(t)
	if _, err := New("Water", Spec{Type: "Teleport"}, store); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("error = %v, want ErrUnknownModel", err)
	}
	if _, err := New("Water", Spec{Type: KindUtility, Priority: PrioritySpec{Type: "Lottery"}}, store); !errors.Is(err, ErrUnknownPriority) {
		t.Fatalf("error = %v, want ErrUnknownPriority", err)
	}
}
