package core

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/signalsfoundry/recovery-simulator/model"
)

func powerPlantSpec() ComponentSpec {
	spec := singleSpec(4)
	spec.DamageFunctionalityRelation = RelationReverseLinear
	return ComponentSpec{
		RecoveryModel: spec,
		Supply: []ResourceSpec{{
			Name:                  "ElectricPower",
			Amount:                100,
			FunctionalityToAmount: RelationLinear,
			UnmetDemandToAmount:   map[string]RelationKind{"CoolingWater": RelationLinear},
		}},
		OperationDemand: []ResourceSpec{{Name: "CoolingWater", Amount: 10, FunctionalityToAmount: RelationLinear}},
	}
}

func mustComponent(t *testing.T, name string, spec ComponentSpec) *StandardComponent {
	t.Helper()
	c, err := NewComponent(name, name, spec, nil)
	if err != nil {
		t.Fatalf("NewComponent(%q) error: %v", name, err)
	}
	return c
}

func TestComponentUpdateScalesWithFunctionality(t *testing.T) {
	c := mustComponent(t, "PowerPlant", powerPlantSpec())
	c.SetLocality(model.At(1))
	if err := c.SetInitialDamageLevel(0.4); err != nil {
		t.Fatalf("SetInitialDamageLevel error: %v", err)
	}
	if err := c.Update(3, nil); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if got := c.FunctionalityLevel(); math.Abs(got-0.6) > 1e-12 {
		t.Fatalf("FunctionalityLevel = %v, want 0.6", got)
	}
	if got := c.CurrentResourceAmount(model.Supply, model.SupplyTable, "ElectricPower"); math.Abs(got-60) > 1e-9 {
		t.Fatalf("supply = %v, want 60", got)
	}
	if got := c.CurrentResourceAmount(model.Demand, string(model.OperationDemand), "CoolingWater"); math.Abs(got-6) > 1e-9 {
		t.Fatalf("operation demand = %v, want 6", got)
	}
	if got := c.CurrentResourceAmount(model.Demand, string(model.RecoveryDemand), "RepairCrew"); got != 2 {
		t.Fatalf("recovery demand = %v, want 2", got)
	}
	if got := c.CurrentResourceAmount(model.Supply, model.SupplyTable, "Gas"); got != 0 {
		t.Fatalf("missing resource amount = %v, want 0", got)
	}
	if diff := cmp.Diff([]int{3}, c.FunctionalSteps()); diff != "" {
		t.Fatalf("FunctionalSteps mismatch (-want +got):\n%s", diff)
	}
}

func TestComponentUnmetDemandLowersSupply(t *testing.T) {
	c := mustComponent(t, "PowerPlant", powerPlantSpec())
	if err := c.Update(0, nil); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if err := c.UpdateSupplyBasedOnUnmetDemand("CoolingWater", 0.25); err != nil {
		t.Fatalf("UpdateSupplyBasedOnUnmetDemand error: %v", err)
	}
	if got := c.CurrentResourceAmount(model.Supply, model.SupplyTable, "ElectricPower"); got != 25 {
		t.Fatalf("supply = %v, want 25", got)
	}
	// the next update restores supply from functionality
	if err := c.Update(1, nil); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if got := c.CurrentResourceAmount(model.Supply, model.SupplyTable, "ElectricPower"); got != 100 {
		t.Fatalf("supply after update = %v, want 100", got)
	}
}

func TestComponentRecoveryDemandFeedback(t *testing.T) {
	c := mustComponent(t, "PowerPlant", powerPlantSpec())
	_ = c.SetInitialDamageLevel(0.4)
	_ = c.Update(0, nil)
	if err := c.SetUnmetDemandForRecoveryActivities("RepairCrew", 0.5); err != nil {
		t.Fatalf("SetUnmetDemandForRecoveryActivities error: %v", err)
	}
	if err := c.Recover(0); err != nil {
		t.Fatalf("Recover error: %v", err)
	}
	if got := c.DamageLevel(); math.Abs(got-0.35) > 1e-12 {
		t.Fatalf("damage = %v, want 0.35", got)
	}
	if err := c.SetUnmetDemandForRecoveryActivities("Money", 0.5); !errors.Is(err, ErrUnknownRecoveryResource) {
		t.Fatalf("error = %v, want ErrUnknownRecoveryResource", err)
	}
	_ = c.Update(1, nil)
	if got := c.RecoveryModel().Activities()[0].DemandMet(); got != 1 {
		t.Fatalf("DemandMet after update = %v, want 1", got)
	}
}

func TestComponentHasDemandAndSupply(t *testing.T) {
	c := mustComponent(t, "PowerPlant", powerPlantSpec())
	if !c.HasOperationDemand() {
		t.Fatalf("HasOperationDemand = false, want true")
	}
	if !c.HasResourceSupply("ElectricPower") || c.HasResourceSupply("CoolingWater") {
		t.Fatalf("HasResourceSupply mismatch")
	}
	idle := mustComponent(t, "Idle", ComponentSpec{})
	if idle.HasOperationDemand() {
		t.Fatalf("component without demand reports operation demand")
	}
}

func TestBuildingStockUnitWithEmergencyCalls(t *testing.T) {
	spec := ComponentSpec{
		Kind: ComponentBuildingStockUnitWithEmergencyCalls,
		OperationDemand: []ResourceSpec{
			{Name: "Communication", Amount: 2, PostDisasterIncrease: true},
			{Name: "ElectricPower", Amount: 1},
		},
	}
	c := mustComponent(t, "BuildingStock", spec)
	cases := []struct {
		step int
		want float64
	}{
		{0, 2},
		{1, 20},
		{2, 20 * math.Exp(-0.3)},
		{50, 2},
	}
	for _, tc := range cases {
		if err := c.Update(tc.step, nil); err != nil {
			t.Fatalf("Update(%d) error: %v", tc.step, err)
		}
		got := c.CurrentResourceAmount(model.Demand, string(model.OperationDemand), "Communication")
		if math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("step %d communication demand = %v, want %v", tc.step, got, tc.want)
		}
	}
	if _, err := NewComponent("B", "B", ComponentSpec{Kind: ComponentBuildingStockUnitWithEmergencyCalls}, nil); !errors.Is(err, ErrInvalidParameters) {
		t.Fatalf("missing communication resource error = %v, want ErrInvalidParameters", err)
	}
}

func TestHospitalComponentConsumptionAndDynamics(t *testing.T) {
	spec := ComponentSpec{
		Kind:   ComponentHospital,
		Supply: []ResourceSpec{{Name: "Oxygen", Kind: ResourceConsumable, Amount: 10}},
		ResourceDynamics: []ResourceDynamic{{
			SupplyOrDemand: model.Supply,
			Table:          model.SupplyTable,
			Resource:       "Oxygen",
			AtTimeStep:     []int{2},
			Amount:         []float64{5},
		}},
	}
	c := mustComponent(t, "ICU", spec)
	consumption := map[string]float64{"Oxygen": 3}
	want := []float64{7, 9}
	for i, step := range []int{1, 2} {
		if err := c.Update(step, consumption); err != nil {
			t.Fatalf("Update(%d) error: %v", step, err)
		}
		if got := c.CurrentResourceAmount(model.Supply, model.SupplyTable, "Oxygen"); got != want[i] {
			t.Fatalf("step %d oxygen = %v, want %v", step, got, want[i])
		}
	}
}

func TestStandardComponentIgnoresConsumption(t *testing.T) {
	spec := ComponentSpec{Supply: []ResourceSpec{{Name: "Oxygen", Kind: ResourceConsumable, Amount: 10}}}
	c := mustComponent(t, "Store", spec)
	if err := c.Update(1, map[string]float64{"Oxygen": 3}); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if got := c.CurrentResourceAmount(model.Supply, model.SupplyTable, "Oxygen"); got != 10 {
		t.Fatalf("oxygen = %v, want 10", got)
	}
}

func TestInfrastructureInterfaceComponent(t *testing.T) {
	spec := ComponentSpec{
		Kind:   ComponentInfrastructureInterface,
		Supply: []ResourceSpec{{Name: "ElectricPower", Amount: 0, FunctionalityToAmount: RelationLinear}},
		SupplyDynamics: &SupplyDynamics{
			Resource:   "ElectricPower",
			Amount:     []float64{50, 100},
			RestoredIn: []float64{1, 2},
		},
	}
	c := mustComponent(t, "PowerGrid", spec)
	if got := c.SupplyResource("ElectricPower").InitialAmount(); got != 100 {
		t.Fatalf("initial supply = %v, want peak 100", got)
	}
	_ = c.SetInitialDamageLevel(1)
	want := []float64{0, 0, 100}
	for step, w := range want {
		if err := c.Update(step, nil); err != nil {
			t.Fatalf("Update(%d) error: %v", step, err)
		}
		if got := c.CurrentResourceAmount(model.Supply, model.SupplyTable, "ElectricPower"); got != w {
			t.Fatalf("step %d supply = %v, want %v", step, got, w)
		}
		_ = c.Recover(step)
	}
}

func TestNewComponentUnknownKind(t *testing.T) {
	if _, err := NewComponent("X", "X", ComponentSpec{Kind: "Robot"}, nil); !errors.Is(err, ErrUnknownVariant) {
		t.Fatalf("error = %v, want ErrUnknownVariant", err)
	}
}
