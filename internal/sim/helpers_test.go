package sim

import (
	"context"
	"testing"

	"github.com/signalsfoundry/recovery-simulator/core"
	"github.com/signalsfoundry/recovery-simulator/internal/distribution"
	"github.com/signalsfoundry/recovery-simulator/kb"
	"github.com/signalsfoundry/recovery-simulator/model"
)

func det(v float64) core.DistributionSpec {
	return core.DistributionSpec{Kind: core.DistributionDeterministic, Value: v}
}

// plantSpec supplies 10 Power while undamaged and is repaired in two steps.
func plantSpec() core.ComponentSpec {
	return core.ComponentSpec{
		RecoveryModel: core.RecoveryModelSpec{
			Type:                        core.RecoverySingle,
			DamageFunctionalityRelation: core.RelationReverseBinary,
			Activities: []core.ActivitySpec{{
				Name:     "Repair",
				Duration: det(2),
				Demand:   []core.DemandSpec{{Resource: "RepairCrew", Amount: 1}},
			}},
		},
		Supply: []core.ResourceSpec{{Name: "Power", Amount: 10, FunctionalityToAmount: core.RelationLinear}},
	}
}

func houseSpec() core.ComponentSpec {
	return core.ComponentSpec{
		OperationDemand: []core.ResourceSpec{{Name: "Power", Amount: 5}},
	}
}

func buildStore(t *testing.T, specs map[string]core.ComponentSpec, names ...string) *kb.ComponentStore {
	t.Helper()
	store := kb.NewComponentStore()
	for _, name := range names {
		c, err := core.NewComponent(name, name, specs[name], nil)
		if err != nil {
			t.Fatalf("NewComponent(%q) error: %v", name, err)
		}
		c.SetLocality(model.At(1))
		if _, err := store.Add(c); err != nil {
			t.Fatalf("Add(%q) error: %v", name, err)
		}
	}
	return store
}

// powerSystem is a plant feeding a house through a utility model.
func powerSystem(t *testing.T) (*kb.ComponentStore, *Resources) {
	t.Helper()
	store := buildStore(t, map[string]core.ComponentSpec{"Plant": plantSpec(), "House": houseSpec()}, "Plant", "House")
	power, err := distribution.New("Power", distribution.Spec{
		Type: distribution.KindUtility,
		Priority: distribution.PrioritySpec{
			Type: distribution.PriorityComponentBased,
			Components: []distribution.PriorityEntry{
				{Component: "Plant", Localities: []int{1}},
				{Component: "House", Localities: []int{1}},
			},
		},
	}, store)
	if err != nil {
		t.Fatalf("distribution.New error: %v", err)
	}
	resources := NewResources()
	if err := resources.Add(Resource{Name: "Power", Group: "Utility", Model: power}); err != nil {
		t.Fatalf("Add resource error: %v", err)
	}
	return store, resources
}

// countingModel counts Distribute calls and reports a fixed consumption.
type countingModel struct {
	name        string
	calls       int
	consumption float64
}

func (m *countingModel) Resource() string { return m.name }

func (m *countingModel) Distribute(context.Context) error {
	m.calls++
	return nil
}

func (m *countingModel) TotalSupply(model.Scope) float64      { return 0 }
func (m *countingModel) TotalDemand(model.Scope) float64      { return m.consumption + 1 }
func (m *countingModel) TotalConsumption(model.Scope) float64 { return m.consumption }
