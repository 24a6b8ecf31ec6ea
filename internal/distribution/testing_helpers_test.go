package distribution

import (
	"testing"
	"time"

	"github.com/signalsfoundry/recovery-simulator/core"
	"github.com/signalsfoundry/recovery-simulator/kb"
	"github.com/signalsfoundry/recovery-simulator/model"
)

type placed struct {
	name string
	loc  model.Locality
	spec core.ComponentSpec
}

func supplierSpec(name string, loc model.Locality, resource string, amount float64) placed {
	return placed{name, loc, core.ComponentSpec{
		Supply: []core.ResourceSpec{{Name: resource, Amount: amount}},
	}}
}

// consumer demands resource and supplies Output, which drops linearly with
// the share of that demand met.
func consumer(name string, loc model.Locality, resource string, amount float64) placed {
	return placed{name, loc, core.ComponentSpec{
		Supply: []core.ResourceSpec{{
			Name:                "Output",
			Amount:              10,
			UnmetDemandToAmount: map[string]core.RelationKind{resource: core.RelationLinear},
		}},
		OperationDemand: []core.ResourceSpec{{Name: resource, Amount: amount}},
	}}
}

func newStore(t *testing.T, comps ...placed) *kb.ComponentStore {
	t.Helper()
	store := kb.NewComponentStore()
	for _, p := range comps {
		c, err := core.NewComponent(p.name, p.name, p.spec, nil)
		if err != nil {
			t.Fatalf("NewComponent(%q) error: %v", p.name, err)
		}
		c.SetLocality(p.loc)
		if _, err := store.Add(c); err != nil {
			t.Fatalf("Add(%q) error: %v", p.name, err)
		}
	}
	return store
}

func inOrder(ids ...int) *StaticPriority {
	p := &StaticPriority{}
	for _, id := range ids {
		p.add(id, model.OperationDemand)
	}
	return p
}

func output(store *kb.ComponentStore, i int) float64 {
	return store.At(i).CurrentResourceAmount(model.Supply, model.SupplyTable, "Output")
}

type fixedPath float64

func (f fixedPath) OptimalPath(int, int) Path { return Path{Capacity: float64(f)} }

type fakeRecorder struct {
	passes     int
	shortfalls []float64
}

func (r *fakeRecorder) ObserveDistribution(string, time.Duration) { r.passes++ }

func (r *fakeRecorder) RecordShortfall(_ string, _ model.DemandType, pct float64) {
	r.shortfalls = append(r.shortfalls, pct)
}
