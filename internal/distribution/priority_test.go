package distribution

import (
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/signalsfoundry/recovery-simulator/kb"
	"github.com/signalsfoundry/recovery-simulator/model"
)

func priorityStore(t *testing.T) *kb.ComponentStore {
	return newStore(t,
		consumer("House", model.At(1), "Water", 1),
		supplierSpec("Plant", model.At(1), "Water", 5),
		consumer("House", model.At(2), "Water", 1),
		consumer("House", model.At(2), "Water", 1),
		supplierSpec("Plant", model.At(2), "Water", 5),
	)
}

func TestComponentBasedPriority(t *testing.T) {
	store := priorityStore(t)
	p, err := NewComponentBasedPriority([]PriorityEntry{
		{Component: "Plant", Localities: []int{2}},
		{Component: "House", Localities: []int{2}},
		{Component: "House", Localities: []int{2}},
		{Component: "House", Localities: []int{2}, DemandType: model.RecoveryDemand},
	}, store)
	if err != nil {
		t.Fatalf("NewComponentBasedPriority error: %v", err)
	}
	ids, types := p.ComponentPriorities()
	if diff := cmp.Diff([]int{4, 2, 3, 2}, ids); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
	if types[3] != model.RecoveryDemand || types[0] != model.OperationDemand {
		t.Fatalf("types = %v", types)
	}

	_, err = NewComponentBasedPriority([]PriorityEntry{{Component: "Plant", Localities: []int{3}}}, store)
	if !errors.Is(err, kb.ErrComponentNotFound) {
		t.Fatalf("error = %v, want ErrComponentNotFound", err)
	}
}

func TestSupplierOnlyPriority(t *testing.T) {
	ids, types := NewSupplierOnlyPriority("Water", priorityStore(t)).ComponentPriorities()
	if diff := cmp.Diff([]int{1, 4}, ids); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
	for _, dt := range types {
		if dt != model.OperationDemand {
			t.Fatalf("types = %v, want operation demand only", types)
		}
	}
}

func TestComponentTypeBasedPriority(t *testing.T) {
	p := NewComponentTypeBasedPriority([]TypePriorityEntry{{ComponentType: "Plant"}, {ComponentType: "House"}}, priorityStore(t))
	ids, _ := p.ComponentPriorities()
	if diff := cmp.Diff([]int{1, 4, 0, 2, 3}, ids); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestRandomPrioritySuppliersFirstAndSeeded(t *testing.T) {
	store := priorityStore(t)
	ids, types := NewRandomPriority("Water", store, "", 42).ComponentPriorities()
	if diff := cmp.Diff([]int{1, 4}, ids[:2]); diff != "" {
		t.Fatalf("suppliers mismatch (-want +got):\n%s", diff)
	}
	rest := slices.Clone(ids[2:])
	slices.Sort(rest)
	if diff := cmp.Diff([]int{0, 2, 3}, rest); diff != "" {
		t.Fatalf("remaining components mismatch (-want +got):\n%s", diff)
	}
	if types[2] != model.RecoveryDemand {
		t.Fatalf("non-supplier demand type = %v, want RecoveryDemand", types[2])
	}
	again, _ := NewRandomPriority("Water", store, "", 42).ComponentPriorities()
	if diff := cmp.Diff(ids, again); diff != "" {
		t.Fatalf("same seed gave different order (-first +second):\n%s", diff)
	}
}

func TestPriorityReturnsCopies(t *testing.T) {
	p := inOrder(0, 1)
	ids, _ := p.ComponentPriorities()
	ids[0] = 9
	again, _ := p.ComponentPriorities()
	if again[0] != 0 {
		t.Fatalf("ComponentPriorities exposed internal slice")
	}
}
