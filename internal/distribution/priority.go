package distribution

import (
	"fmt"
	"math/rand/v2"

	"github.com/signalsfoundry/recovery-simulator/kb"
	"github.com/signalsfoundry/recovery-simulator/model"
)

// Priority fixes the order in which component demands are served. Both
// slices have the same length; entry k names a component index and which of
// its demands is served k-th.
type Priority interface {
	ComponentPriorities() ([]int, []model.DemandType)
}

// PriorityKind names a priority variant.
type PriorityKind string

const (
	PriorityComponentBased     PriorityKind = "ComponentBasedPriority"
	PriorityComponentTypeBased PriorityKind = "ComponentTypeBasedPriority"
	PrioritySupplierOnly       PriorityKind = "SupplierOnlyPriority"
	PriorityRandom             PriorityKind = "RandomPriority"
)

// PriorityEntry names one component demand in an explicit priority list.
type PriorityEntry struct {
	Component  string           `yaml:"component" json:"component"`
	Localities []int            `yaml:"localities" json:"localities"`
	DemandType model.DemandType `yaml:"demandType,omitempty" json:"demandType,omitempty"`
}

// TypePriorityEntry serves every component of a library type in index order.
type TypePriorityEntry struct {
	ComponentType string           `yaml:"componentType" json:"componentType"`
	DemandType    model.DemandType `yaml:"demandType,omitempty" json:"demandType,omitempty"`
}

// PrioritySpec is the declarative form of a priority.
type PrioritySpec struct {
	Type           PriorityKind        `yaml:"type" json:"type"`
	Components     []PriorityEntry     `yaml:"components,omitempty" json:"components,omitempty"`
	ComponentTypes []TypePriorityEntry `yaml:"componentTypes,omitempty" json:"componentTypes,omitempty"`
	DemandType     model.DemandType    `yaml:"demandType,omitempty" json:"demandType,omitempty"`
	Seed           uint64              `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// NewPriority resolves a priority spec against the components in store.
func NewPriority(spec PrioritySpec, resource string, store *kb.ComponentStore) (Priority, error) {
	switch spec.Type {
	case PriorityComponentBased:
		return NewComponentBasedPriority(spec.Components, store)
	case PriorityComponentTypeBased:
		return NewComponentTypeBasedPriority(spec.ComponentTypes, store), nil
	case PrioritySupplierOnly:
		return NewSupplierOnlyPriority(resource, store), nil
	case PriorityRandom:
		return NewRandomPriority(resource, store, spec.DemandType, spec.Seed), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPriority, spec.Type)
	}
}

func orOperation(dt model.DemandType) model.DemandType {
	if dt == "" {
		return model.OperationDemand
	}
	return dt
}

// StaticPriority is a precomputed priority order.
type StaticPriority struct {
	ids   []int
	types []model.DemandType
}

func (p *StaticPriority) add(id int, dt model.DemandType) {
	p.ids = append(p.ids, id)
	p.types = append(p.types, dt)
}

// ComponentPriorities returns copies of the precomputed order.
func (p *StaticPriority) ComponentPriorities() ([]int, []model.DemandType) {
	return append([]int(nil), p.ids...), append([]model.DemandType(nil), p.types...)
}

func localityOf(ids []int) (model.Locality, error) {
	switch len(ids) {
	case 1:
		return model.At(ids[0]), nil
	case 2:
		return model.Between(ids[0], ids[1]), nil
	default:
		return model.Locality{}, fmt.Errorf("component locality needs one or two ids, got %v", ids)
	}
}

// NewComponentBasedPriority resolves an explicit list of components.
// Repeated entries for the same name and locality select successive
// components that match.
func NewComponentBasedPriority(entries []PriorityEntry, store *kb.ComponentStore) (*StaticPriority, error) {
	p := &StaticPriority{}
	type key struct {
		idx int
		dt  model.DemandType
	}
	used := make(map[key]bool)
	for _, e := range entries {
		loc, err := localityOf(e.Localities)
		if err != nil {
			return nil, fmt.Errorf("priority entry %q: %w", e.Component, err)
		}
		dt := orOperation(e.DemandType)
		found := -1
		for _, i := range store.IndicesByName(e.Component) {
			if store.At(i).Locality() == loc && !used[key{i, dt}] {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, fmt.Errorf("priority entry: %w: %q in locality %v", kb.ErrComponentNotFound, e.Component, loc)
		}
		used[key{found, dt}] = true
		p.add(found, dt)
	}
	return p, nil
}

// NewComponentTypeBasedPriority serves component types in the given order and
// components of one type in index order.
func NewComponentTypeBasedPriority(entries []TypePriorityEntry, store *kb.ComponentStore) *StaticPriority {
	p := &StaticPriority{}
	for _, e := range entries {
		for _, i := range store.IndicesByType(e.ComponentType) {
			p.add(i, orOperation(e.DemandType))
		}
	}
	return p
}

// NewSupplierOnlyPriority serves the operation demand of the resource's
// suppliers, in index order.
func NewSupplierOnlyPriority(resource string, store *kb.ComponentStore) *StaticPriority {
	p := &StaticPriority{}
	for i, c := range store.All() {
		if c.HasResourceSupply(resource) {
			p.add(i, model.OperationDemand)
		}
	}
	return p
}

// NewRandomPriority puts the resource's suppliers first and then every other
// component in an order shuffled once from seed. Suppliers are listed with
// their operation demand; the others with dt, which defaults to recovery
// demand.
func NewRandomPriority(resource string, store *kb.ComponentStore, dt model.DemandType, seed uint64) *StaticPriority {
	if dt == "" {
		dt = model.RecoveryDemand
	}
	p := &StaticPriority{}
	var rest []int
	for i, c := range store.All() {
		if c.HasResourceSupply(resource) {
			p.add(i, model.OperationDemand)
		} else {
			rest = append(rest, i)
		}
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	rng.Shuffle(len(rest), func(a, b int) { rest[a], rest[b] = rest[b], rest[a] })
	for _, i := range rest {
		p.add(i, dt)
	}
	return p
}
