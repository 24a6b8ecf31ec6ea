package core

import (
	"fmt"
	"math"
)

// Resource is a named quantity a component supplies or demands.
type Resource interface {
	Name() string
	Kind() ResourceKind
	InitialAmount() float64
	CurrentAmount() float64
	SetInitialAmount(amount float64) error
	SetCurrentAmount(amount float64) error
	UpdateBasedOnComponentFunctionality(level float64) error
	UpdateBasedOnUnmetDemand(source string, percentMet float64) error
	UpdateSupplyBasedOnConsumption(amount float64)
}

// ResourceKind names a resource variant.
type ResourceKind string

const (
	ResourceConcrete            ResourceKind = "ConcreteResource"
	ResourceConsumable          ResourceKind = "ConsumableResource"
	ResourceTimeStepsOfAutonomy ResourceKind = "TimeStepsOfAutonomyResource"
	ResourceMinMaxConstrained   ResourceKind = "MinMaxConstrainedResource"
)

// ResourceSpec is the declarative form of a resource entry in a component
// library. Empty Kind means ConcreteResource and an empty functionality
// relation means Constant.
type ResourceSpec struct {
	Name                  string                  `yaml:"resource" json:"resource"`
	Kind                  ResourceKind            `yaml:"kind,omitempty" json:"kind,omitempty"`
	Amount                float64                 `yaml:"amount" json:"amount"`
	FunctionalityToAmount RelationKind            `yaml:"functionalityToAmount,omitempty" json:"functionalityToAmount,omitempty"`
	UnmetDemandToAmount   map[string]RelationKind `yaml:"unmetDemandToAmount,omitempty" json:"unmetDemandToAmount,omitempty"`
	Min                   *float64                `yaml:"min,omitempty" json:"min,omitempty"`
	Max                   *float64                `yaml:"max,omitempty" json:"max,omitempty"`

	// PostDisasterIncrease marks the communication resource whose demand
	// surges after a disaster in building stock units with emergency calls.
	PostDisasterIncrease bool `yaml:"postDisasterIncreaseDueToEmergencyCalls,omitempty" json:"postDisasterIncreaseDueToEmergencyCalls,omitempty"`
}

// NewResource builds a resource from its spec.
func NewResource(spec ResourceSpec) (Resource, error) {
	base, err := newConcreteResource(spec)
	if err != nil {
		return nil, err
	}
	switch spec.Kind {
	case "", ResourceConcrete:
		return base, nil
	case ResourceConsumable:
		return &ConsumableResource{ConcreteResource: *base}, nil
	case ResourceTimeStepsOfAutonomy:
		return &TimeStepsOfAutonomyResource{ConsumableResource{ConcreteResource: *base}}, nil
	case ResourceMinMaxConstrained:
		r := &MinMaxConstrainedResource{ConcreteResource: *base, Min: 0, Max: math.Inf(1)}
		if spec.Min != nil {
			r.Min = *spec.Min
		}
		if spec.Max != nil {
			r.Max = *spec.Max
		}
		if r.Min > r.Max {
			return nil, fmt.Errorf("%w: resource %q min %v above max %v", ErrInvalidParameters, spec.Name, r.Min, r.Max)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("%w: resource kind %q", ErrUnknownVariant, spec.Kind)
	}
}

// ConcreteResource scales its amount with component functionality and is
// ratcheted down when a resource it depends on is not fully delivered.
type ConcreteResource struct {
	name          string
	initialAmount float64
	currentAmount float64
	functionality Relation
	unmetDemand   map[string]Relation
}

func newConcreteResource(spec ResourceSpec) (*ConcreteResource, error) {
	r := &ConcreteResource{name: spec.Name, unmetDemand: make(map[string]Relation, len(spec.UnmetDemandToAmount))}
	if err := r.SetInitialAmount(spec.Amount); err != nil {
		return nil, fmt.Errorf("resource %q: %w", spec.Name, err)
	}
	kind := spec.FunctionalityToAmount
	if kind == "" {
		kind = RelationConstant
	}
	rel, err := NewRelation(kind)
	if err != nil {
		return nil, fmt.Errorf("resource %q: %w", spec.Name, err)
	}
	r.functionality = rel
	for source, k := range spec.UnmetDemandToAmount {
		rel, err := NewRelation(k)
		if err != nil {
			return nil, fmt.Errorf("resource %q unmet demand of %q: %w", spec.Name, source, err)
		}
		r.unmetDemand[source] = rel
	}
	return r, nil
}

func (r *ConcreteResource) Name() string           { return r.name }
func (r *ConcreteResource) Kind() ResourceKind     { return ResourceConcrete }
func (r *ConcreteResource) InitialAmount() float64 { return r.initialAmount }
func (r *ConcreteResource) CurrentAmount() float64 { return r.currentAmount }

func checkAmount(amount float64) error {
	if amount < 0 || math.IsNaN(amount) {
		return fmt.Errorf("%w: %v", ErrNegativeAmount, amount)
	}
	return nil
}

// SetInitialAmount resets both the initial and the current amount.
func (r *ConcreteResource) SetInitialAmount(amount float64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	r.initialAmount = amount
	r.currentAmount = amount
	return nil
}

func (r *ConcreteResource) SetCurrentAmount(amount float64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	r.currentAmount = amount
	return nil
}

func (r *ConcreteResource) UpdateBasedOnComponentFunctionality(level float64) error {
	out, err := r.functionality.Output(level)
	if err != nil {
		return fmt.Errorf("resource %q functionality: %w", r.name, err)
	}
	r.currentAmount = r.initialAmount * out
	return nil
}

// UpdateBasedOnUnmetDemand lowers the current amount when the source resource
// was only partly delivered. It never raises the amount; sources without a
// declared relation are ignored.
func (r *ConcreteResource) UpdateBasedOnUnmetDemand(source string, percentMet float64) error {
	rel, ok := r.unmetDemand[source]
	if !ok {
		return nil
	}
	out, err := rel.Output(percentMet)
	if err != nil {
		return fmt.Errorf("resource %q unmet demand of %q: %w", r.name, source, err)
	}
	if reduced := r.initialAmount * out; reduced < r.currentAmount {
		r.currentAmount = reduced
	}
	return nil
}

func (r *ConcreteResource) UpdateSupplyBasedOnConsumption(float64) {}

// ConsumableResource is depleted by consumption and ignores functionality.
type ConsumableResource struct {
	ConcreteResource
}

func (r *ConsumableResource) Kind() ResourceKind { return ResourceConsumable }

func (r *ConsumableResource) UpdateBasedOnComponentFunctionality(float64) error { return nil }

func (r *ConsumableResource) UpdateSupplyBasedOnConsumption(amount float64) {
	r.currentAmount = math.Max(0, r.currentAmount-amount)
}

// TimeStepsOfAutonomyResource counts the time steps a supply lasts rather than
// an amount. Every consumption call spends one time step.
type TimeStepsOfAutonomyResource struct {
	ConsumableResource
}

func (r *TimeStepsOfAutonomyResource) Kind() ResourceKind { return ResourceTimeStepsOfAutonomy }

func (r *TimeStepsOfAutonomyResource) UpdateBasedOnUnmetDemand(string, float64) error { return nil }

func (r *TimeStepsOfAutonomyResource) UpdateSupplyBasedOnConsumption(float64) {
	r.currentAmount = math.Max(0, r.currentAmount-1)
}

// MinMaxConstrainedResource keeps its current amount within [Min, Max] and
// is not affected by functionality, unmet demand or consumption.
type MinMaxConstrainedResource struct {
	ConcreteResource
	Min float64
	Max float64
}

func (r *MinMaxConstrainedResource) Kind() ResourceKind { return ResourceMinMaxConstrained }

func (r *MinMaxConstrainedResource) UpdateBasedOnComponentFunctionality(float64) error { return nil }

func (r *MinMaxConstrainedResource) UpdateBasedOnUnmetDemand(string, float64) error { return nil }

func (r *MinMaxConstrainedResource) UpdateSupplyBasedOnConsumption(float64) {}

func (r *MinMaxConstrainedResource) SetCurrentAmount(amount float64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	r.currentAmount = math.Max(r.Min, math.Min(r.Max, amount))
	return nil
}
