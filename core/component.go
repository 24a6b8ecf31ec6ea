package core

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/signalsfoundry/recovery-simulator/model"
)

// ComponentKind names a component variant.
type ComponentKind string

const (
	ComponentStandard                            ComponentKind = "StandardiReCoDeSComponent"
	ComponentBuildingStockUnitWithEmergencyCalls ComponentKind = "BuildingStockUnitWithEmergencyCalls"
	ComponentInfrastructureInterface             ComponentKind = "InfrastructureInterface"
	ComponentHospital                            ComponentKind = "HospitalComponent"
)

// Emergency call demand surge parameters.
const (
	emergencyDemandMultiplier   = 10.0
	emergencyDemandIncreaseStep = 1
	emergencyDemandDecayCoeff   = -0.3
)

// ComponentSpec is a component library entry.
type ComponentSpec struct {
	Kind            ComponentKind     `yaml:"kind,omitempty" json:"kind,omitempty"`
	RecoveryModel   RecoveryModelSpec `yaml:"recoveryModel" json:"recoveryModel"`
	Supply          []ResourceSpec    `yaml:"supply,omitempty" json:"supply,omitempty"`
	OperationDemand []ResourceSpec    `yaml:"operationDemand,omitempty" json:"operationDemand,omitempty"`

	// SupplyDynamics drives an infrastructure interface.
	SupplyDynamics *SupplyDynamics `yaml:"supplyDynamics,omitempty" json:"supplyDynamics,omitempty"`
	// ResourceDynamics are predefined amount changes of a hospital component.
	ResourceDynamics []ResourceDynamic `yaml:"resourceDynamics,omitempty" json:"resourceDynamics,omitempty"`
}

// SupplyDynamics is the restoration curve of an externally simulated
// infrastructure: Amount[i] of Resource is the supply restored in
// RestoredIn[i] time steps.
type SupplyDynamics struct {
	Resource   string    `yaml:"resource" json:"resource"`
	Amount     []float64 `yaml:"amount" json:"amount"`
	RestoredIn []float64 `yaml:"restoredIn" json:"restoredIn"`
}

// ResourceDynamic adds Amount[i] to a resource at AtTimeStep[i]. The sum
// becomes the resource's new initial amount.
type ResourceDynamic struct {
	SupplyOrDemand model.SupplyOrDemand `yaml:"supplyOrDemand" json:"supplyOrDemand"`
	Table          string               `yaml:"table" json:"table"`
	Resource       string               `yaml:"resource" json:"resource"`
	AtTimeStep     []int                `yaml:"atTimeStep" json:"atTimeStep"`
	Amount         []float64            `yaml:"amount" json:"amount"`
}

type resourceTable struct {
	order  []string
	byName map[string]Resource
}

func newResourceTable(specs []ResourceSpec) (*resourceTable, error) {
	t := &resourceTable{byName: make(map[string]Resource, len(specs))}
	for _, s := range specs {
		r, err := NewResource(s)
		if err != nil {
			return nil, err
		}
		if _, dup := t.byName[s.Name]; dup {
			return nil, fmt.Errorf("%w: resource %q declared twice", ErrInvalidParameters, s.Name)
		}
		t.order = append(t.order, s.Name)
		t.byName[s.Name] = r
	}
	return t, nil
}

func (t *resourceTable) each(fn func(Resource) error) error {
	for _, name := range t.order {
		if err := fn(t.byName[name]); err != nil {
			return err
		}
	}
	return nil
}

// StandardComponent is a building, facility or link that supplies and
// demands resources and is repaired by its recovery model.
type StandardComponent struct {
	name     string
	typ      string
	kind     ComponentKind
	locality model.Locality

	recovery           RecoveryModel
	functionalityLevel float64
	functional         []int

	supply          *resourceTable
	operationDemand *resourceTable
	recoveryDemand  []*ConcreteResource

	communicationResource string
	resourceDynamics      []ResourceDynamic
}

// NewComponent builds a component of the given library type. src seeds
// duration sampling and may be nil.
func NewComponent(name, typ string, spec ComponentSpec, src rand.Source) (*StandardComponent, error) {
	kind := spec.Kind
	if kind == "" {
		kind = ComponentStandard
	}
	c := &StandardComponent{name: name, typ: typ, kind: kind, functionalityLevel: 1}

	var err error
	if c.supply, err = newResourceTable(spec.Supply); err != nil {
		return nil, fmt.Errorf("component %q supply: %w", name, err)
	}
	if c.operationDemand, err = newResourceTable(spec.OperationDemand); err != nil {
		return nil, fmt.Errorf("component %q operation demand: %w", name, err)
	}

	rm := spec.RecoveryModel
	switch kind {
	case ComponentStandard:
	case ComponentBuildingStockUnitWithEmergencyCalls:
		for _, d := range spec.OperationDemand {
			if d.PostDisasterIncrease {
				c.communicationResource = d.Name
			}
		}
		if c.communicationResource == "" {
			return nil, fmt.Errorf("%w: component %q has no operation demand marked for emergency call increase", ErrInvalidParameters, name)
		}
	case ComponentInfrastructureInterface:
		if rm, err = c.applySupplyDynamics(spec.SupplyDynamics); err != nil {
			return nil, fmt.Errorf("component %q: %w", name, err)
		}
	case ComponentHospital:
		c.resourceDynamics = slices.Clone(spec.ResourceDynamics)
	default:
		return nil, fmt.Errorf("%w: component kind %q", ErrUnknownVariant, kind)
	}

	if c.recovery, err = NewRecoveryModel(rm, src); err != nil {
		return nil, fmt.Errorf("component %q recovery model: %w", name, err)
	}
	return c, nil
}

// applySupplyDynamics turns a restoration curve into a step relation over
// recovery progress and sets the supply to the curve's peak.
func (c *StandardComponent) applySupplyDynamics(sd *SupplyDynamics) (RecoveryModelSpec, error) {
	if sd == nil || len(sd.Amount) == 0 || len(sd.Amount) != len(sd.RestoredIn) {
		return RecoveryModelSpec{}, fmt.Errorf("%w: infrastructure interface needs matching amount and restoredIn lists", ErrInvalidParameters)
	}
	last := sd.RestoredIn[len(sd.RestoredIn)-1]
	peak := slices.Max(sd.Amount)
	if last <= 0 || peak <= 0 {
		return RecoveryModelSpec{}, fmt.Errorf("%w: infrastructure interface restoration time and amount must be positive", ErrInvalidParameters)
	}
	limits := make([]float64, len(sd.RestoredIn))
	for i, t := range sd.RestoredIn {
		limits[i] = t / last
	}
	values := make([]float64, 0, len(sd.Amount)+1)
	if limits[0] != 0 {
		values = append(values, 0)
	} else {
		values = append(values, sd.Amount[0]/peak)
	}
	for _, a := range sd.Amount {
		values = append(values, a/peak)
	}
	r, ok := c.supply.byName[sd.Resource]
	if !ok {
		return RecoveryModelSpec{}, fmt.Errorf("%w: supply dynamics resource %q", ErrUnknownResource, sd.Resource)
	}
	if err := r.SetInitialAmount(peak); err != nil {
		return RecoveryModelSpec{}, err
	}
	return RecoveryModelSpec{
		Type:       RecoveryInfrastructureInterface,
		StepLimits: limits,
		StepValues: values,
		RestoredIn: DistributionSpec{Kind: DistributionDeterministic, Value: last},
	}, nil
}

func (c *StandardComponent) Name() string                 { return c.name }
func (c *StandardComponent) Type() string                 { return c.typ }
func (c *StandardComponent) Kind() ComponentKind          { return c.kind }
func (c *StandardComponent) Locality() model.Locality     { return c.locality }
func (c *StandardComponent) SetLocality(l model.Locality) { c.locality = l }
func (c *StandardComponent) RecoveryModel() RecoveryModel { return c.recovery }
func (c *StandardComponent) FunctionalityLevel() float64  { return c.functionalityLevel }
func (c *StandardComponent) DamageLevel() float64         { return c.recovery.DamageLevel() }

// FunctionalSteps returns the steps at which the component had nonzero
// functionality.
func (c *StandardComponent) FunctionalSteps() []int { return slices.Clone(c.functional) }

func (c *StandardComponent) String() string {
	return fmt.Sprintf("%s | Locality: %v", c.name, c.locality)
}

func (c *StandardComponent) SetInitialDamageLevel(damage float64) error {
	if err := c.recovery.SetInitialDamageLevel(damage); err != nil {
		return fmt.Errorf("component %q: %w", c.name, err)
	}
	return nil
}

// HasOperationDemand reports whether the component declares any operation
// demand, regardless of the current amounts.
func (c *StandardComponent) HasOperationDemand() bool { return len(c.operationDemand.order) > 0 }

func (c *StandardComponent) HasResourceSupply(resource string) bool {
	_, ok := c.supply.byName[resource]
	return ok
}

// SupplyResource returns a supply entry or nil.
func (c *StandardComponent) SupplyResource(resource string) Resource { return c.supply.byName[resource] }

// OperationDemandResource returns an operation demand entry or nil.
func (c *StandardComponent) OperationDemandResource(resource string) Resource {
	return c.operationDemand.byName[resource]
}

// SupplyResources lists supply resource names in declaration order.
func (c *StandardComponent) SupplyResources() []string { return slices.Clone(c.supply.order) }

// CurrentResourceAmount returns the current amount of a resource in one of
// the component's tables, or 0 when the table has no such resource.
func (c *StandardComponent) CurrentResourceAmount(side model.SupplyOrDemand, table, resource string) float64 {
	switch {
	case side == model.Supply && table == model.SupplyTable:
		if r, ok := c.supply.byName[resource]; ok {
			return r.CurrentAmount()
		}
	case side == model.Demand && table == string(model.OperationDemand):
		if r, ok := c.operationDemand.byName[resource]; ok {
			return r.CurrentAmount()
		}
	case side == model.Demand && table == string(model.RecoveryDemand):
		for _, r := range c.recoveryDemand {
			if r.Name() == resource {
				return r.CurrentAmount()
			}
		}
	}
	return 0
}

// SetResourceDynamics replaces the predefined resource changes, as done by a
// stress scenario.
func (c *StandardComponent) SetResourceDynamics(dyn []ResourceDynamic) {
	c.resourceDynamics = slices.Clone(dyn)
}

// Update prepares the component for distribution at step. consumption holds
// the system consumption of each resource at the previous step and is only
// read by hospital components.
func (c *StandardComponent) Update(step int, consumption map[string]float64) error {
	level, err := c.recovery.FunctionalityLevel()
	if err != nil {
		return fmt.Errorf("component %q functionality: %w", c.name, err)
	}
	c.functionalityLevel = level
	if level > 0 {
		c.functional = append(c.functional, step)
	}
	scale := func(r Resource) error { return r.UpdateBasedOnComponentFunctionality(level) }
	if err := c.supply.each(scale); err != nil {
		return fmt.Errorf("component %q supply: %w", c.name, err)
	}
	if err := c.operationDemand.each(scale); err != nil {
		return fmt.Errorf("component %q operation demand: %w", c.name, err)
	}
	c.recovery.SetActivitiesDemandToMet()
	c.recoveryDemand = c.recovery.Demand()

	switch c.kind {
	case ComponentBuildingStockUnitWithEmergencyCalls:
		return c.updateCommunicationDemand(step)
	case ComponentHospital:
		if err := c.applyResourceDynamics(step); err != nil {
			return err
		}
		c.updateSupplyBasedOnConsumption(consumption)
	}
	return nil
}

func (c *StandardComponent) updateCommunicationDemand(step int) error {
	r := c.operationDemand.byName[c.communicationResource]
	if step < emergencyDemandIncreaseStep {
		return nil
	}
	initial := r.InitialAmount()
	surged := initial * emergencyDemandMultiplier *
		math.Pow(math.Exp(emergencyDemandDecayCoeff), float64(step-emergencyDemandIncreaseStep))
	return r.SetCurrentAmount(math.Max(surged, initial))
}

func (c *StandardComponent) applyResourceDynamics(step int) error {
	for _, d := range c.resourceDynamics {
		i := slices.Index(d.AtTimeStep, step)
		if i < 0 || i >= len(d.Amount) {
			continue
		}
		var r Resource
		switch {
		case d.SupplyOrDemand == model.Supply:
			r = c.supply.byName[d.Resource]
		case d.Table == string(model.OperationDemand):
			r = c.operationDemand.byName[d.Resource]
		}
		if r == nil {
			return fmt.Errorf("%w: component %q has no %s %q", ErrUnknownResource, c.name, d.Table, d.Resource)
		}
		if err := r.SetInitialAmount(r.CurrentAmount() + d.Amount[i]); err != nil {
			return fmt.Errorf("component %q resource dynamics: %w", c.name, err)
		}
	}
	return nil
}

func (c *StandardComponent) updateSupplyBasedOnConsumption(consumption map[string]float64) {
	for _, name := range c.supply.order {
		if amount, ok := consumption[name]; ok {
			c.supply.byName[name].UpdateSupplyBasedOnConsumption(amount)
		}
	}
}

// UpdateSupplyBasedOnUnmetDemand lowers every supply that depends on the
// resource according to the share of demand met.
func (c *StandardComponent) UpdateSupplyBasedOnUnmetDemand(resource string, percentMet float64) error {
	return c.supply.each(func(r Resource) error {
		return r.UpdateBasedOnUnmetDemand(resource, percentMet)
	})
}

func (c *StandardComponent) SetUnmetDemandForRecoveryActivities(resource string, percentMet float64) error {
	if err := c.recovery.SetUnmetDemandForRecoveryActivities(resource, percentMet); err != nil {
		return fmt.Errorf("component %q: %w", c.name, err)
	}
	return nil
}

func (c *StandardComponent) Recover(step int) error {
	if err := c.recovery.Recover(step); err != nil {
		return fmt.Errorf("component %q: %w", c.name, err)
	}
	return nil
}

// SetSupplyAmount overrides the initial amount of a supply entry.
func (c *StandardComponent) SetSupplyAmount(resource string, amount float64) error {
	r, ok := c.supply.byName[resource]
	if !ok {
		return fmt.Errorf("%w: component %q supplies no %q", ErrUnknownResource, c.name, resource)
	}
	return r.SetInitialAmount(amount)
}

// SetOperationDemandAmount overrides the initial amount of an operation
// demand entry.
func (c *StandardComponent) SetOperationDemandAmount(resource string, amount float64) error {
	r, ok := c.operationDemand.byName[resource]
	if !ok {
		return fmt.Errorf("%w: component %q demands no %q", ErrUnknownResource, c.name, resource)
	}
	return r.SetInitialAmount(amount)
}
