package core

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// DefaultRepairActivity is the activity whose level defines a component's
// damage in a MultipleRecoveryActivities model.
const DefaultRepairActivity = "Repair"

// RecoveryModel tracks a component's damage and repair schedule.
type RecoveryModel interface {
	Kind() RecoveryModelKind
	SetInitialDamageLevel(damage float64) error
	DamageLevel() float64
	FunctionalityLevel() (float64, error)
	// SetActivitiesDemandToMet resets every activity's DemandMet to 1 before
	// a new distribution round.
	SetActivitiesDemandToMet()
	Recover(step int) error
	// Demand lists the resources the model needs at the current step.
	Demand() []*ConcreteResource
	SetUnmetDemandForRecoveryActivities(resource string, percentMet float64) error
	Activities() []*RecoveryActivity
}

// RecoveryModelKind names a recovery model variant.
type RecoveryModelKind string

const (
	RecoveryNone                    RecoveryModelKind = "NoRecoveryActivity"
	RecoverySingle                  RecoveryModelKind = "SingleRecoveryActivity"
	RecoveryMultiple                RecoveryModelKind = "MultipleRecoveryActivities"
	RecoveryInfrastructureInterface RecoveryModelKind = "InfrastructureInterfaceRecoveryModel"
)

// ActivitySpec declares one recovery activity.
type ActivitySpec struct {
	Name                string           `yaml:"name" json:"name"`
	Duration            DistributionSpec `yaml:"duration" json:"duration"`
	PrecedingActivities []string         `yaml:"precedingActivities,omitempty" json:"precedingActivities,omitempty"`
	Demand              []DemandSpec     `yaml:"demand,omitempty" json:"demand,omitempty"`
}

// RecoveryModelSpec is the declarative form of a recovery model.
type RecoveryModelSpec struct {
	Type                        RecoveryModelKind `yaml:"type" json:"type"`
	DamageFunctionalityRelation RelationKind      `yaml:"damageFunctionalityRelation,omitempty" json:"damageFunctionalityRelation,omitempty"`
	RepairActivity              string            `yaml:"repairActivity,omitempty" json:"repairActivity,omitempty"`
	Activities                  []ActivitySpec    `yaml:"activities,omitempty" json:"activities,omitempty"`

	// Infrastructure interface parameters.
	StepLimits []float64        `yaml:"stepLimits,omitempty" json:"stepLimits,omitempty"`
	StepValues []float64        `yaml:"stepValues,omitempty" json:"stepValues,omitempty"`
	RestoredIn DistributionSpec `yaml:"restoredIn,omitempty" json:"restoredIn,omitempty"`
}

// NewRecoveryModel builds a recovery model. src seeds duration sampling and
// may be nil.
func NewRecoveryModel(spec RecoveryModelSpec, src rand.Source) (RecoveryModel, error) {
	switch spec.Type {
	case "", RecoveryNone:
		return NoRecoveryActivity{}, nil
	case RecoverySingle:
		return newSingleRecoveryActivity(spec, src)
	case RecoveryMultiple:
		return newMultipleRecoveryActivities(spec, src)
	case RecoveryInfrastructureInterface:
		return newInfrastructureInterfaceRecoveryModel(spec, src)
	default:
		return nil, fmt.Errorf("%w: recovery model %q", ErrUnknownVariant, spec.Type)
	}
}

func checkDamage(damage float64) error {
	if damage < 0 || damage > 1 || math.IsNaN(damage) {
		return fmt.Errorf("%w: damage level %v", ErrOutOfRange, damage)
	}
	return nil
}

func buildActivity(spec ActivitySpec, src rand.Source) (*RecoveryActivity, error) {
	a, err := NewRecoveryActivity(spec.Name, 1)
	if err != nil {
		return nil, err
	}
	dist, err := NewDistribution(spec.Duration, src)
	if err != nil {
		return nil, fmt.Errorf("recovery activity %q duration: %w", spec.Name, err)
	}
	if err := a.SetDuration(dist); err != nil {
		return nil, err
	}
	a.SetPrecedingActivities(spec.PrecedingActivities)
	if err := a.SetDemand(spec.Demand); err != nil {
		return nil, err
	}
	return a, nil
}

func damageRelation(kind RelationKind) (Relation, error) {
	if kind == "" {
		return nil, fmt.Errorf("%w: damage to functionality relation is required", ErrInvalidParameters)
	}
	return NewRelation(kind)
}

// NoRecoveryActivity is used for components that are never damaged.
type NoRecoveryActivity struct{}

func (NoRecoveryActivity) Kind() RecoveryModelKind { return RecoveryNone }

func (NoRecoveryActivity) SetInitialDamageLevel(damage float64) error {
	if damage != 0 {
		return fmt.Errorf("%w: component without recovery activities cannot take damage %v", ErrOutOfRange, damage)
	}
	return nil
}

func (NoRecoveryActivity) DamageLevel() float64                 { return 0 }
func (NoRecoveryActivity) FunctionalityLevel() (float64, error) { return 1, nil }
func (NoRecoveryActivity) SetActivitiesDemandToMet()            {}
func (NoRecoveryActivity) Recover(int) error                    { return nil }
func (NoRecoveryActivity) Demand() []*ConcreteResource          { return nil }
func (NoRecoveryActivity) Activities() []*RecoveryActivity      { return nil }

func (NoRecoveryActivity) SetUnmetDemandForRecoveryActivities(string, float64) error { return nil }

// SingleRecoveryActivity models repair as one activity.
type SingleRecoveryActivity struct {
	activity *RecoveryActivity
	relation Relation
}

func newSingleRecoveryActivity(spec RecoveryModelSpec, src rand.Source) (*SingleRecoveryActivity, error) {
	if len(spec.Activities) == 0 {
		return nil, fmt.Errorf("%w: single recovery activity model needs an activity", ErrInvalidParameters)
	}
	rel, err := damageRelation(spec.DamageFunctionalityRelation)
	if err != nil {
		return nil, err
	}
	a, err := buildActivity(spec.Activities[0], src)
	if err != nil {
		return nil, err
	}
	return &SingleRecoveryActivity{activity: a, relation: rel}, nil
}

func (m *SingleRecoveryActivity) Kind() RecoveryModelKind { return RecoverySingle }

// Activity returns the repair activity.
func (m *SingleRecoveryActivity) Activity() *RecoveryActivity { return m.activity }

func (m *SingleRecoveryActivity) Activities() []*RecoveryActivity {
	return []*RecoveryActivity{m.activity}
}

// SetInitialDamageLevel sets the level to 1-damage and scales the rate so the
// damage is repaired in one duration at full demand.
func (m *SingleRecoveryActivity) SetInitialDamageLevel(damage float64) error {
	if err := checkDamage(damage); err != nil {
		return err
	}
	m.activity.level = 1 - damage
	m.activity.scaleRate(damage)
	return nil
}

func (m *SingleRecoveryActivity) DamageLevel() float64 { return 1 - m.activity.level }

func (m *SingleRecoveryActivity) FunctionalityLevel() (float64, error) {
	return m.relation.Output(m.DamageLevel())
}

func (m *SingleRecoveryActivity) SetActivitiesDemandToMet() { m.activity.demandMet = 1 }

func (m *SingleRecoveryActivity) Recover(step int) error { return m.activity.Recover(step) }

func (m *SingleRecoveryActivity) Demand() []*ConcreteResource {
	if m.DamageLevel() <= 0 || m.activity.Finished() {
		return nil
	}
	return m.activity.orderedDemand()
}

func (m *SingleRecoveryActivity) SetUnmetDemandForRecoveryActivities(resource string, percentMet float64) error {
	if !m.activity.Demands(resource) {
		return fmt.Errorf("%w: %q", ErrUnknownRecoveryResource, resource)
	}
	return m.activity.SetDemandMet(percentMet)
}

// MultipleRecoveryActivities models repair as a precedence graph of
// activities. Damage is read from the repair activity only.
type MultipleRecoveryActivities struct {
	activities []*RecoveryActivity
	byName     map[string]*RecoveryActivity
	repair     *RecoveryActivity
	relation   Relation
}

func newMultipleRecoveryActivities(spec RecoveryModelSpec, src rand.Source) (*MultipleRecoveryActivities, error) {
	rel, err := damageRelation(spec.DamageFunctionalityRelation)
	if err != nil {
		return nil, err
	}
	m := &MultipleRecoveryActivities{byName: make(map[string]*RecoveryActivity, len(spec.Activities)), relation: rel}
	for _, as := range spec.Activities {
		if _, dup := m.byName[as.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate recovery activity %q", ErrInvalidParameters, as.Name)
		}
		a, err := buildActivity(as, src)
		if err != nil {
			return nil, err
		}
		m.activities = append(m.activities, a)
		m.byName[as.Name] = a
	}
	for _, a := range m.activities {
		for _, p := range a.precedingActivities {
			if _, ok := m.byName[p]; !ok {
				return nil, fmt.Errorf("%w: %q preceding %q", ErrUnknownActivity, p, a.name)
			}
		}
	}
	repair := spec.RepairActivity
	if repair == "" {
		repair = DefaultRepairActivity
	}
	m.repair = m.byName[repair]
	if m.repair == nil {
		return nil, fmt.Errorf("%w: repair activity %q", ErrUnknownActivity, repair)
	}
	return m, nil
}

func (m *MultipleRecoveryActivities) Kind() RecoveryModelKind { return RecoveryMultiple }

func (m *MultipleRecoveryActivities) Activities() []*RecoveryActivity {
	return append([]*RecoveryActivity(nil), m.activities...)
}

// Activity returns the named activity or nil.
func (m *MultipleRecoveryActivities) Activity(name string) *RecoveryActivity { return m.byName[name] }

// SetInitialDamageLevel resets every activity to level 0 and then sets the
// repair activity to 1-damage.
func (m *MultipleRecoveryActivities) SetInitialDamageLevel(damage float64) error {
	if err := checkDamage(damage); err != nil {
		return err
	}
	for _, a := range m.activities {
		a.level = 0
	}
	m.repair.level = 1 - damage
	m.repair.scaleRate(damage)
	return nil
}

func (m *MultipleRecoveryActivities) DamageLevel() float64 { return 1 - m.repair.level }

func (m *MultipleRecoveryActivities) FunctionalityLevel() (float64, error) {
	return m.relation.Output(m.DamageLevel())
}

func (m *MultipleRecoveryActivities) SetActivitiesDemandToMet() {
	for _, a := range m.activities {
		a.demandMet = 1
	}
}

func (m *MultipleRecoveryActivities) precedingFinished(a *RecoveryActivity) bool {
	for _, p := range a.precedingActivities {
		if !m.byName[p].Finished() {
			return false
		}
	}
	return true
}

// Recover refreshes every precedence flag first and only then advances the
// eligible activities, so an activity finishing this step unblocks its
// successors on the next step.
func (m *MultipleRecoveryActivities) Recover(step int) error {
	for _, a := range m.activities {
		a.SetPrecedingActivitiesFinished(m.precedingFinished(a))
	}
	for _, a := range m.activities {
		if !a.precedingActivitiesFinished || m.DamageLevel() <= 0 {
			continue
		}
		if err := a.Recover(step); err != nil {
			return fmt.Errorf("recovery activity %q: %w", a.name, err)
		}
	}
	return nil
}

// Demand merges the demand of eligible unfinished activities in declaration
// order. When two activities demand the same resource the later one wins.
func (m *MultipleRecoveryActivities) Demand() []*ConcreteResource {
	if m.DamageLevel() <= 0 {
		return nil
	}
	var order []string
	merged := make(map[string]*ConcreteResource)
	for _, a := range m.activities {
		if a.Finished() || !m.precedingFinished(a) {
			continue
		}
		for _, name := range a.demandOrder {
			if _, seen := merged[name]; !seen {
				order = append(order, name)
			}
			merged[name] = a.demand[name]
		}
	}
	out := make([]*ConcreteResource, 0, len(order))
	for _, name := range order {
		out = append(out, merged[name])
	}
	return out
}

// SetUnmetDemandForRecoveryActivities updates the first activity, in
// declaration order, that demands the resource.
func (m *MultipleRecoveryActivities) SetUnmetDemandForRecoveryActivities(resource string, percentMet float64) error {
	for _, a := range m.activities {
		if a.Demands(resource) {
			return a.SetDemandMet(percentMet)
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownRecoveryResource, resource)
}

// InfrastructureInterfaceRecoveryModel replays the restoration curve of an
// externally simulated infrastructure system as a step function of recovery
// progress.
type InfrastructureInterfaceRecoveryModel struct {
	activity *RecoveryActivity
	relation *MultipleStep
}

// InterfaceActivityName is the single activity of an infrastructure interface.
const InterfaceActivityName = "Recovery"

func newInfrastructureInterfaceRecoveryModel(spec RecoveryModelSpec, src rand.Source) (*InfrastructureInterfaceRecoveryModel, error) {
	rel, err := NewMultipleStep(spec.StepLimits, spec.StepValues)
	if err != nil {
		return nil, err
	}
	restoredIn := spec.RestoredIn
	if restoredIn.Kind == "" {
		restoredIn = DistributionSpec{Kind: DistributionDeterministic, Value: 1}
	}
	a, err := buildActivity(ActivitySpec{Name: InterfaceActivityName, Duration: restoredIn}, src)
	if err != nil {
		return nil, err
	}
	return &InfrastructureInterfaceRecoveryModel{activity: a, relation: rel}, nil
}

func (m *InfrastructureInterfaceRecoveryModel) Kind() RecoveryModelKind {
	return RecoveryInfrastructureInterface
}

func (m *InfrastructureInterfaceRecoveryModel) Activities() []*RecoveryActivity {
	return []*RecoveryActivity{m.activity}
}

// SetInitialDamageLevel restarts the restoration curve from zero. The
// external curve starts fully damaged whatever level is passed; damage only
// has to be in range.
func (m *InfrastructureInterfaceRecoveryModel) SetInitialDamageLevel(damage float64) error {
	if err := checkDamage(damage); err != nil {
		return err
	}
	m.activity.level = 0
	return nil
}

func (m *InfrastructureInterfaceRecoveryModel) DamageLevel() float64 { return 1 - m.activity.level }

func (m *InfrastructureInterfaceRecoveryModel) FunctionalityLevel() (float64, error) {
	return m.relation.Output(1 - m.DamageLevel())
}

func (m *InfrastructureInterfaceRecoveryModel) SetActivitiesDemandToMet()   {}
func (m *InfrastructureInterfaceRecoveryModel) Recover(step int) error      { return m.activity.Recover(step) }
func (m *InfrastructureInterfaceRecoveryModel) Demand() []*ConcreteResource { return nil }

func (m *InfrastructureInterfaceRecoveryModel) SetUnmetDemandForRecoveryActivities(string, float64) error {
	return nil
}
