package core

import (
	"fmt"
	"math"
)

// DemandSpec declares an amount of a resource a recovery activity needs per
// time step.
type DemandSpec struct {
	Resource string  `yaml:"resource" json:"resource"`
	Amount   float64 `yaml:"amount" json:"amount"`
}

// RecoveryActivity is one step of a component's repair schedule. Its level
// grows by Rate*DemandMet on every Recover call until it reaches 1.
type RecoveryActivity struct {
	name      string
	level     float64
	duration  float64
	rate      float64
	demandMet float64

	demand      map[string]*ConcreteResource
	demandOrder []string

	precedingActivities         []string
	precedingActivitiesFinished bool

	timeSteps []int
}

// NewRecoveryActivity returns an activity at the given initial level with
// its demand fully met.
func NewRecoveryActivity(name string, initialLevel float64) (*RecoveryActivity, error) {
	a := &RecoveryActivity{
		name:      name,
		demandMet: 1,
		demand:    make(map[string]*ConcreteResource),
	}
	if err := a.SetLevel(initialLevel); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *RecoveryActivity) Name() string                      { return a.name }
func (a *RecoveryActivity) Level() float64                    { return a.level }
func (a *RecoveryActivity) Duration() float64                 { return a.duration }
func (a *RecoveryActivity) Rate() float64                     { return a.rate }
func (a *RecoveryActivity) DemandMet() float64                { return a.demandMet }
func (a *RecoveryActivity) PrecedingActivities() []string     { return append([]string(nil), a.precedingActivities...) }
func (a *RecoveryActivity) PrecedingActivitiesFinished() bool { return a.precedingActivitiesFinished }

// TimeSteps returns the steps at which the activity made progress.
func (a *RecoveryActivity) TimeSteps() []int { return append([]int(nil), a.timeSteps...) }

func (a *RecoveryActivity) SetLevel(level float64) error {
	if level < 0 || level > 1 || math.IsNaN(level) {
		return fmt.Errorf("%w: level %v of recovery activity %q", ErrOutOfRange, level, a.name)
	}
	a.level = level
	return nil
}

// SetDuration samples the distribution and derives the rate. A zero
// duration completes the activity in a single step.
func (a *RecoveryActivity) SetDuration(dist Distribution) error {
	d := dist.Sample()
	switch {
	case d > 0:
		a.rate = 1 / d
	case d == 0:
		a.rate = math.Inf(1)
	default:
		return fmt.Errorf("%w: %v for recovery activity %q", ErrNegativeDuration, d, a.name)
	}
	a.duration = d
	return nil
}

// scaleRate sets the rate so that a level gap of damage closes in one
// duration.
func (a *RecoveryActivity) scaleRate(damage float64) {
	if a.duration == 0 {
		a.rate = math.Inf(1)
		return
	}
	a.rate = damage / a.duration
}

func (a *RecoveryActivity) SetPrecedingActivities(names []string) {
	a.precedingActivities = append([]string(nil), names...)
}

func (a *RecoveryActivity) SetPrecedingActivitiesFinished(finished bool) {
	a.precedingActivitiesFinished = finished
}

// SetDemand registers the resources the activity needs. All of them share one
// DemandMet value.
func (a *RecoveryActivity) SetDemand(specs []DemandSpec) error {
	for _, s := range specs {
		r, err := newConcreteResource(ResourceSpec{Name: s.Resource, Amount: s.Amount})
		if err != nil {
			return fmt.Errorf("recovery activity %q: %w", a.name, err)
		}
		if _, exists := a.demand[s.Resource]; !exists {
			a.demandOrder = append(a.demandOrder, s.Resource)
		}
		a.demand[s.Resource] = r
	}
	return nil
}

// Demands reports whether the activity needs the resource.
func (a *RecoveryActivity) Demands(resource string) bool {
	_, ok := a.demand[resource]
	return ok
}

// DemandResource returns the demand entry for a resource, or nil.
func (a *RecoveryActivity) DemandResource(resource string) *ConcreteResource {
	return a.demand[resource]
}

func (a *RecoveryActivity) SetDemandMet(v float64) error {
	if v < 0 || v > 1 || math.IsNaN(v) {
		return fmt.Errorf("%w: demand met %v of recovery activity %q", ErrOutOfRange, v, a.name)
	}
	a.demandMet = v
	return nil
}

// Recover advances the level by Rate*DemandMet when some demand is met and
// the activity is unfinished.
func (a *RecoveryActivity) Recover(step int) error {
	if a.demandMet <= 0 || a.Finished() {
		return nil
	}
	if err := a.RecordProgress(step); err != nil {
		return err
	}
	a.level = math.Min(a.level+a.rate*a.demandMet, 1)
	return nil
}

func (a *RecoveryActivity) RecordProgress(step int) error {
	if step < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeTimeStep, step)
	}
	a.timeSteps = append(a.timeSteps, step)
	return nil
}

// Finished reports whether the level has reached 1.
func (a *RecoveryActivity) Finished() bool { return isClose(a.level, 1) }

func (a *RecoveryActivity) orderedDemand() []*ConcreteResource {
	out := make([]*ConcreteResource, 0, len(a.demandOrder))
	for _, name := range a.demandOrder {
		out = append(out, a.demand[name])
	}
	return out
}
