package sim

import (
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/signalsfoundry/recovery-simulator/model"
)

// Calculator records a resilience measure after every distribution.
type Calculator interface {
	Update(step int, resources *Resources)
}

// CalculatorKind names a resilience calculator variant.
type CalculatorKind string

const (
	CalculatorReCoDeS          CalculatorKind = "ReCoDeSResilienceCalculator"
	CalculatorFullRecoveryTime CalculatorKind = "FullRecoveryTimeResilienceCalculator"
)

// ReCoDeS keeps per-resource supply, demand and consumption series over a
// scope, one entry per step.
type ReCoDeS struct {
	resources []string
	scope     model.Scope

	supply      map[string][]float64
	demand      map[string][]float64
	consumption map[string][]float64
}

// NewReCoDeS tracks the named resources over scope.
func NewReCoDeS(resources []string, scope model.Scope) *ReCoDeS {
	c := &ReCoDeS{
		resources:   slices.Clone(resources),
		scope:       scope,
		supply:      make(map[string][]float64, len(resources)),
		demand:      make(map[string][]float64, len(resources)),
		consumption: make(map[string][]float64, len(resources)),
	}
	for _, r := range resources {
		c.supply[r] = nil
		c.demand[r] = nil
		c.consumption[r] = nil
	}
	return c
}

func (c *ReCoDeS) Update(_ int, resources *Resources) {
	for _, name := range c.resources {
		m := resources.Model(name)
		if m == nil {
			continue
		}
		c.supply[name] = append(c.supply[name], m.TotalSupply(c.scope))
		c.demand[name] = append(c.demand[name], m.TotalDemand(c.scope))
		c.consumption[name] = append(c.consumption[name], m.TotalConsumption(c.scope))
	}
}

func (c *ReCoDeS) Resources() []string { return slices.Clone(c.resources) }
func (c *ReCoDeS) Scope() model.Scope  { return c.scope }

func (c *ReCoDeS) Supply(resource string) []float64      { return slices.Clone(c.supply[resource]) }
func (c *ReCoDeS) Demand(resource string) []float64      { return slices.Clone(c.demand[resource]) }
func (c *ReCoDeS) Consumption(resource string) []float64 { return slices.Clone(c.consumption[resource]) }

// LastConsumption returns each resource's most recent consumption. Resources
// without any entry are left out.
func (c *ReCoDeS) LastConsumption() map[string]float64 {
	out := make(map[string]float64, len(c.resources))
	for _, r := range c.resources {
		if s := c.consumption[r]; len(s) > 0 {
			out[r] = s[len(s)-1]
		}
	}
	return out
}

// LackOfResilience sums unmet demand, demand minus consumption, over all
// recorded steps for each resource.
func (c *ReCoDeS) LackOfResilience() map[string]float64 {
	out := make(map[string]float64, len(c.resources))
	for _, r := range c.resources {
		unmet := slices.Clone(c.demand[r])
		floats.Sub(unmet, c.consumption[r])
		out[r] = floats.Sum(unmet)
	}
	return out
}

// FullRecoveryTime reports the last step the simulation ran.
type FullRecoveryTime struct {
	step    int
	updated bool
}

func (c *FullRecoveryTime) Update(step int, _ *Resources) {
	c.step = step
	c.updated = true
}

// RecoveryTime returns the last step seen and false when no step ran.
func (c *FullRecoveryTime) RecoveryTime() (int, bool) { return c.step, c.updated }
