package distribution

import (
	"context"
	"fmt"
	"math"

	"github.com/signalsfoundry/recovery-simulator/kb"
	"github.com/signalsfoundry/recovery-simulator/model"
)

// TimeStepsOfAutonomy serves every user of a resource for as long as any
// supplier has time steps of autonomy left. Supply and demand totals are
// indicators: 1 when present, 0 otherwise.
type TimeStepsOfAutonomy struct {
	resource  string
	store     *kb.ComponentStore
	suppliers []int
	opts      options
}

// NewTimeStepsOfAutonomy records the resource's suppliers at construction.
func NewTimeStepsOfAutonomy(resource string, store *kb.ComponentStore, opts ...Option) *TimeStepsOfAutonomy {
	m := &TimeStepsOfAutonomy{resource: resource, store: store, opts: applyOptions(opts)}
	for i, c := range store.All() {
		if c.HasResourceSupply(resource) {
			m.suppliers = append(m.suppliers, i)
		}
	}
	return m
}

func (m *TimeStepsOfAutonomy) Resource() string { return m.resource }

func (m *TimeStepsOfAutonomy) supplyExists() bool {
	for _, i := range m.suppliers {
		var c Component = m.store.At(i)
		if c.CurrentResourceAmount(model.Supply, model.SupplyTable, m.resource) > 0 {
			return true
		}
	}
	return false
}

func (m *TimeStepsOfAutonomy) demand(c Component) float64 {
	return c.CurrentResourceAmount(model.Demand, string(model.OperationDemand), m.resource)
}

// Distribute leaves users untouched while supply lasts. Once every supplier
// has run out, each user's supply is updated as if none of its demand was met.
func (m *TimeStepsOfAutonomy) Distribute(ctx context.Context) error {
	if m.supplyExists() {
		return nil
	}
	for _, sc := range m.store.All() {
		var c Component = sc
		if m.demand(c) <= 0 {
			continue
		}
		if m.opts.recorder != nil {
			m.opts.recorder.RecordShortfall(m.resource, model.OperationDemand, 0)
		}
		if err := c.UpdateSupplyBasedOnUnmetDemand(m.resource, 0); err != nil {
			return fmt.Errorf("resource %q: %w", m.resource, err)
		}
	}
	return nil
}

func (m *TimeStepsOfAutonomy) TotalSupply(model.Scope) float64 {
	if m.supplyExists() {
		return 1
	}
	return 0
}

func (m *TimeStepsOfAutonomy) TotalDemand(scope model.Scope) float64 {
	total := 0.0
	for _, sc := range m.store.All() {
		var c Component = sc
		if scope.Includes(c.Name(), c.Locality()) {
			total += m.demand(c)
		}
	}
	if total > 0 {
		return 1
	}
	return 0
}

func (m *TimeStepsOfAutonomy) TotalConsumption(scope model.Scope) float64 {
	return math.Min(m.TotalSupply(scope), m.TotalDemand(scope))
}
