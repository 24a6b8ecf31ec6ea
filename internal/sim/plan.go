package sim

import (
	"slices"

	"github.com/signalsfoundry/recovery-simulator/core"
	"github.com/signalsfoundry/recovery-simulator/kb"
	"github.com/signalsfoundry/recovery-simulator/model"
)

// DistributionPlan fixes the order in which resources are distributed at
// every step. Ordered resources are distributed once, in order; the
// interdependent ones are then distributed together repeatedly, since the
// supply of one depends on how well the demand for another was met.
type DistributionPlan struct {
	Ordered        []string
	Interdependent []string
}

// NewDistributionPlan orders bridge services first, then transfer services,
// then independent resources. A resource is interdependent when a component
// supplies it and also has operation demand. In hospital mode every resource
// is treated as independent.
func NewDistributionPlan(resources *Resources, store *kb.ComponentStore, mode Mode) DistributionPlan {
	var p DistributionPlan
	p.Ordered = append(p.Ordered, resources.group(model.GroupBridgeService)...)
	p.Ordered = append(p.Ordered, resources.group(model.GroupTransferService)...)

	if mode == ModeHospital {
		p.Ordered = append(p.Ordered, resources.Names()...)
		return p
	}

	placed := slices.Clone(p.Ordered)
	components := store.All()
	for _, name := range resources.Names() {
		if slices.Contains(placed, name) {
			continue
		}
		interdependent := slices.ContainsFunc(components, func(c *core.StandardComponent) bool {
			return c.HasResourceSupply(name) && c.HasOperationDemand()
		})
		if interdependent {
			p.Interdependent = append(p.Interdependent, name)
		} else {
			p.Ordered = append(p.Ordered, name)
		}
	}
	return p
}

// List flattens the plan with the interdependent block repeated passes
// times.
func (p DistributionPlan) List(passes int) []string {
	out := slices.Clone(p.Ordered)
	for range passes {
		out = append(out, p.Interdependent...)
	}
	return out
}
