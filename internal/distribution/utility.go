package distribution

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/signalsfoundry/recovery-simulator/internal/logging"
	"github.com/signalsfoundry/recovery-simulator/kb"
	"github.com/signalsfoundry/recovery-simulator/model"
)

// supplier is a supplying row with the supply it has left in this pass.
type supplier struct {
	start, end int
	residual   float64
}

// Utility distributes a resource greedily in priority order. Suppliers join
// the pool as the priority walk reaches them, and a demand is served by the
// pool front to back, subject to transfer capacity between localities.
type Utility struct {
	resource string
	store    *kb.ComponentStore
	priority Priority
	matrix   *SystemMatrix
	opts     options

	// component resolves a matrix component index for demand feedback.
	component func(int) Component
}

// NewUtility builds a utility distribution model.
func NewUtility(resource string, store *kb.ComponentStore, priority Priority, opts ...Option) *Utility {
	return &Utility{
		resource:  resource,
		store:     store,
		priority:  priority,
		matrix:    NewSystemMatrix(resource, store),
		opts:      applyOptions(opts),
		component: func(i int) Component { return store.At(i) },
	}
}

func (u *Utility) Resource() string { return u.resource }

// Matrix exposes the system matrix of the last pass.
func (u *Utility) Matrix() *SystemMatrix { return u.matrix }

// SetTransferService sets or replaces the transfer model that constrains
// delivery between localities.
func (u *Utility) SetTransferService(p PathFinder) { u.opts.transfer = p }

// Distribute runs one allocation pass. The matrix is filled from the
// components first; components are written to only after that, as each
// demand row is settled.
func (u *Utility) Distribute(ctx context.Context) error {
	began := time.Now()
	u.matrix.Fill()

	ids, types := u.priority.ComponentPriorities()
	if len(ids) != len(types) {
		return fmt.Errorf("resource %q: priority lists %d components but %d demand types", u.resource, len(ids), len(types))
	}

	var suppliers []*supplier
	for k, id := range ids {
		if id < 0 || id >= u.matrix.Components() {
			return fmt.Errorf("resource %q: %w: priority index %d", u.resource, kb.ErrComponentNotFound, id)
		}
		row := u.matrix.Row(id, types[k])

		isSupplier := false
		if s := u.matrix.Supply(row); s > 0 {
			loc := u.matrix.Locality(row)
			suppliers = slices.Insert(suppliers, 0, &supplier{start: loc.Start, end: loc.End, residual: s})
			isSupplier = true
		}
		if err := u.meetDemand(ctx, suppliers, row, types[k]); err != nil {
			return err
		}
		if isSupplier {
			suppliers = append(suppliers[1:], suppliers[0])
		}
	}
	if u.opts.recorder != nil {
		u.opts.recorder.ObserveDistribution(u.resource, time.Since(began))
	}
	return nil
}

func (u *Utility) meetDemand(ctx context.Context, suppliers []*supplier, row int, dt model.DemandType) error {
	demand := u.matrix.Demand(row)
	if demand <= 0 {
		return nil
	}
	loc := u.matrix.Locality(row)
	// the transfer service must carry as much as the component demands
	transferDemand := demand

	remaining := demand
	for _, s := range suppliers {
		needed, pathFunctionality := u.supplyNeeded(s, remaining, loc, transferDemand)
		if needed < s.residual {
			s.residual -= needed
			remaining = 0
			break
		}
		if pathFunctionality > 0 {
			remaining -= s.residual * pathFunctionality
			s.residual = 0
		}
	}
	if remaining <= 0 {
		return nil
	}

	percentMet := 1 - remaining/demand
	u.matrix.setDemandMet(row, percentMet)
	if u.opts.recorder != nil {
		u.opts.recorder.RecordShortfall(u.resource, dt, percentMet)
	}

	c := u.component(u.matrix.ComponentOf(row))
	u.opts.log.Debug(ctx, "demand not fully met",
		logging.Resource(u.resource),
		logging.Component(c.Name()),
		logging.String("demand_type", string(dt)),
		logging.Float("percent_met", percentMet),
	)
	switch dt {
	case model.RecoveryDemand:
		return c.SetUnmetDemandForRecoveryActivities(u.resource, percentMet)
	default:
		return c.UpdateSupplyBasedOnUnmetDemand(u.resource, percentMet)
	}
}

// supplyNeeded returns how much of the supplier's residual the demand uses
// and the functionality of the best path to the consumer. Without a usable
// path the supply needed is infinite.
func (u *Utility) supplyNeeded(s *supplier, demand float64, consumer model.Locality, transferDemand float64) (float64, float64) {
	best := 0.0
	for _, pair := range localityPairs(s.start, s.end, consumer) {
		if f := u.pathFunctionality(pair[0], pair[1], transferDemand); f > best {
			best = f
		}
	}
	if best > 0 {
		return demand / best, best
	}
	return math.Inf(1), best
}

func (u *Utility) pathFunctionality(start, end int, transferDemand float64) float64 {
	if start == end {
		return 1
	}
	capacity := math.Inf(1)
	if u.opts.transfer != nil {
		capacity = u.opts.transfer.OptimalPath(start, end).Capacity
	}
	if capacity > transferDemand {
		return 1
	}
	return 0
}

// localityPairs lists the distinct sorted supplier to consumer locality pairs.
func localityPairs(start, end int, consumer model.Locality) [][2]int {
	pairs := [][2]int{
		{start, consumer.Start},
		{start, consumer.End},
		{end, consumer.Start},
		{end, consumer.End},
	}
	slices.SortFunc(pairs, func(a, b [2]int) int {
		if a[0] != b[0] {
			return a[0] - b[0]
		}
		return a[1] - b[1]
	})
	return slices.Compact(pairs)
}

func (u *Utility) TotalSupply(scope model.Scope) float64      { return u.matrix.TotalSupply(scope) }
func (u *Utility) TotalDemand(scope model.Scope) float64      { return u.matrix.TotalDemand(scope) }
func (u *Utility) TotalConsumption(scope model.Scope) float64 { return u.matrix.TotalConsumption(scope) }
