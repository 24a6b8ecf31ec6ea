package distribution

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/signalsfoundry/recovery-simulator/kb"
	"github.com/signalsfoundry/recovery-simulator/model"
)

// System matrix columns.
const (
	ColStartLocality = iota
	ColEndLocality
	ColSupply
	ColDemand
	ColDemandMet
	numCols
)

// SystemMatrix is the per-resource snapshot used by a distribution pass.
// Row i holds component i's supply and operation demand; row i+N holds its
// recovery demand, where N is the number of components.
type SystemMatrix struct {
	resource string
	store    *kb.ComponentStore
	n        int
	m        *mat.Dense
}

// NewSystemMatrix builds and fills the matrix for a resource.
func NewSystemMatrix(resource string, store *kb.ComponentStore) *SystemMatrix {
	sm := &SystemMatrix{resource: resource, store: store}
	sm.Fill()
	return sm
}

// Fill rebuilds the matrix from the components' current amounts and resets
// every demand met entry to 1. It only reads the components.
func (sm *SystemMatrix) Fill() {
	n := sm.store.Len()
	if sm.m == nil || n != sm.n {
		sm.n = n
		if n == 0 {
			sm.m = nil
			return
		}
		sm.m = mat.NewDense(2*n, numCols, nil)
	}
	row := make([]float64, numCols)
	for i := range n {
		var c Component = sm.store.At(i)
		loc := c.Locality()
		row[ColStartLocality] = float64(loc.Start)
		row[ColEndLocality] = float64(loc.End)

		row[ColSupply] = c.CurrentResourceAmount(model.Supply, model.SupplyTable, sm.resource)
		row[ColDemand] = c.CurrentResourceAmount(model.Demand, string(model.OperationDemand), sm.resource)
		row[ColDemandMet] = 1
		sm.m.SetRow(i, row)

		row[ColSupply] = 0
		row[ColDemand] = c.CurrentResourceAmount(model.Demand, string(model.RecoveryDemand), sm.resource)
		sm.m.SetRow(i+n, row)
	}
}

// Components returns N, the number of components covered.
func (sm *SystemMatrix) Components() int { return sm.n }

// Rows returns 2N.
func (sm *SystemMatrix) Rows() int { return 2 * sm.n }

// Row returns the row of a component's demand of the given type.
func (sm *SystemMatrix) Row(component int, dt model.DemandType) int {
	if dt == model.RecoveryDemand {
		return component + sm.n
	}
	return component
}

// ComponentOf maps a row back to its component index.
func (sm *SystemMatrix) ComponentOf(row int) int {
	if row >= sm.n {
		return row - sm.n
	}
	return row
}

func (sm *SystemMatrix) At(row, col int) float64 { return sm.m.At(row, col) }

func (sm *SystemMatrix) Supply(row int) float64    { return sm.m.At(row, ColSupply) }
func (sm *SystemMatrix) Demand(row int) float64    { return sm.m.At(row, ColDemand) }
func (sm *SystemMatrix) DemandMet(row int) float64 { return sm.m.At(row, ColDemandMet) }

// Locality returns the start and end locality of a row.
func (sm *SystemMatrix) Locality(row int) model.Locality {
	return model.Locality{
		Start: int(sm.m.At(row, ColStartLocality)),
		End:   int(sm.m.At(row, ColEndLocality)),
	}
}

func (sm *SystemMatrix) setDemandMet(row int, v float64) { sm.m.Set(row, ColDemandMet, v) }

// Snapshot returns a copy of the matrix as row slices.
func (sm *SystemMatrix) Snapshot() [][]float64 {
	out := make([][]float64, sm.Rows())
	for i := range out {
		out[i] = mat.Row(nil, i, sm.m)
	}
	return out
}

// scopeRows lists the rows a scope covers. Locality and All scopes cover both
// operation and recovery rows; a component scope covers operation rows only.
func (sm *SystemMatrix) scopeRows(scope model.Scope) []int {
	var rows []int
	switch scope.Kind {
	case model.ScopeComponents:
		for i := range sm.n {
			c := sm.store.At(i)
			if scope.Includes(c.Name(), c.Locality()) {
				rows = append(rows, i)
			}
		}
	default:
		for r := range sm.Rows() {
			if scope.Includes("", sm.Locality(r)) {
				rows = append(rows, r)
			}
		}
	}
	return rows
}

func (sm *SystemMatrix) column(col int, rows []int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = sm.m.At(r, col)
	}
	return out
}

// TotalSupply sums the supply column over the scope.
func (sm *SystemMatrix) TotalSupply(scope model.Scope) float64 {
	if sm.m == nil {
		return 0
	}
	return floats.Sum(sm.column(ColSupply, sm.scopeRows(scope)))
}

// TotalDemand sums the demand column over the scope.
func (sm *SystemMatrix) TotalDemand(scope model.Scope) float64 {
	if sm.m == nil {
		return 0
	}
	return floats.Sum(sm.column(ColDemand, sm.scopeRows(scope)))
}

// TotalConsumption sums demand times demand met over the scope.
func (sm *SystemMatrix) TotalConsumption(scope model.Scope) float64 {
	if sm.m == nil {
		return 0
	}
	rows := sm.scopeRows(scope)
	return floats.Dot(sm.column(ColDemand, rows), sm.column(ColDemandMet, rows))
}
