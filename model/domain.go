package model

import (
	"fmt"
	"slices"
)

// SupplyOrDemand selects which side of a component's resource tables is read.
type SupplyOrDemand string

const (
	Supply SupplyOrDemand = "Supply"
	Demand SupplyOrDemand = "Demand"
)

// DemandType distinguishes the two demand tables a component carries.
type DemandType string

const (
	OperationDemand DemandType = "OperationDemand"
	RecoveryDemand  DemandType = "RecoveryDemand"
)

// SupplyTable is the single supply table every component carries.
const SupplyTable = "Supply"

// ResourceGroup labels a resource in the system configuration. Two groups
// have special meaning for distribution ordering; every other group name is
// treated as an ordinary resource.
type ResourceGroup string

const (
	GroupBridgeService   ResourceGroup = "BridgeService"
	GroupTransferService ResourceGroup = "TransferService"
)

// Locality is the set of locality ids a component spans. A component inside a
// single locality has Start == End; a link between localities has Start != End.
type Locality struct {
	Start int
	End   int
}

// At returns a locality for a component placed in a single locality.
func At(id int) Locality { return Locality{Start: id, End: id} }

// Between returns a locality for a link component.
func Between(from, to int) Locality { return Locality{Start: from, End: to} }

// Contains reports whether id is the start or end locality.
func (l Locality) Contains(id int) bool { return l.Start == id || l.End == id }

// IsLink reports whether the locality spans two different ids.
func (l Locality) IsLink() bool { return l.Start != l.End }

func (l Locality) String() string {
	if l.IsLink() {
		return fmt.Sprintf("[%d %d]", l.Start, l.End)
	}
	return fmt.Sprintf("[%d]", l.Start)
}

// ScopeKind selects how totals are aggregated.
type ScopeKind int

const (
	ScopeAll ScopeKind = iota
	ScopeLocality
	ScopeComponents
)

// Scope restricts a total to all components, one locality or a named set.
type Scope struct {
	Kind       ScopeKind
	LocalityID int
	Components []string
}

// AllScope covers every component in the system.
func AllScope() Scope { return Scope{Kind: ScopeAll} }

// LocalityScope covers components whose start or end locality is id.
func LocalityScope(id int) Scope { return Scope{Kind: ScopeLocality, LocalityID: id} }

// ComponentsScope covers components whose name is in names.
func ComponentsScope(names ...string) Scope {
	return Scope{Kind: ScopeComponents, Components: names}
}

// Includes reports whether a component with the given name and locality
// falls inside the scope.
func (s Scope) Includes(name string, loc Locality) bool {
	switch s.Kind {
	case ScopeLocality:
		return loc.Contains(s.LocalityID)
	case ScopeComponents:
		return slices.Contains(s.Components, name)
	default:
		return true
	}
}

func (s Scope) String() string {
	switch s.Kind {
	case ScopeLocality:
		return fmt.Sprintf("Locality %d", s.LocalityID)
	case ScopeComponents:
		return fmt.Sprintf("Components %v", s.Components)
	default:
		return "All"
	}
}
