package sim

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/recovery-simulator/core"
	"github.com/signalsfoundry/recovery-simulator/kb"
	"github.com/signalsfoundry/recovery-simulator/model"
)

// DamageInput applies the initial damage at the disaster time step.
type DamageInput interface {
	Apply(ctx context.Context, store *kb.ComponentStore) error
}

// DamageInputKind names a damage input variant.
type DamageInputKind string

const (
	DamageInputList           DamageInputKind = "ListDamageInput"
	DamageInputFile           DamageInputKind = "FileDamageInput"
	DamageInputStressScenario DamageInputKind = "HospitalStressScenarioInput"
	DamageInputR2D            DamageInputKind = "R2DDamageInput"
)

// DamageInputSpec is the declarative form of a damage input. Levels is used
// by list inputs; File by file and stress scenario inputs.
type DamageInputSpec struct {
	Type   DamageInputKind `yaml:"type" json:"type"`
	Levels []float64       `yaml:"levels,omitempty" json:"levels,omitempty"`
	File   string          `yaml:"file,omitempty" json:"file,omitempty"`
}

// NewDamageInput builds a damage input from its spec.
func NewDamageInput(spec DamageInputSpec) (DamageInput, error) {
	switch spec.Type {
	case DamageInputList:
		return ListDamage(spec.Levels), nil
	case DamageInputFile:
		if spec.File == "" {
			return nil, fmt.Errorf("%w: %s needs a file", ErrInvalidSystem, spec.Type)
		}
		return FileDamage{Path: spec.File}, nil
	case DamageInputStressScenario:
		if spec.File == "" {
			return nil, fmt.Errorf("%w: %s needs a file", ErrInvalidSystem, spec.Type)
		}
		return StressScenarioDamage{Path: spec.File}, nil
	case DamageInputR2D:
		return R2DDamage{}, nil
	default:
		return nil, fmt.Errorf("%w: damage input %q", core.ErrUnknownVariant, spec.Type)
	}
}

// ListDamage assigns level i to component i. Extra levels or extra
// components are ignored.
type ListDamage []float64

func (l ListDamage) Apply(_ context.Context, store *kb.ComponentStore) error {
	n := min(len(l), store.Len())
	for i := range n {
		if err := store.ApplyDamage(i, l[i]); err != nil {
			return fmt.Errorf("damage of component %d: %w", i, err)
		}
	}
	return nil
}

// r2dDamageStatePos is the position of the damage state digit in the name
// of an R2D residential building.
const r2dDamageStatePos = 2

// R2DDamage fully damages the components of a system built from R2D
// output: residential buildings whose damage state is above zero, and every
// infrastructure interface. Other components keep their state.
type R2DDamage struct{}

func (R2DDamage) Apply(_ context.Context, store *kb.ComponentStore) error {
	for i, c := range store.All() {
		if !r2dDamaged(c) {
			continue
		}
		if err := store.ApplyDamage(i, 1); err != nil {
			return fmt.Errorf("damage of component %d: %w", i, err)
		}
	}
	return nil
}

func r2dDamaged(c *core.StandardComponent) bool {
	if c.Kind() == core.ComponentInfrastructureInterface {
		return true
	}
	name := c.Name()
	if !strings.Contains(name, "ResidentialBuilding") || len(name) <= r2dDamageStatePos {
		return false
	}
	ds, err := strconv.Atoi(name[r2dDamageStatePos : r2dDamageStatePos+1])
	return err == nil && ds > 0
}

// FileDamage reads comma separated damage levels from a file and applies
// them like ListDamage. Line breaks are ignored.
type FileDamage struct {
	Path string
}

func (f FileDamage) Apply(ctx context.Context, store *kb.ComponentStore) error {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return fmt.Errorf("read damage file: %w", err)
	}
	levels, err := ParseDamageLevels(string(raw))
	if err != nil {
		return fmt.Errorf("damage file %s: %w", f.Path, err)
	}
	return ListDamage(levels).Apply(ctx, store)
}

// ParseDamageLevels parses "0.1,0.2,\n0.3" style input.
func ParseDamageLevels(s string) ([]float64, error) {
	s = strings.NewReplacer("\r", "", "\n", "").Replace(s)
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	levels := make([]float64, 0, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", i, err)
		}
		levels = append(levels, v)
	}
	return levels, nil
}

// StressScenario changes resource amounts of named components over time
// instead of damaging them.
type StressScenario struct {
	Name               string            `yaml:"StressScenarioName"`
	ComponentsToChange []ComponentChange `yaml:"ComponentsToChange"`
}

// ComponentChange lists the resource dynamics of every component with the
// given name.
type ComponentChange struct {
	ComponentName     string           `yaml:"ComponentName"`
	ResourcesToChange []ResourceChange `yaml:"ResourcesToChange"`
}

// ResourceChange adds Amount[i] to a resource at AtTimeStep[i].
type ResourceChange struct {
	SupplyOrDemand     string    `yaml:"SupplyOrDemand"`
	SupplyOrDemandType string    `yaml:"SupplyOrDemandType"`
	Resource           string    `yaml:"Resource"`
	AtTimeStep         []int     `yaml:"AtTimeStep"`
	Amount             []float64 `yaml:"Amount"`
}

func (c ResourceChange) dynamic() (core.ResourceDynamic, error) {
	d := core.ResourceDynamic{
		Table:      c.SupplyOrDemandType,
		Resource:   c.Resource,
		AtTimeStep: c.AtTimeStep,
		Amount:     c.Amount,
	}
	switch {
	case strings.EqualFold(c.SupplyOrDemand, string(model.Supply)):
		d.SupplyOrDemand = model.Supply
		if d.Table == "" {
			d.Table = model.SupplyTable
		}
	case strings.EqualFold(c.SupplyOrDemand, string(model.Demand)):
		d.SupplyOrDemand = model.Demand
		if d.Table == "" {
			d.Table = string(model.OperationDemand)
		}
	default:
		return d, fmt.Errorf("%w: SupplyOrDemand %q", core.ErrUnknownVariant, c.SupplyOrDemand)
	}
	if len(c.AtTimeStep) != len(c.Amount) {
		return d, fmt.Errorf("%w: resource %q has %d time steps and %d amounts",
			core.ErrInvalidParameters, c.Resource, len(c.AtTimeStep), len(c.Amount))
	}
	return d, nil
}

// LoadStressScenario reads a stress scenario. JSON files are accepted.
func LoadStressScenario(path string) (StressScenario, error) {
	var sc StressScenario
	raw, err := os.ReadFile(path)
	if err != nil {
		return sc, fmt.Errorf("read stress scenario: %w", err)
	}
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return sc, fmt.Errorf("decode stress scenario %s: %w", path, err)
	}
	return sc, nil
}

// ApplyTo sets the resource dynamics of the named components.
func (sc StressScenario) ApplyTo(store *kb.ComponentStore) error {
	for _, change := range sc.ComponentsToChange {
		dyn := make([]core.ResourceDynamic, 0, len(change.ResourcesToChange))
		for _, rc := range change.ResourcesToChange {
			d, err := rc.dynamic()
			if err != nil {
				return fmt.Errorf("component %q: %w", change.ComponentName, err)
			}
			dyn = append(dyn, d)
		}
		ids := store.IndicesByName(change.ComponentName)
		if len(ids) == 0 {
			return fmt.Errorf("stress scenario %q: %w: %q", sc.Name, kb.ErrComponentNotFound, change.ComponentName)
		}
		for _, i := range ids {
			store.At(i).SetResourceDynamics(dyn)
		}
	}
	return nil
}

// StressScenarioDamage loads a stress scenario file when the disaster
// strikes and applies it.
type StressScenarioDamage struct {
	Path string
}

func (s StressScenarioDamage) Apply(_ context.Context, store *kb.ComponentStore) error {
	sc, err := LoadStressScenario(s.Path)
	if err != nil {
		return err
	}
	return sc.ApplyTo(store)
}
