// Package scenario loads a system configuration, its component library and
// resource table from YAML (or JSON) and assembles a runnable system.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/recovery-simulator/core"
	"github.com/signalsfoundry/recovery-simulator/internal/distribution"
	"github.com/signalsfoundry/recovery-simulator/internal/sim"
	"github.com/signalsfoundry/recovery-simulator/model"
)

var (
	ErrInvalidScenario = errors.New("invalid scenario")
	ErrUnknownType     = errors.New("unknown component type")
)

// Scenario is a complete system configuration.
type Scenario struct {
	Name                  string                        `yaml:"name,omitempty"`
	Mode                  sim.Mode                      `yaml:"mode,omitempty"`
	Constants             sim.Constants                 `yaml:"constants"`
	Seed                  *uint64                       `yaml:"seed,omitempty"`
	ComponentLibrary      map[string]core.ComponentSpec `yaml:"componentLibrary"`
	Localities            []Locality                    `yaml:"localities"`
	Resources             []ResourceSpec                `yaml:"resources"`
	DamageInput           sim.DamageInputSpec           `yaml:"damageInput,omitempty"`
	ResilienceCalculators []CalculatorSpec              `yaml:"resilienceCalculators,omitempty"`

	baseDir string
}

// Locality places library components inside a locality and links from it
// to other localities.
type Locality struct {
	ID         int         `yaml:"id"`
	Components []Placement `yaml:"components,omitempty"`
	LinkTo     []Link      `yaml:"linkTo,omitempty"`
}

// Placement adds Count components of a library type.
type Placement struct {
	Type  string `yaml:"type"`
	Count int    `yaml:"count"`
}

// Link adds one component of each type between two localities.
type Link struct {
	Locality int      `yaml:"locality"`
	Types    []string `yaml:"types"`
}

// ResourceSpec declares a resource and how it is distributed.
type ResourceSpec struct {
	Name              string              `yaml:"name"`
	Group             model.ResourceGroup `yaml:"group"`
	DistributionModel DistributionSpec    `yaml:"distributionModel"`
}

// DistributionSpec extends distribution.Spec with path sets keyed by
// "from A to B".
type DistributionSpec struct {
	distribution.Spec `yaml:",inline"`
	PathSets          map[string][][]int `yaml:"pathSets,omitempty"`
}

// CalculatorSpec declares a resilience calculator.
type CalculatorSpec struct {
	Type      sim.CalculatorKind `yaml:"type"`
	Resources []string           `yaml:"resources,omitempty"`
	Scope     ScopeSpec          `yaml:"scope,omitempty"`
}

// ScopeSpec selects a locality or a list of component names. An empty scope
// covers the whole system.
type ScopeSpec struct {
	Locality   *int     `yaml:"locality,omitempty"`
	Components []string `yaml:"components,omitempty"`
}

// Scope converts the spec into a model.Scope.
func (s ScopeSpec) Scope() model.Scope {
	switch {
	case s.Locality != nil:
		return model.LocalityScope(*s.Locality)
	case len(s.Components) > 0:
		return model.ComponentsScope(s.Components...)
	default:
		return model.AllScope()
	}
}

// LoadFile reads a scenario from path. Relative file references inside the
// scenario are resolved against the scenario's directory.
func LoadFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()

	sc, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	sc.baseDir = filepath.Dir(path)
	return sc, nil
}

// Load decodes and validates a scenario. Unknown fields are rejected.
func Load(r io.Reader) (*Scenario, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks every name the scenario refers to. Each library entry is
// built once so that unknown variants surface here rather than mid-run.
func (sc *Scenario) Validate() error {
	switch sc.Mode {
	case "", sim.ModeBuiltEnvironment, sim.ModeHospital:
	default:
		return fmt.Errorf("%w: mode %q", ErrInvalidScenario, sc.Mode)
	}
	c := sc.Constants
	if c.StartTimeStep < 0 || c.MaxTimeStep < c.StartTimeStep {
		return fmt.Errorf("%w: constants %+v", ErrInvalidScenario, c)
	}

	for _, typ := range sc.libraryTypes() {
		if _, err := core.NewComponent(typ, typ, sc.ComponentLibrary[typ], nil); err != nil {
			return fmt.Errorf("%w: component library: %w", ErrInvalidScenario, err)
		}
	}

	seen := make(map[int]bool, len(sc.Localities))
	for _, loc := range sc.Localities {
		if seen[loc.ID] {
			return fmt.Errorf("%w: locality %d declared twice", ErrInvalidScenario, loc.ID)
		}
		seen[loc.ID] = true
		for _, p := range loc.Components {
			if err := sc.checkType(p.Type); err != nil {
				return fmt.Errorf("locality %d: %w", loc.ID, err)
			}
			if p.Count < 0 {
				return fmt.Errorf("%w: locality %d: negative count for %q", ErrInvalidScenario, loc.ID, p.Type)
			}
		}
		for _, l := range loc.LinkTo {
			for _, typ := range l.Types {
				if err := sc.checkType(typ); err != nil {
					return fmt.Errorf("locality %d link to %d: %w", loc.ID, l.Locality, err)
				}
			}
		}
	}

	if err := sc.validateResources(); err != nil {
		return err
	}
	if sc.DamageInput.Type != "" {
		if _, err := sim.NewDamageInput(sc.DamageInput); err != nil {
			return fmt.Errorf("%w: damage input: %w", ErrInvalidScenario, err)
		}
	}
	for i, calc := range sc.ResilienceCalculators {
		switch calc.Type {
		case sim.CalculatorReCoDeS, sim.CalculatorFullRecoveryTime:
		default:
			return fmt.Errorf("%w: resilience calculator %d: %w: %q", ErrInvalidScenario, i, core.ErrUnknownVariant, calc.Type)
		}
	}
	return nil
}

func (sc *Scenario) validateResources() error {
	groups := make(map[string]model.ResourceGroup, len(sc.Resources))
	for _, r := range sc.Resources {
		if r.Name == "" {
			return fmt.Errorf("%w: resource without a name", ErrInvalidScenario)
		}
		if _, dup := groups[r.Name]; dup {
			return fmt.Errorf("%w: %w: %q", ErrInvalidScenario, sim.ErrDuplicateResource, r.Name)
		}
		groups[r.Name] = r.Group
	}
	for _, r := range sc.Resources {
		dm := r.DistributionModel
		switch dm.Type {
		case distribution.KindUtility:
			switch dm.Priority.Type {
			case distribution.PriorityComponentBased, distribution.PriorityComponentTypeBased,
				distribution.PrioritySupplierOnly, distribution.PriorityRandom:
			default:
				return fmt.Errorf("%w: resource %q: %w: %q", ErrInvalidScenario, r.Name, distribution.ErrUnknownPriority, dm.Priority.Type)
			}
		case distribution.KindTransferServicePotentialPathSets:
			for key := range dm.PathSets {
				if _, _, err := distribution.ParsePathSetKey(key); err != nil {
					return fmt.Errorf("%w: resource %q: %w", ErrInvalidScenario, r.Name, err)
				}
			}
		case distribution.KindTimeStepsOfAutonomy, distribution.KindBridgeService:
		default:
			return fmt.Errorf("%w: resource %q: %w: %q", ErrInvalidScenario, r.Name, distribution.ErrUnknownModel, dm.Type)
		}
		if ts := dm.TransferService; ts != "" {
			g, ok := groups[ts]
			if !ok || g != model.GroupTransferService {
				return fmt.Errorf("%w: resource %q: transfer service %q is not a declared TransferService resource", ErrInvalidScenario, r.Name, ts)
			}
		}
	}
	return nil
}

func (sc *Scenario) checkType(typ string) error {
	if _, ok := sc.ComponentLibrary[typ]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	return nil
}

func (sc *Scenario) libraryTypes() []string {
	return slices.Sorted(maps.Keys(sc.ComponentLibrary))
}

// pathSets converts the keyed path sets into distribution.PathSet values in
// a stable order.
func (d DistributionSpec) pathSets() ([]distribution.PathSet, error) {
	out := make([]distribution.PathSet, 0, len(d.PathSets))
	for _, k := range slices.Sorted(maps.Keys(d.PathSets)) {
		from, to, err := distribution.ParsePathSetKey(k)
		if err != nil {
			return nil, err
		}
		out = append(out, distribution.PathSet{From: from, To: to, Candidates: d.PathSets[k]})
	}
	return out, nil
}

// resolve makes a file reference relative to the scenario directory.
func (sc *Scenario) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || sc.baseDir == "" {
		return path
	}
	return filepath.Join(sc.baseDir, path)
}
