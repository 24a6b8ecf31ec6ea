package scenario

import (
	"fmt"
	"math/rand/v2"

	"github.com/signalsfoundry/recovery-simulator/core"
	"github.com/signalsfoundry/recovery-simulator/internal/distribution"
	"github.com/signalsfoundry/recovery-simulator/internal/logging"
	"github.com/signalsfoundry/recovery-simulator/internal/sim"
	"github.com/signalsfoundry/recovery-simulator/kb"
	"github.com/signalsfoundry/recovery-simulator/model"
)

// BuildOptions tune how a scenario is assembled.
type BuildOptions struct {
	Logger   logging.Logger
	Recorder distribution.Recorder
	// Seed overrides the scenario seed for duration sampling.
	Seed *uint64
}

// Assembly is a scenario turned into live components and models.
type Assembly struct {
	Scenario    *Scenario
	Store       *kb.ComponentStore
	Resources   *sim.Resources
	Damage      sim.DamageInput
	Calculators []sim.Calculator
}

// Build creates every component, resolves the distribution models and the
// resilience calculators. Components are created locality by locality:
// placements first, then links, in declaration order.
func (sc *Scenario) Build(opts BuildOptions) (*Assembly, error) {
	var src rand.Source
	seed := sc.Seed
	if opts.Seed != nil {
		seed = opts.Seed
	}
	if seed != nil {
		src = rand.NewPCG(*seed, *seed>>1|1)
	}

	store, err := sc.buildComponents(src)
	if err != nil {
		return nil, err
	}
	resources, err := sc.buildResources(store, opts)
	if err != nil {
		return nil, err
	}

	a := &Assembly{Scenario: sc, Store: store, Resources: resources}
	if sc.DamageInput.Type != "" {
		spec := sc.DamageInput
		spec.File = sc.resolve(spec.File)
		if a.Damage, err = sim.NewDamageInput(spec); err != nil {
			return nil, err
		}
	}
	for _, cs := range sc.ResilienceCalculators {
		switch cs.Type {
		case sim.CalculatorReCoDeS:
			names := cs.Resources
			if len(names) == 0 {
				names = resources.Names()
			}
			a.Calculators = append(a.Calculators, sim.NewReCoDeS(names, cs.Scope.Scope()))
		case sim.CalculatorFullRecoveryTime:
			a.Calculators = append(a.Calculators, &sim.FullRecoveryTime{})
		}
	}
	return a, nil
}

func (sc *Scenario) buildComponents(src rand.Source) (*kb.ComponentStore, error) {
	store := kb.NewComponentStore()
	add := func(typ string, loc model.Locality) error {
		c, err := core.NewComponent(typ, typ, sc.ComponentLibrary[typ], src)
		if err != nil {
			return err
		}
		c.SetLocality(loc)
		_, err = store.Add(c)
		return err
	}
	for _, loc := range sc.Localities {
		for _, p := range loc.Components {
			for range p.Count {
				if err := add(p.Type, model.At(loc.ID)); err != nil {
					return nil, fmt.Errorf("locality %d: %w", loc.ID, err)
				}
			}
		}
		for _, l := range loc.LinkTo {
			for _, typ := range l.Types {
				if err := add(typ, model.Between(loc.ID, l.Locality)); err != nil {
					return nil, fmt.Errorf("locality %d link to %d: %w", loc.ID, l.Locality, err)
				}
			}
		}
	}
	return store, nil
}

// buildResources creates transfer services first so that the resources
// relying on them can be wired to their path finders.
func (sc *Scenario) buildResources(store *kb.ComponentStore, opts BuildOptions) (*sim.Resources, error) {
	resources := sim.NewResources()
	modelOpts := []distribution.Option{
		distribution.WithLogger(opts.Logger),
		distribution.WithRecorder(opts.Recorder),
	}
	finders := make(map[string]distribution.PathFinder)

	build := func(r ResourceSpec) error {
		spec := r.DistributionModel.Spec
		paths, err := r.DistributionModel.pathSets()
		if err != nil {
			return fmt.Errorf("resource %q: %w", r.Name, err)
		}
		spec.PathSets = paths

		ropts := modelOpts
		if ts := spec.TransferService; ts != "" {
			finder, ok := finders[ts]
			if !ok {
				return fmt.Errorf("%w: resource %q: transfer service %q has no path finder", ErrInvalidScenario, r.Name, ts)
			}
			ropts = append(ropts[:len(ropts):len(ropts)], distribution.WithTransferService(finder))
		}
		m, err := distribution.New(r.Name, spec, store, ropts...)
		if err != nil {
			return err
		}
		if pf, ok := m.(distribution.PathFinder); ok {
			finders[r.Name] = pf
		}
		return resources.Add(sim.Resource{Name: r.Name, Group: r.Group, Model: m})
	}

	for _, r := range sc.Resources {
		if r.Group == model.GroupTransferService {
			if err := build(r); err != nil {
				return nil, err
			}
		}
	}
	for _, r := range sc.Resources {
		if r.Group != model.GroupTransferService {
			if err := build(r); err != nil {
				return nil, err
			}
		}
	}
	return resources, nil
}

// System assembles the runnable system.
func (a *Assembly) System(opts ...sim.Option) (*sim.System, error) {
	return sim.NewSystem(a.Scenario.Mode, a.Scenario.Constants, a.Store, a.Resources, a.Damage, a.Calculators, opts...)
}
