// Package sim runs the resilience assessment of a system: the time step
// loop that damages, updates, supplies and repairs components and records
// resilience measures along the way.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/recovery-simulator/internal/logging"
	"github.com/signalsfoundry/recovery-simulator/kb"
	"github.com/signalsfoundry/recovery-simulator/model"
	"github.com/signalsfoundry/recovery-simulator/timectrl"
)

var (
	ErrInvalidSystem       = errors.New("invalid system")
	ErrDuplicateResource   = errors.New("duplicate resource")
	ErrNoConsumptionSource = errors.New("hospital system needs a ReCoDeS calculator")
)

const tracerName = "github.com/signalsfoundry/recovery-simulator/internal/sim"

// Mode selects the assessment loop.
type Mode string

const (
	// ModeBuiltEnvironment damages components at the disaster step, repairs
	// them afterwards and stops once the recovery target is met.
	ModeBuiltEnvironment Mode = "BuiltEnvironmentSystem"
	// ModeHospital runs every step through MaxTimeStep without repair.
	// Resource amounts follow predefined dynamics and the consumption of the
	// previous step.
	ModeHospital Mode = "HospitalSystem"
)

// Constants are the time step bounds of an assessment.
type Constants struct {
	StartTimeStep    int `yaml:"startTimeStep" json:"startTimeStep"`
	MaxTimeStep      int `yaml:"maxTimeStep" json:"maxTimeStep"`
	DisasterTimeStep int `yaml:"disasterTimeStep" json:"disasterTimeStep"`
}

// Relaxation bounds the repeated distribution of interdependent resources.
// MaxPasses of 0 means one pass per interdependent resource. A positive
// Tolerance stops early once no interdependent resource's total consumption
// changes by more than Tolerance between passes.
type Relaxation struct {
	MaxPasses int
	Tolerance float64
}

// StepObserver is called after every completed step.
type StepObserver func(ctx context.Context, step int, s *System) error

// Option customises a System.
type Option func(*System)

// WithLogger sets the logger. A nil logger drops logs.
func WithLogger(l logging.Logger) Option {
	return func(s *System) { s.log = l }
}

// WithTracer sets the tracer used for step and distribution spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *System) { s.tracer = t }
}

// WithRelaxation overrides the interdependent distribution passes.
func WithRelaxation(r Relaxation) Option {
	return func(s *System) { s.relax = r }
}

// WithRecoveryTargetChecker replaces CompleteDamageRecovery.
func WithRecoveryTargetChecker(c RecoveryTargetChecker) Option {
	return func(s *System) { s.checker = c }
}

// WithStepObserver registers an observer called after each step.
func WithStepObserver(fn StepObserver) Option {
	return func(s *System) { s.observers = append(s.observers, fn) }
}

// WithPacing waits interval of wall-clock time between steps.
func WithPacing(interval time.Duration) Option {
	return func(s *System) { s.pacing = interval }
}

// System is an assembly of components that exchange resources.
type System struct {
	mode        Mode
	constants   Constants
	store       *kb.ComponentStore
	resources   *Resources
	damage      DamageInput
	calculators []Calculator
	checker     RecoveryTargetChecker
	plan        DistributionPlan
	relax       Relaxation
	consumption *ReCoDeS

	log       logging.Logger
	tracer    trace.Tracer
	observers []StepObserver
	pacing    time.Duration

	step     int
	finished bool
}

// NewSystem assembles a system. The distribution plan is fixed here from the
// components' declared supply and demand.
func NewSystem(mode Mode, constants Constants, store *kb.ComponentStore, resources *Resources,
	damage DamageInput, calculators []Calculator, opts ...Option) (*System, error) {
	if store == nil || resources == nil {
		return nil, fmt.Errorf("%w: nil store or resources", ErrInvalidSystem)
	}
	if constants.StartTimeStep < 0 || constants.MaxTimeStep < constants.StartTimeStep {
		return nil, fmt.Errorf("%w: time steps start %d max %d", ErrInvalidSystem, constants.StartTimeStep, constants.MaxTimeStep)
	}
	if mode == "" {
		mode = ModeBuiltEnvironment
	}
	if mode != ModeBuiltEnvironment && mode != ModeHospital {
		return nil, fmt.Errorf("%w: mode %q", ErrInvalidSystem, mode)
	}

	s := &System{
		mode:        mode,
		constants:   constants,
		store:       store,
		resources:   resources,
		damage:      damage,
		calculators: calculators,
		checker:     CompleteDamageRecovery{},
		step:        constants.StartTimeStep,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.Noop()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	if s.relax.MaxPasses < 0 || s.relax.Tolerance < 0 {
		return nil, fmt.Errorf("%w: relaxation %+v", ErrInvalidSystem, s.relax)
	}
	if mode == ModeHospital {
		for _, c := range calculators {
			if r, ok := c.(*ReCoDeS); ok {
				s.consumption = r
				break
			}
		}
		if s.consumption == nil {
			return nil, ErrNoConsumptionSource
		}
	}
	s.plan = NewDistributionPlan(resources, store, mode)
	return s, nil
}

func (s *System) Mode() Mode                { return s.mode }
func (s *System) Constants() Constants      { return s.constants }
func (s *System) Store() *kb.ComponentStore { return s.store }
func (s *System) Resources() *Resources     { return s.resources }
func (s *System) Calculators() []Calculator { return s.calculators }
func (s *System) Plan() DistributionPlan    { return s.plan }
func (s *System) TimeStep() int             { return s.step }
func (s *System) Finished() bool            { return s.finished }

// Passes returns how many times the interdependent resources are distributed
// at most per step.
func (s *System) Passes() int {
	if s.relax.MaxPasses > 0 {
		return s.relax.MaxPasses
	}
	return len(s.plan.Interdependent)
}

// ResourceTotals are the system-wide amounts of one resource.
type ResourceTotals struct {
	Resource    string
	Supply      float64
	Demand      float64
	Consumption float64
}

// Totals reads every resource's totals over all components, in
// registration order.
func (s *System) Totals() []ResourceTotals {
	all := model.AllScope()
	out := make([]ResourceTotals, 0, s.resources.Len())
	for _, name := range s.resources.Names() {
		m := s.resources.Model(name)
		out = append(out, ResourceTotals{
			Resource:    name,
			Supply:      m.TotalSupply(all),
			Demand:      m.TotalDemand(all),
			Consumption: m.TotalConsumption(all),
		})
	}
	return out
}

// Result summarises a completed assessment.
type Result struct {
	RunID    string
	LastStep int
	Finished bool
}

// Run executes the assessment loop from StartTimeStep. Built environment
// systems run up to but excluding MaxTimeStep and may stop early; hospital
// systems include MaxTimeStep.
func (s *System) Run(ctx context.Context) (Result, error) {
	ctx, log := logging.WithRunLogger(ctx, s.log)
	ctx = logging.ContextWithLogger(ctx, log)
	runID := logging.RunIDFromContext(ctx)

	unsubscribe := s.store.Subscribe(func(ev kb.Event) {
		if ev.Type == kb.EventComponentDamaged {
			log.Debug(ctx, "component damaged",
				logging.Component(ev.Name),
				logging.Int("index", ev.Index),
				logging.Float("damage_level", ev.DamageLevel),
			)
		}
	})
	defer unsubscribe()

	last := s.constants.MaxTimeStep
	if s.mode == ModeHospital {
		last++
	}
	mode := timectrl.Accelerated
	if s.pacing > 0 {
		mode = timectrl.Paced
	}
	controller := timectrl.NewStepController(s.constants.StartTimeStep, last, mode, s.pacing)
	controller.AddListener(s.Step)

	log.Info(ctx, "resilience assessment started",
		logging.String("mode", string(s.mode)),
		logging.Int("components", s.store.Len()),
		logging.Int("resources", s.resources.Len()),
		logging.Int("start_time_step", s.constants.StartTimeStep),
		logging.Int("max_time_step", s.constants.MaxTimeStep),
	)
	lastStep, err := controller.Run(ctx)
	res := Result{RunID: runID, LastStep: lastStep, Finished: s.finished}
	if err != nil {
		log.Error(ctx, "resilience assessment failed", logging.Int(logging.KeyTimeStep, lastStep), logging.Err(err))
		return res, err
	}
	log.Info(ctx, "resilience assessment finished",
		logging.Int("last_time_step", lastStep),
		logging.Bool("recovered", s.finished),
	)
	return res, nil
}

// Step runs one time step and reports whether the assessment is finished.
func (s *System) Step(ctx context.Context, step int) (bool, error) {
	ctx = logging.ContextWithTimeStep(ctx, step)
	ctx, span := s.tracer.Start(ctx, "sim.step", trace.WithAttributes(
		attribute.Int(logging.KeyTimeStep, step),
		attribute.String("mode", string(s.mode)),
	))
	defer span.End()

	s.step = step
	var err error
	switch s.mode {
	case ModeHospital:
		err = s.hospitalStep(ctx)
	default:
		err = s.builtEnvironmentStep(ctx)
	}
	if err == nil {
		for _, obs := range s.observers {
			if err = obs(ctx, step, s); err != nil {
				break
			}
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("time step %d: %w", step, err)
	}
	return s.finished, nil
}

func (s *System) builtEnvironmentStep(ctx context.Context) error {
	if s.checker.TargetMet(s.step, s.constants.DisasterTimeStep, s.store) {
		s.finished = true
	}
	if err := s.applyDamageAtDisaster(ctx); err != nil {
		return err
	}
	if err := s.updateComponents(nil); err != nil {
		return err
	}
	if err := s.distribute(ctx); err != nil {
		return err
	}
	s.updateCalculators()
	if s.step > s.constants.DisasterTimeStep {
		return s.recover()
	}
	return nil
}

func (s *System) hospitalStep(ctx context.Context) error {
	if err := s.applyDamageAtDisaster(ctx); err != nil {
		return err
	}
	if err := s.updateComponents(s.consumption.LastConsumption()); err != nil {
		return err
	}
	if err := s.distribute(ctx); err != nil {
		return err
	}
	s.updateCalculators()
	return nil
}

func (s *System) applyDamageAtDisaster(ctx context.Context) error {
	if s.step != s.constants.DisasterTimeStep || s.damage == nil {
		return nil
	}
	if err := s.damage.Apply(ctx, s.store); err != nil {
		return fmt.Errorf("initial damage: %w", err)
	}
	return nil
}

func (s *System) updateComponents(consumption map[string]float64) error {
	for _, c := range s.store.All() {
		if err := c.Update(s.step, consumption); err != nil {
			return err
		}
	}
	return nil
}

func (s *System) recover() error {
	for _, c := range s.store.All() {
		if err := c.Recover(s.step); err != nil {
			return err
		}
	}
	return nil
}

func (s *System) updateCalculators() {
	for _, c := range s.calculators {
		c.Update(s.step, s.resources)
	}
}

func (s *System) distribute(ctx context.Context) error {
	for _, name := range s.plan.Ordered {
		if err := s.distributeResource(ctx, name); err != nil {
			return err
		}
	}
	if len(s.plan.Interdependent) == 0 {
		return nil
	}

	passes := s.Passes()
	var previous []float64
	for pass := range passes {
		for _, name := range s.plan.Interdependent {
			if err := s.distributeResource(ctx, name); err != nil {
				return err
			}
		}
		if s.relax.Tolerance <= 0 {
			continue
		}
		current := s.interdependentConsumption()
		if previous != nil && converged(previous, current, s.relax.Tolerance) {
			s.log.Debug(ctx, "interdependent distribution converged", logging.Int("passes", pass+1))
			break
		}
		previous = current
	}
	return nil
}

func (s *System) distributeResource(ctx context.Context, name string) error {
	ctx, span := s.tracer.Start(ctx, "sim.distribute", trace.WithAttributes(attribute.String(logging.KeyResource, name)))
	defer span.End()
	if err := s.resources.Model(name).Distribute(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("distribute %q: %w", name, err)
	}
	return nil
}

func (s *System) interdependentConsumption() []float64 {
	out := make([]float64, len(s.plan.Interdependent))
	for i, name := range s.plan.Interdependent {
		out[i] = s.resources.Model(name).TotalConsumption(model.AllScope())
	}
	return out
}

func converged(previous, current []float64, tol float64) bool {
	for i := range current {
		if math.Abs(current[i]-previous[i]) > tol {
			return false
		}
	}
	return true
}

// String lists every component with its damage level.
func (s *System) String() string {
	var b strings.Builder
	for _, c := range s.store.All() {
		fmt.Fprintf(&b, "%s | Damage Level: %v\n", c, c.DamageLevel())
	}
	return b.String()
}
