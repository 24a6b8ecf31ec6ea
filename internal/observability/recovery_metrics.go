package observability

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/recovery-simulator/internal/sim"
)

// RecoveryCollector exposes the progress of damaged components.
type RecoveryCollector struct {
	gatherer prometheus.Gatherer

	TimeStep      prometheus.Gauge
	DamageLevel   *prometheus.GaugeVec
	Functionality *prometheus.GaugeVec
	Damaged       prometheus.Gauge
	Runs          *prometheus.CounterVec
}

// NewRecoveryCollector registers recovery metrics against the provided registerer.
func NewRecoveryCollector(reg prometheus.Registerer) (*RecoveryCollector, error) {
	reg, gatherer := registry(reg)

	step, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "recovery_time_step",
		Help: "Latest completed time step.",
	}), "recovery_time_step")
	if err != nil {
		return nil, err
	}

	damage, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "recovery_component_damage_level",
		Help: "Damage level of a component in [0,1].",
	}, []string{"index", "component", "locality"}), "recovery_component_damage_level")
	if err != nil {
		return nil, err
	}

	functionality, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "recovery_component_functionality_level",
		Help: "Functionality level of a component in [0,1].",
	}, []string{"index", "component", "locality"}), "recovery_component_functionality_level")
	if err != nil {
		return nil, err
	}

	damaged, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "recovery_damaged_components",
		Help: "Number of components with a damage level above zero.",
	}), "recovery_damaged_components")
	if err != nil {
		return nil, err
	}

	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recovery_runs_total",
		Help: "Completed assessments, labeled by whether the recovery target was met.",
	}, []string{"recovered"}), "recovery_runs_total")
	if err != nil {
		return nil, err
	}

	return &RecoveryCollector{
		gatherer:      gatherer,
		TimeStep:      step,
		DamageLevel:   damage,
		Functionality: functionality,
		Damaged:       damaged,
		Runs:          runs,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *RecoveryCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *RecoveryCollector) Handler() http.Handler {
	return handler(c.Gatherer())
}

// ObserveSystem refreshes the component gauges after a time step.
func (c *RecoveryCollector) ObserveSystem(_ context.Context, step int, sys *sim.System) error {
	if c == nil {
		return nil
	}
	c.TimeStep.Set(float64(step))
	damaged := 0
	for i, comp := range sys.Store().All() {
		labels := []string{strconv.Itoa(i), comp.Name(), comp.Locality().String()}
		c.DamageLevel.WithLabelValues(labels...).Set(comp.DamageLevel())
		c.Functionality.WithLabelValues(labels...).Set(comp.FunctionalityLevel())
		if comp.DamageLevel() > 0 {
			damaged++
		}
	}
	c.Damaged.Set(float64(damaged))
	return nil
}

// ObserveResult counts a finished assessment.
func (c *RecoveryCollector) ObserveResult(res sim.Result) {
	if c == nil || c.Runs == nil {
		return
	}
	c.Runs.WithLabelValues(strconv.FormatBool(res.Finished)).Inc()
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
