package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/recovery-simulator/internal/sim"
	"github.com/signalsfoundry/recovery-simulator/model"
)

// DistributionCollector bundles Prometheus metrics for resource
// distribution. It satisfies distribution.Recorder and its ObserveSystem
// method can be registered as a sim.StepObserver.
type DistributionCollector struct {
	gatherer prometheus.Gatherer

	Shortfalls *prometheus.CounterVec
	DemandMet  *prometheus.HistogramVec
	Durations  *prometheus.HistogramVec

	Supply      *prometheus.GaugeVec
	Demand      *prometheus.GaugeVec
	Consumption *prometheus.GaugeVec
}

// NewDistributionCollector registers distribution metrics against the
// provided registerer, defaulting to the global Prometheus registry when nil.
func NewDistributionCollector(reg prometheus.Registerer) (*DistributionCollector, error) {
	reg, gatherer := registry(reg)

	shortfalls, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recovery_demand_shortfalls_total",
		Help: "Demands met only partially, labeled by resource and demand type.",
	}, []string{"resource", "demand_type"}), "recovery_demand_shortfalls_total")
	if err != nil {
		return nil, err
	}

	demandMet, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recovery_demand_met_ratio",
		Help:    "Share of a demand that was met when it was not met in full.",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	}, []string{"resource", "demand_type"}), "recovery_demand_met_ratio")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recovery_distribution_duration_seconds",
		Help:    "Time spent distributing one resource in one pass.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"resource"}), "recovery_distribution_duration_seconds")
	if err != nil {
		return nil, err
	}

	totals := make([]*prometheus.GaugeVec, 0, 3)
	for _, what := range []string{"supply", "demand", "consumption"} {
		name := "recovery_resource_" + what
		g, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: name,
			Help: fmt.Sprintf("System-wide %s of a resource at the latest time step.", what),
		}, []string{"resource"}), name)
		if err != nil {
			return nil, err
		}
		totals = append(totals, g)
	}

	return &DistributionCollector{
		gatherer:    gatherer,
		Shortfalls:  shortfalls,
		DemandMet:   demandMet,
		Durations:   durations,
		Supply:      totals[0],
		Demand:      totals[1],
		Consumption: totals[2],
	}, nil
}

// ObserveDistribution records the duration of one distribution pass.
func (c *DistributionCollector) ObserveDistribution(resource string, d time.Duration) {
	if c == nil || c.Durations == nil {
		return
	}
	c.Durations.WithLabelValues(resource).Observe(d.Seconds())
}

// RecordShortfall counts a partially met demand.
func (c *DistributionCollector) RecordShortfall(resource string, demandType model.DemandType, percentMet float64) {
	if c == nil {
		return
	}
	if c.Shortfalls != nil {
		c.Shortfalls.WithLabelValues(resource, string(demandType)).Inc()
	}
	if c.DemandMet != nil {
		c.DemandMet.WithLabelValues(resource, string(demandType)).Observe(percentMet)
	}
}

// ObserveTotals sets the system-wide totals of a resource.
func (c *DistributionCollector) ObserveTotals(resource string, supply, demand, consumption float64) {
	if c == nil {
		return
	}
	c.Supply.WithLabelValues(resource).Set(supply)
	c.Demand.WithLabelValues(resource).Set(demand)
	c.Consumption.WithLabelValues(resource).Set(consumption)
}

// ObserveSystem updates the totals gauges from every resource of sys.
func (c *DistributionCollector) ObserveSystem(_ context.Context, _ int, sys *sim.System) error {
	for _, t := range sys.Totals() {
		c.ObserveTotals(t.Resource, t.Supply, t.Demand, t.Consumption)
	}
	return nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *DistributionCollector) Handler() http.Handler {
	return handler(c.gatherer)
}

func registry(reg prometheus.Registerer) (prometheus.Registerer, prometheus.Gatherer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	return reg, gatherer
}

func handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
