// Package distribution allocates each resource's supply to the components
// that demand it at a time step and feeds the share of demand met back into
// the components.
package distribution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/recovery-simulator/internal/logging"
	"github.com/signalsfoundry/recovery-simulator/kb"
	"github.com/signalsfoundry/recovery-simulator/model"
)

var (
	ErrUnknownModel    = errors.New("unknown distribution model")
	ErrUnknownPriority = errors.New("unknown distribution priority")
	ErrMissingLink     = errors.New("no link component between localities")
	ErrBadPathSet      = errors.New("invalid path set")
)

// Component is the view of a component the allocator works with.
type Component interface {
	Name() string
	Locality() model.Locality
	CurrentResourceAmount(side model.SupplyOrDemand, table, resource string) float64
	HasResourceSupply(resource string) bool
	HasOperationDemand() bool
	UpdateSupplyBasedOnUnmetDemand(resource string, percentMet float64) error
	SetUnmetDemandForRecoveryActivities(resource string, percentMet float64) error
}

// Model distributes one resource among the components of a store.
type Model interface {
	Resource() string
	Distribute(ctx context.Context) error
	TotalSupply(scope model.Scope) float64
	TotalDemand(scope model.Scope) float64
	TotalConsumption(scope model.Scope) float64
}

// PathFinder answers which transfer capacity connects two localities.
type PathFinder interface {
	OptimalPath(start, end int) Path
}

// Recorder receives distribution measurements. Implementations must be safe
// to call with a nil receiver.
type Recorder interface {
	ObserveDistribution(resource string, d time.Duration)
	RecordShortfall(resource string, demandType model.DemandType, percentMet float64)
}

// Kind names a distribution model variant.
type Kind string

const (
	KindUtility                          Kind = "UtilityDistributionModel"
	KindTransferServicePotentialPathSets Kind = "TransferServiceDistributionModelPotentialPathSets"
	KindTimeStepsOfAutonomy              Kind = "TimeStepsOfAutonomyDistributionModel"
	KindBridgeService                    Kind = "BridgeServiceDistributionModel"
)

// Spec is the declarative form of a resource's distribution model.
type Spec struct {
	Type            Kind         `yaml:"type" json:"type"`
	TransferService string       `yaml:"transferService,omitempty" json:"transferService,omitempty"`
	Priority        PrioritySpec `yaml:"priority,omitempty" json:"priority,omitempty"`
	PathSets        []PathSet    `yaml:"-" json:"-"`
}

// Option customises a distribution model.
type Option func(*options)

type options struct {
	log      logging.Logger
	recorder Recorder
	transfer PathFinder
}

// WithLogger sets the logger. A nil logger drops logs.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithTransferService constrains delivery between localities by the
// capacity the path finder reports.
func WithTransferService(p PathFinder) Option {
	return func(o *options) { o.transfer = p }
}

func applyOptions(opts []Option) options {
	o := options{}
	for _, fn := range opts {
		fn(&o)
	}
	if o.log == nil {
		o.log = logging.Noop()
	}
	return o
}

// New builds the distribution model for a resource.
func New(resource string, spec Spec, store *kb.ComponentStore, opts ...Option) (Model, error) {
	switch spec.Type {
	case KindUtility:
		priority, err := NewPriority(spec.Priority, resource, store)
		if err != nil {
			return nil, fmt.Errorf("resource %q: %w", resource, err)
		}
		return NewUtility(resource, store, priority, opts...), nil
	case KindTransferServicePotentialPathSets:
		p, err := NewPotentialPathSets(resource, store, spec.PathSets, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	case KindTimeStepsOfAutonomy:
		return NewTimeStepsOfAutonomy(resource, store, opts...), nil
	case KindBridgeService:
		return NewBridgeService(resource), nil
	default:
		return nil, fmt.Errorf("%w: %q for resource %q", ErrUnknownModel, spec.Type, resource)
	}
}
