package core

import (
	"fmt"
	"math"
	"sort"
)

// absTol is the tolerance used for every "close to" comparison in the engine.
const absTol = 1e-10

func isClose(a, b float64) bool { return math.Abs(a-b) <= absTol }

// Relation maps an input in [0,1] to an output. Relations describe how damage
// maps to functionality, how functionality maps to a resource amount and how
// the share of met demand maps to a resource amount.
type Relation interface {
	Output(input float64) (float64, error)
}

// RelationKind names a relation variant.
type RelationKind string

const (
	RelationConstant      RelationKind = "Constant"
	RelationLinear        RelationKind = "Linear"
	RelationReverseLinear RelationKind = "ReverseLinear"
	RelationBinary        RelationKind = "Binary"
	RelationReverseBinary RelationKind = "ReverseBinary"
	RelationMultipleStep  RelationKind = "MultipleStep"
)

// NewRelation builds a parameterless relation. MultipleStep needs limits and
// values; use NewMultipleStep for it.
func NewRelation(kind RelationKind) (Relation, error) {
	switch kind {
	case RelationConstant:
		return Constant{}, nil
	case RelationLinear:
		return Linear{}, nil
	case RelationReverseLinear:
		return ReverseLinear{}, nil
	case RelationBinary:
		return Binary{}, nil
	case RelationReverseBinary:
		return ReverseBinary{}, nil
	case RelationMultipleStep:
		return nil, fmt.Errorf("%w: relation %q needs step limits and values", ErrInvalidParameters, kind)
	default:
		return nil, fmt.Errorf("%w: relation %q", ErrUnknownVariant, kind)
	}
}

func checkUnit(input float64) error {
	if input < 0 || input > 1 || math.IsNaN(input) {
		return fmt.Errorf("%w: relation input %v", ErrOutOfRange, input)
	}
	return nil
}

// Constant always returns 1.
type Constant struct{}

func (Constant) Output(input float64) (float64, error) {
	if err := checkUnit(input); err != nil {
		return 0, err
	}
	return 1, nil
}

// Linear returns its input.
type Linear struct{}

func (Linear) Output(input float64) (float64, error) {
	if err := checkUnit(input); err != nil {
		return 0, err
	}
	return input, nil
}

// ReverseLinear returns 1 - input.
type ReverseLinear struct{}

func (ReverseLinear) Output(input float64) (float64, error) {
	if err := checkUnit(input); err != nil {
		return 0, err
	}
	return 1 - input, nil
}

// Binary returns 1 only for an input of 1.
type Binary struct{}

func (Binary) Output(input float64) (float64, error) {
	if err := checkUnit(input); err != nil {
		return 0, err
	}
	if isClose(input, 1) {
		return 1, nil
	}
	return 0, nil
}

// ReverseBinary returns 1 only for an input of 0.
type ReverseBinary struct{}

func (ReverseBinary) Output(input float64) (float64, error) {
	if err := checkUnit(input); err != nil {
		return 0, err
	}
	if isClose(input, 0) {
		return 1, nil
	}
	return 0, nil
}

// MultipleStep is a step function over ascending limits. An input of 1 maps to
// 1, an input of 0 maps to the first value, anything else maps to the value at
// the leftmost limit not smaller than the input.
type MultipleStep struct {
	limits []float64
	values []float64
}

// NewMultipleStep validates that values has at least one entry per limit and
// that limits are ascending.
func NewMultipleStep(limits, values []float64) (*MultipleStep, error) {
	if len(values) == 0 || len(values) < len(limits) {
		return nil, fmt.Errorf("%w: %d step values for %d limits", ErrInvalidParameters, len(values), len(limits))
	}
	if !sort.Float64sAreSorted(limits) {
		return nil, fmt.Errorf("%w: step limits must be ascending", ErrInvalidParameters)
	}
	return &MultipleStep{
		limits: append([]float64(nil), limits...),
		values: append([]float64(nil), values...),
	}, nil
}

func (m *MultipleStep) Output(input float64) (float64, error) {
	if err := checkUnit(input); err != nil {
		return 0, err
	}
	switch {
	case isClose(input, 1):
		return 1, nil
	case isClose(input, 0):
		return m.values[0], nil
	}
	i := sort.SearchFloat64s(m.limits, input)
	if i >= len(m.values) {
		return 0, fmt.Errorf("%w: input %v above last step limit", ErrOutOfRange, input)
	}
	return m.values[i], nil
}
