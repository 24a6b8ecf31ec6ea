package core

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Distribution samples a recovery activity duration.
type Distribution interface {
	Sample() float64
}

// DistributionKind names a probability distribution variant.
type DistributionKind string

const (
	DistributionDeterministic DistributionKind = "Deterministic"
	DistributionLognormal     DistributionKind = "Lognormal"
)

// DistributionSpec is the declarative form of a distribution as it appears in
// a component library. Value is read by Deterministic; Median and Dispersion
// by Lognormal.
type DistributionSpec struct {
	Kind       DistributionKind `yaml:"distribution" json:"distribution"`
	Value      float64          `yaml:"value,omitempty" json:"value,omitempty"`
	Median     float64          `yaml:"median,omitempty" json:"median,omitempty"`
	Dispersion float64          `yaml:"dispersion,omitempty" json:"dispersion,omitempty"`
}

// Deterministic returns the same value on every sample.
type Deterministic struct {
	Value float64
}

func (d Deterministic) Sample() float64 { return d.Value }

// Lognormal samples a lognormal distribution parameterised by its median and
// the standard deviation of the underlying normal (dispersion).
type Lognormal struct {
	Median     float64
	Dispersion float64

	dist distuv.LogNormal
}

// NewLognormal builds a lognormal distribution. A nil src uses the global
// math/rand/v2 source.
func NewLognormal(median, dispersion float64, src rand.Source) (*Lognormal, error) {
	if median <= 0 || dispersion < 0 {
		return nil, fmt.Errorf("%w: lognormal median %v dispersion %v", ErrInvalidParameters, median, dispersion)
	}
	return &Lognormal{
		Median:     median,
		Dispersion: dispersion,
		dist:       distuv.LogNormal{Mu: math.Log(median), Sigma: dispersion, Src: src},
	}, nil
}

// Sample draws one value. A zero dispersion yields the median exactly.
func (l *Lognormal) Sample() float64 {
	if l.Dispersion == 0 {
		return l.Median
	}
	return l.dist.Rand()
}

// NewDistribution resolves a spec into a distribution.
func NewDistribution(spec DistributionSpec, src rand.Source) (Distribution, error) {
	switch spec.Kind {
	case DistributionDeterministic:
		return Deterministic{Value: spec.Value}, nil
	case DistributionLognormal:
		return NewLognormal(spec.Median, spec.Dispersion, src)
	default:
		return nil, fmt.Errorf("%w: distribution %q", ErrUnknownVariant, spec.Kind)
	}
}
