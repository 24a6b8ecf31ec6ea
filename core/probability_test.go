package core

import (
	"errors"
	"math"
	"math/rand/v2"
	"sort"
	"testing"

	"gonum.org/v1/gonum/stat"
)

func TestDeterministicSample(t *testing.T) {
	d, err := NewDistribution(DistributionSpec{Kind: DistributionDeterministic, Value: 5}, nil)
	if err != nil {
		t.Fatalf("NewDistribution error: %v", err)
	}
	if got := d.Sample(); got != 5 {
		t.Fatalf("Sample() = %v, want 5", got)
	}
}

func TestLognormalZeroDispersionReturnsMedian(t *testing.T) {
	d, err := NewLognormal(1, 0, nil)
	if err != nil {
		t.Fatalf("NewLognormal error: %v", err)
	}
	for range 10 {
		if got := d.Sample(); got != 1 {
			t.Fatalf("Sample() = %v, want exactly 1", got)
		}
	}
}

func TestLognormalMedianAndDispersion(t *testing.T) {
	const n = 100000
	cases := []struct{ median, dispersion float64 }{
		{1, 1},
		{0.1, 1},
		{5, 0.5},
	}
	for _, tc := range cases {
		d, err := NewLognormal(tc.median, tc.dispersion, rand.NewPCG(7, 11))
		if err != nil {
			t.Fatalf("NewLognormal error: %v", err)
		}
		samples := make([]float64, n)
		logs := make([]float64, n)
		for i := range samples {
			samples[i] = d.Sample()
			logs[i] = math.Log(samples[i])
		}
		sort.Float64s(samples)
		median := stat.Quantile(0.5, stat.Empirical, samples, nil)
		if math.Abs(median-tc.median) > 0.05 {
			t.Fatalf("median = %v, want %v", median, tc.median)
		}
		if sd := stat.PopStdDev(logs, nil); math.Abs(sd-tc.dispersion) > 0.03 {
			t.Fatalf("log std dev = %v, want %v", sd, tc.dispersion)
		}
	}
}

func TestNewDistributionRejects(t *testing.T) {
	if _, err := NewDistribution(DistributionSpec{Kind: "Weibull"}, nil); !errors.Is(err, ErrUnknownVariant) {
		t.Fatalf("unknown distribution error = %v, want ErrUnknownVariant", err)
	}
	if _, err := NewDistribution(DistributionSpec{Kind: DistributionLognormal, Median: 0}, nil); !errors.Is(err, ErrInvalidParameters) {
		t.Fatalf("zero median error = %v, want ErrInvalidParameters", err)
	}
}
