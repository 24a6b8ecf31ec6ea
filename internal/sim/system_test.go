package sim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/signalsfoundry/recovery-simulator/core"
	"github.com/signalsfoundry/recovery-simulator/model"
)

func TestBuiltEnvironmentRecoversAndStops(t *testing.T) {
	store, resources := powerSystem(t)
	recodes := NewReCoDeS([]string{"Power"}, model.AllScope())
	frt := &FullRecoveryTime{}
	var observed []int
	sys, err := NewSystem(ModeBuiltEnvironment,
		Constants{StartTimeStep: 0, MaxTimeStep: 10, DisasterTimeStep: 1},
		store, resources, ListDamage{0.5, 0},
		[]Calculator{recodes, frt},
		WithStepObserver(func(_ context.Context, step int, _ *System) error {
			observed = append(observed, step)
			return nil
		}),
	)
	if err != nil {
		t.Fatalf("NewSystem error: %v", err)
	}

	res, err := sys.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.LastStep != 4 || !res.Finished {
		t.Fatalf("Run = %+v, want last step 4 and finished", res)
	}
	if res.RunID == "" {
		t.Fatalf("Run returned no run id")
	}
	if diff := cmp.Diff([]float64{5, 0, 0, 0, 5}, recodes.Consumption("Power")); diff != "" {
		t.Fatalf("consumption mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{10, 0, 0, 0, 10}, recodes.Supply("Power")); diff != "" {
		t.Fatalf("supply mismatch (-want +got):\n%s", diff)
	}
	if got := recodes.LackOfResilience()["Power"]; got != 15 {
		t.Fatalf("lack of resilience = %v, want 15", got)
	}
	if step, ok := frt.RecoveryTime(); !ok || step != 4 {
		t.Fatalf("RecoveryTime = %d, %v; want 4, true", step, ok)
	}
	if diff := cmp.Diff([]int{0, 1, 2, 3, 4}, observed); diff != "" {
		t.Fatalf("observed steps mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 4}, store.At(0).FunctionalSteps()); diff != "" {
		t.Fatalf("plant functional steps mismatch (-want +got):\n%s", diff)
	}
}

func TestHospitalModeRunsInclusiveWithoutRepair(t *testing.T) {
	store, resources := powerSystem(t)
	recodes := NewReCoDeS([]string{"Power"}, model.AllScope())
	sys, err := NewSystem(ModeHospital,
		Constants{StartTimeStep: 0, MaxTimeStep: 3, DisasterTimeStep: 1},
		store, resources, ListDamage{0.5}, []Calculator{recodes},
	)
	if err != nil {
		t.Fatalf("NewSystem error: %v", err)
	}
	res, err := sys.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.LastStep != 3 || res.Finished {
		t.Fatalf("Run = %+v, want last step 3 and not finished", res)
	}
	if got := store.At(0).DamageLevel(); math.Abs(got-0.5) > 1e-12 {
		t.Fatalf("plant damage = %v, want 0.5", got)
	}
	if got := len(recodes.Demand("Power")); got != 4 {
		t.Fatalf("recorded steps = %d, want 4", got)
	}
}

func TestHospitalModeNeedsConsumptionSource(t *testing.T) {
	store, resources := powerSystem(t)
	_, err := NewSystem(ModeHospital, Constants{MaxTimeStep: 3}, store, resources, nil, []Calculator{&FullRecoveryTime{}})
	if !errors.Is(err, ErrNoConsumptionSource) {
		t.Fatalf("error = %v, want ErrNoConsumptionSource", err)
	}
}

func TestNewSystemValidates(t *testing.T) {
	store, resources := powerSystem(t)
	cases := []struct {
		name string
		mode Mode
		c    Constants
		opts []Option
	}{
		{"inverted steps", ModeBuiltEnvironment, Constants{StartTimeStep: 5, MaxTimeStep: 2}, nil},
		{"negative start", ModeBuiltEnvironment, Constants{StartTimeStep: -1, MaxTimeStep: 2}, nil},
		{"unknown mode", "Spaceship", Constants{MaxTimeStep: 2}, nil},
		{"negative passes", ModeBuiltEnvironment, Constants{MaxTimeStep: 2}, []Option{WithRelaxation(Relaxation{MaxPasses: -1})}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewSystem(tc.mode, tc.c, store, resources, nil, nil, tc.opts...); !errors.Is(err, ErrInvalidSystem) {
				t.Fatalf("error = %v, want ErrInvalidSystem", err)
			}
		})
	}
}

func TestStepObserverErrorAbortsRun(t *testing.T) {
	store, resources := powerSystem(t)
	boom := errors.New("boom")
	sys, err := NewSystem(ModeBuiltEnvironment, Constants{MaxTimeStep: 5}, store, resources, nil, nil,
		WithStepObserver(func(context.Context, int, *System) error { return boom }))
	if err != nil {
		t.Fatalf("NewSystem error: %v", err)
	}
	if _, err := sys.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("error = %v, want boom", err)
	}
}

func interdependentSystem(t *testing.T, relax Relaxation) (*System, *countingModel, *countingModel) {
	t.Helper()
	spec := core.ComponentSpec{
		Supply:          []core.ResourceSpec{{Name: "A", Amount: 1}, {Name: "B", Amount: 1}},
		OperationDemand: []core.ResourceSpec{{Name: "A", Amount: 1}},
	}
	store := buildStore(t, map[string]core.ComponentSpec{"Hub": spec}, "Hub")
	a, b := &countingModel{name: "A", consumption: 1}, &countingModel{name: "B", consumption: 2}
	resources := NewResources()
	_ = resources.Add(Resource{Name: "A", Model: a})
	_ = resources.Add(Resource{Name: "B", Model: b})
	sys, err := NewSystem(ModeBuiltEnvironment, Constants{MaxTimeStep: 1, DisasterTimeStep: 5}, store, resources, nil, nil,
		WithRelaxation(relax))
	if err != nil {
		t.Fatalf("NewSystem error: %v", err)
	}
	return sys, a, b
}

func TestRelaxationPasses(t *testing.T) {
	cases := []struct {
		name  string
		relax Relaxation
		want  int
	}{
		{"one pass per interdependent resource", Relaxation{}, 2},
		{"explicit passes", Relaxation{MaxPasses: 5}, 5},
		{"converges after second pass", Relaxation{MaxPasses: 5, Tolerance: 1e-9}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sys, a, b := interdependentSystem(t, tc.relax)
			if diff := cmp.Diff([]string{"A", "B"}, sys.Plan().Interdependent); diff != "" {
				t.Fatalf("interdependent mismatch (-want +got):\n%s", diff)
			}
			if _, err := sys.Step(context.Background(), 0); err != nil {
				t.Fatalf("Step error: %v", err)
			}
			if a.calls != tc.want || b.calls != tc.want {
				t.Fatalf("calls = %d/%d, want %d", a.calls, b.calls, tc.want)
			}
		})
	}
}
