package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/signalsfoundry/recovery-simulator/internal/persistence"
)

const exampleScenario = "../../internal/scenario/testdata/two_localities.yaml"

func reportLines(out string) map[string]string {
	lines := make(map[string]string)
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		lines[strings.Join(fields[:len(fields)-1], " ")] = fields[len(fields)-1]
	}
	return lines
}

func TestRunPrintsResilienceReport(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"--log-level=error", exampleScenario}, &stdout, &stderr); code != 0 {
		t.Fatalf("run exit code = %d, stderr:\n%s", code, stderr.String())
	}
	got := reportLines(stdout.String())
	want := map[string]string{
		"scenario":                   "two-localities",
		"last time step":             "4",
		"recovered":                  "true",
		"lack of resilience [Power]": "90",
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("report %q = %q, want %q\n%s", k, got[k], v, stdout.String())
		}
	}
	if got["run"] == "" {
		t.Fatalf("report has no run id:\n%s", stdout.String())
	}
}

func TestRunStoresResults(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	var stdout, stderr bytes.Buffer
	args := []string{"--log-level=error", "--db", db, "--scenario", exampleScenario}
	if code := run(context.Background(), args, &stdout, &stderr); code != 0 {
		t.Fatalf("run exit code = %d, stderr:\n%s", code, stderr.String())
	}
	runID := reportLines(stdout.String())["run"]

	store, err := persistence.Open(db)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	r, err := store.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("GetRun(%q) error: %v", runID, err)
	}
	if r.Scenario != "two-localities" || r.LastStep != 4 || !r.Recovered {
		t.Fatalf("stored run = %+v", r)
	}
	totals, err := store.StepTotals(ctx, runID, "Power")
	if err != nil {
		t.Fatalf("StepTotals error: %v", err)
	}
	var supply []float64
	for _, st := range totals {
		supply = append(supply, st.Supply)
	}
	if diff := cmp.Diff([]float64{100, 0, 0, 0, 100}, supply); diff != "" {
		t.Fatalf("stored supply mismatch (-want +got):\n%s", diff)
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code int
	}{
		{name: "help", args: []string{"--help"}, code: 0},
		{name: "no scenario", args: nil, code: 2},
		{name: "missing file", args: []string{"--log-level=error", "does-not-exist.yaml"}, code: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if got := run(context.Background(), tt.args, &stdout, &stderr); got != tt.code {
				t.Fatalf("run exit code = %d, want %d", got, tt.code)
			}
		})
	}
}
