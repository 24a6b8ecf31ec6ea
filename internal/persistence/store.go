// Package persistence stores assessment results in SQLite: one row per run,
// resource totals per step and component states per step.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/signalsfoundry/recovery-simulator/internal/sim"
)

var ErrRunNotFound = errors.New("run not found")

// Run is one assessment.
type Run struct {
	ID         string `db:"id"`
	Scenario   string `db:"scenario"`
	Mode       string `db:"mode"`
	StartedAt  int64  `db:"started_at"`
	FinishedAt int64  `db:"finished_at"`
	LastStep   int    `db:"last_step"`
	Recovered  bool   `db:"recovered"`
}

// StepTotal is a resource's system totals at one step.
type StepTotal struct {
	Step        int     `db:"step"`
	Resource    string  `db:"resource"`
	Supply      float64 `db:"supply"`
	Demand      float64 `db:"demand"`
	Consumption float64 `db:"consumption"`
}

// ComponentState is a component's condition at one step.
type ComponentState struct {
	Step          int     `db:"step"`
	Index         int     `db:"component_index"`
	Name          string  `db:"name"`
	Locality      string  `db:"locality"`
	DamageLevel   float64 `db:"damage_level"`
	Functionality float64 `db:"functionality_level"`
}

// Store wraps a SQLite connection.
type Store struct {
	conn *sqlx.DB
	now  func() time.Time
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*Store, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)

	s := &Store{conn: conn, now: time.Now}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		scenario TEXT NOT NULL,
		mode TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL DEFAULT 0,
		last_step INTEGER NOT NULL DEFAULT -1,
		recovered INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS step_totals (
		run_id TEXT NOT NULL REFERENCES runs(id),
		step INTEGER NOT NULL,
		resource TEXT NOT NULL,
		supply REAL NOT NULL,
		demand REAL NOT NULL,
		consumption REAL NOT NULL,
		PRIMARY KEY (run_id, step, resource)
	);

	CREATE TABLE IF NOT EXISTS component_states (
		run_id TEXT NOT NULL REFERENCES runs(id),
		step INTEGER NOT NULL,
		component_index INTEGER NOT NULL,
		name TEXT NOT NULL,
		locality TEXT NOT NULL,
		damage_level REAL NOT NULL,
		functionality_level REAL NOT NULL,
		PRIMARY KEY (run_id, step, component_index)
	);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// BeginRun inserts a run and returns its id. An empty id is replaced by a
// new UUID.
func (s *Store) BeginRun(ctx context.Context, id, scenario string, mode sim.Mode) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.conn.ExecContext(ctx,
		"INSERT INTO runs (id, scenario, mode, started_at) VALUES (?, ?, ?, ?)",
		id, scenario, string(mode), s.now().UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("insert run %s: %w", id, err)
	}
	return id, nil
}

// FinishRun records the outcome of a run.
func (s *Store) FinishRun(ctx context.Context, id string, res sim.Result) error {
	out, err := s.conn.ExecContext(ctx,
		"UPDATE runs SET finished_at = ?, last_step = ?, recovered = ? WHERE id = ?",
		s.now().UnixMilli(), res.LastStep, res.Finished, id,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if n, err := out.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// RecordStep writes the totals and component states of one step.
func (s *Store) RecordStep(ctx context.Context, runID string, totals []StepTotal, states []ComponentState) error {
	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, t := range totals {
		_, err := tx.ExecContext(ctx, `INSERT INTO step_totals
			(run_id, step, resource, supply, demand, consumption)
			VALUES (?, ?, ?, ?, ?, ?)`,
			runID, t.Step, t.Resource, t.Supply, t.Demand, t.Consumption,
		)
		if err != nil {
			return fmt.Errorf("insert totals of %q at step %d: %w", t.Resource, t.Step, err)
		}
	}
	for _, c := range states {
		_, err := tx.ExecContext(ctx, `INSERT INTO component_states
			(run_id, step, component_index, name, locality, damage_level, functionality_level)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, c.Step, c.Index, c.Name, c.Locality, c.DamageLevel, c.Functionality,
		)
		if err != nil {
			return fmt.Errorf("insert state of component %d at step %d: %w", c.Index, c.Step, err)
		}
	}
	return tx.Commit()
}

// GetRun returns a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	var r Run
	err := s.conn.GetContext(ctx, &r,
		"SELECT id, scenario, mode, started_at, finished_at, last_step, recovered FROM runs WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// StepTotals returns a resource's totals of a run in step order.
func (s *Store) StepTotals(ctx context.Context, runID, resource string) ([]StepTotal, error) {
	var totals []StepTotal
	err := s.conn.SelectContext(ctx, &totals,
		`SELECT step, resource, supply, demand, consumption FROM step_totals
		WHERE run_id = ? AND resource = ? ORDER BY step`,
		runID, resource,
	)
	return totals, err
}

// ComponentStates returns every component state of a run at one step.
func (s *Store) ComponentStates(ctx context.Context, runID string, step int) ([]ComponentState, error) {
	var states []ComponentState
	err := s.conn.SelectContext(ctx, &states,
		`SELECT step, component_index, name, locality, damage_level, functionality_level
		FROM component_states WHERE run_id = ? AND step = ? ORDER BY component_index`,
		runID, step,
	)
	return states, err
}

// StepObserver returns a sim.StepObserver that records every step of a run.
func (s *Store) StepObserver(runID string) sim.StepObserver {
	return func(ctx context.Context, step int, sys *sim.System) error {
		return s.RecordStep(ctx, runID, Totals(step, sys), States(step, sys))
	}
}

// Totals reads every resource's system-wide totals.
func Totals(step int, sys *sim.System) []StepTotal {
	totals := sys.Totals()
	out := make([]StepTotal, 0, len(totals))
	for _, t := range totals {
		out = append(out, StepTotal{
			Step:        step,
			Resource:    t.Resource,
			Supply:      t.Supply,
			Demand:      t.Demand,
			Consumption: t.Consumption,
		})
	}
	return out
}

// States reads every component's damage and functionality.
func States(step int, sys *sim.System) []ComponentState {
	components := sys.Store().All()
	states := make([]ComponentState, 0, len(components))
	for i, c := range components {
		states = append(states, ComponentState{
			Step:          step,
			Index:         i,
			Name:          c.Name(),
			Locality:      c.Locality().String(),
			DamageLevel:   c.DamageLevel(),
			Functionality: c.FunctionalityLevel(),
		})
	}
	return states
}
