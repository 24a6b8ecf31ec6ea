// Package timectrl drives the discrete time steps of a simulation and
// notifies registered listeners at every step.
package timectrl

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBadRange is returned when the step range is empty or inverted.
var ErrBadRange = errors.New("invalid step range")

// Clock reports the step a controller is at.
type Clock interface {
	Step() int
}

// Mode describes how the StepController advances.
type Mode int

const (
	// Accelerated advances as quickly as the listeners return.
	Accelerated Mode = iota
	// Paced waits Interval of wall-clock time between steps.
	Paced
)

// Listener is invoked once per step. Returning done stops the controller
// after the current step.
type Listener func(ctx context.Context, step int) (done bool, err error)

// StepController runs steps First through Last-1 and notifies listeners in
// registration order. It implements Clock.
type StepController struct {
	mu       sync.RWMutex
	First    int
	Last     int
	Mode     Mode
	Interval time.Duration

	current   int
	err       error
	listeners []Listener
}

// NewStepController constructs a controller for the half-open range
// [first, last).
func NewStepController(first, last int, mode Mode, interval time.Duration) *StepController {
	return &StepController{
		First:    first,
		Last:     last,
		Mode:     mode,
		Interval: interval,
		current:  first,
	}
}

// Step returns the current step. Implements Clock.
func (sc *StepController) Step() int {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.current
}

// AddListener registers a callback invoked on every step.
func (sc *StepController) AddListener(fn Listener) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.listeners = append(sc.listeners, fn)
}

// Run drives the controller on the calling goroutine. It returns the last
// step that was run, or First-1 when none was.
func (sc *StepController) Run(ctx context.Context) (int, error) {
	if sc.Last < sc.First {
		return sc.First - 1, ErrBadRange
	}
	sc.mu.RLock()
	listeners := append([]Listener(nil), sc.listeners...)
	sc.mu.RUnlock()

	var ticker *time.Ticker
	if sc.Mode == Paced && sc.Interval > 0 {
		ticker = time.NewTicker(sc.Interval)
		defer ticker.Stop()
	}

	last := sc.First - 1
	for step := sc.First; step < sc.Last; step++ {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		if ticker != nil && step > sc.First {
			select {
			case <-ctx.Done():
				return last, ctx.Err()
			case <-ticker.C:
			}
		}

		sc.mu.Lock()
		sc.current = step
		sc.mu.Unlock()

		finished := false
		for _, fn := range listeners {
			done, err := fn(ctx, step)
			if err != nil {
				return step, err
			}
			finished = finished || done
		}
		last = step
		if finished {
			break
		}
	}
	return last, nil
}

// Start runs the controller in a separate goroutine. It returns a channel
// that is closed when the controller finishes; Err reports the outcome.
func (sc *StepController) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := sc.Run(ctx)
		sc.mu.Lock()
		sc.err = err
		sc.mu.Unlock()
	}()
	return done
}

// Err returns the error of the last Start, if any.
func (sc *StepController) Err() error {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.err
}
