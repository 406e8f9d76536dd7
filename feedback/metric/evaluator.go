package metric

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidParams reports an unusable evaluator or protocol configuration.
var ErrInvalidParams = errors.New("metric: invalid parameters")

// State is the phase of the threshold state machine.
type State int

const (
	// Idle means the counter is zero.
	Idle State = iota
	// Accumulating means the metric has been above threshold for fewer than
	// the required updates.
	Accumulating
	// Triggered is reported for the update that fired. The counter is
	// already reset when it is observed.
	Triggered
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Accumulating:
		return "accumulating"
	case Triggered:
		return "triggered"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// RequiredCount returns ceil(sustain/period), the number of consecutive
// updates that must exceed the threshold. It is at least 1. A non-positive
// period yields 1.
func RequiredCount(sustain, period time.Duration) int {
	if period <= 0 || sustain <= period {
		return 1
	}

	return int((sustain + period - 1) / period)
}

// Evaluator is a debounced threshold detector.
type Evaluator struct {
	threshold float64
	required  int

	counter  int
	state    State
	triggers uint64
}

// NewEvaluator returns an evaluator that fires after required consecutive
// updates strictly above threshold.
func NewEvaluator(threshold float64, required int) (*Evaluator, error) {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return nil, fmt.Errorf("%w: threshold %v", ErrInvalidParams, threshold)
	}

	if required < 1 {
		return nil, fmt.Errorf("%w: required count %d", ErrInvalidParams, required)
	}

	return &Evaluator{threshold: threshold, required: required}, nil
}

// Update feeds one metric value and reports whether it fired a trigger.
func (e *Evaluator) Update(metric float64) bool {
	if !(metric > e.threshold) {
		e.counter = 0
		e.state = Idle
		return false
	}

	e.counter++
	if e.counter < e.required {
		e.state = Accumulating
		return false
	}

	e.counter = 0
	e.state = Triggered
	e.triggers++

	return true
}

// Interrupt ends the current run of above-threshold updates without
// counting an update. The trigger tally is kept.
func (e *Evaluator) Interrupt() {
	e.counter = 0
	e.state = Idle
}

// State returns the state after the latest update.
func (e *Evaluator) State() State { return e.state }

// Count returns the current number of consecutive above-threshold updates.
func (e *Evaluator) Count() int { return e.counter }

// Threshold returns the configured threshold.
func (e *Evaluator) Threshold() float64 { return e.threshold }

// Required returns the configured required count.
func (e *Evaluator) Required() int { return e.required }

// Triggers returns the number of triggers fired since construction or the
// last Reset.
func (e *Evaluator) Triggers() uint64 { return e.triggers }

// Reset returns the evaluator to Idle and clears the trigger count.
func (e *Evaluator) Reset() {
	e.counter = 0
	e.state = Idle
	e.triggers = 0
}
