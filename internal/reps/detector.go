// Package reps counts exercise repetitions from a stream of joint angles.
//
// The Detector is a small state machine. Each frame, the exercise's driving
// angle is mapped to a candidate state:
//
//	angle < Low   → candidate Low-side state
//	angle > High  → candidate High-side state
//	otherwise     → no candidate (dead zone, current state holds)
//	angle missing → no candidate
//
// A candidate that differs from the current state is accepted only when at
// least Debounce has passed since the last accepted transition. Accepted
// transitions:
//
//   - → Down    opens a repetition window at the frame time
//     Down → Up   completes the repetition: count+1, window closed
//     other → Up  changes state only
//
// Completed is never a resting state; it is reported in the Event of the
// frame that closed a repetition while the machine rests in Up.
package reps

import (
	"fmt"
	"time"

	"github.com/claude/formcoach/internal/angles"
	"github.com/claude/formcoach/internal/models"
)

// State is the detector's phase of the movement.
type State string

const (
	StateIdle      State = "idle"
	StateDown      State = "down"
	StateUp        State = "up"
	StateCompleted State = "completed"
)

// DefaultDebounce is the minimum spacing between accepted transitions.
const DefaultDebounce = 500 * time.Millisecond

// Thresholds maps a driving angle onto Down/Up candidates.
type Thresholds struct {
	Low  float64
	High float64
	// LowIsDown selects which side of the dead zone means Down. Squats go
	// down as the knee closes; abduction goes down as the arm lowers.
	LowIsDown bool
}

// Config selects the driving angle per exercise.
type Config struct {
	Debounce          time.Duration
	Squat             Thresholds
	ShoulderAbduction Thresholds
	Pullup            Thresholds
}

// DefaultConfig returns the thresholds the coach ships with.
func DefaultConfig() Config {
	return Config{
		Debounce:          DefaultDebounce,
		Squat:             Thresholds{Low: 120, High: 160, LowIsDown: true},
		ShoulderAbduction: Thresholds{Low: 20, High: 80, LowIsDown: true},
		// Armpit angle: open (hanging) is Down, closed (chin over bar) is Up.
		Pullup: Thresholds{Low: 90, High: 160, LowIsDown: false},
	}
}

// Window is the time span of one repetition.
type Window struct {
	Start time.Time
	End   time.Time
}

// Duration returns End − Start.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Event reports the detector state after one frame.
type Event struct {
	// State is StateCompleted on the frame that closed a repetition.
	State State
	Count int
	// Completed is set only on the frame that closed a repetition.
	Completed *Window
	// RepStart is the start of the open window, if any.
	RepStart *time.Time
}

// Detector is the per-session repetition state machine. It is not safe for
// concurrent use; one aggregator owns it.
type Detector struct {
	exercise   models.Exercise
	thresholds Thresholds
	debounce   time.Duration
	angle      func(angles.Angles) *float64

	state      State
	count      int
	repStart   *time.Time
	lastChange time.Time
	changed    bool
}

// New returns a detector for the exercise.
func New(exercise models.Exercise, cfg Config) (*Detector, error) {
	d := &Detector{exercise: exercise, debounce: cfg.Debounce, state: StateIdle}
	switch exercise {
	case models.ExerciseSquat:
		d.thresholds = cfg.Squat
		d.angle = func(a angles.Angles) *float64 { return a.Knee }
	case models.ExerciseShoulderAbduction:
		d.thresholds = cfg.ShoulderAbduction
		d.angle = func(a angles.Angles) *float64 { return a.Shoulder }
	case models.ExercisePullup:
		d.thresholds = cfg.Pullup
		d.angle = func(a angles.Angles) *float64 { return a.Armpit }
	default:
		return nil, fmt.Errorf("rep detector: %w: %q", models.ErrUnknownExercise, exercise)
	}
	return d, nil
}

// Candidate maps the current angles to the state they indicate. It returns
// false inside the dead zone or when the driving angle was not measured.
func (d *Detector) Candidate(a angles.Angles) (State, bool) {
	v, ok := angles.Value(d.angle(a))
	if !ok {
		return "", false
	}
	low, high := StateDown, StateUp
	if !d.thresholds.LowIsDown {
		low, high = StateUp, StateDown
	}
	switch {
	case v < d.thresholds.Low:
		return low, true
	case v > d.thresholds.High:
		return high, true
	}
	return "", false
}

// Update advances the state machine with the angles observed at time at.
func (d *Detector) Update(a angles.Angles, at time.Time) Event {
	next, ok := d.Candidate(a)
	if !ok || next == d.state {
		return d.event(nil)
	}
	if d.changed && at.Sub(d.lastChange) < d.debounce {
		return d.event(nil)
	}

	var completed *Window
	switch {
	case d.state == StateDown && next == StateUp:
		d.count++
		start := at
		if d.repStart != nil {
			start = *d.repStart
		}
		completed = &Window{Start: start, End: at}
		d.repStart = nil
	case next == StateDown:
		start := at
		d.repStart = &start
	}

	d.state = next
	d.lastChange = at
	d.changed = true
	return d.event(completed)
}

func (d *Detector) event(completed *Window) Event {
	ev := Event{State: d.state, Count: d.count, Completed: completed}
	if completed != nil {
		ev.State = StateCompleted
	}
	if d.repStart != nil {
		s := *d.repStart
		ev.RepStart = &s
	}
	return ev
}

// Reset returns the detector to Idle with a zero count.
func (d *Detector) Reset() {
	d.state = StateIdle
	d.count = 0
	d.repStart = nil
	d.lastChange = time.Time{}
	d.changed = false
}

// State returns the resting state.
func (d *Detector) State() State { return d.state }

// Count returns the number of completed repetitions.
func (d *Detector) Count() int { return d.count }

// Exercise returns the exercise the detector was built for.
func (d *Detector) Exercise() models.Exercise { return d.exercise }
