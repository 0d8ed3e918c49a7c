// Package rules turns one frame of keypoints and angles into form-correction
// flags and a score deduction. Evaluation is stateless: the same frame always
// yields the same result.
package rules

import (
	"fmt"
	"time"

	"github.com/claude/formcoach/internal/angles"
	"github.com/claude/formcoach/internal/models"
	"github.com/claude/formcoach/internal/pose"
	"github.com/claude/formcoach/internal/reps"
)

// General flags raised before exercise-specific checks.
const (
	FlagInsufficientData = "Insufficient pose data"
	FlagLowConfidence    = "Low pose confidence"
)

// BaseScore is the score of a frame with no deductions.
const BaseScore = 100

// Frame is everything the engine looks at for one instant.
type Frame struct {
	Keypoints []pose.Keypoint
	Angles    angles.Angles
	Exercise  models.Exercise
	At        time.Time
	// Phase is the repetition phase the caller last observed. Checks that
	// depend on it are skipped when it is empty or idle.
	Phase reps.State
}

// Result is the engine's verdict for one frame.
type Result struct {
	Flags     []string `json:"flags"`
	Deduction int      `json:"deduction"`
}

// Score returns the frame score for this result.
func (r Result) Score() int {
	return Score(r.Deduction)
}

// Score converts a deduction into a 0–100 score.
func Score(deduction int) int {
	return max(0, BaseScore-deduction)
}

// Checker holds one exercise's rules and thresholds. The engine hands it only
// the keypoints that meet the confidence floor.
type Checker interface {
	Check(f Frame) []string
}

// Config holds the general thresholds and every exercise's rule set.
type Config struct {
	MinConfidence      float64
	MinKeypoints       int
	LowConfidenceRatio float64
	FlagDeduction      int
	MaxDeduction       int

	Squat             SquatRules
	ShoulderAbduction AbductionRules
	Pullup            PullupRules
}

// DefaultConfig returns the thresholds the coach ships with.
func DefaultConfig() Config {
	return Config{
		MinConfidence:      0.5,
		MinKeypoints:       8,
		LowConfidenceRatio: 0.3,
		FlagDeduction:      10,
		MaxDeduction:       50,
		Squat: SquatRules{
			DepthAngle:      100,
			MaxTorsoLean:    15,
			ValgusThreshold: 0.1,
		},
		ShoulderAbduction: AbductionRules{
			TargetROM:             90,
			ROMTolerance:          10,
			MaxElbowAboveShoulder: 0.05,
			SymmetryThreshold:     15,
		},
		Pullup: PullupRules{
			MaxBodySwing:      10,
			MaxArmpitAtTop:    70,
			MinArmpitAtBottom: 160,
		},
	}
}

// Engine dispatches frames to the checker for their exercise.
type Engine struct {
	cfg      Config
	checkers map[models.Exercise]Checker
}

// NewEngine returns an engine with a checker for every supported exercise.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg: cfg,
		checkers: map[models.Exercise]Checker{
			models.ExerciseSquat:             cfg.Squat,
			models.ExerciseShoulderAbduction: cfg.ShoulderAbduction,
			models.ExercisePullup:            cfg.Pullup,
		},
	}
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Evaluate checks one frame. Insufficient or low-confidence input degrades to
// flags, never to an error. An unsupported exercise yields the general
// checks only, together with an error wrapping models.ErrUnknownExercise so
// the caller can surface the misconfiguration.
func (e *Engine) Evaluate(f Frame) (Result, error) {
	var res Result

	if len(f.Keypoints) < e.cfg.MinKeypoints {
		res.Flags = []string{FlagInsufficientData}
		res.Deduction = e.clamp(e.cfg.FlagDeduction)
		return res, nil
	}

	low := 0
	for _, kp := range f.Keypoints {
		if !kp.Confident(e.cfg.MinConfidence) {
			low++
		}
	}
	if float64(low) > float64(len(f.Keypoints))*e.cfg.LowConfidenceRatio {
		res.add(FlagLowConfidence, e.cfg.FlagDeduction)
	}

	checker, ok := e.checkers[f.Exercise]
	if !ok {
		res.Deduction = e.clamp(res.Deduction)
		return res, fmt.Errorf("evaluating frame: %w: %q", models.ErrUnknownExercise, f.Exercise)
	}
	checked := f
	checked.Keypoints = confident(f.Keypoints, e.cfg.MinConfidence)
	for _, flag := range checker.Check(checked) {
		res.add(flag, e.cfg.FlagDeduction)
	}

	res.Deduction = e.clamp(res.Deduction)
	return res, nil
}

func (r *Result) add(flag string, deduction int) {
	r.Flags = append(r.Flags, flag)
	r.Deduction += deduction
}

func (e *Engine) clamp(d int) int {
	return min(max(d, 0), e.cfg.MaxDeduction)
}

func confident(kps []pose.Keypoint, floor float64) []pose.Keypoint {
	out := make([]pose.Keypoint, 0, len(kps))
	for _, kp := range kps {
		if kp.Confident(floor) {
			out = append(out, kp)
		}
	}
	return out
}
