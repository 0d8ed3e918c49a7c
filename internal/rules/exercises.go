package rules

import (
	"fmt"
	"math"

	"github.com/claude/formcoach/internal/angles"
	"github.com/claude/formcoach/internal/pose"
	"github.com/claude/formcoach/internal/reps"
)

// Squat flags.
const (
	FlagGoDeeper = "Go deeper"
	FlagChestUp  = "Keep chest up"
	FlagKneesOut = "Push knees out"
)

// Shoulder abduction flags. The range-of-motion flag depends on the target
// and is built by AbductionRules.ROMFlag.
const (
	FlagLeadWithElbow = "Relax shoulder, lead with elbow"
	FlagSymmetry      = "Aim for symmetry"
)

// Pull-up flags.
const (
	FlagBodySwing  = "Body is swinging, keep stable"
	FlagPullHigher = "Pull higher"
	FlagLowerFully = "Lower fully"
)

// SquatRules checks depth, torso lean and knee valgus.
type SquatRules struct {
	// DepthAngle: knee angles above it are not deep enough.
	DepthAngle float64
	// MaxTorsoLean in degrees from vertical.
	MaxTorsoLean float64
	// ValgusThreshold is the normalized horizontal knee-to-ankle offset.
	ValgusThreshold float64
}

// Check implements Checker.
func (r SquatRules) Check(f Frame) []string {
	var flags []string
	if knee, ok := angles.Value(f.Angles.Knee); ok && knee > r.DepthAngle {
		flags = append(flags, FlagGoDeeper)
	}
	if torso, ok := angles.Value(f.Angles.Torso); ok && torso > r.MaxTorsoLean {
		flags = append(flags, FlagChestUp)
	}
	if offsetExceeds(f.Keypoints, pose.LeftKnee, pose.LeftAnkle, r.ValgusThreshold) ||
		offsetExceeds(f.Keypoints, pose.RightKnee, pose.RightAnkle, r.ValgusThreshold) {
		flags = append(flags, FlagKneesOut)
	}
	return flags
}

func offsetExceeds(kps []pose.Keypoint, knee, ankle pose.Landmark, threshold float64) bool {
	k, ok := pose.Find(kps, knee)
	if !ok {
		return false
	}
	a, ok := pose.Find(kps, ankle)
	if !ok {
		return false
	}
	return math.Abs(k.X-a.X) > threshold
}

// AbductionRules checks range of motion, shoulder hiking and symmetry.
type AbductionRules struct {
	TargetROM    float64
	ROMTolerance float64
	// MaxElbowAboveShoulder is the normalized height the elbow may rise
	// above the shoulder before the shoulder is considered hiked.
	MaxElbowAboveShoulder float64
	// SymmetryThreshold is the allowed left/right abduction difference in degrees.
	SymmetryThreshold float64
}

// ROMFlag is the flag raised when the arm misses the target range.
func (r AbductionRules) ROMFlag() string {
	return fmt.Sprintf("Aim for %g°", r.TargetROM)
}

// Check implements Checker.
func (r AbductionRules) Check(f Frame) []string {
	var flags []string
	if shoulder, ok := angles.Value(f.Angles.Shoulder); ok && math.Abs(shoulder-r.TargetROM) > r.ROMTolerance {
		flags = append(flags, r.ROMFlag())
	}
	if elbowAbove(f.Keypoints, pose.LeftShoulder, pose.LeftElbow, r.MaxElbowAboveShoulder) ||
		elbowAbove(f.Keypoints, pose.RightShoulder, pose.RightElbow, r.MaxElbowAboveShoulder) {
		flags = append(flags, FlagLeadWithElbow)
	}
	left, okL := angles.Value(f.Angles.Shoulder)
	right, okR := angles.Value(f.Angles.ShoulderRight)
	if okL && okR && math.Abs(left-right) > r.SymmetryThreshold {
		flags = append(flags, FlagSymmetry)
	}
	return flags
}

func elbowAbove(kps []pose.Keypoint, shoulder, elbow pose.Landmark, threshold float64) bool {
	s, ok := pose.Find(kps, shoulder)
	if !ok {
		return false
	}
	e, ok := pose.Find(kps, elbow)
	if !ok {
		return false
	}
	// Image y grows downward.
	return s.Y-e.Y > threshold
}

// PullupRules checks body swing and, given the current phase, whether the
// pull reached the top and the hang reached full extension.
type PullupRules struct {
	// MaxBodySwing is the allowed deviation of the shoulder–hip–ankle line from straight.
	MaxBodySwing      float64
	MaxArmpitAtTop    float64
	MinArmpitAtBottom float64
}

// Check implements Checker.
func (r PullupRules) Check(f Frame) []string {
	var flags []string
	armpit, hasArmpit := angles.Value(f.Angles.Armpit)
	if hasArmpit {
		switch f.Phase {
		case reps.StateUp, reps.StateCompleted:
			if armpit > r.MaxArmpitAtTop {
				flags = append(flags, FlagPullHigher)
			}
		case reps.StateDown:
			if armpit < r.MinArmpitAtBottom {
				flags = append(flags, FlagLowerFully)
			}
		}
	}
	if body, ok := angles.Value(f.Angles.Body); ok && math.Abs(body-180) > r.MaxBodySwing {
		flags = append(flags, FlagBodySwing)
	}
	return flags
}
