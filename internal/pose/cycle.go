package pose

import (
	"context"
	"io"
	"time"
)

// CycleSource is a deterministic stand-in for a live estimator. It cycles
// through a fixed list of poses and advances a synthetic clock by Step on
// every call, so repeated runs produce identical sessions.
type CycleSource struct {
	Poses []Pose
	Step  time.Duration
	// Limit stops the source with io.EOF after that many samples; 0 means never.
	Limit int

	now time.Time
	n   int
}

// NewCycleSource returns a source that starts its clock at start.
func NewCycleSource(poses []Pose, start time.Time, step time.Duration, limit int) *CycleSource {
	return &CycleSource{Poses: poses, Step: step, Limit: limit, now: start}
}

// Estimate returns the next pose in the cycle.
func (s *CycleSource) Estimate(ctx context.Context) (Pose, bool, error) {
	if err := ctx.Err(); err != nil {
		return Pose{}, false, err
	}
	if s.Limit > 0 && s.n >= s.Limit {
		return Pose{}, false, io.EOF
	}
	if len(s.Poses) == 0 {
		s.n++
		s.now = s.now.Add(s.Step)
		return Pose{At: s.now}, false, nil
	}
	p := s.Poses[s.n%len(s.Poses)]
	p.At = s.now
	s.n++
	s.now = s.now.Add(s.Step)
	return p, len(p.Keypoints) > 0, nil
}

// DemoPoses returns the standing, squatting and arms-raised poses used by
// the demo mode.
func DemoPoses() []Pose {
	fps := 30.0
	standing := []Keypoint{
		kp(Nose, 0.5, 0.2, 0.9),
		kp(LeftShoulder, 0.4, 0.3, 0.8), kp(RightShoulder, 0.6, 0.3, 0.8),
		kp(LeftElbow, 0.38, 0.45, 0.7), kp(RightElbow, 0.62, 0.45, 0.7),
		kp(LeftWrist, 0.38, 0.58, 0.7), kp(RightWrist, 0.62, 0.58, 0.7),
		kp(LeftHip, 0.42, 0.6, 0.8), kp(RightHip, 0.58, 0.6, 0.8),
		kp(LeftKnee, 0.42, 0.78, 0.7), kp(RightKnee, 0.58, 0.78, 0.7),
		kp(LeftAnkle, 0.42, 0.95, 0.6), kp(RightAnkle, 0.58, 0.95, 0.6),
	}
	squatting := []Keypoint{
		kp(Nose, 0.5, 0.38, 0.9),
		kp(LeftShoulder, 0.4, 0.46, 0.8), kp(RightShoulder, 0.6, 0.46, 0.8),
		kp(LeftElbow, 0.34, 0.6, 0.7), kp(RightElbow, 0.66, 0.6, 0.7),
		kp(LeftWrist, 0.34, 0.72, 0.7), kp(RightWrist, 0.66, 0.72, 0.7),
		kp(LeftHip, 0.42, 0.74, 0.8), kp(RightHip, 0.58, 0.74, 0.8),
		kp(LeftKnee, 0.3, 0.8, 0.7), kp(RightKnee, 0.7, 0.8, 0.7),
		kp(LeftAnkle, 0.38, 0.95, 0.6), kp(RightAnkle, 0.62, 0.95, 0.6),
	}
	armsRaised := []Keypoint{
		kp(Nose, 0.5, 0.2, 0.9),
		kp(LeftShoulder, 0.4, 0.3, 0.8), kp(RightShoulder, 0.6, 0.3, 0.8),
		kp(LeftElbow, 0.25, 0.3, 0.7), kp(RightElbow, 0.75, 0.3, 0.7),
		kp(LeftWrist, 0.12, 0.3, 0.7), kp(RightWrist, 0.88, 0.3, 0.7),
		kp(LeftHip, 0.42, 0.6, 0.8), kp(RightHip, 0.58, 0.6, 0.8),
		kp(LeftKnee, 0.42, 0.78, 0.7), kp(RightKnee, 0.58, 0.78, 0.7),
		kp(LeftAnkle, 0.42, 0.95, 0.6), kp(RightAnkle, 0.58, 0.95, 0.6),
	}
	return []Pose{
		{Keypoints: standing, FPS: &fps},
		{Keypoints: squatting, FPS: &fps},
		{Keypoints: standing, FPS: &fps},
		{Keypoints: armsRaised, FPS: &fps},
	}
}

func kp(name Landmark, x, y, score float64) Keypoint {
	return Keypoint{Name: name, X: x, Y: y, Score: &score}
}
