package coach

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"github.com/claude/formcoach/internal/models"
	"github.com/claude/formcoach/internal/pose"
	"github.com/claude/formcoach/internal/reps"
	"github.com/claude/formcoach/internal/rules"
	"github.com/claude/formcoach/internal/session"
)

// TestMain runs goleak after the package's tests to catch runner goroutines
// left behind.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func rad(deg float64) float64 { return deg * math.Pi / 180 }

func kp(name pose.Landmark, x, y float64) pose.Keypoint {
	score := 0.9
	return pose.Keypoint{Name: name, X: x, Y: y, Score: &score}
}

// squatPose builds a side-on body whose knee angle and torso lean are exact.
// Both legs share coordinates so neither knee drifts off its ankle.
func squatPose(kneeDeg, torsoDeg float64) pose.Pose {
	kneeX, kneeY := 0.5, 0.7
	ankleX, ankleY := 0.5, 0.9
	hipX := kneeX - 0.2*math.Sin(rad(kneeDeg))
	hipY := kneeY + 0.2*math.Cos(rad(kneeDeg))
	shX := hipX - 0.3*math.Sin(rad(torsoDeg))
	shY := hipY - 0.3*math.Cos(rad(torsoDeg))
	return pose.Pose{Keypoints: []pose.Keypoint{
		kp(pose.Nose, shX, shY-0.1),
		kp(pose.LeftShoulder, shX, shY), kp(pose.RightShoulder, shX, shY),
		kp(pose.LeftHip, hipX, hipY), kp(pose.RightHip, hipX, hipY),
		kp(pose.LeftKnee, kneeX, kneeY), kp(pose.RightKnee, kneeX, kneeY),
		kp(pose.LeftAnkle, ankleX, ankleY), kp(pose.RightAnkle, ankleX, ankleY),
	}}
}

func newRunner(p *Pipeline, exercise models.Exercise) *Runner {
	return &Runner{Pipeline: p, Exercise: exercise, PatientID: "p-1", Start: t0}
}

// TestEndToEndSquat verifies a standing, deep, standing sequence with an
// upright torso: one repetition, no torso flag, and no depth flag at the
// bottom.
func TestEndToEndSquat(t *testing.T) {
	metrics, _ := NewTestMetrics()
	p := NewPipeline(DefaultConfig(), metrics, nil)
	src := pose.NewCycleSource([]pose.Pose{squatPose(170, 5), squatPose(95, 5), squatPose(170, 5)}, t0, time.Second, 3)

	var frames []FrameResult
	r := newRunner(p, models.ExerciseSquat)
	r.OnFrame = func(fr FrameResult) { frames = append(frames, fr) }

	s, stats, err := r.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(frames) != 3 || stats.Analyzed != 3 {
		t.Fatalf("got %d frames (stats %+v), want 3", len(frames), stats)
	}
	if s.Reps != 1 || len(s.RepMetrics) != 1 {
		t.Fatalf("reps = %d, metrics = %d, want 1", s.Reps, len(s.RepMetrics))
	}
	for i, fr := range frames {
		if slices.Contains(fr.Flags, rules.FlagChestUp) {
			t.Errorf("frame %d flagged %q: %v", i, rules.FlagChestUp, fr.Flags)
		}
	}
	if slices.Contains(frames[1].Flags, rules.FlagGoDeeper) {
		t.Errorf("bottom frame flagged %q: %v", rules.FlagGoDeeper, frames[1].Flags)
	}
	if frames[1].State != reps.StateDown || frames[2].State != reps.StateCompleted {
		t.Errorf("states = %s, %s; want down, completed", frames[1].State, frames[2].State)
	}
	if frames[2].Completed == nil || frames[2].Completed.TStart != 1000 || frames[2].Completed.TEnd != 2000 {
		t.Errorf("completed metric = %+v", frames[2].Completed)
	}
	if n := countOf(s.Flags, rules.FlagGoDeeper); n != 1 {
		t.Errorf("session flags = %v, want %q once", s.Flags, rules.FlagGoDeeper)
	}
	if !s.EndedAt.Equal(t0.Add(2 * time.Second)) {
		t.Errorf("EndedAt = %v, want last frame time", s.EndedAt)
	}

	if got := testutil.ToFloat64(metrics.CounterReps.WithLabelValues("Squat")); got != 1 {
		t.Errorf("reps_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.CounterFrames.WithLabelValues(ResultAnalyzed)); got != 3 {
		t.Errorf("frames_total{analyzed} = %v, want 3", got)
	}
	if got := testutil.ToFloat64(metrics.CounterFlags.WithLabelValues(rules.FlagGoDeeper)); got != 2 {
		t.Errorf("flags_total{Go deeper} = %v, want 2", got)
	}
}

// TestPipelinesAreIndependent verifies that interleaving two pipelines gives
// the same sessions as running them one after the other.
func TestPipelinesAreIndependent(t *testing.T) {
	seq := []float64{170, 95, 170, 95, 170}
	a := NewPipeline(DefaultConfig(), nil, nil)
	b := NewPipeline(DefaultConfig(), nil, nil)
	if err := a.Start(models.ExerciseSquat, "a", t0, session.Options{}); err != nil {
		t.Fatal(err)
	}
	if err := b.Start(models.ExerciseSquat, "b", t0, session.Options{}); err != nil {
		t.Fatal(err)
	}
	for i, k := range seq {
		at := t0.Add(time.Duration(i) * time.Second)
		pa := squatPose(k, 5)
		pa.At = at
		if _, err := a.Process(pa); err != nil {
			t.Fatal(err)
		}
		// b only sees the standing frames.
		pb := squatPose(170, 5)
		pb.At = at
		if _, err := b.Process(pb); err != nil {
			t.Fatal(err)
		}
	}
	sa, _ := a.Stop(t0.Add(5 * time.Second))
	sb, _ := b.Stop(t0.Add(5 * time.Second))
	if sa.Reps != 2 || sb.Reps != 0 {
		t.Errorf("reps = %d and %d, want 2 and 0", sa.Reps, sb.Reps)
	}
}

// TestProcessWithoutSession verifies the sentinel error before Start.
func TestProcessWithoutSession(t *testing.T) {
	p := NewPipeline(DefaultConfig(), nil, nil)
	if _, err := p.Process(squatPose(170, 0)); !errors.Is(err, session.ErrNoActiveSession) {
		t.Errorf("err = %v, want ErrNoActiveSession", err)
	}
}

// TestInsufficientPoseDegrades verifies that a sparse pose is scored, not
// rejected.
func TestInsufficientPoseDegrades(t *testing.T) {
	p := NewPipeline(DefaultConfig(), nil, nil)
	if err := p.Start(models.ExerciseSquat, "p-1", t0, session.Options{}); err != nil {
		t.Fatal(err)
	}
	sparse := squatPose(170, 0)
	sparse.Keypoints = sparse.Keypoints[:4]
	sparse.At = t0
	fr, err := p.Process(sparse)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(fr.Flags) != 1 || fr.Flags[0] != rules.FlagInsufficientData || fr.Score != 90 {
		t.Errorf("frame = %+v", fr)
	}
}

func countOf(flags []string, flag string) int {
	n := 0
	for _, f := range flags {
		if f == flag {
			n++
		}
	}
	return n
}
