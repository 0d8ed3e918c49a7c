// Package coach runs the per-frame analysis pipeline: angles, rules,
// repetition detection and session aggregation.
package coach

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/claude/formcoach/internal/angles"
	"github.com/claude/formcoach/internal/models"
	"github.com/claude/formcoach/internal/pose"
	"github.com/claude/formcoach/internal/reps"
	"github.com/claude/formcoach/internal/rules"
	"github.com/claude/formcoach/internal/session"
)

// Config holds the analysis thresholds.
type Config struct {
	Rules rules.Config
	Reps  reps.Config
}

// DefaultConfig returns the thresholds the coach ships with.
func DefaultConfig() Config {
	return Config{Rules: rules.DefaultConfig(), Reps: reps.DefaultConfig()}
}

// FrameResult is what one pose produced.
type FrameResult struct {
	At        time.Time
	Exercise  models.Exercise
	Angles    angles.Angles
	Flags     []string
	Deduction int
	Score     int
	Reps      int
	AvgScore  int
	State     reps.State
	// Completed is set on the frame that closed a repetition.
	Completed *models.RepMetric
}

// Pipeline owns one session's analysis state. Independent pipelines share
// nothing.
type Pipeline struct {
	calc     angles.Calculator
	engine   *rules.Engine
	agg      *session.Aggregator
	metrics  *Metrics
	log      *slog.Logger
	exercise models.Exercise
}

// NewPipeline returns an idle pipeline. metrics may be nil.
func NewPipeline(cfg Config, metrics *Metrics, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		calc:    angles.NewCalculator(cfg.Rules.MinConfidence),
		engine:  rules.NewEngine(cfg.Rules),
		agg:     session.NewAggregator(cfg.Reps, log),
		metrics: metrics,
		log:     log,
	}
}

// Start begins a session.
func (p *Pipeline) Start(exercise models.Exercise, patientID string, at time.Time, opts session.Options) error {
	if err := p.agg.Start(exercise, patientID, at, opts); err != nil {
		return err
	}
	p.exercise = exercise
	return nil
}

// Process analyzes one pose and folds it into the session. Rules that depend
// on the movement phase see the detector state from before this frame.
func (p *Pipeline) Process(ps pose.Pose) (FrameResult, error) {
	if !p.agg.Active() {
		return FrameResult{}, session.ErrNoActiveSession
	}
	a := p.calc.Calculate(ps.Keypoints)
	res, err := p.engine.Evaluate(rules.Frame{
		Keypoints: ps.Keypoints,
		Angles:    a,
		Exercise:  p.exercise,
		At:        ps.At,
		Phase:     p.agg.State(),
	})
	if err != nil {
		return FrameResult{}, fmt.Errorf("processing frame: %w", err)
	}
	u, err := p.agg.Update(ps.At, a, res)
	if err != nil {
		return FrameResult{}, fmt.Errorf("processing frame: %w", err)
	}

	fr := FrameResult{
		At:        ps.At,
		Exercise:  p.exercise,
		Angles:    a,
		Flags:     res.Flags,
		Deduction: res.Deduction,
		Score:     res.Score(),
		Reps:      u.Reps,
		AvgScore:  u.AvgScore,
		State:     u.State,
		Completed: u.Completed,
	}
	p.metrics.frame(fr)
	if fr.Completed != nil {
		p.log.Info("rep completed", "exercise", p.exercise, "rep", fr.Completed.RepIndex, "score", fr.Completed.Score)
	}
	return fr, nil
}

// Skip records a sample in which no pose was detected.
func (p *Pipeline) Skip() {
	p.metrics.noPose()
}

// Snapshot returns a copy of the live session.
func (p *Pipeline) Snapshot() (*models.Session, error) {
	return p.agg.Snapshot()
}

// Stop finalizes the session.
func (p *Pipeline) Stop(at time.Time) (*models.Session, error) {
	return p.agg.Stop(at)
}
