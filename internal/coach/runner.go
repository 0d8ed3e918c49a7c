package coach

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/claude/formcoach/internal/models"
	"github.com/claude/formcoach/internal/pose"
	"github.com/claude/formcoach/internal/session"
)

// Runner drives a pipeline from a pose source until the source ends or the
// context is cancelled.
type Runner struct {
	Pipeline  *Pipeline
	Exercise  models.Exercise
	PatientID string
	Options   session.Options

	// Start is the session start time; zero means now. Replays should pass
	// the same start they gave their source.
	Start time.Time
	// Interval paces sampling with a ticker; zero samples as fast as the
	// source yields.
	Interval time.Duration
	// OnFrame, if set, receives every analyzed frame.
	OnFrame func(FrameResult)

	Log *slog.Logger
}

// RunStats counts what a run saw.
type RunStats struct {
	Analyzed int
	NoPose   int
}

// Run starts a session, feeds it every sample from src and returns the
// finalized session. End of stream and cancellation both end the session
// normally. A source or pipeline error also finalizes the session; it is
// returned together with the error so the caller can still keep it.
func (r *Runner) Run(ctx context.Context, src pose.Source) (*models.Session, RunStats, error) {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}
	start := r.Start
	if start.IsZero() {
		start = time.Now()
	}
	if err := r.Pipeline.Start(r.Exercise, r.PatientID, start, r.Options); err != nil {
		return nil, RunStats{}, fmt.Errorf("starting run: %w", err)
	}

	var tick <-chan time.Time
	if r.Interval > 0 {
		ticker := time.NewTicker(r.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var stats RunStats
	last := start
	finish := func(cause error) (*models.Session, RunStats, error) {
		s, err := r.Pipeline.Stop(last)
		if err != nil {
			return nil, stats, fmt.Errorf("finishing run: %w", err)
		}
		if cause != nil {
			log.Error("run aborted", "session", s.ID, "error", cause)
		} else {
			log.Info("run finished", "session", s.ID, "analyzed", stats.Analyzed, "no_pose", stats.NoPose, "reps", s.Reps)
		}
		return s, stats, cause
	}

	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return finish(nil)
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return finish(nil)
		}

		p, ok, err := src.Estimate(ctx)
		switch {
		case errors.Is(err, io.EOF):
			return finish(nil)
		case err != nil && ctx.Err() != nil:
			return finish(nil)
		case err != nil:
			return finish(fmt.Errorf("reading pose: %w", err))
		}

		if p.At.IsZero() {
			p.At = time.Now()
		}
		if p.At.After(last) {
			last = p.At
		}

		if !ok {
			stats.NoPose++
			r.Pipeline.Skip()
			continue
		}

		fr, err := r.Pipeline.Process(p)
		if err != nil {
			return finish(err)
		}
		stats.Analyzed++
		if r.OnFrame != nil {
			r.OnFrame(fr)
		}
	}
}
