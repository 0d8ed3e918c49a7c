// Package session owns the live record of one coaching session and derives
// review analytics from finished ones.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/claude/formcoach/internal/angles"
	"github.com/claude/formcoach/internal/models"
	"github.com/claude/formcoach/internal/reps"
	"github.com/claude/formcoach/internal/rules"
)

var (
	// ErrNoActiveSession is returned by Update and Stop before Start.
	ErrNoActiveSession = errors.New("no active session")
	// ErrSessionActive is returned by Start while a session is running.
	ErrSessionActive = errors.New("session already active")
)

// Options are the caller-supplied session attributes.
type Options struct {
	LocalOnly bool
	Notes     string
	VideoURL  string
}

// Update is the live view of the session after one frame.
type Update struct {
	State    reps.State
	Reps     int
	AvgScore int
	// Completed is set on the frame that closed a repetition.
	Completed *models.RepMetric
}

// Aggregator owns the live session and its repetition detector. It is not
// safe for concurrent use.
type Aggregator struct {
	cfg reps.Config
	log *slog.Logger

	live     *models.Session
	detector *reps.Detector

	frameFlags  []string
	frameSum    int
	frameCount  int
	repScoreSum int

	// Accumulators for the open repetition window.
	windowStart *time.Time
	windowFlags []string
	windowSum   int
	windowCount int
}

// NewAggregator returns an idle aggregator. Repetitions are detected with
// cfg.
func NewAggregator(cfg reps.Config, log *slog.Logger) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{cfg: cfg, log: log}
}

// Active reports whether a session is running.
func (a *Aggregator) Active() bool {
	return a.live != nil
}

// Start begins a new session, clearing all live state.
func (a *Aggregator) Start(exercise models.Exercise, patientID string, at time.Time, opts Options) error {
	if a.live != nil {
		return fmt.Errorf("starting %s session: %w", exercise, ErrSessionActive)
	}
	detector, err := reps.New(exercise, a.cfg)
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}

	a.reset()
	a.detector = detector
	a.live = &models.Session{
		ID:         uuid.New(),
		PatientID:  patientID,
		Exercise:   exercise,
		StartedAt:  at,
		AvgScore:   rules.BaseScore,
		Flags:      []string{},
		RepMetrics: []models.RepMetric{},
		LocalOnly:  opts.LocalOnly,
	}
	if opts.Notes != "" {
		notes := opts.Notes
		a.live.Notes = &notes
	}
	if opts.VideoURL != "" {
		url := opts.VideoURL
		a.live.VideoURL = &url
	}

	a.log.Info("session started", "session", a.live.ID, "exercise", exercise, "patient", patientID)
	return nil
}

// Update feeds one analyzed frame into the session.
func (a *Aggregator) Update(at time.Time, ang angles.Angles, res rules.Result) (Update, error) {
	if a.live == nil {
		return Update{}, ErrNoActiveSession
	}
	score := res.Score()
	a.frameSum += score
	a.frameCount++
	a.frameFlags = appendDistinct(a.frameFlags, res.Flags...)

	ev := a.detector.Update(ang, at)

	var completed *models.RepMetric
	if ev.Completed != nil {
		m := a.closeWindow(ev, ang, score)
		completed = &m
	}

	// The frame that opens a window belongs to it; the frame that closes one
	// does not.
	switch {
	case ev.RepStart == nil:
		a.clearWindow()
	case a.windowStart == nil || !a.windowStart.Equal(*ev.RepStart):
		a.clearWindow()
		start := *ev.RepStart
		a.windowStart = &start
	}
	if a.windowStart != nil {
		a.windowFlags = appendDistinct(a.windowFlags, res.Flags...)
		a.windowSum += score
		a.windowCount++
	}

	a.refresh()

	u := Update{State: ev.State, Reps: a.live.Reps, AvgScore: a.live.AvgScore}
	if completed != nil {
		c := completed.Clone()
		u.Completed = &c
	}
	return u, nil
}

func (a *Aggregator) closeWindow(ev reps.Event, ang angles.Angles, frameScore int) models.RepMetric {
	score := frameScore
	if a.windowCount > 0 {
		score = roundedMean(a.windowSum, a.windowCount)
	}
	m := models.RepMetric{
		RepIndex: ev.Count,
		TStart:   a.offset(ev.Completed.Start),
		TEnd:     a.offset(ev.Completed.End),
		Angles:   ang.Clone(),
		Flags:    slices.Clone(a.windowFlags),
		Score:    score,
	}
	if m.Flags == nil {
		m.Flags = []string{}
	}

	a.live.RepMetrics = append(a.live.RepMetrics, m)
	a.live.Reps = ev.Count
	a.repScoreSum += score

	a.log.Debug("rep completed", "session", a.live.ID, "rep", m.RepIndex, "score", m.Score, "flags", len(m.Flags))
	return m
}

func (a *Aggregator) offset(t time.Time) int64 {
	return max(0, t.Sub(a.live.StartedAt).Milliseconds())
}

// refresh recomputes the running score and flag list. The score is the
// repetition mean once a repetition exists and the frame mean before that.
// The flag list holds every distinct flag any frame raised, in first-seen
// order, inside a repetition window or not.
func (a *Aggregator) refresh() {
	switch {
	case len(a.live.RepMetrics) > 0:
		a.live.AvgScore = roundedMean(a.repScoreSum, len(a.live.RepMetrics))
	case a.frameCount > 0:
		a.live.AvgScore = roundedMean(a.frameSum, a.frameCount)
	default:
		a.live.AvgScore = rules.BaseScore
	}
	a.live.Flags = slices.Clone(a.frameFlags)
	if a.live.Flags == nil {
		a.live.Flags = []string{}
	}
}

// Snapshot returns a copy of the live session.
func (a *Aggregator) Snapshot() (*models.Session, error) {
	if a.live == nil {
		return nil, ErrNoActiveSession
	}
	return a.live.Clone(), nil
}

// State returns the detector's resting state, or idle without a session.
func (a *Aggregator) State() reps.State {
	if a.detector == nil {
		return reps.StateIdle
	}
	return a.detector.State()
}

// Stop finalizes the session and returns it ready for persistence. The
// aggregator is idle afterwards.
func (a *Aggregator) Stop(at time.Time) (*models.Session, error) {
	if a.live == nil {
		return nil, ErrNoActiveSession
	}
	a.refresh()
	ended := at
	if ended.Before(a.live.StartedAt) {
		ended = a.live.StartedAt
	}
	a.live.EndedAt = &ended

	s := a.live.Clone()
	a.log.Info("session stopped", "session", s.ID, "reps", s.Reps, "avg_score", s.AvgScore, "duration", s.Duration())

	a.reset()
	return s, nil
}

func (a *Aggregator) reset() {
	a.live = nil
	a.detector = nil
	a.frameFlags = nil
	a.frameSum = 0
	a.frameCount = 0
	a.repScoreSum = 0
	a.clearWindow()
}

func (a *Aggregator) clearWindow() {
	a.windowStart = nil
	a.windowFlags = nil
	a.windowSum = 0
	a.windowCount = 0
}

func appendDistinct(dst []string, flags ...string) []string {
	for _, f := range flags {
		if !slices.Contains(dst, f) {
			dst = append(dst, f)
		}
	}
	return dst
}

func roundedMean(sum, n int) int {
	if n == 0 {
		return 0
	}
	return int(math.Round(float64(sum) / float64(n)))
}
