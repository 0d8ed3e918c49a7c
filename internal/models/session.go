package models

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/claude/formcoach/internal/angles"
)

// RepMetric describes one completed repetition. TStart and TEnd are
// milliseconds from the start of the session. Angles are taken at the frame
// that completed the repetition. Flags and Score are not a snapshot of that
// frame: they aggregate the frames of the window [TStart, TEnd), so the
// completing frame is excluded. Flags lists the distinct flags those frames
// raised and Score is the rounded mean of their scores, falling back to the
// completing frame's score only when the window held no frames.
type RepMetric struct {
	RepIndex int           `json:"repIndex"`
	TStart   int64         `json:"tStart"`
	TEnd     int64         `json:"tEnd"`
	Angles   angles.Angles `json:"angles"`
	Flags    []string      `json:"flags"`
	Score    int           `json:"score"`
}

// Duration returns the length of the repetition.
func (m RepMetric) Duration() time.Duration {
	return time.Duration(m.TEnd-m.TStart) * time.Millisecond
}

// Clone returns a deep copy of the metric.
func (m RepMetric) Clone() RepMetric {
	m.Angles = m.Angles.Clone()
	m.Flags = slices.Clone(m.Flags)
	return m
}

// Session is the record of one exercise session, shaped for persistence.
type Session struct {
	ID         uuid.UUID   `json:"id"`
	PatientID  string      `json:"patientId"`
	Exercise   Exercise    `json:"exercise"`
	StartedAt  time.Time   `json:"startedAt"`
	EndedAt    *time.Time  `json:"endedAt,omitempty"`
	AvgScore   int         `json:"avgScore"`
	Flags      []string    `json:"flags"`
	Reps       int         `json:"reps"`
	RepMetrics []RepMetric `json:"repMetrics"`
	Notes      *string     `json:"notes,omitempty"`
	LocalOnly  bool        `json:"localOnly"`
	VideoURL   *string     `json:"videoUrl,omitempty"`
}

// Duration returns how long the session ran, or zero if it has not ended.
func (s *Session) Duration() time.Duration {
	if s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	c := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	if s.Notes != nil {
		n := *s.Notes
		c.Notes = &n
	}
	if s.VideoURL != nil {
		u := *s.VideoURL
		c.VideoURL = &u
	}
	c.Flags = slices.Clone(s.Flags)
	if s.RepMetrics != nil {
		c.RepMetrics = make([]RepMetric, len(s.RepMetrics))
		for i, m := range s.RepMetrics {
			c.RepMetrics[i] = m.Clone()
		}
	}
	return &c
}

// RepScores returns the score of each repetition in order.
func (s *Session) RepScores() []int {
	scores := make([]int, len(s.RepMetrics))
	for i, m := range s.RepMetrics {
		scores[i] = m.Score
	}
	return scores
}
