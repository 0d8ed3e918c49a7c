package session

import (
	"math"

	"github.com/claude/formcoach/internal/models"
)

// DefaultGoodScore is the repetition score counted as adherent.
const DefaultGoodScore = 80

// TrendDelta is the mean-score change between session halves that counts as
// a trend rather than noise.
const TrendDelta = 5.0

// Trend classifies how repetition quality moved over a session.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// Grade is the coarse label shown next to a score.
type Grade string

const (
	GradeExcellent Grade = "excellent"
	GradeGood      Grade = "good"
	GradeFair      Grade = "fair"
	GradePoor      Grade = "poor"
)

// Adherence returns the rounded percentage of repetitions scoring at least
// good. A session without repetitions has 0 adherence.
func Adherence(s *models.Session, good int) int {
	if len(s.RepMetrics) == 0 {
		return 0
	}
	n := 0
	for _, m := range s.RepMetrics {
		if m.Score >= good {
			n++
		}
	}
	return int(math.Round(float64(n) * 100 / float64(len(s.RepMetrics))))
}

// TrendOf compares the mean score of the first half of the repetitions with
// the second half. The first half takes the middle repetition of an odd
// count. Fewer than two repetitions are stable.
func TrendOf(s *models.Session) Trend {
	return trend(s.RepScores())
}

func trend(scores []int) Trend {
	if len(scores) < 2 {
		return TrendStable
	}
	half := (len(scores) + 1) / 2
	delta := mean(scores[half:]) - mean(scores[:half])
	switch {
	case delta > TrendDelta:
		return TrendImproving
	case delta < -TrendDelta:
		return TrendDeclining
	}
	return TrendStable
}

func mean(v []int) float64 {
	if len(v) == 0 {
		return 0
	}
	sum := 0
	for _, x := range v {
		sum += x
	}
	return float64(sum) / float64(len(v))
}

// GradeOf maps a 0–100 score onto a grade.
func GradeOf(score int) Grade {
	switch {
	case score >= 90:
		return GradeExcellent
	case score >= 80:
		return GradeGood
	case score >= 70:
		return GradeFair
	}
	return GradePoor
}

// Summary bundles the review analytics of a finished session.
type Summary struct {
	SessionID   string   `json:"sessionId"`
	Exercise    string   `json:"exercise"`
	Reps        int      `json:"reps"`
	AvgScore    int      `json:"avgScore"`
	Grade       Grade    `json:"grade"`
	Adherence   int      `json:"adherence"`
	Trend       Trend    `json:"trend"`
	BestRep     int      `json:"bestRep,omitempty"`
	WorstRep    int      `json:"worstRep,omitempty"`
	Flags       []string `json:"flags"`
	DurationSec float64  `json:"durationSec"`
}

// Summarize computes the analytics of s with good as the adherence bar.
func Summarize(s *models.Session, good int) Summary {
	sum := Summary{
		SessionID:   s.ID.String(),
		Exercise:    s.Exercise.String(),
		Reps:        s.Reps,
		AvgScore:    s.AvgScore,
		Grade:       GradeOf(s.AvgScore),
		Adherence:   Adherence(s, good),
		Trend:       TrendOf(s),
		Flags:       s.Flags,
		DurationSec: s.Duration().Seconds(),
	}
	for i, m := range s.RepMetrics {
		if i == 0 || m.Score > s.RepMetrics[sum.BestRep-1].Score {
			sum.BestRep = i + 1
		}
		if i == 0 || m.Score < s.RepMetrics[sum.WorstRep-1].Score {
			sum.WorstRep = i + 1
		}
	}
	if sum.Flags == nil {
		sum.Flags = []string{}
	}
	return sum
}
