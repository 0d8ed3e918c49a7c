package coach

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Frame results recorded in Metrics.CounterFrames.
const (
	ResultAnalyzed = "analyzed"
	ResultNoPose   = "no_pose"
)

// Metrics are the coach's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	// counters
	CounterFrames *prometheus.CounterVec
	CounterFlags  *prometheus.CounterVec
	CounterReps   *prometheus.CounterVec

	// gauges
	GaugeFrameScore prometheus.Gauge

	// histograms
	HistRepScore    prometheus.Histogram
	HistRepDuration prometheus.Histogram
}

// NewTestMetrics returns metrics on a fresh registry.
func NewTestMetrics() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewMetrics(reg), reg
}

// NewMetrics registers the coach collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	const namespace = "formcoach"

	return &Metrics{
		CounterFrames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Pose samples processed, by outcome",
		}, []string{"result"}),
		CounterFlags: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flags_total",
			Help:      "Form-correction flags raised on analyzed frames",
		}, []string{"flag"}),
		CounterReps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reps_total",
			Help:      "Completed repetitions",
		}, []string{"exercise"}),
		GaugeFrameScore: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frame_score",
			Help:      "Score of the most recently analyzed frame",
		}),
		HistRepScore: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rep_score",
			Help:      "Score of completed repetitions",
			Buckets:   []float64{50, 60, 70, 80, 90, 100},
		}),
		HistRepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rep_duration_seconds",
			Help:      "Duration of completed repetitions",
			Buckets:   prometheus.LinearBuckets(0.5, 0.5, 10),
		}),
	}
}

func (m *Metrics) noPose() {
	if m == nil {
		return
	}
	m.CounterFrames.WithLabelValues(ResultNoPose).Inc()
}

func (m *Metrics) frame(res FrameResult) {
	if m == nil {
		return
	}
	m.CounterFrames.WithLabelValues(ResultAnalyzed).Inc()
	m.GaugeFrameScore.Set(float64(res.Score))
	for _, f := range res.Flags {
		m.CounterFlags.WithLabelValues(f).Inc()
	}
	if res.Completed != nil {
		m.CounterReps.WithLabelValues(res.Exercise.String()).Inc()
		m.HistRepScore.Observe(float64(res.Completed.Score))
		m.HistRepDuration.Observe(res.Completed.Duration().Seconds())
	}
}
