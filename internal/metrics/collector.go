// Package metrics exports interview activity as prometheus metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/spigell/hh-interviewer/internal/interview"
	"github.com/spigell/hh-interviewer/internal/turn"
)

// Collector is an interview.Observer that records what it sees.
type Collector struct {
	interview.NopObserver

	sessionsTotal    *prometheus.CounterVec
	sessionDuration  prometheus.Histogram
	stateTransitions *prometheus.CounterVec
	timeRemaining    prometheus.Gauge

	turnsTotal    *prometheus.CounterVec
	turnLatency   prometheus.Histogram
	interruptions *prometheus.CounterVec
	helpRequests  prometheus.Counter
	textFallbacks prometheus.Counter
	faults        *prometheus.CounterVec

	scores *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector registers the interview metrics with reg. A nil reg uses the default registerer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{logger: logger.With(zap.String("component", "metrics"))}

	c.sessionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Finished interview sessions by end reason",
		},
		[]string{"reason"},
	)

	c.sessionDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Interview session duration in seconds",
			Buckets:   []float64{60, 180, 300, 600, 900, 1200, 1800, 3600},
		},
	)

	c.stateTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Session state transitions",
		},
		[]string{"from", "to"},
	)

	c.timeRemaining = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "time_remaining_seconds",
			Help:      "Time left in the running session",
		},
	)

	c.turnsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Recorded turns by input method and whether anything was said",
		},
		[]string{"method", "answered"},
	)

	c.turnLatency = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_seconds",
			Help:      "Delay between the end of a question and the first recognized words",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16},
		},
	)

	c.interruptions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interruptions_total",
			Help:      "Interrupted interviewer utterances by reason",
		},
		[]string{"reason"},
	)

	c.helpRequests = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "help_requests_total",
			Help:      "Help sub-turns answered with guidance",
		},
	)

	c.textFallbacks = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "text_fallbacks_total",
			Help:      "Utterances shown as text after synthesis failed",
		},
	)

	c.faults = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faults_total",
			Help:      "Device faults by severity",
		},
		[]string{"fatal"},
	)

	c.scores = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "score",
			Help:      "Interview scores by feedback source",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		},
		[]string{"source"},
	)

	return c
}

func (c *Collector) StateChanged(from, to interview.State) {
	c.stateTransitions.WithLabelValues(from.String(), to.String()).Inc()
}

func (c *Collector) Tick(remaining time.Duration) {
	c.timeRemaining.Set(remaining.Seconds())
}

func (c *Collector) Interrupted(reason turn.InterruptReason) {
	c.interruptions.WithLabelValues(reason.String()).Inc()
}

func (c *Collector) Help(string, string) {
	c.helpRequests.Inc()
}

func (c *Collector) TextFallback(string) {
	c.textFallbacks.Inc()
}

func (c *Collector) Fault(_ error, fatal bool) {
	c.faults.WithLabelValues(strconv.FormatBool(fatal)).Inc()
}

func (c *Collector) TurnRecorded(t interview.Turn) {
	c.turnsTotal.WithLabelValues(string(t.Method), strconv.FormatBool(t.Answered())).Inc()
	if t.Answered() && t.Method == turn.MethodVoice {
		c.turnLatency.Observe(t.Latency.Seconds())
	}
}

func (c *Collector) Completed(o *interview.Outcome) {
	c.sessionsTotal.WithLabelValues(string(o.Reason)).Inc()
	c.sessionDuration.Observe(o.Stats.Duration.Seconds())
	c.timeRemaining.Set(0)

	if o.Feedback != nil {
		c.scores.WithLabelValues(o.Feedback.Source).Observe(o.Feedback.Score)
	}

	c.logger.Debug("session recorded",
		zap.String("session_id", o.SessionID),
		zap.String("reason", string(o.Reason)),
	)
}
