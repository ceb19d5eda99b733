package replication

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports run and record counters for the sync job
type Metrics struct {
	records     *prometheus.CounterVec
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
}

// NewMetrics registers the sync metrics with reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tillsync",
			Subsystem: "replication",
			Name:      "records_total",
			Help:      "Records sent to the mirror by entity type and outcome.",
		}, []string{"entity", "outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tillsync",
			Subsystem: "replication",
			Name:      "runs_total",
			Help:      "Finished sync runs by mode and result.",
		}, []string{"job", "mode", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tillsync",
			Subsystem: "replication",
			Name:      "run_duration_seconds",
			Help:      "Wall time of sync runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"job", "mode"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tillsync",
			Subsystem: "replication",
			Name:      "last_success_timestamp_seconds",
			Help:      "Start time of the last sync run that advanced the cursor.",
		}, []string{"job"}),
	}
	if reg != nil {
		reg.MustRegister(m.records, m.runs, m.duration, m.lastSuccess)
	}
	return m
}

// ObserveRun records a finished run
func (m *Metrics) ObserveRun(job string, summary *RunSummary, err error) {
	if m == nil || summary == nil {
		return
	}
	mode := string(summary.Mode)
	m.runs.WithLabelValues(job, mode, Classify(err)).Inc()
	if !summary.FinishedAt.IsZero() {
		m.duration.WithLabelValues(job, mode).Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	}
	for e, c := range summary.Counts {
		m.records.WithLabelValues(string(e), string(OutcomeCreated)).Add(float64(c.Created))
		m.records.WithLabelValues(string(e), string(OutcomeUpdated)).Add(float64(c.Updated))
		m.records.WithLabelValues(string(e), string(OutcomeSkipped)).Add(float64(c.Skipped))
		m.records.WithLabelValues(string(e), string(OutcomeFailed)).Add(float64(c.Failed))
	}
	if err == nil && summary.CursorAdvanced {
		m.lastSuccess.WithLabelValues(job).Set(float64(summary.StartedAt.Unix()))
	}
}
