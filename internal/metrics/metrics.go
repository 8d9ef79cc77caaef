package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels fully recorded diagnoses.
	OutcomeSuccess = "success"
	// OutcomeInvalid labels diagnoses rejected by validation.
	OutcomeInvalid = "invalid"
	// OutcomeError labels diagnoses that failed in the classifier or the store.
	OutcomeError = "error"
)

var (
	diagnosesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "anemia_triage",
			Name:      "diagnoses_total",
			Help:      "Total number of diagnoses handled, partitioned by outcome and predicted severity.",
		},
		[]string{"outcome", "severity"},
	)

	diagnosisDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "anemia_triage",
			Name:      "diagnosis_seconds",
			Help:      "Diagnosis latency in seconds, validation through persistence.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	historyReadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "anemia_triage",
			Name:      "history_reads_total",
			Help:      "Total number of history listings, partitioned by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register attaches the triage collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		diagnosesTotal,
		diagnosisDurationSeconds,
		historyReadsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveDiagnosis records one diagnosis duration, outcome, and severity label.
func ObserveDiagnosis(duration time.Duration, outcome, severity string) {
	diagnosesTotal.WithLabelValues(outcome, severity).Inc()
	if duration < 0 {
		duration = 0
	}
	diagnosisDurationSeconds.Observe(duration.Seconds())
}

// ObserveHistoryRead records one history listing outcome.
func ObserveHistoryRead(outcome string) {
	historyReadsTotal.WithLabelValues(outcome).Inc()
}
