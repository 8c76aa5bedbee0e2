package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	tabularValidation = "tabular_validation"

	jobsTotal           = "jobs_total"
	rowsValidatedTotal  = "rows_validated_total"
	findingsTotal       = "findings_total"
	jobDurationSeconds  = "job_duration_seconds"
	eventsPublishErrors = "event_publish_errors_total"

	// Labels
	jobStatusLabel = "status"
	severityLabel  = "severity"
)

var jobsTotalLabels = []string{
	jobStatusLabel,
}

var findingsTotalLabels = []string{
	severityLabel,
}

/**
* Metrics definition
**/
var jobsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: tabularValidation,
		Name:      jobsTotal,
		Help:      "number of validation jobs by terminal status",
	},
	jobsTotalLabels,
)

var rowsValidatedTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: tabularValidation,
		Name:      rowsValidatedTotal,
		Help:      "number of rows run through the rule engine",
	},
)

var findingsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: tabularValidation,
		Name:      findingsTotal,
		Help:      "number of findings produced by severity",
	},
	findingsTotalLabels,
)

var jobDurationMetric = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Subsystem: tabularValidation,
		Name:      jobDurationSeconds,
		Help:      "wall-clock duration of validation jobs",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 12),
	},
)

var eventPublishErrorsMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: tabularValidation,
		Name:      eventsPublishErrors,
		Help:      "number of failed event publishes",
	},
)

func IncreaseJobsTotalMetric(status string) {
	jobsTotalMetric.With(prometheus.Labels{jobStatusLabel: status}).Inc()
}

func AddRowsValidatedMetric(rows int) {
	rowsValidatedTotalMetric.Add(float64(rows))
}

func IncreaseFindingsMetric(severity string, count int) {
	findingsTotalMetric.With(prometheus.Labels{severityLabel: severity}).Add(float64(count))
}

func ObserveJobDurationMetric(d time.Duration) {
	jobDurationMetric.Observe(d.Seconds())
}

func IncreaseEventPublishErrorsMetric() {
	eventPublishErrorsMetric.Inc()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsTotalMetric)
	prometheus.MustRegister(rowsValidatedTotalMetric)
	prometheus.MustRegister(findingsTotalMetric)
	prometheus.MustRegister(jobDurationMetric)
	prometheus.MustRegister(eventPublishErrorsMetric)
}
