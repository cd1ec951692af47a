// Package observability exposes Prometheus instrumentation for the
// statement pipeline. Metrics describe processing behavior only and
// never carry account or transaction values.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RunsTotal         *prometheus.CounterVec
	RunDuration       prometheus.Histogram
	ExtractorDuration *prometheus.HistogramVec
	ExtractorErrors   *prometheus.CounterVec
	RecordsTotal      *prometheus.CounterVec
	DisputedFields    prometheus.Counter
	RuleViolations    *prometheus.CounterVec
}

// NewMetrics registers the pipeline metric set on reg. Pass
// prometheus.DefaultRegisterer outside tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statement",
			Name:      "runs_total",
			Help:      "Pipeline runs by final status and document format.",
		}, []string{"status", "format"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "statement",
			Name:      "run_duration_seconds",
			Help:      "End to end pipeline latency per document.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		ExtractorDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "statement",
			Name:      "extractor_duration_seconds",
			Help:      "Per extractor latency.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"extractor"}),
		ExtractorErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statement",
			Name:      "extractor_errors_total",
			Help:      "Extractor failures and timeouts.",
		}, []string{"extractor", "reason"}),
		RecordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statement",
			Name:      "records_total",
			Help:      "Validated records by verdict.",
		}, []string{"verdict"}),
		DisputedFields: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "statement",
			Name:      "disputed_fields_total",
			Help:      "Fields where extractors disagreed beyond tolerance.",
		}),
		RuleViolations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statement",
			Name:      "rule_violations_total",
			Help:      "Validation rule hits by rule id.",
		}, []string{"rule"}),
	}
}
