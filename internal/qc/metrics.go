package qc

import "github.com/prometheus/client_golang/prometheus"

// Prometheus QC metrics.
var (
	measurementsClassified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labgraph_qc_measurements_classified_total",
			Help: "Control measurements classified at ingestion, by sigma zone.",
		},
		[]string{"analyte", "level", "zone"},
	)
	measurementsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labgraph_qc_measurements_rejected_total",
			Help: "Control measurements rejected at ingestion, by reason.",
		},
		[]string{"reason"},
	)
	violationsDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labgraph_qc_violations_total",
			Help: "Control measurements flagged as violations.",
		},
		[]string{"analyte", "level"},
	)
	reportsGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "labgraph_qc_reports_generated_total",
			Help: "Scheduled QC reports stored.",
		},
	)
	lastTotalError = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "labgraph_qc_total_error_percent",
			Help: "Total error percentage from the most recent report per group.",
		},
		[]string{"analyte", "level"},
	)
)

func init() {
	prometheus.MustRegister(
		measurementsClassified,
		measurementsRejected,
		violationsDetected,
		reportsGenerated,
		lastTotalError,
	)
}
