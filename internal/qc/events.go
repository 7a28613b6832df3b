package qc

// Event topics published by the QC module.
const (
	// Payload: models.ControlRecord
	TopicMeasurementClassified = "qc.measurement.classified"
	// Payload: models.ViolationBatch
	TopicViolationsDetected = "qc.violations.detected"
	// Payload: models.ReportBatch
	TopicReportGenerated = "qc.report.generated"
)
