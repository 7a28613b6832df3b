// Package models provides the public data types exchanged by LabGraph
// modules and returned by the HTTP API.
package models

import "time"

// MeasurementInput is one control result submitted for ingestion.
// TargetMean and TargetSD may be omitted when a reference range is on file
// for the analyte and level.
type MeasurementInput struct {
	Analyte    string    `json:"analyte" yaml:"analyte" example:"glucose"`
	Level      string    `json:"level" yaml:"level" example:"normal"`
	Value      float64   `json:"value" yaml:"value" example:"120.5"`
	TargetMean *float64  `json:"target_mean,omitempty" yaml:"target_mean,omitempty" example:"118"`
	TargetSD   *float64  `json:"target_sd,omitempty" yaml:"target_sd,omitempty" example:"2.85"`
	Unit       string    `json:"unit,omitempty" yaml:"unit,omitempty" example:"mg/dL"`
	MeasuredAt time.Time `json:"measured_at" yaml:"measured_at"`
}

// ControlRecord is a persisted, classified control measurement.
type ControlRecord struct {
	ID              string    `json:"id"`
	Analyte         string    `json:"analyte"`
	Level           string    `json:"level"`
	Value           float64   `json:"value"`
	TargetMean      float64   `json:"target_mean"`
	TargetSD        float64   `json:"target_sd"`
	Unit            string    `json:"unit,omitempty"`
	RuleCode        string    `json:"rule_code" example:"+2s"`
	RuleDescription string    `json:"rule_description"`
	SigmaDeviation  float64   `json:"sigma_deviation"`
	Violation       bool      `json:"violation"`
	MeasuredAt      time.Time `json:"measured_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// Rejection explains why one submitted input was not accepted.
type Rejection struct {
	Index   int    `json:"index"`
	Analyte string `json:"analyte"`
	Level   string `json:"level"`
	Reason  string `json:"reason"`
}

// IngestResult is the outcome of one ingestion batch.
type IngestResult struct {
	Accepted []ControlRecord `json:"accepted"`
	Rejected []Rejection     `json:"rejected"`
}

// ReferenceRange is the accepted target mean and SD for an analyte at a
// control level.
type ReferenceRange struct {
	Analyte    string    `json:"analyte" yaml:"analyte"`
	Level      string    `json:"level" yaml:"level"`
	TargetMean float64   `json:"target_mean" yaml:"target_mean"`
	TargetSD   float64   `json:"target_sd" yaml:"target_sd"`
	Unit       string    `json:"unit,omitempty" yaml:"unit,omitempty"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"-"`
}

// ControlGroup summarizes stored measurements for one analyte and level.
type ControlGroup struct {
	Analyte        string    `json:"analyte"`
	Level          string    `json:"level"`
	Count          int       `json:"count"`
	Violations     int       `json:"violations"`
	LastMeasuredAt time.Time `json:"last_measured_at"`
}

// WestgardHit is one multirule rejection within a control series.
type WestgardHit struct {
	Rule          string    `json:"rule" example:"2-2s"`
	MeasurementID string    `json:"measurement_id"`
	Deviation     float64   `json:"deviation"`
	MeasuredAt    time.Time `json:"measured_at"`
}

// ErrorSummary is the error budget for one analyte and level over a window.
type ErrorSummary struct {
	Analyte            string    `json:"analyte"`
	Level              string    `json:"level"`
	WindowStart        time.Time `json:"window_start"`
	WindowEnd          time.Time `json:"window_end"`
	TargetMean         float64   `json:"target_mean"`
	CalculatedMean     float64   `json:"calculated_mean"`
	CalculatedSD       float64   `json:"calculated_sd"`
	InaccuracyPct      float64   `json:"inaccuracy_pct"`
	SystematicErrorPct float64   `json:"systematic_error_pct"`
	RandomErrorPct     float64   `json:"random_error_pct"`
	TotalErrorPct      float64   `json:"total_error_pct"`
	SampleSize         int       `json:"sample_size"`
	LowConfidence      bool      `json:"low_confidence"`
}

// Report is a stored, scheduled QC summary for one analyte and level.
type Report struct {
	ID string `json:"id"`
	ErrorSummary
	WestgardHits []WestgardHit `json:"westgard_hits"`
	GeneratedAt  time.Time     `json:"generated_at"`
}

// ViolationBatch carries the violating records of one ingestion call.
type ViolationBatch struct {
	Records    []ControlRecord `json:"records"`
	DetectedAt time.Time       `json:"detected_at"`
}

// ReportBatch carries the reports produced by one scheduled run.
type ReportBatch struct {
	Reports     []Report  `json:"reports"`
	Skipped     int       `json:"skipped"`
	GeneratedAt time.Time `json:"generated_at"`
}
