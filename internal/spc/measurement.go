package spc

import (
	"fmt"
	"math"
	"time"
)

// Measurement is one control result together with the reference values it
// is judged against.
type Measurement struct {
	Value        float64
	TargetMean   float64
	TargetSD     float64
	AnalyteName  string
	ControlLevel string
	Timestamp    time.Time
}

// ClassificationResult is the outcome of classifying one measurement.
type ClassificationResult struct {
	Zone           SigmaZone `json:"zone"`
	SigmaDeviation float64   `json:"sigma_deviation"`
	IsViolation    bool      `json:"is_violation"`
}

// Description returns the zone description to persist with the measurement.
func (r ClassificationResult) Description() string {
	return r.Zone.Description()
}

// ErrorStatistics is the error budget for one analyte/level group.
// Percentages are rounded to the configured precision.
type ErrorStatistics struct {
	AnalyteName        string  `json:"analyte_name"`
	ControlLevel       string  `json:"control_level"`
	TargetMean         float64 `json:"target_mean"`
	CalculatedMean     float64 `json:"calculated_mean"`
	CalculatedSD       float64 `json:"calculated_sd"`
	InaccuracyPct      float64 `json:"inaccuracy_pct"`
	SystematicErrorPct float64 `json:"systematic_error_pct"`
	RandomErrorPct     float64 `json:"random_error_pct"`
	TotalErrorPct      float64 `json:"total_error_pct"`
	SampleSize         int     `json:"sample_size"`
}

// LowConfidence reports whether the statistics rest on a single sample,
// in which case CalculatedSD is 0 by definition rather than by observation.
func (s ErrorStatistics) LowConfidence() bool {
	return s.SampleSize < 2
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func checkFinite(name string, v float64) error {
	if !finite(v) {
		return fmt.Errorf("%w: %s is %v", ErrInvalidMeasurement, name, v)
	}
	return nil
}
