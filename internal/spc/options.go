package spc

import (
	"fmt"
	"math"
)

// Engine defaults.
const (
	// DefaultConfidenceMultiplier is the two-sided 95% z value used by the
	// systematic and random error formulas.
	DefaultConfidenceMultiplier = 1.96

	// DefaultPrecision is the number of decimal places reported percentages
	// are rounded to.
	DefaultPrecision = 2

	maxPrecision = 10
)

// DefaultViolationSigmas returns the zone magnitudes flagged as violations
// unless configured otherwise.
func DefaultViolationSigmas() []int {
	return []int{2, 3}
}

// Options configures a Classifier and an Aggregator.
type Options struct {
	// ConfidenceMultiplier scales the sample SD in the systematic and random
	// error formulas.
	ConfidenceMultiplier float64 `mapstructure:"confidence_multiplier"`

	// ViolationSigmas lists the zone magnitudes (1, 2, 3) whose zones are
	// reported as violations.
	ViolationSigmas []int `mapstructure:"violation_sigmas"`

	// Precision is the decimal places used for reported percentages.
	Precision int `mapstructure:"precision"`
}

// DefaultOptions returns 1.96, {2, 3} and 2 decimal places.
func DefaultOptions() Options {
	return Options{
		ConfidenceMultiplier: DefaultConfidenceMultiplier,
		ViolationSigmas:      DefaultViolationSigmas(),
		Precision:            DefaultPrecision,
	}
}

// Validate checks that every option is usable.
func (o Options) Validate() error {
	if math.IsNaN(o.ConfidenceMultiplier) || math.IsInf(o.ConfidenceMultiplier, 0) || o.ConfidenceMultiplier <= 0 {
		return fmt.Errorf("confidence multiplier must be a positive finite number, got %v", o.ConfidenceMultiplier)
	}
	for _, s := range o.ViolationSigmas {
		if s < 1 || s > 3 {
			return fmt.Errorf("violation sigma %d out of range: must be 1, 2 or 3", s)
		}
	}
	if o.Precision < 0 || o.Precision > maxPrecision {
		return fmt.Errorf("precision %d out of range: must be between 0 and %d", o.Precision, maxPrecision)
	}
	return nil
}

// violationSet copies ViolationSigmas into a lookup indexed by magnitude.
func (o Options) violationSet() [4]bool {
	var set [4]bool
	for _, s := range o.ViolationSigmas {
		if s >= 1 && s <= 3 {
			set[s] = true
		}
	}
	return set
}
