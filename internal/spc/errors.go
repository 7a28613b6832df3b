package spc

import "errors"

// Engine errors. Returned wrapped with detail; match with errors.Is.
var (
	// ErrInvalidReferenceRange: target SD is not positive, or the target
	// mean is zero where it is used as a percentage divisor.
	ErrInvalidReferenceRange = errors.New("invalid reference range")

	// ErrInvalidMeasurement: a numeric input is NaN or infinite.
	ErrInvalidMeasurement = errors.New("invalid measurement")

	// ErrHeterogeneousGroup: an aggregation input mixes analytes or levels.
	ErrHeterogeneousGroup = errors.New("heterogeneous measurement group")

	// ErrInsufficientSample: an aggregation input has no measurements.
	ErrInsufficientSample = errors.New("insufficient sample")
)
