package spc

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Classifier maps measurements to sigma zones. It holds only configuration
// copied at construction and is safe for concurrent use.
type Classifier struct {
	violation [4]bool
}

// NewClassifier returns a Classifier using the violation set from opts.
func NewClassifier(opts Options) (*Classifier, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("classifier options: %w", err)
	}
	return &Classifier{violation: opts.violationSet()}, nil
}

// Classify classifies m against its own target mean and SD.
func (c *Classifier) Classify(m Measurement) (ClassificationResult, error) {
	return c.ClassifyValue(m.Value, m.TargetMean, m.TargetSD)
}

// ClassifyValue computes (value - targetMean) / targetSD and buckets it.
// targetSD must be strictly positive and every input finite.
func (c *Classifier) ClassifyValue(value, targetMean, targetSD float64) (ClassificationResult, error) {
	d, err := sigmaDeviation(value, targetMean, targetSD)
	if err != nil {
		return ClassificationResult{}, err
	}
	zone := zoneFor(d)
	return ClassificationResult{
		Zone:           zone,
		SigmaDeviation: d,
		IsViolation:    c.violation[zone.Magnitude()],
	}, nil
}

// BatchResult pairs a batch item's classification with its own error.
type BatchResult struct {
	Result ClassificationResult
	Err    error
}

// ClassifyBatch classifies every measurement independently. Results are
// returned in input order; a failure affects only its own slot.
func (c *Classifier) ClassifyBatch(ms []Measurement) []BatchResult {
	out := make([]BatchResult, len(ms))
	if len(ms) == 0 {
		return out
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range ms {
		g.Go(func() error {
			r, err := c.Classify(ms[i])
			out[i] = BatchResult{Result: r, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Classify classifies m with the default violation set {2, 3}.
func Classify(m Measurement) (ClassificationResult, error) {
	d, err := sigmaDeviation(m.Value, m.TargetMean, m.TargetSD)
	if err != nil {
		return ClassificationResult{}, err
	}
	zone := zoneFor(d)
	return ClassificationResult{Zone: zone, SigmaDeviation: d, IsViolation: zone.Violation()}, nil
}

// SigmaDeviation returns (value - targetMean) / targetSD after validating
// the inputs the same way Classify does.
func SigmaDeviation(value, targetMean, targetSD float64) (float64, error) {
	return sigmaDeviation(value, targetMean, targetSD)
}

// A non-positive SD is reported before any other problem with the inputs.
func sigmaDeviation(value, targetMean, targetSD float64) (float64, error) {
	if targetSD <= 0 {
		return 0, fmt.Errorf("%w: target sd must be positive, got %v", ErrInvalidReferenceRange, targetSD)
	}
	if err := checkFinite("target sd", targetSD); err != nil {
		return 0, err
	}
	if err := checkFinite("value", value); err != nil {
		return 0, err
	}
	if err := checkFinite("target mean", targetMean); err != nil {
		return 0, err
	}
	d := (value - targetMean) / targetSD
	if !finite(d) {
		return 0, fmt.Errorf("%w: sigma deviation overflows (value %v, target mean %v, sd %v)",
			ErrInvalidMeasurement, value, targetMean, targetSD)
	}
	return d, nil
}
