package spc

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Aggregator computes the error budget for a group of measurements that
// share an analyte and control level.
type Aggregator struct {
	multiplier float64
	precision  int
}

// NewAggregator returns an Aggregator using the confidence multiplier and
// precision from opts.
func NewAggregator(opts Options) (*Aggregator, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("aggregator options: %w", err)
	}
	return &Aggregator{multiplier: opts.ConfidenceMultiplier, precision: opts.Precision}, nil
}

// ComputeErrorStatistics computes the error budget with default options.
func ComputeErrorStatistics(ms []Measurement, targetMean float64) (ErrorStatistics, error) {
	a := Aggregator{multiplier: DefaultConfidenceMultiplier, precision: DefaultPrecision}
	return a.ComputeErrorStatistics(ms, targetMean)
}

// ComputeErrorStatistics computes mean, sample SD and the inaccuracy,
// systematic, random and total error percentages of ms against targetMean,
// the most recently accepted reference mean for the group.
//
//	inaccuracy = (mean - target) / target * 100
//	systematic = ((mean - target) + k*sd) / target * 100
//	random     = k*sd / |target| * 100
//	total      = |inaccuracy| + random
//
// With a single measurement the SD is 0 and the result reports
// LowConfidence. Rounding is applied only to the returned percentages.
func (a *Aggregator) ComputeErrorStatistics(ms []Measurement, targetMean float64) (ErrorStatistics, error) {
	if len(ms) == 0 {
		return ErrorStatistics{}, fmt.Errorf("%w: no measurements in group", ErrInsufficientSample)
	}
	if err := checkFinite("target mean", targetMean); err != nil {
		return ErrorStatistics{}, err
	}
	if targetMean == 0 {
		return ErrorStatistics{}, fmt.Errorf("%w: target mean is zero", ErrInvalidReferenceRange)
	}

	analyte, level := ms[0].AnalyteName, ms[0].ControlLevel
	values := make([]float64, len(ms))
	for i := range ms {
		if ms[i].AnalyteName != analyte || ms[i].ControlLevel != level {
			return ErrorStatistics{}, fmt.Errorf("%w: %s/%s mixed with %s/%s at index %d",
				ErrHeterogeneousGroup, analyte, level, ms[i].AnalyteName, ms[i].ControlLevel, i)
		}
		if err := checkFinite(fmt.Sprintf("value at index %d", i), ms[i].Value); err != nil {
			return ErrorStatistics{}, err
		}
		values[i] = ms[i].Value
	}

	mean, sd := values[0], 0.0
	if len(values) > 1 {
		mean, sd = stat.MeanStdDev(values, nil)
	}

	bias := mean - targetMean
	spread := a.multiplier * sd
	inaccuracy := round(bias/targetMean*100, a.precision)
	systematic := round((bias+spread)/targetMean*100, a.precision)
	random := round(spread/math.Abs(targetMean)*100, a.precision)
	total := round(math.Abs(bias/targetMean*100)+spread/math.Abs(targetMean)*100, a.precision)

	// Large finite inputs can still overflow the sums above.
	for _, r := range []struct {
		name string
		v    float64
	}{
		{"calculated mean", mean},
		{"calculated sd", sd},
		{"inaccuracy", inaccuracy},
		{"systematic error", systematic},
		{"random error", random},
		{"total error", total},
	} {
		if !finite(r.v) {
			return ErrorStatistics{}, fmt.Errorf("%w: %s overflows", ErrInvalidMeasurement, r.name)
		}
	}

	return ErrorStatistics{
		AnalyteName:        analyte,
		ControlLevel:       level,
		TargetMean:         targetMean,
		CalculatedMean:     mean,
		CalculatedSD:       sd,
		InaccuracyPct:      inaccuracy,
		SystematicErrorPct: systematic,
		RandomErrorPct:     random,
		TotalErrorPct:      total,
		SampleSize:         len(values),
	}, nil
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
