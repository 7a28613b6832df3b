package qc

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/LabGraphTeam/labgraph/internal/spc"
	"github.com/LabGraphTeam/labgraph/pkg/models"
	"go.uber.org/zap"
)

// Statistics computes the error budget for one analyte and level over
// [from, to]. The target mean of the most recent measurement in the window
// is the accepted reference. An empty window yields spc.ErrInsufficientSample.
func (m *Module) Statistics(ctx context.Context, analyte, level string, from, to time.Time) (models.ErrorSummary, error) {
	if m.store == nil {
		return models.ErrorSummary{}, ErrStoreUnavailable
	}
	series, err := m.store.GroupSeries(ctx, analyte, level, from, to)
	if err != nil {
		return models.ErrorSummary{}, err
	}
	return m.summarize(analyte, level, series, from, to)
}

func (m *Module) summarize(analyte, level string, series []models.ControlRecord, from, to time.Time) (models.ErrorSummary, error) {
	if len(series) == 0 {
		return models.ErrorSummary{}, fmt.Errorf("%w: no measurements for %s/%s in window", spc.ErrInsufficientSample, analyte, level)
	}

	ms := make([]spc.Measurement, len(series))
	for i, r := range series {
		ms[i] = toMeasurement(r)
	}
	target := series[len(series)-1].TargetMean

	stats, err := m.aggregator.ComputeErrorStatistics(ms, target)
	if err != nil {
		return models.ErrorSummary{}, err
	}

	if from.IsZero() {
		from = series[0].MeasuredAt
	}
	if to.IsZero() {
		to = series[len(series)-1].MeasuredAt
	}
	return models.ErrorSummary{
		Analyte:            stats.AnalyteName,
		Level:              stats.ControlLevel,
		WindowStart:        from.UTC(),
		WindowEnd:          to.UTC(),
		TargetMean:         stats.TargetMean,
		CalculatedMean:     stats.CalculatedMean,
		CalculatedSD:       stats.CalculatedSD,
		InaccuracyPct:      stats.InaccuracyPct,
		SystematicErrorPct: stats.SystematicErrorPct,
		RandomErrorPct:     stats.RandomErrorPct,
		TotalErrorPct:      stats.TotalErrorPct,
		SampleSize:         stats.SampleSize,
		LowConfidence:      stats.LowConfidence(),
	}, nil
}

// Westgard evaluates the multirules over the stored sigma deviations of one
// analyte and level in chronological order.
func (m *Module) Westgard(ctx context.Context, analyte, level string, from, to time.Time) ([]models.WestgardHit, error) {
	if m.store == nil {
		return nil, ErrStoreUnavailable
	}
	series, err := m.store.GroupSeries(ctx, analyte, level, from, to)
	if err != nil {
		return nil, err
	}
	return westgardHits(series), nil
}

func westgardHits(series []models.ControlRecord) []models.WestgardHit {
	deviations := make([]float64, len(series))
	for i, r := range series {
		deviations[i] = r.SigmaDeviation
	}

	hits := []models.WestgardHit{}
	for _, h := range spc.EvaluateWestgard(deviations) {
		r := series[h.Index]
		hits = append(hits, models.WestgardHit{
			Rule:          string(h.Rule),
			MeasurementID: r.ID,
			Deviation:     h.Deviation,
			MeasuredAt:    r.MeasuredAt,
		})
	}
	return hits
}

// UpdateReference replaces the target mean and SD of a stored measurement
// and reclassifies it. This is the only path that changes a stored rule.
func (m *Module) UpdateReference(ctx context.Context, id string, targetMean, targetSD float64) (*models.ControlRecord, error) {
	if m.store == nil {
		return nil, ErrStoreUnavailable
	}
	rec, err := m.store.GetMeasurement(ctx, id)
	if err != nil {
		return nil, err
	}

	res, err := m.classifier.ClassifyValue(rec.Value, targetMean, targetSD)
	if err != nil {
		return nil, err
	}

	prev := rec.RuleCode
	rec.TargetMean = targetMean
	rec.TargetSD = targetSD
	applyClassification(rec, res)
	if err := m.store.UpdateClassification(ctx, rec); err != nil {
		return nil, err
	}

	m.logger.Info("measurement reclassified",
		zap.String("id", rec.ID),
		zap.String("analyte", rec.Analyte),
		zap.String("from_rule", prev),
		zap.String("to_rule", rec.RuleCode),
	)
	m.publish(ctx, TopicMeasurementClassified, *rec)
	return rec, nil
}

// SetReference validates and stores a reference range.
func (m *Module) SetReference(ctx context.Context, ref models.ReferenceRange) (*models.ReferenceRange, error) {
	if m.store == nil {
		return nil, ErrStoreUnavailable
	}
	if ref.Analyte == "" || ref.Level == "" {
		return nil, ErrMissingField
	}
	if math.IsNaN(ref.TargetMean) || math.IsInf(ref.TargetMean, 0) || math.IsNaN(ref.TargetSD) || math.IsInf(ref.TargetSD, 0) {
		return nil, fmt.Errorf("%w: reference values must be finite", spc.ErrInvalidMeasurement)
	}
	if ref.TargetSD <= 0 {
		return nil, fmt.Errorf("%w: target sd %v must be positive", spc.ErrInvalidReferenceRange, ref.TargetSD)
	}
	ref.UpdatedAt = m.now()
	if err := m.store.UpsertReference(ctx, &ref); err != nil {
		return nil, err
	}
	return &ref, nil
}

func toMeasurement(r models.ControlRecord) spc.Measurement {
	return spc.Measurement{
		Value:        r.Value,
		TargetMean:   r.TargetMean,
		TargetSD:     r.TargetSD,
		AnalyteName:  r.Analyte,
		ControlLevel: r.Level,
		Timestamp:    r.MeasuredAt,
	}
}
