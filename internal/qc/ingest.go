package qc

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/LabGraphTeam/labgraph/internal/spc"
	"github.com/LabGraphTeam/labgraph/pkg/models"
	"github.com/LabGraphTeam/labgraph/pkg/plugin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrStoreUnavailable is returned by operations that need persistence
	// when the module was initialized without a store.
	ErrStoreUnavailable = errors.New("qc store not configured")
	// ErrMissingReference is the rejection cause for an input without target
	// values and no reference range on file.
	ErrMissingReference = errors.New("no reference range")
	// ErrMissingField is the rejection cause for an input without analyte or level.
	ErrMissingField = errors.New("analyte and level are required")
)

type groupKey struct{ analyte, level string }

// Ingest classifies and stores a batch of control results. Inputs that fail
// validation or classification are returned in Rejected and never stored;
// the others are persisted together. A storage failure fails the whole call.
func (m *Module) Ingest(ctx context.Context, inputs []models.MeasurementInput) (models.IngestResult, error) {
	result := models.IngestResult{
		Accepted: []models.ControlRecord{},
		Rejected: []models.Rejection{},
	}
	if m.store == nil {
		return result, ErrStoreUnavailable
	}

	now := m.now()
	refs := make(map[groupKey]*models.ReferenceRange)
	pending := make([]models.ControlRecord, 0, len(inputs))
	positions := make([]int, 0, len(inputs))
	batch := make([]spc.Measurement, 0, len(inputs))

	reject := func(i int, in models.MeasurementInput, reason string, cause error) {
		measurementsRejected.WithLabelValues(reason).Inc()
		result.Rejected = append(result.Rejected, models.Rejection{
			Index:   i,
			Analyte: in.Analyte,
			Level:   in.Level,
			Reason:  cause.Error(),
		})
	}

	for i, in := range inputs {
		if in.Analyte == "" || in.Level == "" {
			reject(i, in, "missing_field", ErrMissingField)
			continue
		}

		mean, sd, unit, err := m.resolveTargets(ctx, in, refs)
		if errors.Is(err, ErrMissingReference) {
			reject(i, in, "no_reference", err)
			continue
		}
		if err != nil {
			return result, err
		}

		measuredAt := in.MeasuredAt
		if measuredAt.IsZero() {
			measuredAt = now
		}

		pending = append(pending, models.ControlRecord{
			ID:         uuid.NewString(),
			Analyte:    in.Analyte,
			Level:      in.Level,
			Value:      in.Value,
			TargetMean: mean,
			TargetSD:   sd,
			Unit:       unit,
			MeasuredAt: measuredAt.UTC(),
			CreatedAt:  now,
		})
		positions = append(positions, i)
		batch = append(batch, spc.Measurement{
			Value:        in.Value,
			TargetMean:   mean,
			TargetSD:     sd,
			AnalyteName:  in.Analyte,
			ControlLevel: in.Level,
			Timestamp:    measuredAt,
		})
	}

	classified := m.classifier.ClassifyBatch(batch)
	accepted := pending[:0]
	for j, br := range classified {
		if br.Err != nil {
			reject(positions[j], inputs[positions[j]], rejectionReason(br.Err), br.Err)
			continue
		}
		rec := pending[j]
		applyClassification(&rec, br.Result)
		accepted = append(accepted, rec)
	}

	if err := m.store.InsertMeasurements(ctx, accepted); err != nil {
		return result, fmt.Errorf("store measurements: %w", err)
	}

	slices.SortFunc(result.Rejected, func(a, b models.Rejection) int { return cmp.Compare(a.Index, b.Index) })
	result.Accepted = append(result.Accepted, accepted...)

	m.announce(ctx, result.Accepted)

	m.logger.Info("measurements ingested",
		zap.Int("accepted", len(result.Accepted)),
		zap.Int("rejected", len(result.Rejected)),
	)
	return result, nil
}

// resolveTargets returns the target mean, SD and unit for an input, filling
// omitted values from the reference range table. Lookups are cached per call.
func (m *Module) resolveTargets(ctx context.Context, in models.MeasurementInput, cache map[groupKey]*models.ReferenceRange) (mean, sd float64, unit string, err error) {
	unit = in.Unit
	if in.TargetMean != nil && in.TargetSD != nil {
		return *in.TargetMean, *in.TargetSD, unit, nil
	}

	key := groupKey{in.Analyte, in.Level}
	ref, ok := cache[key]
	if !ok {
		ref, err = m.store.GetReference(ctx, in.Analyte, in.Level)
		if errors.Is(err, ErrNotFound) {
			ref, err = nil, nil
		}
		if err != nil {
			return 0, 0, "", err
		}
		cache[key] = ref
	}
	if ref == nil {
		return 0, 0, "", fmt.Errorf("%w for %s/%s", ErrMissingReference, in.Analyte, in.Level)
	}

	mean, sd = ref.TargetMean, ref.TargetSD
	if in.TargetMean != nil {
		mean = *in.TargetMean
	}
	if in.TargetSD != nil {
		sd = *in.TargetSD
	}
	if unit == "" {
		unit = ref.Unit
	}
	return mean, sd, unit, nil
}

// announce records metrics and publishes one classified event per record and
// one violation batch for the violating subset.
func (m *Module) announce(ctx context.Context, recs []models.ControlRecord) {
	var violations []models.ControlRecord
	for i := range recs {
		r := recs[i]
		measurementsClassified.WithLabelValues(r.Analyte, r.Level, r.RuleCode).Inc()
		if r.Violation {
			violationsDetected.WithLabelValues(r.Analyte, r.Level).Inc()
			violations = append(violations, r)
		}
		m.publish(ctx, TopicMeasurementClassified, r)
	}

	if len(violations) == 0 {
		return
	}
	m.logger.Warn("qc violations detected",
		zap.Int("count", len(violations)),
		zap.String("first_analyte", violations[0].Analyte),
		zap.String("first_rule", violations[0].RuleCode),
	)
	m.publish(ctx, TopicViolationsDetected, models.ViolationBatch{
		Records:    violations,
		DetectedAt: m.now(),
	})
}

func (m *Module) publish(ctx context.Context, topic string, payload any) {
	if m.bus == nil {
		return
	}
	_ = m.bus.Publish(ctx, plugin.Event{
		Topic:     topic,
		Source:    moduleName,
		Timestamp: m.now(),
		Payload:   payload,
	})
}

func applyClassification(rec *models.ControlRecord, res spc.ClassificationResult) {
	rec.RuleCode = res.Zone.Code()
	rec.RuleDescription = res.Zone.Description()
	rec.SigmaDeviation = res.SigmaDeviation
	rec.Violation = res.IsViolation
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, spc.ErrInvalidReferenceRange):
		return "invalid_reference_range"
	case errors.Is(err, spc.ErrInvalidMeasurement):
		return "invalid_measurement"
	default:
		return "other"
	}
}
