package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/LabGraphTeam/labgraph/internal/store"
	"github.com/LabGraphTeam/labgraph/pkg/models"
)

// NewStore opens an in-memory SQLite store that is closed when the test ends.
func NewStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// NewControlRecord returns a classified ControlRecord with sensible defaults,
// suitable for test fixtures. Override individual fields with options.
func NewControlRecord(opts ...func(*models.ControlRecord)) models.ControlRecord {
	now := time.Now().UTC()
	r := models.ControlRecord{
		ID:              uuid.New().String(),
		Analyte:         "glucose",
		Level:           "normal",
		Value:           101,
		TargetMean:      100,
		TargetSD:        2,
		Unit:            "mg/dL",
		RuleCode:        "+1s",
		RuleDescription: "within one standard deviation above the mean",
		SigmaDeviation:  0.5,
		MeasuredAt:      now,
		CreatedAt:       now,
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// WithGroup sets the analyte and control level.
func WithGroup(analyte, level string) func(*models.ControlRecord) {
	return func(r *models.ControlRecord) {
		r.Analyte = analyte
		r.Level = level
	}
}

// WithDeviation sets the value from the target and a sigma deviation and
// flags the record as a violation at two sigma or more.
func WithDeviation(d float64) func(*models.ControlRecord) {
	return func(r *models.ControlRecord) {
		r.SigmaDeviation = d
		r.Value = r.TargetMean + d*r.TargetSD
		r.Violation = d >= 2 || d <= -2
	}
}

// WithRule sets the rule code and description.
func WithRule(code, description string) func(*models.ControlRecord) {
	return func(r *models.ControlRecord) {
		r.RuleCode = code
		r.RuleDescription = description
	}
}

// WithMeasuredAt sets both measured_at and created_at.
func WithMeasuredAt(t time.Time) func(*models.ControlRecord) {
	return func(r *models.ControlRecord) {
		r.MeasuredAt = t
		r.CreatedAt = t
	}
}

// NewReport returns a persisted-shape Report for the given group.
func NewReport(analyte, level string, generatedAt time.Time) models.Report {
	return models.Report{
		ID: uuid.New().String(),
		ErrorSummary: models.ErrorSummary{
			Analyte:            analyte,
			Level:              level,
			WindowStart:        generatedAt.Add(-30 * 24 * time.Hour),
			WindowEnd:          generatedAt,
			TargetMean:         100,
			CalculatedMean:     101,
			CalculatedSD:       1.5,
			InaccuracyPct:      1,
			SystematicErrorPct: 2,
			RandomErrorPct:     3,
			TotalErrorPct:      5,
			SampleSize:         20,
		},
		GeneratedAt: generatedAt,
	}
}
