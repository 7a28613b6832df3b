package qc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LabGraphTeam/labgraph/internal/testutil"
	"github.com/LabGraphTeam/labgraph/pkg/models"
)

func newTestStore(t *testing.T) *QCStore {
	t.Helper()
	db := testutil.NewStore(t)
	if err := db.Migrate(context.Background(), moduleName, migrations()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewQCStore(db.DB())
}

func record(analyte, level string, value, deviation float64, at time.Time) models.ControlRecord {
	return testutil.NewControlRecord(
		testutil.WithGroup(analyte, level),
		testutil.WithDeviation(deviation),
		testutil.WithMeasuredAt(at),
		func(r *models.ControlRecord) { r.Value = value },
	)
}

func TestQCStore_MeasurementFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := testNow.Add(-48 * time.Hour)

	recs := []models.ControlRecord{
		record("glucose", "normal", 101, 0.5, base),
		record("glucose", "normal", 105, 2.5, base.Add(time.Hour)),
		record("glucose", "high", 99, -0.5, base.Add(2*time.Hour)),
		record("sodium", "normal", 94, -3, base.Add(3*time.Hour)),
	}
	if err := s.InsertMeasurements(ctx, recs); err != nil {
		t.Fatalf("InsertMeasurements: %v", err)
	}

	tests := []struct {
		name   string
		filter MeasurementFilter
		want   int
	}{
		{"all", MeasurementFilter{}, 4},
		{"analyte", MeasurementFilter{Analyte: "glucose"}, 3},
		{"analyte and level", MeasurementFilter{Analyte: "glucose", Level: "normal"}, 2},
		{"violations", MeasurementFilter{ViolationsOnly: true}, 2},
		{"from", MeasurementFilter{From: base.Add(90 * time.Minute)}, 2},
		{"to inclusive", MeasurementFilter{To: base.Add(time.Hour)}, 2},
		{"limit", MeasurementFilter{Limit: 1}, 1},
		{"offset", MeasurementFilter{Offset: 3}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListMeasurements(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListMeasurements: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}

	all, _ := s.ListMeasurements(ctx, MeasurementFilter{})
	if all[0].Analyte != "sodium" {
		t.Errorf("first = %s, want newest (sodium)", all[0].Analyte)
	}
}

func TestQCStore_GroupSeriesChronological(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Inserted out of order; one timestamp crosses midnight in another zone.
	recs := []models.ControlRecord{
		record("glucose", "normal", 103, 1.5, testNow.Add(-1*time.Hour)),
		record("glucose", "normal", 101, 0.5, testNow.Add(-3*time.Hour).In(time.FixedZone("X", 9*3600))),
		record("glucose", "normal", 102, 1.0, testNow.Add(-2*time.Hour)),
		record("glucose", "high", 200, 0, testNow),
	}
	if err := s.InsertMeasurements(ctx, recs); err != nil {
		t.Fatalf("InsertMeasurements: %v", err)
	}

	series, err := s.GroupSeries(ctx, "glucose", "normal", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GroupSeries: %v", err)
	}
	if len(series) != 3 {
		t.Fatalf("len = %d, want 3", len(series))
	}
	for i, want := range []float64{101, 102, 103} {
		if series[i].Value != want {
			t.Errorf("series[%d].Value = %v, want %v", i, series[i].Value, want)
		}
	}
}

func TestQCStore_UpdateAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := record("glucose", "normal", 101, 0.5, testNow)
	if err := s.InsertMeasurements(ctx, []models.ControlRecord{r}); err != nil {
		t.Fatalf("InsertMeasurements: %v", err)
	}

	r.TargetMean, r.TargetSD = 95, 2
	r.RuleCode, r.SigmaDeviation, r.Violation = "+3s", 3, true
	if err := s.UpdateClassification(ctx, &r); err != nil {
		t.Fatalf("UpdateClassification: %v", err)
	}
	got, err := s.GetMeasurement(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetMeasurement: %v", err)
	}
	if got.RuleCode != "+3s" || !got.Violation || got.TargetMean != 95 {
		t.Errorf("after update = %+v", got)
	}

	if err := s.DeleteMeasurement(ctx, r.ID); err != nil {
		t.Fatalf("DeleteMeasurement: %v", err)
	}
	if _, err := s.GetMeasurement(ctx, r.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetMeasurement after delete err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteMeasurement(ctx, r.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
	missing := record("x", "y", 1, 0, testNow)
	if err := s.UpdateClassification(ctx, &missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("update of missing record err = %v, want ErrNotFound", err)
	}
}

func TestQCStore_DeleteBeforeAndGroups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	recs := []models.ControlRecord{
		record("glucose", "normal", 101, 0.5, testNow.Add(-72*time.Hour)),
		record("glucose", "normal", 105, 2.5, testNow.Add(-1*time.Hour)),
		record("sodium", "low", 94, -3, testNow.Add(-2*time.Hour)),
	}
	if err := s.InsertMeasurements(ctx, recs); err != nil {
		t.Fatalf("InsertMeasurements: %v", err)
	}

	groups, err := s.ListGroups(ctx, time.Time{})
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	g := groups[0]
	if g.Analyte != "glucose" || g.Count != 2 || g.Violations != 1 {
		t.Errorf("glucose group = %+v, want count 2 violations 1", g)
	}
	if !g.LastMeasuredAt.Equal(testNow.Add(-time.Hour)) {
		t.Errorf("LastMeasuredAt = %v, want %v", g.LastMeasuredAt, testNow.Add(-time.Hour))
	}

	recent, err := s.ListGroups(ctx, testNow.Add(-90*time.Minute))
	if err != nil {
		t.Fatalf("ListGroups(since): %v", err)
	}
	if len(recent) != 1 || recent[0].Count != 1 {
		t.Errorf("recent groups = %+v, want one glucose group with 1 record", recent)
	}

	n, err := s.DeleteMeasurementsBefore(ctx, testNow.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteMeasurementsBefore: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
}

func TestQCStore_References(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetReference(ctx, "glucose", "normal"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetReference on empty table err = %v, want ErrNotFound", err)
	}

	ref := &models.ReferenceRange{Analyte: "glucose", Level: "normal", TargetMean: 100, TargetSD: 4, Unit: "mg/dL", UpdatedAt: testNow}
	if err := s.UpsertReference(ctx, ref); err != nil {
		t.Fatalf("UpsertReference: %v", err)
	}
	ref.TargetSD = 3
	ref.UpdatedAt = testNow.Add(time.Hour)
	if err := s.UpsertReference(ctx, ref); err != nil {
		t.Fatalf("UpsertReference (update): %v", err)
	}

	got, err := s.GetReference(ctx, "glucose", "normal")
	if err != nil {
		t.Fatalf("GetReference: %v", err)
	}
	if got.TargetSD != 3 || !got.UpdatedAt.Equal(testNow.Add(time.Hour)) {
		t.Errorf("reference = %+v, want sd 3 updated an hour later", got)
	}

	bad := &models.ReferenceRange{Analyte: "sodium", Level: "low", TargetMean: 130, TargetSD: 0, UpdatedAt: testNow}
	if err := s.UpsertReference(ctx, bad); err == nil {
		t.Error("UpsertReference with zero sd should violate the check constraint")
	}

	refs, err := s.ListReferences(ctx)
	if err != nil {
		t.Fatalf("ListReferences: %v", err)
	}
	if len(refs) != 1 {
		t.Errorf("references = %d, want 1", len(refs))
	}
}

func TestQCStore_Reports(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, analyte := range []string{"glucose", "sodium"} {
		r := testutil.NewReport(analyte, "normal", testNow.Add(time.Duration(i)*time.Minute))
		r.WestgardHits = []models.WestgardHit{{Rule: "1-3s", MeasurementID: "m1", Deviation: 3.2, MeasuredAt: testNow}}
		if err := s.InsertReport(ctx, &r); err != nil {
			t.Fatalf("InsertReport: %v", err)
		}
	}

	all, err := s.ListReports(ctx, "", "", 0)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("reports = %d, want 2", len(all))
	}
	if all[0].Analyte != "sodium" {
		t.Errorf("first report = %s, want newest (sodium)", all[0].Analyte)
	}
	if len(all[0].WestgardHits) != 1 || all[0].WestgardHits[0].Rule != "1-3s" {
		t.Errorf("WestgardHits = %+v, want one 1-3s hit", all[0].WestgardHits)
	}

	glucose, err := s.ListReports(ctx, "glucose", "normal", 10)
	if err != nil {
		t.Fatalf("ListReports(glucose): %v", err)
	}
	if len(glucose) != 1 || glucose[0].TotalErrorPct != 5 {
		t.Errorf("glucose reports = %+v", glucose)
	}
}
