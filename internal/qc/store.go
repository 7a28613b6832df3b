package qc

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LabGraphTeam/labgraph/pkg/models"
)

// ErrNotFound is returned when a measurement or reference range does not exist.
var ErrNotFound = errors.New("not found")

// Timestamps are stored as fixed-width UTC text so lexical order in SQL
// matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// MeasurementFilter narrows ListMeasurements. Zero values mean "no filter".
type MeasurementFilter struct {
	Analyte        string
	Level          string
	From           time.Time
	To             time.Time
	ViolationsOnly bool
	Limit          int
	Offset         int
}

// QCStore provides database access for the QC module.
type QCStore struct {
	db *sql.DB
}

// NewQCStore creates a QCStore on db. The QC migrations must have run.
func NewQCStore(db *sql.DB) *QCStore {
	return &QCStore{db: db}
}

// -- Measurements --

const measurementColumns = `id, analyte, level, value, target_mean, target_sd, unit,
	rule_code, rule_description, sigma_deviation, violation, measured_at, created_at`

// InsertMeasurements stores records in one transaction.
func (s *QCStore) InsertMeasurements(ctx context.Context, recs []models.ControlRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert measurements: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO qc_measurements (`+measurementColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert measurement: %w", err)
	}
	defer stmt.Close()

	for i := range recs {
		r := &recs[i]
		_, err := stmt.ExecContext(ctx,
			r.ID, r.Analyte, r.Level, r.Value, r.TargetMean, r.TargetSD, r.Unit,
			r.RuleCode, r.RuleDescription, r.SigmaDeviation, boolToInt(r.Violation),
			formatTime(r.MeasuredAt), formatTime(r.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert measurement %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit measurements: %w", err)
	}
	return nil
}

// GetMeasurement returns one record by ID.
func (s *QCStore) GetMeasurement(ctx context.Context, id string) (*models.ControlRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+measurementColumns+` FROM qc_measurements WHERE id = ?`, id)
	rec, err := scanMeasurement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("measurement %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get measurement: %w", err)
	}
	return &rec, nil
}

// ListMeasurements returns records newest first.
func (s *QCStore) ListMeasurements(ctx context.Context, f MeasurementFilter) ([]models.ControlRecord, error) {
	where, args := f.clauses()
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + measurementColumns + ` FROM qc_measurements` + where +
		` ORDER BY measured_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, max(f.Offset, 0))

	return s.queryMeasurements(ctx, query, args...)
}

// GroupSeries returns the records of one analyte and level inside [from, to]
// in chronological order. A zero bound is open.
func (s *QCStore) GroupSeries(ctx context.Context, analyte, level string, from, to time.Time) ([]models.ControlRecord, error) {
	f := MeasurementFilter{Analyte: analyte, Level: level, From: from, To: to}
	where, args := f.clauses()
	query := `SELECT ` + measurementColumns + ` FROM qc_measurements` + where +
		` ORDER BY measured_at ASC, created_at ASC, id`
	return s.queryMeasurements(ctx, query, args...)
}

func (f MeasurementFilter) clauses() (string, []any) {
	var conds []string
	var args []any
	if f.Analyte != "" {
		conds = append(conds, "analyte = ?")
		args = append(args, f.Analyte)
	}
	if f.Level != "" {
		conds = append(conds, "level = ?")
		args = append(args, f.Level)
	}
	if !f.From.IsZero() {
		conds = append(conds, "measured_at >= ?")
		args = append(args, formatTime(f.From))
	}
	if !f.To.IsZero() {
		conds = append(conds, "measured_at <= ?")
		args = append(args, formatTime(f.To))
	}
	if f.ViolationsOnly {
		conds = append(conds, "violation = 1")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *QCStore) queryMeasurements(ctx context.Context, query string, args ...any) ([]models.ControlRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list measurements: %w", err)
	}
	defer rows.Close()

	var recs []models.ControlRecord
	for rows.Next() {
		rec, err := scanMeasurement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan measurement row: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// UpdateClassification rewrites the reference values and rule of one record.
func (s *QCStore) UpdateClassification(ctx context.Context, rec *models.ControlRecord) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE qc_measurements
		SET target_mean = ?, target_sd = ?, rule_code = ?, rule_description = ?,
			sigma_deviation = ?, violation = ?
		WHERE id = ?`,
		rec.TargetMean, rec.TargetSD, rec.RuleCode, rec.RuleDescription,
		rec.SigmaDeviation, boolToInt(rec.Violation), rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update classification: %w", err)
	}
	return expectOne(res, "measurement "+rec.ID)
}

// DeleteMeasurement removes one record.
func (s *QCStore) DeleteMeasurement(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM qc_measurements WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete measurement: %w", err)
	}
	return expectOne(res, "measurement "+id)
}

// DeleteMeasurementsBefore purges records measured before cutoff.
func (s *QCStore) DeleteMeasurementsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM qc_measurements WHERE measured_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete old measurements: %w", err)
	}
	return res.RowsAffected()
}

// ListGroups summarizes every analyte/level with records measured at or
// after since. A zero since includes everything.
func (s *QCStore) ListGroups(ctx context.Context, since time.Time) ([]models.ControlGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT analyte, level, COUNT(*), COALESCE(SUM(violation), 0), MAX(measured_at)
		FROM qc_measurements
		WHERE measured_at >= ?
		GROUP BY analyte, level
		ORDER BY analyte, level`,
		formatTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []models.ControlGroup
	for rows.Next() {
		var g models.ControlGroup
		var last string
		if err := rows.Scan(&g.Analyte, &g.Level, &g.Count, &g.Violations, &last); err != nil {
			return nil, fmt.Errorf("scan group row: %w", err)
		}
		if g.LastMeasuredAt, err = parseTime(last); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// -- Reference ranges --

// GetReference returns the reference range for analyte and level.
func (s *QCStore) GetReference(ctx context.Context, analyte, level string) (*models.ReferenceRange, error) {
	var r models.ReferenceRange
	var updated string
	err := s.db.QueryRowContext(ctx, `
		SELECT analyte, level, target_mean, target_sd, unit, updated_at
		FROM qc_reference_ranges WHERE analyte = ? AND level = ?`,
		analyte, level,
	).Scan(&r.Analyte, &r.Level, &r.TargetMean, &r.TargetSD, &r.Unit, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reference %s/%s: %w", analyte, level, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get reference: %w", err)
	}
	if r.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListReferences returns every reference range ordered by analyte and level.
func (s *QCStore) ListReferences(ctx context.Context) ([]models.ReferenceRange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT analyte, level, target_mean, target_sd, unit, updated_at
		FROM qc_reference_ranges ORDER BY analyte, level`)
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	defer rows.Close()

	var refs []models.ReferenceRange
	for rows.Next() {
		var r models.ReferenceRange
		var updated string
		if err := rows.Scan(&r.Analyte, &r.Level, &r.TargetMean, &r.TargetSD, &r.Unit, &updated); err != nil {
			return nil, fmt.Errorf("scan reference row: %w", err)
		}
		if r.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// UpsertReference inserts or replaces a reference range.
func (s *QCStore) UpsertReference(ctx context.Context, r *models.ReferenceRange) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO qc_reference_ranges (analyte, level, target_mean, target_sd, unit, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(analyte, level) DO UPDATE SET
			target_mean = excluded.target_mean,
			target_sd   = excluded.target_sd,
			unit        = excluded.unit,
			updated_at  = excluded.updated_at`,
		r.Analyte, r.Level, r.TargetMean, r.TargetSD, r.Unit, formatTime(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert reference: %w", err)
	}
	return nil
}

// -- Reports --

// InsertReport stores a generated report.
func (s *QCStore) InsertReport(ctx context.Context, r *models.Report) error {
	hits, err := json.Marshal(r.WestgardHits)
	if err != nil {
		return fmt.Errorf("marshal westgard hits: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO qc_reports (
			id, analyte, level, window_start, window_end, target_mean,
			calculated_mean, calculated_sd, inaccuracy_pct, systematic_error_pct,
			random_error_pct, total_error_pct, sample_size, westgard_hits, generated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Analyte, r.Level, formatTime(r.WindowStart), formatTime(r.WindowEnd), r.TargetMean,
		r.CalculatedMean, r.CalculatedSD, r.InaccuracyPct, r.SystematicErrorPct,
		r.RandomErrorPct, r.TotalErrorPct, r.SampleSize, string(hits), formatTime(r.GeneratedAt),
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// ListReports returns reports newest first, optionally filtered by group.
func (s *QCStore) ListReports(ctx context.Context, analyte, level string, limit int) ([]models.Report, error) {
	if limit <= 0 {
		limit = 50
	}
	var conds []string
	var args []any
	if analyte != "" {
		conds = append(conds, "analyte = ?")
		args = append(args, analyte)
	}
	if level != "" {
		conds = append(conds, "level = ?")
		args = append(args, level)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, analyte, level, window_start, window_end, target_mean,
			calculated_mean, calculated_sd, inaccuracy_pct, systematic_error_pct,
			random_error_pct, total_error_pct, sample_size, westgard_hits, generated_at
		FROM qc_reports`+where+` ORDER BY generated_at DESC, analyte, level LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []models.Report
	for rows.Next() {
		var r models.Report
		var start, end, generated, hits string
		if err := rows.Scan(
			&r.ID, &r.Analyte, &r.Level, &start, &end, &r.TargetMean,
			&r.CalculatedMean, &r.CalculatedSD, &r.InaccuracyPct, &r.SystematicErrorPct,
			&r.RandomErrorPct, &r.TotalErrorPct, &r.SampleSize, &hits, &generated,
		); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		if r.WindowStart, err = parseTime(start); err != nil {
			return nil, err
		}
		if r.WindowEnd, err = parseTime(end); err != nil {
			return nil, err
		}
		if r.GeneratedAt, err = parseTime(generated); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(hits), &r.WestgardHits); err != nil {
			return nil, fmt.Errorf("unmarshal westgard hits: %w", err)
		}
		r.LowConfidence = r.SampleSize < 2
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// -- helpers --

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeasurement(row rowScanner) (models.ControlRecord, error) {
	var r models.ControlRecord
	var violation int
	var measured, created string
	err := row.Scan(
		&r.ID, &r.Analyte, &r.Level, &r.Value, &r.TargetMean, &r.TargetSD, &r.Unit,
		&r.RuleCode, &r.RuleDescription, &r.SigmaDeviation, &violation, &measured, &created,
	)
	if err != nil {
		return r, err
	}
	r.Violation = violation != 0
	if r.MeasuredAt, err = parseTime(measured); err != nil {
		return r, err
	}
	if r.CreatedAt, err = parseTime(created); err != nil {
		return r, err
	}
	return r, nil
}

func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
