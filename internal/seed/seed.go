// Package seed loads reference ranges and control measurements into the QC
// module from YAML fixture files, and can generate a demo dataset.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/LabGraphTeam/labgraph/pkg/models"
	"gopkg.in/yaml.v3"
)

// Target is the subset of the QC module the seeder writes through.
type Target interface {
	SetReference(ctx context.Context, ref models.ReferenceRange) (*models.ReferenceRange, error)
	Ingest(ctx context.Context, inputs []models.MeasurementInput) (models.IngestResult, error)
}

// File is the on-disk fixture format.
//
//	references:
//	  - {analyte: glucose, level: normal, target_mean: 100, target_sd: 2.5, unit: mg/dL}
//	measurements:
//	  - {analyte: glucose, level: normal, value: 101.2, measured_at: 2026-03-01T08:00:00Z}
type File struct {
	References   []models.ReferenceRange   `yaml:"references"`
	Measurements []models.MeasurementInput `yaml:"measurements"`
}

// Result counts what Apply wrote.
type Result struct {
	References int
	Accepted   int
	Rejected   []models.Rejection
}

// Load reads a fixture file from disk.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a fixture document. Unknown keys are rejected so typos in
// field names do not silently drop data.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return &file, nil
		}
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	return &file, nil
}

// Apply stores every reference range first, so measurements without explicit
// targets resolve against them, then ingests the measurements in one batch.
// A failing reference aborts; rejected measurements are reported in Result.
func Apply(ctx context.Context, target Target, file *File) (Result, error) {
	var res Result
	for i := range file.References {
		if _, err := target.SetReference(ctx, file.References[i]); err != nil {
			return res, fmt.Errorf("reference %s/%s: %w", file.References[i].Analyte, file.References[i].Level, err)
		}
		res.References++
	}

	if len(file.Measurements) == 0 {
		return res, nil
	}
	out, err := target.Ingest(ctx, file.Measurements)
	if err != nil {
		return res, fmt.Errorf("ingest measurements: %w", err)
	}
	res.Accepted = len(out.Accepted)
	res.Rejected = out.Rejected
	return res, nil
}

type demoGroup struct {
	analyte string
	level   string
	mean    float64
	sd      float64
	unit    string
	// offsets in SD units, one per day, oldest first
	offsets []float64
}

// Demo returns a month of daily controls for a small chemistry panel,
// ending the day before now. The glucose high control drifts upward over
// the last days so the demo shows Westgard rejections.
func Demo(now time.Time) *File {
	stable := []float64{
		0.2, -0.4, 0.9, -1.1, 0.3, 0.0, -0.6, 1.3, -0.2, 0.5,
		-0.9, 0.1, 0.7, -1.4, 0.4, -0.3, 0.8, -0.1, 1.1, -0.7,
		0.6, -0.5, 0.2, -1.0, 0.9, -0.2, 0.4, -0.8, 0.3, 0.1,
	}
	drift := append(append([]float64(nil), stable[:24]...), 1.2, 1.6, 2.1, 2.3, 2.6, 3.2)

	groups := []demoGroup{
		{"glucose", "normal", 100, 2.5, "mg/dL", stable},
		{"glucose", "high", 300, 7.5, "mg/dL", drift},
		{"sodium", "normal", 140, 1.5, "mmol/L", reversed(stable)},
		{"potassium", "normal", 4.2, 0.1, "mmol/L", stable},
	}

	day := now.UTC().Truncate(24 * time.Hour)
	var file File
	for _, g := range groups {
		file.References = append(file.References, models.ReferenceRange{
			Analyte: g.analyte, Level: g.level, TargetMean: g.mean, TargetSD: g.sd, Unit: g.unit,
		})
		start := day.Add(-time.Duration(len(g.offsets)) * 24 * time.Hour)
		for i, off := range g.offsets {
			file.Measurements = append(file.Measurements, models.MeasurementInput{
				Analyte:    g.analyte,
				Level:      g.level,
				Value:      g.mean + off*g.sd,
				MeasuredAt: start.Add(time.Duration(i)*24*time.Hour + 8*time.Hour),
			})
		}
	}
	return &file
}

func reversed(in []float64) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}
