package qc

import (
	"fmt"
	"time"

	"github.com/LabGraphTeam/labgraph/internal/spc"
	"github.com/robfig/cron/v3"
)

// scheduleParser accepts standard 5-field expressions ("0 6 * * 1-5") and
// descriptors such as "@daily".
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// QCConfig holds configuration for the QC module.
type QCConfig struct {
	ConfidenceMultiplier float64 `mapstructure:"confidence_multiplier"`
	ViolationSigmas      []int   `mapstructure:"violation_sigmas"`
	Precision            int     `mapstructure:"precision"`

	ReportSchedule       string        `mapstructure:"report_schedule"` // standard 5-field cron
	ReportWindow         time.Duration `mapstructure:"report_window"`
	MeasurementRetention time.Duration `mapstructure:"measurement_retention"` // 0 keeps everything
	MaintenanceInterval  time.Duration `mapstructure:"maintenance_interval"`
}

// DefaultConfig returns the defaults used when no plugins.qc section is set.
func DefaultConfig() QCConfig {
	return QCConfig{
		ConfidenceMultiplier: spc.DefaultConfidenceMultiplier,
		ViolationSigmas:      spc.DefaultViolationSigmas(),
		Precision:            spc.DefaultPrecision,
		ReportSchedule:       "0 6 * * *",
		ReportWindow:         30 * 24 * time.Hour,
		MaintenanceInterval:  time.Hour,
	}
}

func (c QCConfig) engineOptions() spc.Options {
	return spc.Options{
		ConfidenceMultiplier: c.ConfidenceMultiplier,
		ViolationSigmas:      c.ViolationSigmas,
		Precision:            c.Precision,
	}
}

// Validate checks the engine options, the cron expression and durations.
func (c QCConfig) Validate() error {
	if err := c.engineOptions().Validate(); err != nil {
		return err
	}
	if c.ReportSchedule != "" {
		if _, err := scheduleParser.Parse(c.ReportSchedule); err != nil {
			return fmt.Errorf("report_schedule %q: %w", c.ReportSchedule, err)
		}
	}
	if c.ReportWindow <= 0 {
		return fmt.Errorf("report_window must be positive, got %s", c.ReportWindow)
	}
	if c.MeasurementRetention < 0 {
		return fmt.Errorf("measurement_retention must not be negative, got %s", c.MeasurementRetention)
	}
	if c.MaintenanceInterval <= 0 {
		return fmt.Errorf("maintenance_interval must be positive, got %s", c.MaintenanceInterval)
	}
	return nil
}
