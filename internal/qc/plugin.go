// Package qc implements the LabGraph quality-control module: ingestion and
// classification of control measurements, error-budget statistics, Westgard
// evaluation and scheduled reports.
package qc

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LabGraphTeam/labgraph/internal/spc"
	"github.com/LabGraphTeam/labgraph/pkg/plugin"
	"go.uber.org/zap"
)

const moduleName = "qc"

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
	_ plugin.Validator     = (*Module)(nil)
)

// Module implements the QC plugin.
type Module struct {
	logger     *zap.Logger
	cfg        QCConfig
	store      *QCStore
	bus        plugin.EventBus
	classifier *spc.Classifier
	aggregator *spc.Aggregator
	now        func() time.Time

	nextReport atomic.Int64 // unix nanos of the next scheduled run

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a QC plugin instance.
func New() *Module {
	return &Module{
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        moduleName,
		Version:     "0.1.0",
		Description: "Control measurement classification, error statistics and QC reports",
		Roles:       []string{plugin.RoleQualityControl},
		Required:    true,
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	if m.logger == nil {
		m.logger = zap.NewNop()
	}

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal qc config: %w", err)
		}
	}

	opts := m.cfg.engineOptions()
	var err error
	if m.classifier, err = spc.NewClassifier(opts); err != nil {
		return fmt.Errorf("qc classifier: %w", err)
	}
	if m.aggregator, err = spc.NewAggregator(opts); err != nil {
		return fmt.Errorf("qc aggregator: %w", err)
	}

	if deps.Store != nil {
		if err := deps.Store.Migrate(ctx, moduleName, migrations()); err != nil {
			return fmt.Errorf("qc migrations: %w", err)
		}
		m.store = NewQCStore(deps.Store.DB())
	}
	m.bus = deps.Bus

	m.logger.Info("qc module initialized",
		zap.Float64("confidence_multiplier", m.cfg.ConfidenceMultiplier),
		zap.Ints("violation_sigmas", m.cfg.ViolationSigmas),
		zap.Int("precision", m.cfg.Precision),
		zap.String("report_schedule", m.cfg.ReportSchedule),
		zap.Duration("report_window", m.cfg.ReportWindow),
		zap.Duration("measurement_retention", m.cfg.MeasurementRetention),
	)
	return nil
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	return m.cfg.Validate()
}

func (m *Module) Start(_ context.Context) error {
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.startMaintenance()
	m.startReportScheduler()
	m.logger.Info("qc module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.logger.Info("qc module stopped")
	return nil
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(ctx context.Context) plugin.HealthStatus {
	if m.store == nil {
		return plugin.HealthStatus{Status: "degraded", Message: "no store configured"}
	}

	groups, err := m.store.ListGroups(ctx, time.Time{})
	if err != nil {
		return plugin.HealthStatus{Status: "unhealthy", Message: err.Error()}
	}

	details := map[string]string{
		"groups_tracked": strconv.Itoa(len(groups)),
	}
	if next := m.nextReport.Load(); next > 0 {
		details["next_report"] = time.Unix(0, next).UTC().Format(time.RFC3339)
	}
	return plugin.HealthStatus{Status: "healthy", Details: details}
}
