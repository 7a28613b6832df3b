package qc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/LabGraphTeam/labgraph/internal/config"
	"github.com/LabGraphTeam/labgraph/internal/event"
	"github.com/LabGraphTeam/labgraph/internal/store"
	"github.com/LabGraphTeam/labgraph/pkg/models"
	"github.com/LabGraphTeam/labgraph/pkg/plugin"
	"github.com/LabGraphTeam/labgraph/pkg/plugin/plugintest"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// recorder collects every event published on a bus.
type recorder struct {
	mu     sync.Mutex
	events []plugin.Event
}

func (r *recorder) handle(_ context.Context, e plugin.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) topics(topic string) []plugin.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []plugin.Event
	for _, e := range r.events {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}

// newTestModule returns an initialized module on an in-memory database with
// a fixed clock and an event recorder subscribed to every topic.
func newTestModule(t *testing.T) (*Module, *recorder) {
	t.Helper()
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	bus := event.NewBus(zap.NewNop())
	rec := &recorder{}
	bus.SubscribeAll(rec.handle)

	m := New()
	m.now = func() time.Time { return testNow }
	err = m.Init(context.Background(), plugin.Dependencies{
		Logger: zap.NewNop(),
		Store:  db,
		Bus:    bus,
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return m, rec
}

func TestPluginContract(t *testing.T) {
	plugintest.TestPluginContract(t, func() plugin.Plugin { return New() })
}

func TestInfo(t *testing.T) {
	info := New().Info()
	if info.Name != "qc" {
		t.Errorf("Name = %q, want qc", info.Name)
	}
	if !info.Required {
		t.Error("qc module should be required")
	}
	if len(info.Roles) != 1 || info.Roles[0] != plugin.RoleQualityControl {
		t.Errorf("Roles = %v, want [%s]", info.Roles, plugin.RoleQualityControl)
	}
}

func TestInit_WithConfig(t *testing.T) {
	v := viper.New()
	v.Set("confidence_multiplier", 2.58)
	v.Set("violation_sigmas", []int{3})
	v.Set("precision", 3)
	v.Set("report_schedule", "@weekly")
	v.Set("report_window", "168h")
	v.Set("measurement_retention", "8760h")

	m := New()
	err := m.Init(context.Background(), plugin.Dependencies{
		Logger: zap.NewNop(),
		Config: config.New(v),
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if m.cfg.ConfidenceMultiplier != 2.58 {
		t.Errorf("ConfidenceMultiplier = %v, want 2.58", m.cfg.ConfidenceMultiplier)
	}
	if len(m.cfg.ViolationSigmas) != 1 || m.cfg.ViolationSigmas[0] != 3 {
		t.Errorf("ViolationSigmas = %v, want [3]", m.cfg.ViolationSigmas)
	}
	if m.cfg.Precision != 3 {
		t.Errorf("Precision = %d, want 3", m.cfg.Precision)
	}
	if m.cfg.ReportWindow != 7*24*time.Hour {
		t.Errorf("ReportWindow = %v, want 168h", m.cfg.ReportWindow)
	}
	if m.cfg.MeasurementRetention != 365*24*time.Hour {
		t.Errorf("MeasurementRetention = %v, want 8760h", m.cfg.MeasurementRetention)
	}
	if m.cfg.MaintenanceInterval != time.Hour {
		t.Errorf("MaintenanceInterval = %v, want default 1h", m.cfg.MaintenanceInterval)
	}
	if err := m.ValidateConfig(); err != nil {
		t.Errorf("ValidateConfig() = %v", err)
	}
}

func TestInit_InvalidEngineOptions(t *testing.T) {
	v := viper.New()
	v.Set("violation_sigmas", []int{4})

	m := New()
	err := m.Init(context.Background(), plugin.Dependencies{
		Logger: zap.NewNop(),
		Config: config.New(v),
	})
	if err == nil {
		t.Fatal("Init() should fail for violation sigma 4")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*QCConfig)
		wantErr bool
	}{
		{"defaults", func(*QCConfig) {}, false},
		{"schedule disabled", func(c *QCConfig) { c.ReportSchedule = "" }, false},
		{"descriptor schedule", func(c *QCConfig) { c.ReportSchedule = "@daily" }, false},
		{"bad schedule", func(c *QCConfig) { c.ReportSchedule = "every morning" }, true},
		{"six field schedule", func(c *QCConfig) { c.ReportSchedule = "0 0 6 * * *" }, true},
		{"zero window", func(c *QCConfig) { c.ReportWindow = 0 }, true},
		{"negative retention", func(c *QCConfig) { c.MeasurementRetention = -time.Hour }, true},
		{"zero maintenance", func(c *QCConfig) { c.MaintenanceInterval = 0 }, true},
		{"zero multiplier", func(c *QCConfig) { c.ConfidenceMultiplier = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	m := New()
	if err := m.Init(context.Background(), plugin.Dependencies{Logger: zap.NewNop()}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if got := m.Health(context.Background()).Status; got != "degraded" {
		t.Errorf("Health without store = %q, want degraded", got)
	}

	m, _ = newTestModule(t)
	if _, err := m.Ingest(context.Background(), []models.MeasurementInput{
		input("glucose", "normal", 120.5, 118.3, 2.5),
		input("glucose", "high", 250, 248, 6),
	}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	h := m.Health(context.Background())
	if h.Status != "healthy" {
		t.Fatalf("Status = %q, want healthy (%s)", h.Status, h.Message)
	}
	if h.Details["groups_tracked"] != "2" {
		t.Errorf("groups_tracked = %q, want 2", h.Details["groups_tracked"])
	}
}

func TestStartStop_WithRetention(t *testing.T) {
	m, _ := newTestModule(t)
	m.cfg.MeasurementRetention = time.Hour
	m.cfg.ReportSchedule = "@hourly"

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	done := make(chan struct{})
	go func() {
		_ = m.Stop(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() did not return; background goroutines still running")
	}
}
