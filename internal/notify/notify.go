// Package notify forwards QC violations and reports to external channels.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/LabGraphTeam/labgraph/internal/qc"
	"github.com/LabGraphTeam/labgraph/pkg/models"
	"github.com/LabGraphTeam/labgraph/pkg/plugin"
	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin          = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
	_ plugin.HealthChecker   = (*Module)(nil)
	_ plugin.Validator       = (*Module)(nil)
)

// Config holds the notify plugin configuration.
type Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	WebhookURL    string        `mapstructure:"webhook_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	SlackToken    string        `mapstructure:"slack_token"`
	SlackChannel  string        `mapstructure:"slack_channel"`
	SlackAPIURL   string        `mapstructure:"slack_api_url"` // Slack-compatible gateways; empty uses slack.com
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// DefaultConfig returns the defaults used when no plugins.notify section is set.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		Timeout:       10 * time.Second,
		BatchSize:     20,
		FlushInterval: 30 * time.Second,
	}
}

// Validate checks batching parameters.
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("flush_interval must be positive, got %s", c.FlushInterval)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if (c.SlackToken == "") != (c.SlackChannel == "") {
		return fmt.Errorf("slack_token and slack_channel must be set together")
	}
	return nil
}

// channel delivers one notification to an external destination.
type channel interface {
	name() string
	sendViolations(ctx context.Context, recs []models.ControlRecord, at time.Time) error
	sendReports(ctx context.Context, batch models.ReportBatch) error
}

// Module implements the notify plugin.
type Module struct {
	logger   *zap.Logger
	cfg      Config
	channels []channel
	now      func() time.Time

	mu      sync.Mutex
	pending []models.ControlRecord

	flushNow chan struct{}
	reports  chan models.ReportBatch

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a notify plugin instance.
func New() *Module {
	return &Module{
		now:      func() time.Time { return time.Now().UTC() },
		flushNow: make(chan struct{}, 1),
		reports:  make(chan models.ReportBatch, 8),
	}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "notify",
		Version:      "0.1.0",
		Description:  "Sends QC violation batches and reports to a webhook and Slack",
		Dependencies: []string{"qc"},
		Roles:        []string{plugin.RoleNotification},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	if m.logger == nil {
		m.logger = zap.NewNop()
	}

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal notify config: %w", err)
		}
	}

	m.channels = nil
	if m.cfg.WebhookURL != "" {
		m.channels = append(m.channels, &webhookChannel{
			url:    m.cfg.WebhookURL,
			client: &http.Client{Timeout: m.cfg.Timeout},
		})
	}
	if m.cfg.SlackToken != "" && m.cfg.SlackChannel != "" {
		opts := []slack.Option{slack.OptionHTTPClient(&http.Client{Timeout: m.cfg.Timeout})}
		if m.cfg.SlackAPIURL != "" {
			opts = append(opts, slack.OptionAPIURL(m.cfg.SlackAPIURL))
		}
		m.channels = append(m.channels, &slackChannel{
			api:       slack.New(m.cfg.SlackToken, opts...),
			channelID: m.cfg.SlackChannel,
		})
	}

	if len(m.channels) == 0 {
		m.logger.Warn("no notification channel configured; notifications will be dropped")
	}

	m.logger.Info("notify module initialized",
		zap.Bool("enabled", m.cfg.Enabled),
		zap.Bool("webhook", m.cfg.WebhookURL != ""),
		zap.Bool("slack", m.cfg.SlackToken != ""),
		zap.Int("batch_size", m.cfg.BatchSize),
		zap.Duration("flush_interval", m.cfg.FlushInterval),
	)
	return nil
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	return m.cfg.Validate()
}

func (m *Module) Start(_ context.Context) error {
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.wg.Add(1)
	go m.run()
	m.logger.Info("notify module started")
	return nil
}

// Stop delivers queued report batches and flushes buffered violations
// before returning.
func (m *Module) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
drain:
	for {
		select {
		case batch := <-m.reports:
			m.deliverReports(ctx, batch)
		default:
			break drain
		}
	}
	m.flush(ctx)
	m.logger.Info("notify module stopped")
	return nil
}

// Subscriptions implements plugin.EventSubscriber.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: qc.TopicViolationsDetected, Handler: m.handleViolations},
		{Topic: qc.TopicReportGenerated, Handler: m.handleReports},
	}
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	m.mu.Lock()
	pending := len(m.pending)
	m.mu.Unlock()

	details := map[string]string{
		"channels": strconv.Itoa(len(m.channels)),
		"pending":  strconv.Itoa(pending),
	}
	if !m.cfg.Enabled || len(m.channels) == 0 {
		return plugin.HealthStatus{Status: "degraded", Message: "notifications disabled", Details: details}
	}
	return plugin.HealthStatus{Status: "healthy", Details: details}
}

func (m *Module) active() bool {
	return m.cfg.Enabled && len(m.channels) > 0
}

func (m *Module) handleViolations(_ context.Context, event plugin.Event) {
	if !m.active() {
		return
	}
	batch, ok := event.Payload.(models.ViolationBatch)
	if !ok {
		m.logger.Warn("unexpected violation payload", zap.String("type", fmt.Sprintf("%T", event.Payload)))
		return
	}

	m.mu.Lock()
	m.pending = append(m.pending, batch.Records...)
	full := len(m.pending) >= m.cfg.BatchSize
	m.mu.Unlock()

	if full {
		select {
		case m.flushNow <- struct{}{}:
		default:
		}
	}
}

func (m *Module) handleReports(_ context.Context, event plugin.Event) {
	if !m.active() {
		return
	}
	batch, ok := event.Payload.(models.ReportBatch)
	if !ok {
		m.logger.Warn("unexpected report payload", zap.String("type", fmt.Sprintf("%T", event.Payload)))
		return
	}
	select {
	case m.reports <- batch:
	default:
		notificationsDropped.WithLabelValues("report").Inc()
		m.logger.Warn("report notification queue full, dropping batch",
			zap.Int("reports", len(batch.Reports)))
	}
}

// run delivers queued reports and flushes violations on size or interval.
func (m *Module) run() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.flush(m.ctx)
		case <-m.flushNow:
			m.flush(m.ctx)
		case batch := <-m.reports:
			m.deliverReports(m.ctx, batch)
		}
	}
}

// flush sends buffered violations as one batch to every channel.
func (m *Module) flush(ctx context.Context) {
	m.mu.Lock()
	recs := m.pending
	m.pending = nil
	m.mu.Unlock()

	if len(recs) == 0 {
		return
	}
	at := m.now()
	for _, ch := range m.channels {
		sendCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
		err := ch.sendViolations(sendCtx, recs, at)
		cancel()
		m.record(ch.name(), "violations", err, zap.Int("records", len(recs)))
	}
}

func (m *Module) deliverReports(ctx context.Context, batch models.ReportBatch) {
	for _, ch := range m.channels {
		sendCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
		err := ch.sendReports(sendCtx, batch)
		cancel()
		m.record(ch.name(), "reports", err, zap.Int("reports", len(batch.Reports)))
	}
}

func (m *Module) record(channel, kind string, err error, field zap.Field) {
	if err != nil {
		notificationsSent.WithLabelValues(channel, "error").Inc()
		m.logger.Warn("notification delivery failed",
			zap.String("channel", channel),
			zap.String("kind", kind),
			field,
			zap.Error(err),
		)
		return
	}
	notificationsSent.WithLabelValues(channel, "ok").Inc()
	m.logger.Debug("notification delivered",
		zap.String("channel", channel),
		zap.String("kind", kind),
		field,
	)
}
