package qc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/LabGraphTeam/labgraph/pkg/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// startReportScheduler runs RunReports on the configured cron schedule until
// the module stops. An empty schedule disables scheduled reports.
func (m *Module) startReportScheduler() {
	expr := strings.TrimSpace(m.cfg.ReportSchedule)
	if expr == "" {
		m.logger.Info("scheduled reports disabled (report_schedule not set)")
		return
	}
	sched, err := scheduleParser.Parse(expr)
	if err != nil {
		// Validate rejects this earlier; kept for configs built in code.
		m.logger.Error("invalid report schedule, scheduled reports disabled",
			zap.String("schedule", expr), zap.Error(err))
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			now := m.now()
			next := sched.Next(now)
			m.nextReport.Store(next.UnixNano())
			m.logger.Debug("next scheduled report",
				zap.Time("at", next), zap.Duration("in", next.Sub(now).Round(time.Second)))

			timer := time.NewTimer(next.Sub(now))
			select {
			case <-m.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			ctx, cancel := context.WithTimeout(m.ctx, 2*time.Minute)
			if _, err := m.RunReports(ctx); err != nil {
				m.logger.Warn("scheduled report run failed", zap.Error(err))
			}
			cancel()
		}
	}()
}

// RunReports computes statistics and Westgard hits for every analyte/level
// with data in the report window, stores one report per group and publishes
// the batch. Groups the aggregator rejects are skipped with a warning.
func (m *Module) RunReports(ctx context.Context) (models.ReportBatch, error) {
	batch := models.ReportBatch{Reports: []models.Report{}}
	if m.store == nil {
		return batch, ErrStoreUnavailable
	}

	end := m.now()
	start := end.Add(-m.cfg.ReportWindow)
	batch.GeneratedAt = end

	groups, err := m.store.ListGroups(ctx, start)
	if err != nil {
		return batch, err
	}

	for _, g := range groups {
		series, err := m.store.GroupSeries(ctx, g.Analyte, g.Level, start, end)
		if err != nil {
			return batch, err
		}
		summary, err := m.summarize(g.Analyte, g.Level, series, start, end)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return batch, ctxErr
			}
			m.logger.Warn("skipping report group",
				zap.String("analyte", g.Analyte),
				zap.String("level", g.Level),
				zap.Error(err),
			)
			batch.Skipped++
			continue
		}

		r := models.Report{
			ID:           uuid.NewString(),
			ErrorSummary: summary,
			WestgardHits: westgardHits(series),
			GeneratedAt:  end,
		}
		if err := m.store.InsertReport(ctx, &r); err != nil {
			return batch, fmt.Errorf("store report %s/%s: %w", g.Analyte, g.Level, err)
		}
		reportsGenerated.Inc()
		lastTotalError.WithLabelValues(r.Analyte, r.Level).Set(r.TotalErrorPct)
		batch.Reports = append(batch.Reports, r)
	}

	m.logger.Info("qc reports generated",
		zap.Int("reports", len(batch.Reports)),
		zap.Int("skipped", batch.Skipped),
		zap.Time("window_start", start),
	)
	if len(batch.Reports) > 0 {
		m.publish(ctx, TopicReportGenerated, batch)
	}
	return batch, nil
}
