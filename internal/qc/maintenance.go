package qc

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// startMaintenance launches the retention loop. With measurement_retention
// unset nothing is ever purged and no goroutine is started.
func (m *Module) startMaintenance() {
	if m.cfg.MeasurementRetention <= 0 {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.MaintenanceInterval)
		defer ticker.Stop()

		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				m.runMaintenance()
			}
		}
	}()
}

// runMaintenance purges measurements older than the retention window.
// Stored reports are kept; they summarize the purged data.
func (m *Module) runMaintenance() {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, 30*time.Second)
	defer cancel()

	cutoff := m.now().Add(-m.cfg.MeasurementRetention)
	deleted, err := m.store.DeleteMeasurementsBefore(ctx, cutoff)
	if err != nil {
		m.logger.Warn("failed to purge old measurements", zap.Error(err))
		return
	}
	if deleted > 0 {
		m.logger.Info("purged old measurements",
			zap.Int64("count", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}
