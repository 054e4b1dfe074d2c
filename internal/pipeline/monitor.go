package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// connectionMonitor watches the collector link and re-establishes it.
// Params: shared manager, check interval, running flag.
// Returns: pipeline task.
type connectionMonitor struct {
	manager  *ConnectionManager
	logger   *slog.Logger
	interval time.Duration
	running  *atomic.Bool
}

// run checks the link every interval and reconnects while the pipeline runs.
// Exhausted reconnect rounds are logged; the loop keeps going and starts a
// fresh round on the next tick.
// Params: ctx hard-stop context.
// Returns: nil on orderly exit.
func (m *connectionMonitor) run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if !m.running.Load() {
			return nil
		}
		if m.manager.IsConnected() {
			continue
		}

		m.logger.Info("collector connection is down, reconnecting")
		if err := m.manager.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.logger.Warn("reconnect round failed", slog.String("error", err.Error()))
		}
	}
}
