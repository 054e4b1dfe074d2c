package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"dcollect/internal/stats"
)

// dispatcher drains the ingest queue and transmits events to the collector.
// Params: queue, connection manager, poll timeout, shared counters.
// Returns: pipeline task.
type dispatcher struct {
	id       int
	queue    *IngestQueue
	manager  *ConnectionManager
	counters *stats.Counters
	logger   *slog.Logger
	running  *atomic.Bool
	poll     time.Duration
}

// run dequeues with a short poll timeout and sends through the manager.
// Failed sends are counted and dropped, never requeued. During shutdown
// the loop keeps draining until the queue is empty or the hard-stop
// context fires.
// Params: ctx hard-stop context.
// Returns: nil on orderly exit.
func (d *dispatcher) run(ctx context.Context) error {
	for {
		if !d.running.Load() && d.queue.Len() == 0 {
			return nil
		}

		ev, ok, err := d.queue.Dequeue(ctx, d.poll)
		if err != nil {
			return nil
		}
		if !ok {
			continue
		}

		if sendErr := d.manager.Send(ctx, ev); sendErr != nil {
			d.counters.IncErrors()
			d.logger.Warn(
				"send failed, dropping event",
				slog.Int("dispatcher", d.id),
				slog.String("metric_type", ev.Type),
				slog.String("error", sendErr.Error()),
			)
			continue
		}

		if sent := d.counters.IncSent(); sent%eventMilestone == 0 {
			d.logger.Info("delivery milestone", slog.Uint64("metrics_sent", sent))
		}
	}
}
