package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"dcollect/internal/event"
	"dcollect/internal/match"
	"dcollect/internal/source"
	"dcollect/internal/stats"
)

// eventMilestone is the collection/delivery count between milestone logs.
const eventMilestone = 100

// sourceErrorBackoff delays the next pull after a failed source read.
const sourceErrorBackoff = time.Second

// producer pulls events from one source and feeds the ingest queue.
// Params: source, queue, identity tags, type masks, shared counters.
// Returns: pipeline task.
type producer struct {
	name     string
	source   source.Source
	queue    *IngestQueue
	counters *stats.Counters
	logger   *slog.Logger
	running  *atomic.Bool

	origin string
	tags   map[string]string
	filter []match.Pattern
	drop   []match.Pattern
}

// run pulls, normalizes, and enqueues events until the running flag clears.
// A full queue applies backpressure: the producer blocks until a dispatcher
// frees space or the hard-stop context fires. A partially-drained source is
// abandoned without error on stop.
// Params: ctx hard-stop context.
// Returns: nil on orderly exit.
func (p *producer) run(ctx context.Context) error {
	if closer, ok := p.source.(interface{ Close() }); ok {
		defer closer.Close()
	}

	for p.running.Load() {
		ev, err := p.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.counters.IncErrors()
			p.logger.Warn(
				"source read failed",
				slog.String("source", p.name),
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(sourceErrorBackoff):
			}
			continue
		}
		if !p.running.Load() {
			return nil
		}

		ev = p.prepare(ev)
		if err := event.Validate(ev); err != nil {
			p.counters.IncErrors()
			p.logger.Warn(
				"invalid event rejected",
				slog.String("source", p.name),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !p.accepts(ev.Type) {
			continue
		}

		if !p.queue.TryEnqueue(ev) {
			p.logger.Debug("ingest queue full, applying backpressure", slog.String("source", p.name))
			if err := p.queue.Enqueue(ctx, ev); err != nil {
				return nil
			}
		}

		if collected := p.counters.IncCollected(); collected%eventMilestone == 0 {
			p.logger.Info("collection milestone", slog.Uint64("metrics_collected", collected))
		}
	}

	return nil
}

// prepare stamps identity and normalizes metadata on one raw event.
// Configured global tags never overwrite keys set by the source.
// Params: ev raw source event.
// Returns: normalized event ready for the queue.
func (p *producer) prepare(ev event.Event) event.Event {
	ev = event.Normalize(ev, time.Now().UTC())
	if ev.Origin == "" {
		ev.Origin = p.origin
	}

	if len(p.tags) > 0 {
		if ev.Metadata == nil {
			ev.Metadata = make(map[string]any, len(p.tags))
		}
		for key, value := range p.tags {
			if _, exists := ev.Metadata[key]; exists {
				continue
			}
			ev.Metadata[key] = value
		}
	}

	return ev
}

// accepts applies the filter/drop wildcard masks to one metric type.
// Params: metricType event type name.
// Returns: false when masked out.
func (p *producer) accepts(metricType string) bool {
	if len(p.filter) > 0 && !match.Any(p.filter, metricType) {
		return false
	}
	if match.Any(p.drop, metricType) {
		return false
	}
	return true
}
