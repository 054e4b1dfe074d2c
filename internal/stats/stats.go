package stats

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counters tracks monotonic delivery counters for one pipeline.
// Params: process-local atomics mirrored into a private prometheus registry.
// Returns: counter handle shared by pipeline components.
type Counters struct {
	collected  atomic.Uint64
	sent       atomic.Uint64
	errors     atomic.Uint64
	reconnects atomic.Uint64

	registry       *prometheus.Registry
	promCollected  prometheus.Counter
	promSent       prometheus.Counter
	promErrors     prometheus.Counter
	promReconnects prometheus.Counter
}

// Snapshot is a point-in-time view of the delivery counters.
// Params: counter values at read time.
// Returns: JSON-serializable snapshot.
type Snapshot struct {
	Collected  uint64 `json:"metrics_collected"`
	Sent       uint64 `json:"metrics_sent"`
	Errors     uint64 `json:"errors"`
	Reconnects uint64 `json:"reconnects"`
}

// New creates counters backed by a private prometheus registry.
// Params: none.
// Returns: zeroed counter handle.
func New() *Counters {
	registry := prometheus.NewRegistry()

	c := &Counters{
		registry: registry,
		promCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dcollect_metrics_collected_total",
			Help: "Events accepted into the ingest queue.",
		}),
		promSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dcollect_metrics_sent_total",
			Help: "Events delivered to the collector.",
		}),
		promErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dcollect_errors_total",
			Help: "Failed sends and source errors.",
		}),
		promReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dcollect_reconnects_total",
			Help: "Failed handshake attempts that were retried.",
		}),
	}

	registry.MustRegister(c.promCollected, c.promSent, c.promErrors, c.promReconnects)
	return c
}

// IncCollected counts one accepted event.
// Params: none.
// Returns: counter value after the increment.
func (c *Counters) IncCollected() uint64 {
	v := c.collected.Add(1)
	c.promCollected.Inc()
	return v
}

// IncSent counts one delivered event.
// Params: none.
// Returns: counter value after the increment.
func (c *Counters) IncSent() uint64 {
	v := c.sent.Add(1)
	c.promSent.Inc()
	return v
}

// IncErrors counts one failure.
// Params: none.
// Returns: none.
func (c *Counters) IncErrors() {
	c.errors.Add(1)
	c.promErrors.Inc()
}

// IncReconnects counts one retried handshake attempt.
// Params: none.
// Returns: none.
func (c *Counters) IncReconnects() {
	c.reconnects.Add(1)
	c.promReconnects.Inc()
}

// Snapshot reads the current counter values.
// Params: none.
// Returns: point-in-time snapshot.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Collected:  c.collected.Load(),
		Sent:       c.sent.Load(),
		Errors:     c.errors.Load(),
		Reconnects: c.reconnects.Load(),
	}
}

// MetricsHandler serves the private registry in prometheus text format.
// Params: none.
// Returns: HTTP handler for /metrics.
func (c *Counters) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// SnapshotHandler serves the counter snapshot as JSON.
// Params: none.
// Returns: HTTP handler for /stats.
func (c *Counters) SnapshotHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(c.Snapshot())
	})
}
