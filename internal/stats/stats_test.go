package stats_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"dcollect/internal/stats"
)

// TestCounters_SnapshotTracksIncrements verifies atomic counter reads.
// Params: testing.T for assertions.
// Returns: none.
func TestCounters_SnapshotTracksIncrements(t *testing.T) {
	counters := stats.New()

	counters.IncCollected()
	counters.IncCollected()
	counters.IncSent()
	counters.IncErrors()
	counters.IncReconnects()

	snap := counters.Snapshot()
	if snap.Collected != 2 {
		t.Fatalf("unexpected collected: %d", snap.Collected)
	}
	if snap.Sent != 1 {
		t.Fatalf("unexpected sent: %d", snap.Sent)
	}
	if snap.Errors != 1 {
		t.Fatalf("unexpected errors: %d", snap.Errors)
	}
	if snap.Reconnects != 1 {
		t.Fatalf("unexpected reconnects: %d", snap.Reconnects)
	}
}

// TestCounters_IncrementsReturnNewValue verifies the post-increment reads
// used for milestone accounting.
// Params: testing.T for assertions.
// Returns: none.
func TestCounters_IncrementsReturnNewValue(t *testing.T) {
	counters := stats.New()

	for want := uint64(1); want <= 3; want++ {
		if got := counters.IncCollected(); got != want {
			t.Fatalf("unexpected collected value: got %d, want %d", got, want)
		}
	}
	for want := uint64(1); want <= 3; want++ {
		if got := counters.IncSent(); got != want {
			t.Fatalf("unexpected sent value: got %d, want %d", got, want)
		}
	}
}

// TestCounters_MetricsHandlerExposesRegistry verifies prometheus exposition.
// Params: testing.T for assertions.
// Returns: none.
func TestCounters_MetricsHandlerExposesRegistry(t *testing.T) {
	counters := stats.New()
	counters.IncSent()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	counters.MetricsHandler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "dcollect_metrics_sent_total 1") {
		t.Fatalf("expected sent counter in exposition, got:\n%s", body)
	}
}

// TestCounters_SnapshotHandlerServesJSON verifies the JSON stats endpoint.
// Params: testing.T for assertions.
// Returns: none.
func TestCounters_SnapshotHandlerServesJSON(t *testing.T) {
	counters := stats.New()
	counters.IncCollected()

	req := httptest.NewRequest("GET", "/stats", nil)
	rec := httptest.NewRecorder()
	counters.SnapshotHandler().ServeHTTP(rec, req)

	var snap stats.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Collected != 1 {
		t.Fatalf("unexpected collected: %d", snap.Collected)
	}
}
