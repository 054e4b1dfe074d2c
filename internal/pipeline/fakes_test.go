package pipeline_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"dcollect/internal/config"
	"dcollect/internal/event"
	"dcollect/internal/transport"
)

// fakeConn records sent events for one fake transport connection.
// Params: delivered receives every sent event.
// Returns: transport.Conn implementation.
type fakeConn struct {
	delivered chan event.Event
	events    transport.Events
	sendErr   error
	closed    atomic.Bool
}

// Send records one event or returns the configured failure.
// Params: ctx unused; ev sent event.
// Returns: configured send error.
func (c *fakeConn) Send(_ context.Context, ev event.Event) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.delivered <- ev
	return nil
}

// Close marks the connection closed.
// Params: ctx unused.
// Returns: nil.
func (c *fakeConn) Close(_ context.Context) error {
	c.closed.Store(true)
	return nil
}

// fakeTransport fails a configured number of dials before succeeding.
// Params: failures dial-failure budget; delivered shared send sink.
// Returns: transport.Transport implementation.
type fakeTransport struct {
	mu        sync.Mutex
	failures  int
	dials     int
	conns     []*fakeConn
	sendErr   error
	delivered chan event.Event
}

// newFakeTransport creates a transport failing the first failures dials.
// Params: failures dial-failure budget before handshakes succeed.
// Returns: fake transport with a buffered delivery sink.
func newFakeTransport(failures int) *fakeTransport {
	return &fakeTransport{
		failures:  failures,
		delivered: make(chan event.Event, 1024),
	}
}

// Dial fails while the budget lasts, then hands out recording connections.
// Params: ctx unused; events connection callbacks.
// Returns: fake connection or dial error.
func (t *fakeTransport) Dial(_ context.Context, events transport.Events) (transport.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.dials++
	if t.dials <= t.failures {
		return nil, fmt.Errorf("dial refused (attempt %d)", t.dials)
	}

	conn := &fakeConn{delivered: t.delivered, events: events, sendErr: t.sendErr}
	t.conns = append(t.conns, conn)
	events.HandleConnect()
	return conn, nil
}

// dialCount reads the dial attempt counter.
// Params: none.
// Returns: total dial attempts.
func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

// lastConn returns the most recently established connection.
// Params: none.
// Returns: connection or nil before the first successful dial.
func (t *fakeTransport) lastConn() *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

// chanSource feeds events from a test-controlled channel.
// Params: ch event feed.
// Returns: source.Source implementation.
type chanSource struct {
	ch chan event.Event
}

// Next returns the next fed event or the ctx error.
// Params: ctx bounds the wait.
// Returns: event or cancellation error.
func (s *chanSource) Next(ctx context.Context) (event.Event, error) {
	select {
	case ev := <-s.ch:
		return ev, nil
	case <-ctx.Done():
		return event.Event{}, ctx.Err()
	}
}

// testLogger builds a silent logger for pipeline tests.
// Params: none.
// Returns: slog logger writing to io.Discard.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testCollectorConfig builds fast-timing collector settings for tests.
// Params: queueSize ingest queue capacity; dispatchers worker count.
// Returns: collector config with short intervals.
func testCollectorConfig(queueSize, dispatchers int) config.CollectorConfig {
	return config.CollectorConfig{
		Endpoint:          "ws://127.0.0.1:5000",
		Channel:           "/ws/data",
		Transport:         "websocket",
		Timeout:           config.Duration{Duration: time.Second},
		ReconnectInterval: config.Duration{Duration: 20 * time.Millisecond},
		QueueSize:         queueSize,
		Dispatchers:       dispatchers,
		PollTimeout:       config.Duration{Duration: 10 * time.Millisecond},
		DrainTimeout:      config.Duration{Duration: 500 * time.Millisecond},
		DisconnectTimeout: config.Duration{Duration: 200 * time.Millisecond},
	}
}
