package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"dcollect/internal/event"
	"dcollect/internal/pipeline"
	"dcollect/internal/stats"
)

// newTestManager builds a manager over a fake transport.
// Params: failures dial-failure budget; maxAttempts handshake budget.
// Returns: manager, transport, and counters.
func newTestManager(failures int, maxAttempts uint) (*pipeline.ConnectionManager, *fakeTransport, *stats.Counters) {
	tr := newFakeTransport(failures)
	counters := stats.New()
	manager := pipeline.NewConnectionManager(tr, testLogger(), counters, 5*time.Millisecond, maxAttempts)
	return manager, tr, counters
}

// TestConnectionManager_ConvergesAfterFailures verifies reconnection convergence.
// Params: testing.T for assertions.
// Returns: none.
func TestConnectionManager_ConvergesAfterFailures(t *testing.T) {
	manager, tr, counters := newTestManager(3, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := manager.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !manager.IsConnected() {
		t.Fatalf("expected connected state")
	}
	if got := tr.dialCount(); got != 4 {
		t.Fatalf("unexpected dial count: %d", got)
	}
	if got := counters.Snapshot().Reconnects; got < 1 {
		t.Fatalf("expected reconnects >= 1, got %d", got)
	}
}

// TestConnectionManager_ExhaustsAttempts verifies the bounded handshake budget.
// Params: testing.T for assertions.
// Returns: none.
func TestConnectionManager_ExhaustsAttempts(t *testing.T) {
	manager, tr, _ := newTestManager(100, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := manager.Connect(ctx); err == nil {
		t.Fatalf("expected exhausted-attempts error")
	}
	if manager.IsConnected() {
		t.Fatalf("expected disconnected state after exhaustion")
	}
	if got := manager.State(); got != pipeline.StateDisconnected {
		t.Fatalf("unexpected state: %v", got)
	}
	if got := tr.dialCount(); got != 2 {
		t.Fatalf("unexpected dial count: %d", got)
	}
}

// TestConnectionManager_SendWhileDisconnected verifies the immediate-failure path.
// Params: testing.T for assertions.
// Returns: none.
func TestConnectionManager_SendWhileDisconnected(t *testing.T) {
	manager, _, _ := newTestManager(0, 0)

	err := manager.Send(context.Background(), event.Event{Type: "cpu_percent"})
	if !errors.Is(err, pipeline.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

// TestConnectionManager_DisconnectIsIdempotentAndTerminal verifies shutdown semantics.
// Params: testing.T for assertions.
// Returns: none.
func TestConnectionManager_DisconnectIsIdempotentAndTerminal(t *testing.T) {
	manager, tr, _ := newTestManager(0, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := manager.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if err := manager.Disconnect(ctx); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if err := manager.Disconnect(ctx); err != nil {
		t.Fatalf("repeated disconnect: %v", err)
	}
	if !tr.lastConn().closed.Load() {
		t.Fatalf("expected underlying connection to be closed")
	}
	if got := manager.State(); got != pipeline.StateShuttingDown {
		t.Fatalf("unexpected state: %v", got)
	}

	if err := manager.Connect(ctx); err == nil {
		t.Fatalf("expected connect to fail after shutdown")
	}
}

// TestConnectionManager_LinkDropFlipsState verifies asynchronous drop handling.
// Params: testing.T for assertions.
// Returns: none.
func TestConnectionManager_LinkDropFlipsState(t *testing.T) {
	manager, tr, _ := newTestManager(0, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := manager.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	tr.lastConn().events.HandleDisconnect(fmt.Errorf("link reset"))

	if manager.IsConnected() {
		t.Fatalf("expected disconnected state after link drop")
	}
	if err := manager.Send(ctx, event.Event{Type: "cpu_percent"}); !errors.Is(err, pipeline.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after drop, got %v", err)
	}
}
