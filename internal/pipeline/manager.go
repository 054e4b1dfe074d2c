package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dcollect/internal/event"
	"dcollect/internal/stats"
	"dcollect/internal/transport"
)

// ErrNotConnected is returned by Send while the collector link is down.
var ErrNotConnected = errors.New("not connected to collector")

// State is the connection lifecycle state owned by the ConnectionManager.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateShuttingDown
)

// String returns the lower-case state name.
// Params: none.
// Returns: state name for logs.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// ConnectionManager owns the collector connection and its state machine.
// State moves Disconnected -> Connecting -> Connected and back to
// Disconnected on failure; ShuttingDown is terminal. It also implements
// transport.Events to absorb asynchronous link callbacks.
// Params: transport, retry policy, shared counters and logger.
// Returns: connection handle used by dispatchers and the monitor.
type ConnectionManager struct {
	transport         transport.Transport
	logger            *slog.Logger
	counters          *stats.Counters
	reconnectInterval time.Duration
	maxAttempts       uint

	mu    sync.Mutex
	state State
	conn  transport.Conn
}

// NewConnectionManager creates a disconnected manager.
// Params: tr collector transport; logger/counters shared runtime deps;
// reconnectInterval fixed retry delay; maxAttempts handshake budget per
// connect round (0 = unbounded).
// Returns: manager in Disconnected state.
func NewConnectionManager(
	tr transport.Transport,
	logger *slog.Logger,
	counters *stats.Counters,
	reconnectInterval time.Duration,
	maxAttempts uint,
) *ConnectionManager {
	return &ConnectionManager{
		transport:         tr,
		logger:            logger,
		counters:          counters,
		reconnectInterval: reconnectInterval,
		maxAttempts:       maxAttempts,
	}
}

// Connect establishes the collector link with fixed-delay retry.
// Each failed handshake that will be retried counts as one reconnect.
// Params: ctx bounds the whole retry loop.
// Returns: nil once Connected; error on exhausted attempts, shutdown, or
// ctx cancellation, leaving state Disconnected.
func (m *ConnectionManager) Connect(ctx context.Context) error {
	for attempt := uint(1); ; attempt++ {
		m.mu.Lock()
		if m.state == StateShuttingDown {
			m.mu.Unlock()
			return fmt.Errorf("connect: manager is shutting down")
		}
		m.state = StateConnecting
		m.mu.Unlock()

		conn, err := m.transport.Dial(ctx, m)
		if err == nil {
			m.mu.Lock()
			if m.state == StateShuttingDown {
				m.mu.Unlock()
				_ = conn.Close(ctx)
				return fmt.Errorf("connect: manager is shutting down")
			}
			m.conn = conn
			m.state = StateConnected
			m.mu.Unlock()
			m.logger.Info("connected to collector", slog.Uint64("attempt", uint64(attempt)))
			return nil
		}

		m.setState(StateDisconnected)

		if ctx.Err() != nil {
			return fmt.Errorf("connect: %w", ctx.Err())
		}
		if m.maxAttempts > 0 && attempt >= m.maxAttempts {
			return fmt.Errorf("connect: gave up after %d attempts: %w", attempt, err)
		}

		m.counters.IncReconnects()
		m.logger.Warn(
			"connect attempt failed, retrying",
			slog.Uint64("attempt", uint64(attempt)),
			slog.Duration("retry_in", m.reconnectInterval),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("connect: %w", ctx.Err())
		case <-time.After(m.reconnectInterval):
		}
	}
}

// Send transmits one event over the established link.
// Params: ctx bounds the write; ev event to transmit.
// Returns: ErrNotConnected while the link is down, transport error otherwise.
func (m *ConnectionManager) Send(ctx context.Context, ev event.Event) error {
	m.mu.Lock()
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}
	return conn.Send(ctx, ev)
}

// Disconnect closes the link and moves to the terminal ShuttingDown state.
// Best effort and idempotent; repeated calls are no-ops.
// Params: ctx bounds the close handshake.
// Returns: close error from the transport.
func (m *ConnectionManager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.state = StateShuttingDown
	m.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Close(ctx); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	m.logger.Info("disconnected from collector")
	return nil
}

// IsConnected reports an advisory snapshot of the link state.
// Params: none.
// Returns: true while state is Connected.
func (m *ConnectionManager) IsConnected() bool {
	return m.State() == StateConnected
}

// State reads the current lifecycle state.
// Params: none.
// Returns: state snapshot.
func (m *ConnectionManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// HandleConnect logs the completed handshake.
// Params: none.
// Returns: none.
func (m *ConnectionManager) HandleConnect() {
	m.logger.Debug("collector handshake completed")
}

// HandleDisconnect absorbs an asynchronous link drop.
// Params: err transport failure; nil on orderly remote close.
// Returns: none.
func (m *ConnectionManager) HandleDisconnect(err error) {
	m.mu.Lock()
	if m.state == StateShuttingDown {
		m.mu.Unlock()
		return
	}
	m.state = StateDisconnected
	m.conn = nil
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("collector link dropped", slog.String("error", err.Error()))
		return
	}
	m.logger.Info("collector link closed by remote")
}

// HandleMessage logs inbound named messages from the collector.
// Params: name message name; payload raw body.
// Returns: none.
func (m *ConnectionManager) HandleMessage(name string, payload []byte) {
	switch name {
	case "success":
		m.logger.Debug("collector acknowledged delivery")
	case "error":
		m.logger.Warn("collector reported error", slog.String("detail", string(payload)))
	default:
		m.logger.Debug("inbound collector message", slog.String("name", name))
	}
}

// setState updates the lifecycle state unless already shutting down.
// Params: next target state.
// Returns: none.
func (m *ConnectionManager) setState(next State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateShuttingDown {
		return
	}
	m.state = next
}
