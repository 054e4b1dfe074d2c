package transport

import (
	"context"
	"fmt"

	"dcollect/internal/config"
	"dcollect/internal/event"
)

// Events receives asynchronous connection callbacks. Implementations
// must be safe for concurrent use: a link drop and an inbound message
// can arrive at the same time.
type Events interface {
	// HandleConnect fires once after a successful handshake.
	HandleConnect()
	// HandleDisconnect fires once when the link drops; err carries the
	// transport failure and is nil on orderly remote close.
	HandleDisconnect(err error)
	// HandleMessage fires for every inbound named message.
	HandleMessage(name string, payload []byte)
}

// Conn is one established connection to the collector.
// Params: ctx bounds each operation.
// Returns: operation errors; a failed Send does not close the link.
type Conn interface {
	Send(ctx context.Context, ev event.Event) error
	Close(ctx context.Context) error
}

// Transport dials persistent collector connections.
// Params: ctx bounds the handshake; events receives connection callbacks.
// Returns: established connection or handshake error.
type Transport interface {
	Dial(ctx context.Context, events Events) (Conn, error)
}

// New builds the configured transport implementation.
// Params: cfg validated collector configuration.
// Returns: transport or error for unknown transport names.
func New(cfg config.CollectorConfig) (Transport, error) {
	switch cfg.Transport {
	case "websocket":
		return NewWebsocket(cfg.Endpoint, cfg.Channel, cfg.Timeout.Duration), nil
	case "grpc":
		return NewGRPC(cfg.Endpoint, cfg.Timeout.Duration), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
