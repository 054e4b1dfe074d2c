package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"dcollect/internal/event"
)

// MessageMetric is the named message carrying one metric record.
const MessageMetric = "metric"

// envelope is the websocket wire frame: a named message with a payload.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Websocket dials JSON-envelope websocket connections to the collector.
// Params: endpoint ws/wss URL, channel path, per-operation timeout.
// Returns: Transport implementation.
type Websocket struct {
	endpoint string
	channel  string
	timeout  time.Duration
}

// NewWebsocket creates the websocket transport.
// Params: endpoint base ws/wss URL; channel data path appended to it;
// timeout bounds handshake and each write.
// Returns: configured transport.
func NewWebsocket(endpoint, channel string, timeout time.Duration) *Websocket {
	return &Websocket{endpoint: endpoint, channel: channel, timeout: timeout}
}

// Dial performs the websocket handshake and starts the read pump.
// Params: ctx bounds the handshake; events receives connection callbacks.
// Returns: established connection or handshake error.
func (t *Websocket) Dial(ctx context.Context, events Events) (Conn, error) {
	target, err := url.Parse(t.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint %q: %w", t.endpoint, err)
	}
	target.Path = t.channel

	dialer := websocket.Dialer{HandshakeTimeout: t.timeout}
	ws, _, err := dialer.DialContext(ctx, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target.String(), err)
	}

	conn := &websocketConn{
		ws:      ws,
		timeout: t.timeout,
		events:  events,
	}
	go conn.readPump()

	events.HandleConnect()
	return conn, nil
}

// websocketConn is one established websocket link.
// Params: write mutex serializes concurrent dispatcher writes.
// Returns: Conn implementation.
type websocketConn struct {
	ws      *websocket.Conn
	timeout time.Duration
	events  Events

	writeMu sync.Mutex
	closing atomic.Bool
}

// Send writes one metric record as a named websocket message.
// Params: ctx bounds the write; ev event to serialize.
// Returns: marshal or write error.
func (c *websocketConn) Send(ctx context.Context, ev event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	record, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	frame, err := json.Marshal(envelope{Event: MessageMetric, Data: record})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(writeDeadline(ctx, c.timeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write metric: %w", err)
	}
	return nil
}

// Close sends a close frame and tears the link down.
// Params: ctx bounds the close handshake.
// Returns: close error from the underlying socket.
func (c *websocketConn) Close(ctx context.Context) error {
	c.closing.Store(true)

	c.writeMu.Lock()
	deadline := writeDeadline(ctx, c.timeout)
	_ = c.ws.SetWriteDeadline(deadline)
	_ = c.ws.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	c.writeMu.Unlock()

	if err := c.ws.Close(); err != nil {
		return fmt.Errorf("close websocket: %w", err)
	}
	return nil
}

// readPump surfaces inbound named messages and link drops.
// Params: none.
// Returns: none; exits when the link drops or Close is called.
func (c *websocketConn) readPump() {
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if c.closing.Load() {
				return
			}
			// Release our side of the socket; nobody else closes it
			// after an unsolicited drop.
			_ = c.ws.Close()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.events.HandleDisconnect(nil)
				return
			}
			c.events.HandleDisconnect(err)
			return
		}

		var frame envelope
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.events.HandleMessage("malformed", raw)
			continue
		}
		c.events.HandleMessage(frame.Event, frame.Data)
	}
}

// writeDeadline derives the effective write deadline.
// Params: ctx may carry a deadline; timeout default per-write bound.
// Returns: earliest applicable deadline; zero time when unbounded.
func writeDeadline(ctx context.Context, timeout time.Duration) time.Time {
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (deadline.IsZero() || ctxDeadline.Before(deadline)) {
		deadline = ctxDeadline
	}
	return deadline
}
