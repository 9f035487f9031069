// Package bridge connects to an external chat-network bridge over a websocket.
// The bridge owns pairing, encryption and credentials; this package only speaks
// its JSON event protocol.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/zap-gateway/internal/model/transport"
)

// closeCodeBase offsets bridge close codes: websocket close code 4401 carries
// transport close reason 401.
const closeCodeBase = 4000

// ErrClosed is returned when sending on a closed connection.
var ErrClosed = errors.New("bridge connection closed")

// Options configures the bridge client.
type Options struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	WriteTimeout     time.Duration
	EventBuffer      int
}

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 30 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 64
	}
	return o
}

// Dialer opens bridge connections.
type Dialer struct {
	opts   Options
	logger *slog.Logger
}

var _ transport.Dialer = (*Dialer)(nil)

// NewDialer creates a Dialer for the bridge at opts.URL.
func NewDialer(opts Options, logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialer{opts: opts.withDefaults(), logger: logger}
}

// Dial establishes one websocket connection and starts its read and ping loops.
func (d *Dialer) Dial(ctx context.Context) (transport.Conn, error) {
	dialer := &websocket.Dialer{HandshakeTimeout: d.opts.HandshakeTimeout}

	ws, _, err := dialer.DialContext(ctx, d.opts.URL, d.opts.Header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	c := &conn{
		ws:     ws,
		opts:   d.opts,
		logger: d.logger,
		events: make(chan transport.Event, d.opts.EventBuffer),
		done:   make(chan struct{}),
	}

	readTimeout := 2 * d.opts.PingInterval
	_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go c.readLoop(readTimeout)
	go c.pingLoop()
	return c, nil
}

type conn struct {
	ws     *websocket.Conn
	opts   Options
	logger *slog.Logger
	events chan transport.Event
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *conn) Events() <-chan transport.Event {
	return c.events
}

// Send writes a send frame. Writes are serialized because the websocket
// allows a single concurrent writer.
func (c *conn) Send(ctx context.Context, to, text, quotedID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	data, err := json.Marshal(frame{
		Type:     frameSend,
		ID:       uuid.NewString(),
		To:       to,
		Text:     text,
		QuotedID: quotedID,
	})
	if err != nil {
		return fmt.Errorf("encoding send frame: %w", err)
	}

	return c.write(ctx, websocket.TextMessage, data)
}

func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.write(context.Background(), websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = c.ws.Close()
	})
	return err
}

func (c *conn) write(ctx context.Context, messageType int, data []byte) error {
	deadline := time.Now().Add(c.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if err := c.ws.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("websocket write failed: %w", err)
	}
	return nil
}

// readLoop translates frames into events until the socket fails or the bridge
// reports a closure. Exactly one close event is emitted before the channel closes.
func (c *conn) readLoop(readTimeout time.Duration) {
	defer close(c.events)
	defer c.ws.Close()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.emit(transport.ConnectionEvent{State: transport.ConnectionClose, Reason: reasonFromError(err)})
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("dropping malformed bridge frame", "error", err)
			continue
		}

		event, ok := f.toEvent()
		if !ok {
			c.logger.Debug("ignoring bridge frame", "type", f.Type)
			continue
		}
		if !c.emit(event) {
			return
		}
		if ce, isConn := event.(transport.ConnectionEvent); isConn && ce.State == transport.ConnectionClose {
			return
		}
	}
}

func (c *conn) emit(event transport.Event) bool {
	select {
	case c.events <- event:
		return true
	case <-c.done:
		return false
	}
}

func (c *conn) pingLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.write(context.Background(), websocket.PingMessage, nil); err != nil {
				c.logger.Debug("bridge ping failed", "error", err)
				return
			}
		}
	}
}

// reasonFromError maps socket failures onto transport close reasons.
func reasonFromError(err error) transport.CloseReason {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code > closeCodeBase && closeErr.Code < closeCodeBase+1000 {
		return transport.CloseReason(closeErr.Code - closeCodeBase)
	}
	return transport.ReasonConnectionLost
}
