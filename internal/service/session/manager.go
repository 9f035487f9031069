// Package session owns the transport connection lifecycle and its
// reconnection policy.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zhouzirui/zap-gateway/internal/model/transport"
)

var (
	// ErrLoggedOut is returned by Run once the session was revoked. Pairing is
	// required before the gateway can connect again.
	ErrLoggedOut = errors.New("session logged out")
	// ErrNotConnected is returned by Send while no connection is open.
	ErrNotConnected = errors.New("session not connected")
)

// State is the lifecycle state of the connection session.
type State int

const (
	StateInitializing State = iota
	StateAwaitingPairing
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAwaitingPairing:
		return "awaiting_pairing"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MessageHandler receives inbound messages. Dispatch must not block the
// event loop for long.
type MessageHandler interface {
	Dispatch(ctx context.Context, msg transport.InboundMessage)
}

// Status is a snapshot of the session.
type Status struct {
	State       State
	CloseReason transport.CloseReason
	Attempts    int
	Since       time.Time
}

// Manager owns the single transport connection. It is the only place where
// reconnection decisions are made.
type Manager struct {
	dialer  transport.Dialer
	handler MessageHandler
	logger  *slog.Logger

	onPairing func(code string)
	onOpen    func(ctx context.Context)

	baseDelay time.Duration
	maxDelay  time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time

	mu          sync.RWMutex
	state       State
	closeReason transport.CloseReason
	conn        transport.Conn
	attempts    int
	since       time.Time
}

// Option customizes a Manager.
type Option func(*Manager)

// WithPairingHandler sets the callback that displays pairing codes.
func WithPairingHandler(fn func(code string)) Option {
	return func(m *Manager) {
		m.onPairing = fn
	}
}

// WithOpenHook runs fn every time the session reaches StateOpen.
func WithOpenHook(fn func(ctx context.Context)) Option {
	return func(m *Manager) {
		m.onOpen = fn
	}
}

// WithBackoff bounds the delay between consecutive failed connection attempts.
// A zero base retries immediately.
func WithBackoff(base, max time.Duration) Option {
	return func(m *Manager) {
		m.baseDelay = base
		m.maxDelay = max
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a Manager that dials through dialer and hands inbound
// messages to handler.
func NewManager(dialer transport.Dialer, handler MessageHandler, opts ...Option) *Manager {
	m := &Manager{
		dialer:    dialer,
		handler:   handler,
		logger:    slog.Default(),
		baseDelay: time.Second,
		maxDelay:  30 * time.Second,
		sleep:     sleepContext,
		now:       time.Now,
		state:     StateInitializing,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.since = m.now()
	return m
}

// Run keeps the session alive until ctx is canceled (returns nil) or the
// session is logged out (returns ErrLoggedOut). Every other closure starts a
// new connection attempt. Retries are unbounded; consecutive attempts that
// never reach StateOpen are spaced by an exponential backoff.
func (m *Manager) Run(ctx context.Context) error {
	failures := 0
	for {
		opened, reason, err := m.start(ctx)

		if ctx.Err() != nil {
			m.transition(StateClosed, transport.ReasonUnknown, "shutdown")
			return nil
		}

		switch {
		case err != nil:
			m.logger.Warn("connection attempt failed", "error", err)
		case reason.Terminal():
			m.transition(StateClosed, reason, "logged out, pairing required")
			return ErrLoggedOut
		default:
			m.logger.Info("connection closed, reconnecting", "reason", reason.String())
		}

		if opened {
			failures = 0
		} else {
			failures++
		}

		if delay := m.backoff(failures); delay > 0 {
			m.logger.Info("waiting before reconnect", "delay", delay, "failures", failures)
			if err := m.sleep(ctx, delay); err != nil {
				m.transition(StateClosed, transport.ReasonUnknown, "shutdown")
				return nil
			}
		}
	}
}

// start runs one connection attempt to completion. It reports whether the
// connection reached StateOpen and the close reason that ended it.
func (m *Manager) start(ctx context.Context) (bool, transport.CloseReason, error) {
	m.mu.Lock()
	m.attempts++
	attempt := m.attempts
	m.mu.Unlock()

	m.transition(StateInitializing, transport.ReasonUnknown, fmt.Sprintf("attempt %d", attempt))

	conn, err := m.dialer.Dial(ctx)
	if err != nil {
		return false, transport.ReasonUnknown, fmt.Errorf("dial: %w", err)
	}
	defer func() {
		m.setConn(nil)
		_ = conn.Close()
	}()

	opened := false
	for {
		select {
		case <-ctx.Done():
			return opened, transport.ReasonUnknown, nil
		case event, ok := <-conn.Events():
			if !ok {
				m.setConn(nil)
				m.transition(StateClosed, transport.ReasonConnectionLost, "event stream ended")
				return opened, transport.ReasonConnectionLost, nil
			}

			switch ev := event.(type) {
			case transport.PairingEvent:
				m.transition(StateAwaitingPairing, transport.ReasonUnknown, "pairing code received")
				if m.onPairing != nil {
					m.onPairing(ev.Code)
				}
			case transport.ConnectionEvent:
				switch ev.State {
				case transport.ConnectionOpen:
					opened = true
					m.setConn(conn)
					m.transition(StateOpen, transport.ReasonUnknown, "connection open")
					if m.onOpen != nil {
						m.onOpen(ctx)
					}
				case transport.ConnectionClose:
					m.setConn(nil)
					m.transition(StateClosed, ev.Reason, "connection closed")
					return opened, ev.Reason, nil
				default:
					m.logger.Debug("connection update", "state", string(ev.State))
				}
			case transport.MessageEvent:
				if m.handler != nil {
					m.handler.Dispatch(ctx, ev.Message)
				}
			}
		}
	}
}

// Send delivers a reply over the open connection.
func (m *Manager) Send(ctx context.Context, to, text, quotedID string) error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}
	return conn.Send(ctx, to, text, quotedID)
}

// Status returns a snapshot of the session.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{State: m.state, CloseReason: m.closeReason, Attempts: m.attempts, Since: m.since}
}

// IsOpen reports whether replies can currently be sent.
func (m *Manager) IsOpen() bool {
	return m.Status().State == StateOpen
}

func (m *Manager) setConn(conn transport.Conn) {
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
}

func (m *Manager) transition(to State, reason transport.CloseReason, cause string) {
	m.mu.Lock()
	from := m.state
	m.state = to
	m.closeReason = reason
	m.since = m.now()
	m.mu.Unlock()

	attrs := []any{"from", from.String(), "to", to.String(), "cause", cause}
	if to == StateClosed {
		attrs = append(attrs, "reason", reason.String())
	}
	m.logger.Info("session state changed", attrs...)
}

func (m *Manager) backoff(failures int) time.Duration {
	if failures <= 0 || m.baseDelay <= 0 {
		return 0
	}
	delay := m.baseDelay
	for i := 1; i < failures; i++ {
		delay *= 2
		if m.maxDelay > 0 && delay >= m.maxDelay {
			return m.maxDelay
		}
	}
	if m.maxDelay > 0 && delay > m.maxDelay {
		return m.maxDelay
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
