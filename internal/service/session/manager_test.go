package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/zap-gateway/internal/model/transport"
)

type sentMessage struct {
	to, text, quotedID string
}

type fakeConn struct {
	events chan transport.Event
	mu     sync.Mutex
	sent   []sentMessage
	closed bool
}

func newFakeConn(events ...transport.Event) *fakeConn {
	c := &fakeConn{events: make(chan transport.Event, len(events)+1)}
	for _, ev := range events {
		c.events <- ev
	}
	return c
}

func (c *fakeConn) Events() <-chan transport.Event { return c.events }

func (c *fakeConn) Send(_ context.Context, to, text, quotedID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMessage{to, text, quotedID})
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// fakeDialer hands out scripted connections; a nil entry fails the dial.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials int
}

func (d *fakeDialer) Dial(context.Context) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.conns) == 0 {
		return nil, errors.New("no more scripted connections")
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	if c == nil {
		return nil, errors.New("dial refused")
	}
	return c, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type recordingHandler struct {
	mu   sync.Mutex
	msgs []transport.InboundMessage
}

func (h *recordingHandler) Dispatch(_ context.Context, msg transport.InboundMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, msg)
}

func closeEvent(reason transport.CloseReason) transport.Event {
	return transport.ConnectionEvent{State: transport.ConnectionClose, Reason: reason}
}

var openEvent = transport.ConnectionEvent{State: transport.ConnectionOpen}

func noSleep(context.Context, time.Duration) error { return nil }

func TestRunReconnectsOnRecoverableClose(t *testing.T) {
	dialer := &fakeDialer{conns: []*fakeConn{
		newFakeConn(openEvent, closeEvent(transport.ReasonConnectionLost)),
		newFakeConn(openEvent, closeEvent(transport.ReasonRestartRequired)),
		newFakeConn(openEvent, closeEvent(transport.ReasonLoggedOut)),
	}}
	m := NewManager(dialer, nil)
	m.sleep = noSleep

	err := m.Run(context.Background())

	require.ErrorIs(t, err, ErrLoggedOut)
	assert.Equal(t, 3, dialer.Dials())
	status := m.Status()
	assert.Equal(t, StateClosed, status.State)
	assert.Equal(t, transport.ReasonLoggedOut, status.CloseReason)
	assert.Equal(t, 3, status.Attempts)
}

func TestRunDoesNotRetryAfterLogout(t *testing.T) {
	first := newFakeConn(openEvent, closeEvent(transport.ReasonLoggedOut))
	dialer := &fakeDialer{conns: []*fakeConn{first, newFakeConn(openEvent)}}
	m := NewManager(dialer, nil)

	err := m.Run(context.Background())

	require.ErrorIs(t, err, ErrLoggedOut)
	assert.Equal(t, 1, dialer.Dials())
	assert.True(t, first.closed)
	assert.False(t, m.IsOpen())
}

func TestRunBacksOffOnlyOnConsecutiveFailures(t *testing.T) {
	dialer := &fakeDialer{conns: []*fakeConn{
		nil,
		nil,
		newFakeConn(openEvent, closeEvent(transport.ReasonConnectionClosed)),
		newFakeConn(openEvent, closeEvent(transport.ReasonLoggedOut)),
	}}
	var delays []time.Duration
	m := NewManager(dialer, nil, WithBackoff(time.Second, 3*time.Second))
	m.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	require.ErrorIs(t, m.Run(context.Background()), ErrLoggedOut)
	assert.Equal(t, 4, dialer.Dials())
	// two failed dials back off, the drop after a successful open reconnects immediately
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestBackoffIsBounded(t *testing.T) {
	m := NewManager(&fakeDialer{}, nil, WithBackoff(time.Second, 5*time.Second))
	assert.Equal(t, time.Duration(0), m.backoff(0))
	assert.Equal(t, time.Second, m.backoff(1))
	assert.Equal(t, 4*time.Second, m.backoff(3))
	assert.Equal(t, 5*time.Second, m.backoff(4))
	assert.Equal(t, 5*time.Second, m.backoff(60))

	m = NewManager(&fakeDialer{}, nil, WithBackoff(0, 0))
	assert.Equal(t, time.Duration(0), m.backoff(10))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	conn := newFakeConn(openEvent)
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	ctx, cancel := context.WithCancel(context.Background())

	opened := make(chan struct{})
	m := NewManager(dialer, nil, WithOpenHook(func(context.Context) { close(opened) }))

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	select {
	case <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("session never opened")
	}
	assert.True(t, m.IsOpen())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, StateClosed, m.Status().State)
	conn.mu.Lock()
	assert.True(t, conn.closed)
	conn.mu.Unlock()
}

func TestPairingAndMessages(t *testing.T) {
	msg := transport.InboundMessage{ID: "M1", ChatID: "5511999@s.whatsapp.net", Payload: transport.TextPayload{Text: "oi"}}
	conn := newFakeConn(
		transport.PairingEvent{Code: "2@qr"},
		openEvent,
		transport.MessageEvent{Message: msg},
		closeEvent(transport.ReasonLoggedOut),
	)
	handler := &recordingHandler{}
	var codes []string
	var states []State

	m := NewManager(&fakeDialer{conns: []*fakeConn{conn}}, handler,
		WithPairingHandler(func(code string) { codes = append(codes, code) }),
	)
	m.onOpen = func(context.Context) { states = append(states, m.Status().State) }

	require.ErrorIs(t, m.Run(context.Background()), ErrLoggedOut)
	assert.Equal(t, []string{"2@qr"}, codes)
	assert.Equal(t, []State{StateOpen}, states)
	assert.Equal(t, []transport.InboundMessage{msg}, handler.msgs)
}

func TestSendRequiresOpenConnection(t *testing.T) {
	conn := newFakeConn(openEvent)
	m := NewManager(&fakeDialer{conns: []*fakeConn{conn}}, nil)

	assert.ErrorIs(t, m.Send(context.Background(), "to", "text", ""), ErrNotConnected)

	ctx, cancel := context.WithCancel(context.Background())
	opened := make(chan struct{})
	m.onOpen = func(context.Context) { close(opened) }
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	<-opened

	require.NoError(t, m.Send(context.Background(), "5511999@s.whatsapp.net", "Paris.", "M1"))
	conn.mu.Lock()
	assert.Equal(t, []sentMessage{{"5511999@s.whatsapp.net", "Paris.", "M1"}}, conn.sent)
	conn.mu.Unlock()

	cancel()
	<-done
	assert.ErrorIs(t, m.Send(context.Background(), "to", "text", ""), ErrNotConnected)
}

func TestEventStreamEndIsRecoverable(t *testing.T) {
	dropped := newFakeConn(openEvent)
	close(dropped.events)
	dialer := &fakeDialer{conns: []*fakeConn{
		dropped,
		newFakeConn(closeEvent(transport.ReasonLoggedOut)),
	}}
	m := NewManager(dialer, nil)
	m.sleep = noSleep

	require.ErrorIs(t, m.Run(context.Background()), ErrLoggedOut)
	assert.Equal(t, 2, dialer.Dials())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "awaiting_pairing", StateAwaitingPairing.String())
	assert.Equal(t, "state(9)", State(9).String())
}
