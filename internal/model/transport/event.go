package transport

import "fmt"

// Event is emitted by a transport connection. It is one of PairingEvent,
// ConnectionEvent or MessageEvent.
type Event interface {
	isEvent()
}

// PairingEvent carries the out-of-band code the operator must scan before
// the connection can be authorized.
type PairingEvent struct {
	Code string
}

// ConnectionEvent reports a connection state change. Reason is only
// meaningful when State is ConnectionClose.
type ConnectionEvent struct {
	State  ConnectionState
	Reason CloseReason
}

// MessageEvent delivers one inbound message.
type MessageEvent struct {
	Message InboundMessage
}

func (PairingEvent) isEvent()    {}
func (ConnectionEvent) isEvent() {}
func (MessageEvent) isEvent()    {}

// ConnectionState is the state reported by the transport itself.
type ConnectionState string

const (
	ConnectionConnecting ConnectionState = "connecting"
	ConnectionOpen       ConnectionState = "open"
	ConnectionClose      ConnectionState = "close"
)

// CloseReason is the status code attached to a connection closure.
// Values follow the WhatsApp Web disconnect codes.
type CloseReason int

const (
	ReasonUnknown            CloseReason = 0
	ReasonLoggedOut          CloseReason = 401
	ReasonConnectionLost     CloseReason = 408
	ReasonConnectionClosed   CloseReason = 428
	ReasonConnectionReplaced CloseReason = 440
	ReasonBadSession         CloseReason = 500
	ReasonRestartRequired    CloseReason = 515
)

// Terminal reports whether the closure revoked the session. A terminal
// closure requires pairing again and must not be retried.
func (r CloseReason) Terminal() bool {
	return r == ReasonLoggedOut
}

func (r CloseReason) String() string {
	switch r {
	case ReasonLoggedOut:
		return "loggedOut"
	case ReasonConnectionLost:
		return "connectionLost"
	case ReasonConnectionClosed:
		return "connectionClosed"
	case ReasonConnectionReplaced:
		return "connectionReplaced"
	case ReasonBadSession:
		return "badSession"
	case ReasonRestartRequired:
		return "restartRequired"
	case ReasonUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("code(%d)", int(r))
	}
}
