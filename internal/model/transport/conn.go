package transport

import "context"

// Conn is one live transport connection.
type Conn interface {
	// Events streams connection updates and inbound messages. The channel is
	// closed once the connection is gone.
	Events() <-chan Event
	// Send delivers text to the chat, quoting the message identified by quotedID
	// when it is not empty.
	Send(ctx context.Context, to, text, quotedID string) error
	Close() error
}

// Dialer starts new connection attempts.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}
