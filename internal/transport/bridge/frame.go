package bridge

import (
	"github.com/zhouzirui/zap-gateway/internal/model/transport"
)

const (
	frameQR         = "qr"
	frameConnection = "connection"
	frameMessage    = "message"
	frameSend       = "send"
)

// frame is the JSON envelope exchanged with the bridge.
type frame struct {
	Type       string        `json:"type"`
	QR         string        `json:"qr,omitempty"`
	Connection string        `json:"connection,omitempty"`
	StatusCode int           `json:"statusCode,omitempty"`
	Message    *messageFrame `json:"message,omitempty"`

	// outbound send fields
	ID       string `json:"id,omitempty"`
	To       string `json:"to,omitempty"`
	Text     string `json:"text,omitempty"`
	QuotedID string `json:"quotedId,omitempty"`
}

type messageFrame struct {
	ID           string `json:"id"`
	RemoteJID    string `json:"remoteJid"`
	FromMe       bool   `json:"fromMe"`
	Conversation string `json:"conversation,omitempty"`
	ExtendedText string `json:"extendedText,omitempty"`
	Kind         string `json:"kind,omitempty"`
}

// payload normalizes the message body: plain conversation text first, then
// extended text; anything else has no textual payload.
func (m messageFrame) payload() transport.Payload {
	switch {
	case m.Conversation != "":
		return transport.TextPayload{Text: m.Conversation}
	case m.ExtendedText != "":
		return transport.TextPayload{Text: m.ExtendedText}
	default:
		kind := m.Kind
		if kind == "" {
			kind = "unknown"
		}
		return transport.OtherPayload{Kind: kind}
	}
}

// toEvent converts an inbound frame. Unknown frames yield false.
func (f frame) toEvent() (transport.Event, bool) {
	switch f.Type {
	case frameQR:
		if f.QR == "" {
			return nil, false
		}
		return transport.PairingEvent{Code: f.QR}, true
	case frameConnection:
		state := transport.ConnectionState(f.Connection)
		switch state {
		case transport.ConnectionConnecting, transport.ConnectionOpen:
			return transport.ConnectionEvent{State: state}, true
		case transport.ConnectionClose:
			return transport.ConnectionEvent{State: state, Reason: transport.CloseReason(f.StatusCode)}, true
		}
		return nil, false
	case frameMessage:
		if f.Message == nil {
			return nil, false
		}
		return transport.MessageEvent{Message: transport.InboundMessage{
			ID:      f.Message.ID,
			ChatID:  f.Message.RemoteJID,
			FromMe:  f.Message.FromMe,
			Payload: f.Message.payload(),
		}}, true
	default:
		return nil, false
	}
}
