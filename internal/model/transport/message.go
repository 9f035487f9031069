package transport

import "strings"

// Payload is the body of an inbound message: TextPayload or OtherPayload.
type Payload interface {
	isPayload()
}

// TextPayload is a message carrying plain text.
type TextPayload struct {
	Text string
}

// OtherPayload is any message without a textual body (media, reactions, ...).
type OtherPayload struct {
	Kind string
}

func (TextPayload) isPayload()  {}
func (OtherPayload) isPayload() {}

// InboundMessage is a message received from a remote chat.
type InboundMessage struct {
	ID      string
	ChatID  string
	FromMe  bool
	Payload Payload
}

// Text returns the trimmed textual body, or false when the message has none.
func (m InboundMessage) Text() (string, bool) {
	p, ok := m.Payload.(TextPayload)
	if !ok {
		return "", false
	}
	text := strings.TrimSpace(p.Text)
	if text == "" {
		return "", false
	}
	return text, true
}

// SenderID returns the sender identifier of the chat, i.e. the chat id
// without its "@server" suffix.
func (m InboundMessage) SenderID() string {
	return SenderID(m.ChatID)
}

// SenderID strips the server part of a chat id ("5511999@s.whatsapp.net" -> "5511999").
func SenderID(chatID string) string {
	id, _, _ := strings.Cut(strings.TrimSpace(chatID), "@")
	return id
}
