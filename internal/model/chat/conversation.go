package chat

import "time"

// Conversation captures the in-memory state kept for one conversation key.
type Conversation struct {
	Key               string    `json:"key"`
	History           []Turn    `json:"history"`
	PreferredLanguage string    `json:"preferredLanguage"`
	UpdatedAt         time.Time `json:"updatedAt,omitempty"`
}

// Clone returns a deep copy so callers never share the backing history slice.
func (c Conversation) Clone() Conversation {
	cloned := c
	if c.History != nil {
		cloned.History = make([]Turn, len(c.History))
		copy(cloned.History, c.History)
	}
	return cloned
}
