// Package access decides which senders may talk to the bot.
package access

import (
	"strings"

	"github.com/zhouzirui/zap-gateway/internal/model/transport"
)

// AllowList is an immutable set of permitted sender identifiers.
type AllowList struct {
	senders map[string]struct{}
}

// NewAllowList builds the set. Entries may be bare identifiers or full chat
// ids; the "@server" suffix and surrounding blanks are dropped.
func NewAllowList(senders []string) *AllowList {
	set := make(map[string]struct{}, len(senders))
	for _, s := range senders {
		id := transport.SenderID(strings.TrimSpace(s))
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	return &AllowList{senders: set}
}

// IsAuthorized reports whether senderID is a member of the list. An empty list
// authorizes nobody.
func (l *AllowList) IsAuthorized(senderID string) bool {
	if l == nil {
		return false
	}
	_, ok := l.senders[senderID]
	return ok
}

// Len returns the number of permitted senders.
func (l *AllowList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.senders)
}
