package chat

// Role tags a turn with the party that produced it.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged message unit of a backend request or stored history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserTurn builds a turn authored by the remote user.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// AssistantTurn builds a turn authored by the backend.
func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}
