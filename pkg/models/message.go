package models

// Role identifies who produced a message turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is one turn in a conversation. Messages are immutable once
// written; there is no update path for message content.
type Message struct {
	ID           string `json:"id"`
	Conversation string `json:"conversation,omitempty"`
	Content      string `json:"content"`
	Role         Role   `json:"role"`
	// TS is the creation timestamp (ns)
	TS int64 `json:"ts"`
}
