package models

// Conversation is a titled thread of messages. It is created implicitly
// when the first message of a new thread is sent.
type Conversation struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	// Created timestamp (ns)
	CreatedTS int64 `json:"created_ts,omitempty"`
	// Updated timestamp (ns) - last time metadata or thread activity changed
	UpdatedTS int64 `json:"updated_ts,omitempty"`
}

// SendResult is the transient outcome of one orchestrated send. It is
// returned to the caller and never persisted.
type SendResult struct {
	ConversationID    string  `json:"conversation_id"`
	AssistantMessage  Message `json:"assistant_message"`
	ShouldUpdateTitle bool    `json:"should_update_title"`
}
