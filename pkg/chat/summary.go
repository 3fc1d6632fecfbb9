package chat

import (
	"strings"

	"chatd/pkg/models"
)

// Policy constants for history compression and title derivation. These
// are fixed, not configurable per call.
const (
	// SummaryThreshold is the existing-message count above which the
	// history is collapsed into a single system turn.
	SummaryThreshold = 10
	// SummaryPrefix starts every synthetic summary turn.
	SummaryPrefix = "Resumen de conversación anterior: "
	// MaxTitleLength bounds titles derived from the first user message.
	MaxTitleLength = 50
	// DefaultTitle is used when the first message yields an empty title.
	DefaultTitle = "Nueva conversación"

	snippetLength = 100
)

// Summarize compresses a message history into a short plain-text digest:
// the first three user turns, an ellipsis marker, then the last two
// turns of the full history, each truncated to 100 characters. This is a
// truncation heuristic, not semantic summarization; it exists to bound
// the context sent to the model as conversations grow.
func Summarize(messages []models.Message) string {
	var parts []string

	n := 0
	for _, m := range messages {
		if m.Role != models.RoleUser {
			continue
		}
		parts = append(parts, "Usuario: "+truncate(m.Content, snippetLength))
		n++
		if n == 3 {
			break
		}
	}

	if len(messages) > 0 {
		parts = append(parts, "...")
		tail := messages
		if len(tail) > 2 {
			tail = tail[len(tail)-2:]
		}
		for _, m := range tail {
			label := "Asistente"
			if m.Role == models.RoleUser {
				label = "Usuario"
			}
			parts = append(parts, label+": "+truncate(m.Content, snippetLength))
		}
	}

	return strings.Join(parts, "\n")
}

// TitleFromMessage derives a conversation title from the first user
// message: the first 50 characters, or the default title when empty.
func TitleFromMessage(content string) string {
	t := truncate(content, MaxTitleLength)
	if t == "" {
		return DefaultTitle
	}
	return t
}

// truncate cuts s to at most n characters (runes, not bytes).
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
