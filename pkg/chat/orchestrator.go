// Package chat implements the send-message use case: it coordinates the
// conversation store and the remote completion client for one user turn,
// applying the history-compression policy and the conversation
// lifecycle (create on first message, title on first turn).
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatd/pkg/llm"
	"chatd/pkg/logger"
	"chatd/pkg/models"
)

// Store is the subset of the conversation store the orchestrator needs.
type Store interface {
	CreateConversation(title string) (models.Conversation, error)
	GetConversation(id string) (models.Conversation, error)
	UpdateConversation(c models.Conversation) error
	SaveMessage(convID string, m models.Message) error
	ListMessagesSync(convID string) ([]models.Message, error)
}

// Orchestrator runs one send operation end to end. It does not retry
// and does not roll back: a user turn persisted before a failed remote
// call stays persisted (the caller decides what to present).
type Orchestrator struct {
	store  Store
	client llm.Client
}

// New returns an Orchestrator over the given collaborators.
func New(store Store, client llm.Client) *Orchestrator {
	return &Orchestrator{store: store, client: client}
}

// Send forwards a user turn to the model and persists both sides of the
// exchange. An empty conversationID creates a new conversation; the
// assigned ID is reported in the result.
func (o *Orchestrator) Send(ctx context.Context, conversationID string, userMessage models.Message) (models.SendResult, error) {
	finalID := conversationID
	if finalID == "" {
		c, err := o.store.CreateConversation("")
		if err != nil {
			return models.SendResult{}, fmt.Errorf("create conversation: %w", err)
		}
		finalID = c.ID
	}

	// read before persisting the new turn: the pre-existing history both
	// drives the summary decision and tells us if this is the first turn
	existing, err := o.store.ListMessagesSync(finalID)
	if err != nil {
		return models.SendResult{}, fmt.Errorf("read history: %w", err)
	}
	isFirstMessage := len(existing) == 0

	if err := o.store.SaveMessage(finalID, userMessage); err != nil {
		return models.SendResult{}, fmt.Errorf("save user message: %w", err)
	}

	outbound := o.buildOutbound(existing, userMessage)

	reply, err := o.client.Send(ctx, outbound)
	if err != nil {
		// the user turn stays persisted; see package doc
		logger.Log.Warn("send_remote_failed", zap.String("conversation", finalID), zap.Error(err))
		return models.SendResult{}, err
	}

	assistant := models.Message{
		ID:           uuid.NewString(),
		Conversation: finalID,
		Content:      reply,
		Role:         models.RoleAssistant,
		TS:           time.Now().UTC().UnixNano(),
	}
	if err := o.store.SaveMessage(finalID, assistant); err != nil {
		return models.SendResult{}, fmt.Errorf("save assistant message: %w", err)
	}

	if isFirstMessage {
		if err := o.updateTitle(finalID, userMessage); err != nil {
			return models.SendResult{}, err
		}
	}

	sendsTotal.Inc()
	return models.SendResult{
		ConversationID:    finalID,
		AssistantMessage:  assistant,
		ShouldUpdateTitle: isFirstMessage,
	}, nil
}

// buildOutbound applies the compression policy: past the threshold the
// whole existing history collapses into one synthetic system turn.
func (o *Orchestrator) buildOutbound(existing []models.Message, userMessage models.Message) []models.Message {
	if len(existing) > SummaryThreshold {
		summariesTotal.Inc()
		summary := models.Message{
			ID:      uuid.NewString(),
			Content: SummaryPrefix + Summarize(existing),
			Role:    models.RoleSystem,
			TS:      time.Now().UTC().UnixNano(),
		}
		return []models.Message{summary, userMessage}
	}
	out := make([]models.Message, 0, len(existing)+1)
	out = append(out, existing...)
	return append(out, userMessage)
}

// updateTitle sets the title once, on the very first turn, so later
// sends never overwrite it.
func (o *Orchestrator) updateTitle(convID string, userMessage models.Message) error {
	c, err := o.store.GetConversation(convID)
	if err != nil {
		return fmt.Errorf("load conversation for title: %w", err)
	}
	c.Title = TitleFromMessage(userMessage.Content)
	if err := o.store.UpdateConversation(c); err != nil {
		return fmt.Errorf("update conversation title: %w", err)
	}
	logger.Log.Info("conversation_titled", zap.String("conversation", convID), zap.String("title", c.Title))
	return nil
}
