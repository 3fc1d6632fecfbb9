package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"chatd/pkg/logger"
	"chatd/pkg/models"
)

// Client sends an ordered message history to a completion model and
// returns the assistant's reply text.
type Client interface {
	Send(ctx context.Context, history []models.Message) (string, error)
}

// Gemini is a Client backed by the Gemini API. It keeps a chat session
// cached between calls so unchanged history is not replayed, but every
// call is independent from the caller's point of view.
type Gemini struct {
	apiKey  string
	model   string
	timeout time.Duration

	mu      sync.Mutex
	client  *genai.Client
	chat    *genai.Chat
	chatLen int
}

// NewGemini builds a Gemini client. The API key is validated lazily on
// the first call so a missing key surfaces as an error, not a crash.
func NewGemini(apiKey, model string, timeout time.Duration) *Gemini {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gemini{apiKey: apiKey, model: model, timeout: timeout}
}

// Send implements Client. The last element of history must be a user
// turn; system turns are replayed to the model as user-role context.
func (g *Gemini) Send(ctx context.Context, history []models.Message) (string, error) {
	if len(history) == 0 {
		return "", &Error{Kind: KindValidation, Err: errors.New("no messages to send")}
	}
	last := history[len(history)-1]
	if last.Role != models.RoleUser {
		return "", &Error{Kind: KindValidation, Err: errors.New("last message must be a user turn")}
	}
	if g.apiKey == "" {
		return "", &Error{Kind: KindAuth, Err: errors.New("gemini api key is not configured")}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client == nil {
		c, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			logger.Log.Error("gemini_client_init_failed", zap.Error(err))
			return "", classify(err)
		}
		g.client = c
	}

	// Rebuild the chat session whenever history is supplied; a bare
	// single-turn call reuses the running session.
	if g.chat == nil || len(history) > 1 {
		contents := make([]*genai.Content, 0, len(history)-1)
		for _, m := range history[:len(history)-1] {
			contents = append(contents, genai.NewContentFromText(m.Content, chatRole(m.Role)))
		}
		chat, err := g.client.Chats.Create(ctx, g.model, nil, contents)
		if err != nil {
			logger.Log.Error("gemini_chat_create_failed", zap.Error(err))
			return "", classify(err)
		}
		g.chat = chat
		g.chatLen = len(contents)
	}

	start := time.Now()
	resp, err := g.chat.SendMessage(ctx, genai.Part{Text: last.Content})
	if err != nil {
		logger.Log.Error("gemini_send_failed", zap.Int("history", len(history)), zap.Error(err))
		// drop the session; it may hold a partial turn
		g.chat = nil
		g.chatLen = 0
		return "", classify(err)
	}
	g.chatLen += 2

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("model returned no completion text")
	}
	requestDuration.Observe(time.Since(start).Seconds())
	logger.Log.Info("gemini_completion_ok",
		zap.Int("history", len(history)),
		zap.Int("reply_len", len(text)),
		zap.Duration("elapsed", time.Since(start)))
	return text, nil
}

// chatRole maps a stored role onto the two roles the chat transcript
// accepts. system turns carry summarized context and are replayed as
// user content.
func chatRole(r models.Role) genai.Role {
	if r == models.RoleAssistant {
		return genai.RoleModel
	}
	return genai.RoleUser
}
