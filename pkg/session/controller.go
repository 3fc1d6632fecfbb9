package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatd/pkg/logger"
	"chatd/pkg/models"
)

// Sender runs one orchestrated send. An empty conversation ID means
// "create a new conversation for this turn".
type Sender interface {
	Send(ctx context.Context, conversationID string, userMessage models.Message) (models.SendResult, error)
}

// History is the synchronous read the controller uses when switching
// conversations.
type History interface {
	ListMessagesSync(conversationID string) ([]models.Message, error)
}

// Controller serializes all state mutations for one chat session and
// keeps at most one send in flight. Starting any new operation
// supersedes the previous one: its context is cancelled and its eventual
// completion is discarded by a generation check.
type Controller struct {
	sender  Sender
	history History

	mu      sync.Mutex
	state   State
	convID  string
	gen     uint64
	cancel  context.CancelFunc
	subs    map[uint64]chan State
	nextSub uint64
}

// NewController returns a Controller with empty state and no current
// conversation.
func NewController(sender Sender, history History) *Controller {
	return &Controller{
		sender:  sender,
		history: history,
		subs:    make(map[uint64]chan State),
	}
}

// State returns the current state snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConversationID returns the current conversation id, or "" when the
// next send will create one.
func (c *Controller) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.convID
}

// Watch streams state snapshots, starting with the current one. The
// channel holds only the latest unconsumed snapshot and is closed when
// ctx is cancelled.
func (c *Controller) Watch(ctx context.Context) <-chan State {
	ch := make(chan State, 1)
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.state
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
		c.mu.Unlock()
	}()
	return ch
}

// apply transitions the state and notifies watchers. Callers must hold
// c.mu.
func (c *Controller) apply(ev event) {
	c.state = reduce(c.state, ev)
	for _, ch := range c.subs {
		select {
		case ch <- c.state:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- c.state
		}
	}
}

// supersede cancels the in-flight operation, if any, and bumps the
// generation so its late completion is ignored. Callers must hold c.mu.
func (c *Controller) supersede() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
}

// LoadConversation switches to an existing conversation. Any in-flight
// send is cancelled; messages are replaced asynchronously from the
// store. Input text and loading state are left alone.
func (c *Controller) LoadConversation(id string) {
	c.mu.Lock()
	c.supersede()
	c.convID = id
	myGen := c.gen
	c.mu.Unlock()

	go func() {
		msgs, err := c.history.ListMessagesSync(id)
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != myGen {
			return
		}
		if err != nil {
			logger.Log.Error("load_conversation_failed", zap.String("conversation", id), zap.Error(err))
			return
		}
		c.apply(conversationLoaded{messages: msgs})
	}()
}

// NewConversation clears the screen. The conversation itself is created
// lazily when the first message is sent.
func (c *Controller) NewConversation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.supersede()
	c.convID = ""
	c.apply(conversationReset{})
}

// SetInput replaces the draft text. Ignored while a send is in flight.
func (c *Controller) SetInput(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.InputEnabled() {
		return
	}
	c.apply(inputChanged{text: text})
}

// ClearError dismisses the visible error.
func (c *Controller) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apply(errorCleared{})
}

// SendMessage optimistically appends the user turn and launches the
// orchestrated send. Blank text and sends while loading are no-ops. A
// newer operation supersedes this one; a late completion for an
// abandoned conversation is discarded silently.
func (c *Controller) SendMessage(text string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}

	c.mu.Lock()
	if !c.state.InputEnabled() {
		c.mu.Unlock()
		return
	}
	c.supersede()
	myGen := c.gen

	user := models.Message{
		ID:      uuid.NewString(),
		Content: trimmed,
		Role:    models.RoleUser,
		TS:      time.Now().UTC().UnixNano(),
	}
	c.apply(sendStarted{user: user})
	convID := c.convID

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	go func() {
		defer cancel()
		res, err := c.sender.Send(ctx, convID, user)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != myGen {
			// superseded while in flight; drop the result
			return
		}
		c.cancel = nil

		if err != nil {
			// with no durable conversation the optimistic turn has no
			// anchor and is rolled back; otherwise it stays (it was
			// already persisted)
			c.apply(sendFailed{message: err.Error(), rollback: c.convID == ""})
			return
		}
		if c.convID == "" {
			c.convID = res.ConversationID
		}
		if c.convID != res.ConversationID {
			// user navigated away and back to a different conversation
			return
		}
		c.apply(sendSucceeded{assistant: res.AssistantMessage})
	}()
}
