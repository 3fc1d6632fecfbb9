package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatd/pkg/models"
)

// gatedSender blocks each Send until released, so tests control exactly
// when completions arrive.
type gatedSender struct {
	mu      sync.Mutex
	gate    chan struct{}
	result  models.SendResult
	err     error
	calls   int
	lastID  string
	lastMsg models.Message
}

func newGatedSender() *gatedSender {
	return &gatedSender{gate: make(chan struct{})}
}

func (g *gatedSender) Send(ctx context.Context, conversationID string, userMessage models.Message) (models.SendResult, error) {
	g.mu.Lock()
	g.calls++
	g.lastID = conversationID
	g.lastMsg = userMessage
	gate := g.gate
	res, err := g.result, g.err
	g.mu.Unlock()

	select {
	case <-gate:
	case <-ctx.Done():
	}
	return res, err
}

func (g *gatedSender) release() { close(g.gate) }

func (g *gatedSender) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *gatedSender) set(res models.SendResult, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.result, g.err = res, err
}

type fakeHistory struct {
	mu   sync.Mutex
	msgs map[string][]models.Message
}

func (f *fakeHistory) ListMessagesSync(id string) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.msgs[id], nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestSendMessageBlankIsNoOp(t *testing.T) {
	sender := newGatedSender()
	ctrl := NewController(sender, &fakeHistory{})

	ctrl.SendMessage("")
	ctrl.SendMessage("   \t\n")

	assert.Equal(t, 0, sender.callCount())
	assert.Equal(t, State{}, ctrl.State())
}

func TestSendMessageWhileLoadingIsNoOp(t *testing.T) {
	sender := newGatedSender()
	ctrl := NewController(sender, &fakeHistory{})

	ctrl.SendMessage("first")
	waitFor(t, func() bool { return sender.callCount() == 1 })

	// input is disabled while the first send is in flight
	ctrl.SendMessage("second")
	assert.Equal(t, 1, sender.callCount())
	require.Len(t, ctrl.State().Messages, 1)
	assert.Equal(t, "first", ctrl.State().Messages[0].Content)
}

func TestUpdateInputWhileLoadingIsNoOp(t *testing.T) {
	sender := newGatedSender()
	ctrl := NewController(sender, &fakeHistory{})

	ctrl.SetInput("draft")
	assert.Equal(t, "draft", ctrl.State().InputText)

	ctrl.SendMessage("hello")
	waitFor(t, func() bool { return ctrl.State().Loading })

	ctrl.SetInput("should be ignored")
	assert.Equal(t, "", ctrl.State().InputText)
}

func TestSendMessageSuccessAdoptsNewConversation(t *testing.T) {
	sender := newGatedSender()
	assistant := models.Message{ID: "a1", Content: "Hello!", Role: models.RoleAssistant}
	sender.set(models.SendResult{ConversationID: "conv-1", AssistantMessage: assistant, ShouldUpdateTitle: true}, nil)
	ctrl := NewController(sender, &fakeHistory{})

	ctrl.SendMessage("Hi")
	waitFor(t, func() bool { return sender.callCount() == 1 })
	assert.Equal(t, "", sender.lastID)
	assert.Equal(t, "Hi", sender.lastMsg.Content)
	assert.Equal(t, models.RoleUser, sender.lastMsg.Role)

	sender.release()
	waitFor(t, func() bool { return !ctrl.State().Loading })

	assert.Equal(t, "conv-1", ctrl.ConversationID())
	msgs := ctrl.State().Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hi", msgs[0].Content)
	assert.Equal(t, "Hello!", msgs[1].Content)
	assert.Empty(t, ctrl.State().Err)
}

func TestSendMessageTrimsContent(t *testing.T) {
	sender := newGatedSender()
	sender.set(models.SendResult{ConversationID: "c"}, nil)
	ctrl := NewController(sender, &fakeHistory{})

	ctrl.SendMessage("  padded  ")
	waitFor(t, func() bool { return sender.callCount() == 1 })
	assert.Equal(t, "padded", sender.lastMsg.Content)
}

func TestSendMessageFailureNewConversationRollsBack(t *testing.T) {
	sender := newGatedSender()
	sender.set(models.SendResult{}, errors.New("remote exploded"))
	ctrl := NewController(sender, &fakeHistory{})

	ctrl.SendMessage("Hi")
	waitFor(t, func() bool { return sender.callCount() == 1 })
	require.Len(t, ctrl.State().Messages, 1)

	sender.release()
	waitFor(t, func() bool { return !ctrl.State().Loading })

	// optimistic user turn dropped: nothing was durably anchored
	assert.Empty(t, ctrl.State().Messages)
	assert.Equal(t, "remote exploded", ctrl.State().Err)
	assert.Equal(t, "", ctrl.ConversationID())
}

func TestSendMessageFailureExistingConversationKeepsMessages(t *testing.T) {
	history := &fakeHistory{msgs: map[string][]models.Message{
		"conv-1": {{ID: "m1", Content: "old", Role: models.RoleUser}},
	}}
	sender := newGatedSender()
	sender.set(models.SendResult{}, errors.New("remote exploded"))
	ctrl := NewController(sender, history)

	ctrl.LoadConversation("conv-1")
	waitFor(t, func() bool { return len(ctrl.State().Messages) == 1 })

	ctrl.SendMessage("new turn")
	waitFor(t, func() bool { return sender.callCount() == 1 })
	sender.release()
	waitFor(t, func() bool { return !ctrl.State().Loading })

	// the optimistic turn stays: it was persisted before the failure
	require.Len(t, ctrl.State().Messages, 2)
	assert.Equal(t, "new turn", ctrl.State().Messages[1].Content)
	assert.Equal(t, "remote exploded", ctrl.State().Err)
}

func TestLoadConversationCancelsInFlightSend(t *testing.T) {
	history := &fakeHistory{msgs: map[string][]models.Message{
		"conv-2": {{ID: "m1", Content: "other thread", Role: models.RoleUser}},
	}}
	sender := newGatedSender()
	assistant := models.Message{ID: "a1", Content: "late reply", Role: models.RoleAssistant}
	sender.set(models.SendResult{ConversationID: "conv-1", AssistantMessage: assistant}, nil)
	ctrl := NewController(sender, history)

	ctrl.SendMessage("Hi")
	waitFor(t, func() bool { return sender.callCount() == 1 })

	ctrl.LoadConversation("conv-2")
	waitFor(t, func() bool {
		msgs := ctrl.State().Messages
		return len(msgs) == 1 && msgs[0].Content == "other thread"
	})

	// the superseded send completes late; its result must be discarded
	sender.release()
	time.Sleep(50 * time.Millisecond)

	msgs := ctrl.State().Messages
	require.Len(t, msgs, 1)
	assert.Equal(t, "other thread", msgs[0].Content)
	assert.Equal(t, "conv-2", ctrl.ConversationID())
}

func TestNewConversationClearsScreen(t *testing.T) {
	history := &fakeHistory{msgs: map[string][]models.Message{
		"conv-1": {{ID: "m1", Content: "old", Role: models.RoleUser}},
	}}
	sender := newGatedSender()
	ctrl := NewController(sender, history)

	ctrl.LoadConversation("conv-1")
	waitFor(t, func() bool { return len(ctrl.State().Messages) == 1 })
	ctrl.SetInput("half-typed")

	ctrl.NewConversation()
	assert.Empty(t, ctrl.State().Messages)
	assert.Equal(t, "", ctrl.State().InputText)
	assert.Equal(t, "", ctrl.ConversationID())
}

func TestClearError(t *testing.T) {
	sender := newGatedSender()
	sender.set(models.SendResult{}, errors.New("boom"))
	ctrl := NewController(sender, &fakeHistory{})

	ctrl.SendMessage("Hi")
	sender.release()
	waitFor(t, func() bool { return ctrl.State().Err != "" })

	ctrl.ClearError()
	assert.Equal(t, "", ctrl.State().Err)
}

func TestWatchDeliversSnapshots(t *testing.T) {
	sender := newGatedSender()
	ctrl := NewController(sender, &fakeHistory{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := ctrl.Watch(ctx)

	// initial snapshot arrives immediately
	select {
	case s := <-ch:
		assert.Equal(t, State{}, s)
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}

	ctrl.SetInput("typing")
	waitFor(t, func() bool {
		select {
		case s := <-ch:
			return s.InputText == "typing"
		default:
			return false
		}
	})

	cancel()
	waitFor(t, func() bool {
		_, open := <-ch
		return !open
	})
}
