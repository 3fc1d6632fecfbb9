package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatd/pkg/models"
)

type fakeStore struct {
	conversations map[string]models.Conversation
	messages      map[string][]models.Message
	created       int

	createErr error
	saveErr   error
	listErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[string]models.Conversation),
		messages:      make(map[string][]models.Message),
	}
}

func (f *fakeStore) CreateConversation(title string) (models.Conversation, error) {
	if f.createErr != nil {
		return models.Conversation{}, f.createErr
	}
	f.created++
	c := models.Conversation{
		ID:        fmt.Sprintf("conv-%d", f.created),
		Title:     title,
		CreatedTS: time.Now().UnixNano(),
		UpdatedTS: time.Now().UnixNano(),
	}
	f.conversations[c.ID] = c
	return c, nil
}

func (f *fakeStore) GetConversation(id string) (models.Conversation, error) {
	c, ok := f.conversations[id]
	if !ok {
		return models.Conversation{}, errors.New("conversation not found")
	}
	return c, nil
}

func (f *fakeStore) UpdateConversation(c models.Conversation) error {
	f.conversations[c.ID] = c
	return nil
}

func (f *fakeStore) SaveMessage(convID string, m models.Message) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.messages[convID] = append(f.messages[convID], m)
	return nil
}

func (f *fakeStore) ListMessagesSync(convID string) ([]models.Message, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.messages[convID], nil
}

type fakeClient struct {
	reply    string
	err      error
	lastSent []models.Message
}

func (f *fakeClient) Send(_ context.Context, history []models.Message) (string, error) {
	f.lastSent = history
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func seedHistory(st *fakeStore, convID string, n int) {
	st.conversations[convID] = models.Conversation{ID: convID, Title: "seeded"}
	for i := 0; i < n; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		st.messages[convID] = append(st.messages[convID], models.Message{
			ID:      fmt.Sprintf("m%d", i),
			Content: fmt.Sprintf("turn %d", i),
			Role:    role,
		})
	}
}

func TestSendCreatesConversationOnFirstMessage(t *testing.T) {
	st := newFakeStore()
	client := &fakeClient{reply: "Hello!"}
	orch := New(st, client)

	user := models.Message{ID: "u1", Content: "Hi", Role: models.RoleUser}
	res, err := orch.Send(context.Background(), "", user)
	require.NoError(t, err)

	assert.NotEmpty(t, res.ConversationID)
	assert.Equal(t, "Hello!", res.AssistantMessage.Content)
	assert.Equal(t, models.RoleAssistant, res.AssistantMessage.Role)
	assert.True(t, res.ShouldUpdateTitle)
	assert.Equal(t, "Hi", st.conversations[res.ConversationID].Title)

	// user turn then assistant turn, in order
	msgs := st.messages[res.ConversationID]
	require.Len(t, msgs, 2)
	assert.Equal(t, "u1", msgs[0].ID)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
}

func TestSendFullHistoryAtOrBelowThreshold(t *testing.T) {
	for _, n := range []int{0, 1, 5, 10} {
		t.Run(fmt.Sprintf("existing_%d", n), func(t *testing.T) {
			st := newFakeStore()
			seedHistory(st, "c1", n)
			client := &fakeClient{reply: "ok"}
			orch := New(st, client)

			user := models.Message{ID: "u", Content: "next", Role: models.RoleUser}
			_, err := orch.Send(context.Background(), "c1", user)
			require.NoError(t, err)

			require.Len(t, client.lastSent, n+1)
			for i := 0; i < n; i++ {
				assert.Equal(t, fmt.Sprintf("m%d", i), client.lastSent[i].ID)
			}
			assert.Equal(t, user, client.lastSent[n])
		})
	}
}

func TestSendSummarizesAboveThreshold(t *testing.T) {
	for _, n := range []int{11, 20} {
		t.Run(fmt.Sprintf("existing_%d", n), func(t *testing.T) {
			st := newFakeStore()
			seedHistory(st, "c1", n)
			client := &fakeClient{reply: "ok"}
			orch := New(st, client)

			user := models.Message{ID: "u", Content: "next", Role: models.RoleUser}
			_, err := orch.Send(context.Background(), "c1", user)
			require.NoError(t, err)

			require.Len(t, client.lastSent, 2)
			sys := client.lastSent[0]
			assert.Equal(t, models.RoleSystem, sys.Role)
			assert.True(t, strings.HasPrefix(sys.Content, SummaryPrefix))
			assert.Equal(t, user, client.lastSent[1])
		})
	}
}

func TestSendTitleOnlyOnFirstMessage(t *testing.T) {
	st := newFakeStore()
	client := &fakeClient{reply: "ok"}
	orch := New(st, client)

	res1, err := orch.Send(context.Background(), "", models.Message{ID: "u1", Content: "first words", Role: models.RoleUser})
	require.NoError(t, err)
	require.True(t, res1.ShouldUpdateTitle)
	assert.Equal(t, "first words", st.conversations[res1.ConversationID].Title)

	res2, err := orch.Send(context.Background(), res1.ConversationID, models.Message{ID: "u2", Content: "second words", Role: models.RoleUser})
	require.NoError(t, err)
	assert.False(t, res2.ShouldUpdateTitle)
	assert.Equal(t, "first words", st.conversations[res1.ConversationID].Title)
}

func TestSendTitleTruncationAndDefault(t *testing.T) {
	st := newFakeStore()
	client := &fakeClient{reply: "ok"}
	orch := New(st, client)

	res, err := orch.Send(context.Background(), "", models.Message{ID: "u1", Content: strings.Repeat("A", 100), Role: models.RoleUser})
	require.NoError(t, err)
	assert.Len(t, st.conversations[res.ConversationID].Title, 50)

	res2, err := orch.Send(context.Background(), "", models.Message{ID: "u2", Content: "", Role: models.RoleUser})
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, st.conversations[res2.ConversationID].Title)
}

func TestSendRemoteFailureKeepsPersistedUserMessage(t *testing.T) {
	injected := errors.New("boom")
	st := newFakeStore()
	seedHistory(st, "c1", 4)
	client := &fakeClient{err: injected}
	orch := New(st, client)

	user := models.Message{ID: "u", Content: "next", Role: models.RoleUser}
	_, err := orch.Send(context.Background(), "c1", user)
	require.Error(t, err)

	// the cause round-trips unmodified
	assert.ErrorIs(t, err, injected)
	// the user turn stays persisted; no assistant turn was written
	msgs := st.messages["c1"]
	require.Len(t, msgs, 5)
	assert.Equal(t, "u", msgs[4].ID)
	// title untouched on failure
	assert.Equal(t, "seeded", st.conversations["c1"].Title)
}

func TestSendStoreFailuresPropagate(t *testing.T) {
	injected := errors.New("disk full")

	st := newFakeStore()
	st.createErr = injected
	orch := New(st, &fakeClient{reply: "ok"})
	_, err := orch.Send(context.Background(), "", models.Message{ID: "u", Content: "hi", Role: models.RoleUser})
	assert.ErrorIs(t, err, injected)

	st = newFakeStore()
	seedHistory(st, "c1", 1)
	st.saveErr = injected
	orch = New(st, &fakeClient{reply: "ok"})
	_, err = orch.Send(context.Background(), "c1", models.Message{ID: "u", Content: "hi", Role: models.RoleUser})
	assert.ErrorIs(t, err, injected)

	st = newFakeStore()
	st.listErr = injected
	orch = New(st, &fakeClient{reply: "ok"})
	_, err = orch.Send(context.Background(), "c1", models.Message{ID: "u", Content: "hi", Role: models.RoleUser})
	assert.ErrorIs(t, err, injected)
}
