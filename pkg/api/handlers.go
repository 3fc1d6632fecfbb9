package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"chatd/pkg/llm"
	"chatd/pkg/logger"
	"chatd/pkg/models"
	"chatd/pkg/store"
)

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// createConversation handles POST /v1/conversations. The optional body
// carries an initial title.
func (a *API) createConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if r.Body != nil {
		// empty body is fine; conversations are usually created lazily
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	c, err := a.store.CreateConversation(req.Title)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, c)
}

// listConversations handles GET /v1/conversations.
func (a *API) listConversations(w http.ResponseWriter, _ *http.Request) {
	cs, err := a.store.ListConversations()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if cs == nil {
		cs = []models.Conversation{}
	}
	writeJSON(w, map[string]any{"conversations": cs})
}

// getConversation handles GET /v1/conversations/{id}.
func (a *API) getConversation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	c, err := a.store.GetConversation(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, c)
}

// deleteConversation handles DELETE /v1/conversations/{id}; messages are
// removed with the conversation.
func (a *API) deleteConversation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := a.store.DeleteConversation(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "deleted", "id": id})
}

// listMessages handles GET /v1/conversations/{id}/messages.
func (a *API) listMessages(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	msgs, err := a.store.ListMessagesSync(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, map[string]any{"messages": msgs})
}

// streamMessages handles GET /v1/conversations/{id}/messages/stream as a
// server-sent-events feed: one event per store change, each carrying the
// full message list snapshot.
func (a *API) streamMessages(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	id := mux.Vars(r)["id"]
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates := a.store.WatchMessages(r.Context(), id)
	for snap := range updates {
		b, err := json.Marshal(snap)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
			return
		}
		flusher.Flush()
	}
}

// sendChat handles POST /v1/chat: one orchestrated send. An absent
// conversation_id creates a new conversation.
func (a *API) sendChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationID string `json:"conversation_id"`
		Content        string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	user := models.Message{
		ID:           uuid.NewString(),
		Conversation: req.ConversationID,
		Content:      content,
		Role:         models.RoleUser,
		TS:           time.Now().UTC().UnixNano(),
	}
	res, err := a.orch.Send(r.Context(), req.ConversationID, user)
	if err != nil {
		logger.Log.Warn("chat_send_failed", zap.String("conversation", req.ConversationID), zap.Error(err))
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, res)
}

// statusForError maps remote-call error kinds onto HTTP statuses; store
// failures and everything unclassified surface as 500.
func statusForError(err error) int {
	switch llm.KindOf(err) {
	case llm.KindValidation:
		return http.StatusBadRequest
	case llm.KindAuth:
		return http.StatusUnauthorized
	case llm.KindQuota:
		return http.StatusTooManyRequests
	case llm.KindNetwork:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
