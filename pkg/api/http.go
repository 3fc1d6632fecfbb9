// Package api exposes the conversation service over HTTP: conversation
// CRUD, message listing, an SSE stream of live message updates, and the
// orchestrated chat send.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"chatd/pkg/config"
	"chatd/pkg/models"
	"chatd/pkg/store"
)

// Sender runs one orchestrated send; satisfied by chat.Orchestrator.
type Sender interface {
	Send(ctx context.Context, conversationID string, userMessage models.Message) (models.SendResult, error)
}

// API holds the handler dependencies.
type API struct {
	store *store.Store
	orch  Sender
}

// New returns an API over the given store and orchestrator.
func New(st *store.Store, orch Sender) *API {
	return &API{store: st, orch: orch}
}

// Router builds the versioned route table.
func (a *API) Router(rl config.RateLimitConfig) *mux.Router {
	r := mux.NewRouter()
	r.Use(rateLimitMiddleware(rl))

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/conversations", a.createConversation).Methods(http.MethodPost)
	v1.HandleFunc("/conversations", a.listConversations).Methods(http.MethodGet)
	v1.HandleFunc("/conversations/{id}", a.getConversation).Methods(http.MethodGet)
	v1.HandleFunc("/conversations/{id}", a.deleteConversation).Methods(http.MethodDelete)
	v1.HandleFunc("/conversations/{id}/messages", a.listMessages).Methods(http.MethodGet)
	v1.HandleFunc("/conversations/{id}/messages/stream", a.streamMessages).Methods(http.MethodGet)
	v1.HandleFunc("/chat", a.sendChat).Methods(http.MethodPost)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return r
}
