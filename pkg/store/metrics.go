package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	conversationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatd_conversations_created_total",
		Help: "Number of conversations created.",
	})
	conversationsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatd_conversations_deleted_total",
		Help: "Number of conversations deleted (cascading their messages).",
	})
	messagesSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatd_messages_saved_total",
		Help: "Number of messages persisted across all conversations.",
	})
)
