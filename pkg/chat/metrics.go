package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sendsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatd_sends_total",
		Help: "Number of completed send operations.",
	})
	summariesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatd_history_summaries_total",
		Help: "Number of sends where history was collapsed into a summary turn.",
	})
)
