package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "chatd_gemini_request_seconds",
	Help:    "Latency of successful Gemini completion calls.",
	Buckets: prometheus.DefBuckets,
})
