package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChatMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Total number of chat messages handled, by dispatched intent",
		},
		[]string{"intent"},
	)

	ChatFollowUps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_follow_ups_total",
			Help: "Total number of messages resolved as a follow-up of a previous search",
		},
	)

	ChatFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_fallbacks_total",
			Help: "Total number of degraded replies, by reason",
		},
		[]string{"reason"},
	)

	ChatRespondDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_respond_duration_seconds",
			Help:    "Time spent producing a chat reply",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"intent"},
	)

	ChatSearchResults = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_search_results",
			Help:    "Number of products returned per catalog search",
			Buckets: []float64{0, 1, 3, 5, 10, 20},
		},
	)
)

// Fallback reasons
const (
	ReasonCatalog    = "catalog"
	ReasonKnowledge  = "knowledge"
	ReasonSession    = "session"
	ReasonPanic      = "panic"
	ReasonConvLog    = "conversation_log"
	ReasonPreference = "preference"
)
