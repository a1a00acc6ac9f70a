package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	onlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chat",
		Name:      "online_users",
		Help:      "Users with a joined realtime connection.",
	})

	deliveredEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "events_delivered_total",
		Help:      "Events written to realtime connections.",
	}, []string{"type"})

	droppedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "events_dropped_total",
		Help:      "Events not delivered to a realtime connection.",
	}, []string{"reason"})

	sentMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "messages_sent_total",
		Help:      "Messages persisted.",
	})

	decryptFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "decrypt_failures_total",
		Help:      "Stored messages that could not be decrypted.",
	})

	rejectedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "requests_rejected_total",
		Help:      "Realtime operations rejected by authorization checks.",
	}, []string{"reason"})
)
