package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Transport metrics
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gorelay_active_connections",
			Help: "Currently open websocket connections",
		},
	)

	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gorelay_events_received_total",
			Help: "Inbound events by name",
		},
		[]string{"event"},
	)

	// Messaging metrics
	MessagesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gorelay_messages_delivered_total",
			Help: "Messages fanned out to live connections",
		},
		[]string{"kind"}, // "private" or "group"
	)

	NotificationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gorelay_notifications_created_total",
			Help: "Durable notification records written",
		},
	)

	StoreWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gorelay_store_write_failures_total",
			Help: "Durable write failures by record kind",
		},
		[]string{"kind"}, // "presence" or "notification"
	)

	// Call signaling metrics
	CallsInitiated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gorelay_calls_initiated_total",
			Help: "call-user events accepted into Ringing",
		},
	)

	CallsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gorelay_calls_completed_total",
			Help: "Terminated call sessions by outcome",
		},
		[]string{"outcome"}, // accepted_end, rejected, failed, timeout, disconnected
	)
)
