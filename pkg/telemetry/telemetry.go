package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors for the messaging core. Registered on the default
// registry; the app mounts promhttp on /metrics.

var (
	MessagesAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collabchat_messages_appended_total",
		Help: "Messages persisted, by message type.",
	}, []string{"type"})

	MessagesEdited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collabchat_messages_edited_total",
		Help: "Successful message edits.",
	})

	MessagesDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collabchat_messages_deleted_total",
		Help: "Message deletions, by scope (self or everyone).",
	}, []string{"scope"})

	OffersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collabchat_offers_created_total",
		Help: "Offers created.",
	})

	OfferResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collabchat_offer_responses_total",
		Help: "Offer responses, by type.",
	}, []string{"type"})

	LiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collabchat_live_connections",
		Help: "Currently registered live connections.",
	})

	RoomSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collabchat_room_subscriptions",
		Help: "Currently active room subscriptions.",
	})

	FanoutDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collabchat_fanout_deliveries_total",
		Help: "Events delivered to live subscribers.",
	})

	FanoutDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collabchat_fanout_dropped_total",
		Help: "Events dropped because a connection send buffer was full.",
	})

	OfflineQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collabchat_offline_notifications_queued_total",
		Help: "Notifications diverted to offline queues.",
	})

	OfflineDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collabchat_offline_notifications_dropped_total",
		Help: "Offline notifications evicted on queue overflow or expiry.",
	})
)
