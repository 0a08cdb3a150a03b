// Package metrics provides Prometheus metrics definitions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace is the common metric namespace.
const Namespace = "coaching"

var (
	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route", "status_code"},
	)

	// DBPoolConnections tracks database connection pool state.
	DBPoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "db",
			Name:      "pool_connections",
			Help:      "Number of database connections by state",
		},
		[]string{"state"},
	)

	// WebhookEvents counts inbound webhook deliveries.
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "webhooks",
			Name:      "events_total",
			Help:      "Webhook deliveries by source, event type and result",
		},
		[]string{"source", "event_type", "result"},
	)

	// FulfillmentOutcomes counts fulfillment results.
	FulfillmentOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "fulfillment",
			Name:      "outcomes_total",
			Help:      "Fulfillment outcomes by order source and status",
		},
		[]string{"source", "status"},
	)

	// FulfillmentDuration tracks end-to-end provisioning time.
	FulfillmentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "fulfillment",
			Name:      "duration_seconds",
			Help:      "Time from order receipt to stored channel record",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// DiscordRequests counts chat platform API calls.
	DiscordRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "discord",
			Name:      "requests_total",
			Help:      "Discord API requests by operation and status code",
		},
		[]string{"operation", "status_code"},
	)

	// DiscordRequestDuration tracks chat platform API latency.
	DiscordRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "discord",
			Name:      "request_duration_seconds",
			Help:      "Discord API request duration in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	// StoreFallbacks counts channel store operations served by the in-process fallback.
	StoreFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "store",
			Name:      "fallbacks_total",
			Help:      "Channel store operations that degraded to memory",
		},
		[]string{"operation"},
	)

	// StoreExpired counts records removed by the sweeper.
	StoreExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "store",
			Name:      "expired_total",
			Help:      "Channel records removed after their retention window",
		},
	)
)
