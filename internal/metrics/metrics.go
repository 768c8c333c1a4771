// Package metrics exposes Prometheus instrumentation for the pairing core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pairing_sessions_created_total",
		Help: "Total sessions created",
	})

	SessionsJoined = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pairing_sessions_joined_total",
		Help: "Total successful peer joins",
	})

	SessionsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pairing_sessions_closed_total",
		Help: "Total sessions closed by a peer",
	})

	SessionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pairing_sessions_expired_total",
		Help: "Total sessions evicted after their TTL elapsed",
	})

	MessagesRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_messages_total",
		Help: "Signaling messages forwarded, by type",
	}, []string{"type"})

	MessagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_messages_dropped_total",
		Help: "Messages dropped because the target had no live connection",
	})

	RelayConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connections",
		Help: "Live relay connections currently bound to a peer",
	})
)
