// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// InboundEnvelopesTotal tracks envelopes received on the broadcast
	// topic by outcome (applied, rejected, undecodable).
	InboundEnvelopesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_inbound_envelopes_total",
			Help: "Envelopes received from the broadcast topic",
		},
		[]string{"outcome"},
	)

	// OutboundMessagesTotal tracks messages published to send destinations.
	OutboundMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_outbound_messages_total",
			Help: "Messages published to conversation destinations",
		},
		[]string{"status"},
	)

	// StoreMutationsTotal tracks store mutations by kind.
	StoreMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_store_mutations_total",
			Help: "Conversation store mutations",
		},
		[]string{"kind"},
	)

	// StoreStaleSkipsTotal tracks bulk entries skipped because the store
	// already held newer state.
	StoreStaleSkipsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_store_stale_skips_total",
			Help: "Bulk entries skipped in favour of newer pushed state",
		},
	)

	// StoreConversations tracks the number of conversations held.
	StoreConversations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_store_conversations",
			Help: "Conversations currently held in the store",
		},
	)

	// RemoteCallDuration tracks REST collaborator latency.
	RemoteCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_remote_call_duration_seconds",
			Help:    "REST collaborator call duration",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"op", "status"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordInbound records the outcome of one inbound envelope.
func RecordInbound(outcome string) {
	InboundEnvelopesTotal.WithLabelValues(outcome).Inc()
}

// RecordRemoteCall records metrics for a REST collaborator call.
func RecordRemoteCall(op, status string, duration float64) {
	RemoteCallDuration.WithLabelValues(op, status).Observe(duration)
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
