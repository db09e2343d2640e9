// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for a SIL Kit participant process.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// ROUTER METRICS (C2)
// =============================================================================

var (
	messagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "silkit_messages_sent_total",
			Help: "Total number of messages sent through the router",
		},
		[]string{"payload_type"},
	)

	messagesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "silkit_messages_received_total",
			Help: "Total number of messages delivered to local receivers",
		},
		[]string{"payload_type"},
	)
)

// =============================================================================
// DISCOVERY METRICS (C3/C4)
// =============================================================================

var (
	servicesKnownGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "silkit_services_known",
			Help: "Number of services currently known to the local discovery directory",
		},
	)

	discoveryEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "silkit_discovery_events_total",
			Help: "Total discovery events applied, by event type",
		},
		[]string{"event_type"},
	)
)

// =============================================================================
// REQUEST/REPLY AND RPC METRICS (C5/C8)
// =============================================================================

var (
	requestReplyCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "silkit_request_reply_calls_total",
			Help: "Total RequestReplyCalls issued, by function type",
		},
		[]string{"function_type"},
	)

	rpcCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "silkit_rpc_calls_total",
			Help: "Total RPC calls issued, by result status",
		},
		[]string{"status"},
	)

	rpcCallDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "silkit_rpc_call_duration_seconds",
			Help:    "RPC call round-trip duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"function_name"},
	)
)

// =============================================================================
// LIFECYCLE METRICS (C7)
// =============================================================================

var (
	invalidTransitionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "silkit_invalid_participant_transitions_total",
			Help: "Total observed participant state transitions rejected by the lifecycle graph",
		},
	)

	systemStateGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "silkit_system_state",
			Help: "1 if the aggregate system is currently in this state, 0 otherwise",
		},
		[]string{"state"},
	)
)

// RecordMessageSent records one outbound message by payload type.
func RecordMessageSent(payloadType string) {
	messagesSentTotal.WithLabelValues(payloadType).Inc()
}

// RecordMessageReceived records one locally delivered message by payload type.
func RecordMessageReceived(payloadType string) {
	messagesReceivedTotal.WithLabelValues(payloadType).Inc()
}

// SetServicesKnown reports the current size of the discovery directory.
func SetServicesKnown(count int) {
	servicesKnownGauge.Set(float64(count))
}

// RecordDiscoveryEvent records one applied ServiceCreated/ServiceRemoved event.
func RecordDiscoveryEvent(eventType string) {
	discoveryEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordRequestReplyCall records one issued RequestReplyCall by function type.
func RecordRequestReplyCall(functionType string) {
	requestReplyCallsTotal.WithLabelValues(functionType).Inc()
}

// RecordRPCCall records one completed RPC call result and its duration.
func RecordRPCCall(functionName, status string, durationSeconds float64) {
	rpcCallsTotal.WithLabelValues(status).Inc()
	rpcCallDurationSeconds.WithLabelValues(functionName).Observe(durationSeconds)
}

// RecordInvalidTransition increments the invalid-transition counter.
func RecordInvalidTransition() {
	invalidTransitionsTotal.Inc()
}

// SetSystemState flips the system-state gauge to 1 for the current state
// and 0 for every other state listed in allStates.
func SetSystemState(current string, allStates []string) {
	for _, s := range allStates {
		if s == current {
			systemStateGauge.WithLabelValues(s).Set(1)
		} else {
			systemStateGauge.WithLabelValues(s).Set(0)
		}
	}
}
