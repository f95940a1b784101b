package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		fulfillmentTotal,
		lifecycleTransitionsTotal,
		cashEventsTotal,
	)
}

var (
	// kind: service|product|package
	// result: ok|error|missing_order
	fulfillmentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_total",
			Help: "Provisioning runs triggered by paid orders.",
		},
		[]string{"kind", "result"},
	)

	// entity: client_service|maintenance
	lifecycleTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_transitions_total",
			Help: "Accepted lifecycle operations by entity and operation.",
		},
		[]string{"entity", "op"},
	)

	// event: reported|confirmed
	cashEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cash_events_total",
			Help: "Cash handshake events by track and event.",
		},
		[]string{"track", "event"},
	)
)

func IncFulfillment(kind, result string) {
	fulfillmentTotal.WithLabelValues(norm(kind), norm(result)).Inc()
}

func IncLifecycleTransition(entity, op string) {
	lifecycleTransitionsTotal.WithLabelValues(norm(entity), norm(op)).Inc()
}

func IncCashEvent(track, event string) {
	cashEventsTotal.WithLabelValues(norm(track), norm(event)).Inc()
}
