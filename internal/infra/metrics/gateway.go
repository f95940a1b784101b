package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		gatewayRequests,
		gatewayDuration,
		webhooksTotal,
	)
}

var (
	// op: initiate|status
	// result: ok|rejected|unavailable
	gatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Outbound payment gateway calls by operation and result.",
		},
		[]string{"gateway", "op", "result"},
	)

	gatewayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Outbound payment gateway call latency in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"gateway", "op"},
	)

	// result: ok|bad_signature|bad_payload|error
	webhooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_webhooks_total",
			Help: "Inbound gateway webhooks by result. Every webhook is acknowledged.",
		},
		[]string{"result"},
	)
)

func ObserveGatewayCall(gateway, op, result string, d time.Duration) {
	gatewayRequests.WithLabelValues(norm(gateway), norm(op), norm(result)).Inc()
	gatewayDuration.WithLabelValues(norm(gateway), norm(op)).Observe(d.Seconds())
}

func IncWebhook(result string) {
	webhooksTotal.WithLabelValues(norm(result)).Inc()
}
