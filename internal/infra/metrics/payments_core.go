package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentsRevenueMinorTotal,
		reconciliationsTotal,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payments by status (initiated/paid/failed).",
		},
		[]string{"status"},
	)

	paymentsRevenueMinorTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_minor_total",
			Help: "Value of paid payments in minor currency units, labeled by currency.",
		},
		[]string{"currency"},
	)

	// source: webhook|poll|sweep
	// outcome: paid|failed|pending|duplicate|unmatched|error
	reconciliationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_reconciliations_total",
			Help: "Gateway status reports applied to the ledger, by source and outcome.",
		},
		[]string{"source", "outcome"},
	)
)

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(norm(status)).Inc()
}

func AddPaymentRevenue(currency string, amount int64) {
	paymentsRevenueMinorTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

func IncReconciliation(source, outcome string) {
	reconciliationsTotal.WithLabelValues(norm(source), norm(outcome)).Inc()
}
