package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolConns, dbTxTotal) }

var (
	dbPoolConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "billing_db_pool_connections",
			Help: "Postgres pool connections by state.",
		},
		[]string{"state"}, // total | idle | in_use
	)
	dbTxTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_db_transactions_total",
			Help: "Transactions run by the transaction manager, by outcome.",
		},
		[]string{"result"}, // commit | rollback | begin_error | commit_error
	)
)

func SetDBPoolStats(total, idle, inUse int32) {
	dbPoolConns.WithLabelValues("total").Set(float64(total))
	dbPoolConns.WithLabelValues("idle").Set(float64(idle))
	dbPoolConns.WithLabelValues("in_use").Set(float64(inUse))
}

func IncDBTx(result string) {
	dbTxTotal.WithLabelValues(norm(result)).Inc()
}
