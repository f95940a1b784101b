package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		jobItemsTotal,
		jobRunsTotal,
		jobLastSuccess,
	)
}

var (
	jobItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_job_items_total",
			Help: "Rows processed by scheduled jobs, labeled by job and result.",
		},
		[]string{"job", "result"}, // result: ok|skipped|failed
	)

	jobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduled_job_runs_total",
			Help: "Scheduled job runs by job and status.",
		},
		[]string{"job", "status"}, // status: ok|error|not_leader
	)

	jobLastSuccess = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduled_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run of each job.",
		},
		[]string{"job"},
	)
)

func IncJobItem(job, result string) {
	jobItemsTotal.WithLabelValues(norm(job), norm(result)).Inc()
}

func IncJobRun(job, status string) {
	jobRunsTotal.WithLabelValues(norm(job), norm(status)).Inc()
}

func SetJobLastSuccess(job string, at time.Time) {
	jobLastSuccess.WithLabelValues(norm(job)).Set(float64(at.Unix()))
}
