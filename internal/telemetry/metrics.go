package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsEnqueued     = prometheus.NewCounter(prometheus.CounterOpts{Name: "analyzer_jobs_enqueued_total", Help: "Jobs created via the intake API"})
	JobsCompleted    = prometheus.NewCounter(prometheus.CounterOpts{Name: "analyzer_jobs_completed_total", Help: "Jobs that completed the full pipeline"})
	JobsFailed       = prometheus.NewCounter(prometheus.CounterOpts{Name: "analyzer_jobs_failed_total", Help: "Jobs that hit the fail path"})
	EmailsSent       = prometheus.NewCounter(prometheus.CounterOpts{Name: "analyzer_emails_sent_total", Help: "Review emails delivered"})
	EmailFailures    = prometheus.NewCounter(prometheus.CounterOpts{Name: "analyzer_emails_failed_total", Help: "Review emails that exhausted retries"})
	AlertFailures    = prometheus.NewCounter(prometheus.CounterOpts{Name: "analyzer_alert_failures_total", Help: "Alerts that could not be delivered"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "analyzer_rate_limit_rejects_total", Help: "Intake requests rejected by the rate limiter"})
	InFlightGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "analyzer_jobs_inflight", Help: "Jobs currently executing in a worker slot"})
	EligibleGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "analyzer_jobs_eligible", Help: "Eligible jobs fetched by the last scheduler pass"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsEnqueued,
			JobsCompleted,
			JobsFailed,
			EmailsSent,
			EmailFailures,
			AlertFailures,
			RateLimitRejects,
			InFlightGauge,
			EligibleGauge,
		)
	})
	return promhttp.Handler()
}
