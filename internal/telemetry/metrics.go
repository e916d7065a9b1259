package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	PublishSuccess  = prometheus.NewCounter(prometheus.CounterOpts{Name: "publish_posted_total", Help: "Publish attempts that succeeded"})
	PublishFailures = prometheus.NewCounter(prometheus.CounterOpts{Name: "publish_failed_total", Help: "Publish attempts that failed"})
	ClaimMisses     = prometheus.NewCounter(prometheus.CounterOpts{Name: "publish_claim_misses_total", Help: "Claims lost to another execution path"})
	PollTicks       = prometheus.NewCounter(prometheus.CounterOpts{Name: "poll_ticks_total", Help: "Poll scheduler ticks"})
	QueueEnqueued   = prometheus.NewCounter(prometheus.CounterOpts{Name: "queue_entries_enqueued_total", Help: "Schedule entries handed to the job queue"})
	QueueDegraded   = prometheus.NewGauge(prometheus.GaugeOpts{Name: "queue_degraded", Help: "1 when the job queue backing store is unavailable and only the poll scheduler runs"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			PublishSuccess,
			PublishFailures,
			ClaimMisses,
			PollTicks,
			QueueEnqueued,
			QueueDegraded,
		)
	})
	return promhttp.Handler()
}
