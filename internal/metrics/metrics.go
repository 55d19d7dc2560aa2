// Package metrics registers the Prometheus collectors shared by the client
// daemon and the server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	namespace = "fintrack"

	syncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Sync passes by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	syncOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "operations_total",
			Help:      "Replayed queue operations by entity and result (synced, retried, dropped)",
		},
		[]string{"entity", "result"},
	)

	syncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Duration of a full sync pass",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Operations waiting in the offline queue",
		},
	)

	online = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "network",
			Name:      "online",
			Help:      "1 when the remote store is considered reachable",
		},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "List cache lookups by result (hit, miss)",
		},
		[]string{"result"},
	)

	rateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-client rate limiter",
		},
	)

	amqpEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "amqp",
			Name:      "events_total",
			Help:      "Record-changed events by direction and result",
		},
		[]string{"direction", "result"},
	)
)

// ObserveSyncRun records one completed pass.
func ObserveSyncRun(trigger, outcome string, d time.Duration) {
	syncRuns.WithLabelValues(trigger, outcome).Inc()
	syncDuration.Observe(d.Seconds())
}

// IncSyncOperation counts one replayed operation.
func IncSyncOperation(entity, result string) {
	syncOperations.WithLabelValues(entity, result).Inc()
}

func SetQueueDepth(n int) { queueDepth.Set(float64(n)) }

func SetOnline(v bool) {
	if v {
		online.Set(1)
		return
	}
	online.Set(0)
}

// ObserveHTTPRequest records a served request.
func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func IncCacheLookup(hit bool) {
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	cacheLookups.WithLabelValues("miss").Inc()
}

func IncRateLimited() { rateLimited.Inc() }

// IncEvent counts an AMQP event; direction is "publish" or "consume".
func IncEvent(direction, result string) {
	amqpEvents.WithLabelValues(direction, result).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
