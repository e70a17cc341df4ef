package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "directory",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "directory",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	StoreOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "directory",
		Name:      "store_operations_total",
		Help:      "Profile store operations by kind and result.",
	}, []string{"op", "result"})

	StoreDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "directory",
		Name:      "store_operation_duration_seconds",
		Help:      "Profile store operation latency.",
		Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
	}, []string{"op"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "directory",
		Name:      "events_published_total",
		Help:      "Profile change events by type and result.",
	}, []string{"type", "result"})

	ImageOffloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "directory",
		Name:      "image_offloads_total",
		Help:      "Inline images moved to hosted storage, by result.",
	}, []string{"result"})
)

// ObserveStore records one store call that started at start.
func ObserveStore(op string, start time.Time, err error) {
	StoreDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	StoreOps.WithLabelValues(op, Result(err)).Inc()
}

// Result maps an error to a metric label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
