package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Upstream names used as label values.
const (
	UpstreamInventory = "inventory"
	UpstreamGeo       = "geo"
)

// OutcomeCanceled marks upstream calls abandoned because the caller went away.
const OutcomeCanceled = "canceled"

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "endpoint", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopfront_decisions_total",
			Help: "Storefront gating decisions by reason.",
		},
		[]string{"reason", "shown"},
	)
	upstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopfront_upstream_requests_total",
			Help: "Outbound requests to partner and geolocation services by outcome.",
		},
		[]string{"upstream", "outcome"},
	)
	upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shopfront_upstream_duration_seconds",
			Help:    "Latency of outbound partner and geolocation requests.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"upstream"},
	)
	inventoryFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shopfront_renders_without_inventory_total",
			Help: "Page renders that dropped the product section because inventory could not be fetched.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(decisionsTotal)
	prometheus.MustRegister(upstreamRequestsTotal)
	prometheus.MustRegister(upstreamDuration)
	prometheus.MustRegister(inventoryFailuresTotal)
}

// RecordRequest records an inbound HTTP request.
func RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	status := classifyStatus(statusCode)
	httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
}

// RecordUpstream records one outbound call. outcome is "ok" or a short
// failure class such as "status_5xx", "transport" or "parse".
func RecordUpstream(upstream, outcome string, duration time.Duration) {
	upstreamRequestsTotal.WithLabelValues(upstream, outcome).Inc()
	upstreamDuration.WithLabelValues(upstream).Observe(duration.Seconds())
}

func RecordDecision(reason string, shown bool) {
	s := "false"
	if shown {
		s = "true"
	}
	decisionsTotal.WithLabelValues(reason, s).Inc()
}

func RecordInventoryFailure() {
	inventoryFailuresTotal.Inc()
}

// StatusOutcome maps an upstream HTTP status to an outcome label.
func StatusOutcome(statusCode int) string {
	return "status_" + classifyStatus(statusCode)
}

func classifyStatus(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "2xx"
	} else if statusCode >= 300 && statusCode < 400 {
		return "3xx"
	} else if statusCode >= 400 && statusCode < 500 {
		return "4xx"
	} else if statusCode >= 500 && statusCode < 600 {
		return "5xx"
	}
	return "unknown"
}

// MetricsHandler exposes the default registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
