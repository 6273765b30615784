package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(apiCallsLatencyMs, apiRateLimited) }

var (
	apiCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batch_api_calls_latency_ms",
			Help:    "Remote batch API call latency distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000},
		},
		[]string{"endpoint", "success"},
	)

	apiRateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_api_rate_limited_total",
			Help: "Remote calls deferred by the local rate limit window, per endpoint.",
		},
		[]string{"endpoint"},
	)
)

func ObserveAPICall(endpoint string, latencyMs int, success bool) {
	apiCallsLatencyMs.WithLabelValues(norm(endpoint), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

func IncRateLimited(endpoint string) { apiRateLimited.WithLabelValues(norm(endpoint)).Inc() }
