package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(retriesTotal, retryExhaustedTotal) }

var (
	retriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_retries_total",
			Help: "Transient remote failures that triggered a backoff retry, per operation.",
		},
		[]string{"op"},
	)

	retryExhaustedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_retry_exhausted_total",
			Help: "Operations that failed permanently after exhausting retries, per operation.",
		},
		[]string{"op"},
	)
)

func IncRetry(op string) { retriesTotal.WithLabelValues(norm(op)).Inc() }

func IncRetryExhausted(op string) { retryExhaustedTotal.WithLabelValues(norm(op)).Inc() }
