package rpc

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusRPCRequests *prometheus.HistogramVec
	prometheusRPCErrors   *prometheus.CounterVec
)

var (
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusRPCRequests = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fingerprint",
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "Histogram of rpc calls by method",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		},
		[]string{"method"},
	)

	prometheusRPCErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fingerprint",
			Subsystem: "rpc",
			Name:      "errors_total",
			Help:      "Number of failed rpc calls by method and error category",
		},
		[]string{"method", "category"},
	)
}
