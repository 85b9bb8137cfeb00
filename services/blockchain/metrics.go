package blockchain

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusChainBlocks prometheus.Counter
	prometheusChainReorgs prometheus.Counter
	prometheusChainHeight prometheus.Gauge
)

var (
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusChainBlocks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fingerprint",
			Subsystem: "blockchain",
			Name:      "blocks_accepted",
			Help:      "Number of blocks added to the block index",
		},
	)

	prometheusChainReorgs = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fingerprint",
			Subsystem: "blockchain",
			Name:      "reorgs",
			Help:      "Number of times the active chain switched branches",
		},
	)

	prometheusChainHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fingerprint",
			Subsystem: "blockchain",
			Name:      "height",
			Help:      "Height of the active chain tip",
		},
	)
}
