package legacy

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusLegacyServed      *prometheus.CounterVec
	prometheusLegacyWithheld    *prometheus.CounterVec
	prometheusLegacyDisconnects prometheus.Counter
	prometheusLegacyBans        prometheus.Counter
	prometheusLegacyPeers       prometheus.Gauge
	prometheusLegacyBlocks      prometheus.Counter
	prometheusLegacyInvalid     prometheus.Counter
)

var (
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusLegacyServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fingerprint",
			Subsystem: "legacy",
			Name:      "served",
			Help:      "Number of block and header requests answered",
		},
		[]string{"kind"},
	)

	prometheusLegacyWithheld = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fingerprint",
			Subsystem: "legacy",
			Name:      "withheld",
			Help:      "Number of block and header requests left unanswered",
		},
		[]string{"kind"},
	)

	prometheusLegacyDisconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fingerprint",
			Subsystem: "legacy",
			Name:      "disconnects",
			Help:      "Number of peers disconnected",
		},
	)

	prometheusLegacyBans = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fingerprint",
			Subsystem: "legacy",
			Name:      "bans",
			Help:      "Number of hosts banned for misbehaviour",
		},
	)

	prometheusLegacyPeers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fingerprint",
			Subsystem: "legacy",
			Name:      "peers",
			Help:      "Number of connected peers",
		},
	)

	prometheusLegacyBlocks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fingerprint",
			Subsystem: "legacy",
			Name:      "blocks_received",
			Help:      "Number of blocks received from peers and added to the chain",
		},
	)

	prometheusLegacyInvalid = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fingerprint",
			Subsystem: "legacy",
			Name:      "invalid_received",
			Help:      "Number of invalid headers and blocks received from peers",
		},
	)
}
