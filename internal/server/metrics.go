package server

import "github.com/prometheus/client_golang/prometheus"

// metricsRegistry holds the Prometheus collectors the dispatcher updates
// inline from the single dispatch thread. Counters/gauges from the
// official client are safe to read concurrently by construction, which is
// what lets the admin HTTP surface (internal/server/admin.go) scrape them
// from its own goroutine without touching the store or connection set.
type metricsRegistry struct {
	registry *prometheus.Registry

	connectionsAccepted prometheus.Counter
	connectionsActive   prometheus.Gauge
	commandsTotal       *prometheus.CounterVec
	unknownCommands     prometheus.Counter
	parseErrors         prometheus.Counter
	bytesReceived       prometheus.Counter
	storeKeys           prometheus.GaugeFunc
}

func newMetricsRegistry(keyCount func() int) *metricsRegistry {
	reg := prometheus.NewRegistry()
	m := &metricsRegistry{
		registry: reg,
		connectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvcache_connections_accepted_total",
			Help: "Total TCP connections accepted.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kvcache_connections_active",
			Help: "Currently open TCP connections.",
		}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kvcache_commands_total",
			Help: "Commands dispatched, by command name.",
		}, []string{"command"}),
		unknownCommands: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvcache_unknown_commands_total",
			Help: "Commands received with an unrecognized name.",
		}),
		parseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvcache_parse_errors_total",
			Help: "RESP frames that failed to parse.",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvcache_bytes_received_total",
			Help: "Bytes received across all connections.",
		}),
	}
	m.storeKeys = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "kvcache_store_keys",
		Help: "Number of keys currently in the store.",
	}, func() float64 { return float64(keyCount()) })

	reg.MustRegister(
		m.connectionsAccepted,
		m.connectionsActive,
		m.commandsTotal,
		m.unknownCommands,
		m.parseErrors,
		m.bytesReceived,
		m.storeKeys,
	)
	return m
}
