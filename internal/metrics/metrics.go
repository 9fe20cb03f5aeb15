// Package metrics registers the server's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lk_commands_total",
			Help: "Dispatched commands by name and outcome.",
		},
		[]string{"command", "outcome"},
	)

	commandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lk_command_duration_seconds",
			Help:    "Command dispatch latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lk_active_connections",
		Help: "Currently open client connections.",
	})

	labworks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lk_labworks",
		Help: "Records in the collection.",
	})

	panicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lk_dispatch_panics_total",
		Help: "Handler panics recovered by the dispatcher.",
	})
)

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// ObserveCommand records one dispatch. Unknown command names are folded into
// "unknown" to keep label cardinality bounded.
func ObserveCommand(command, outcome string, d time.Duration) {
	if command == "" {
		command = "unknown"
	}
	commandsTotal.WithLabelValues(command, outcome).Inc()
	commandDuration.WithLabelValues(command).Observe(d.Seconds())
}

// ConnOpened and ConnClosed track live connections.
func ConnOpened() { activeConnections.Inc() }
func ConnClosed() { activeConnections.Dec() }

// SetLabWorks publishes the collection size.
func SetLabWorks(n int) { labworks.Set(float64(n)) }

// PanicRecovered counts a recovered handler panic.
func PanicRecovered() { panicsTotal.Inc() }
