// Package metrics exposes the engine and server counters in Prometheus
// format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pgmem/internal/pgerr"
)

var (
	statements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pgmem",
			Name:      "statements_total",
			Help:      "Statements executed, by command and SQLSTATE class.",
		},
		[]string{"command", "class"},
	)
	statementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pgmem",
			Name:      "statement_duration_seconds",
			Help:      "Statement execution time.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
		[]string{"command"},
	)
	transactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pgmem",
			Name:      "transactions_total",
			Help:      "Explicit transaction blocks by outcome.",
		},
		[]string{"outcome"},
	)
	connections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pgmem",
			Name:      "connections_active",
			Help:      "Open client connections.",
		},
	)
	connectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pgmem",
			Name:      "connections_total",
			Help:      "Client connections by outcome.",
		},
		[]string{"outcome"},
	)
)

// ObserveStatement records one statement. The class is the first two
// characters of the SQLSTATE, "00" on success.
func ObserveStatement(command string, start time.Time, err error) {
	class := "00"
	if err != nil {
		class = pgerr.CodeOf(err)[:2]
	}
	statements.WithLabelValues(command, class).Inc()
	statementDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
}

// ObserveTransaction records the end of a transaction block; outcome is
// "commit" or "rollback".
func ObserveTransaction(outcome string) {
	transactions.WithLabelValues(outcome).Inc()
}

// ConnectionOpened records an accepted connection.
func ConnectionOpened() {
	connections.Inc()
	connectionsTotal.WithLabelValues("accepted").Inc()
}

// ConnectionClosed records the end of an accepted connection.
func ConnectionClosed() {
	connections.Dec()
}

// ConnectionRejected records a connection turned away at the limit.
func ConnectionRejected() {
	connectionsTotal.WithLabelValues("rejected").Inc()
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
