// Package metrics holds the Prometheus collectors for the contest daemon.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "saferwinning"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	ledgerOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "contest",
			Name:      "ledger_operations_total",
			Help:      "Deposits and withdrawals by outcome.",
		},
		[]string{"operation", "status"},
	)

	draws = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "contest",
			Name:      "draws_total",
			Help:      "Draw requests by status.",
		},
		[]string{"status"},
	)

	totalEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "contest",
			Name:      "total_entries",
			Help:      "Sum of entries over active participants (lossy float view).",
		},
	)

	participants = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "contest",
			Name:      "participants",
			Help:      "Number of registered participants.",
		},
	)

	vrfRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vrf",
			Name:      "requests_total",
			Help:      "Randomness requests by status.",
		},
		[]string{"status"},
	)

	vrfLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vrf",
			Name:      "fulfillment_duration_seconds",
			Help:      "Time from request to fulfillment.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	scheduledRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "automation",
			Name:      "draw_runs_total",
			Help:      "Scheduled draw triggers by outcome.",
		},
		[]string{"success"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		ledgerOps,
		draws,
		totalEntries,
		participants,
		vrfRequests,
		vrfLatency,
		scheduledRuns,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func IncrementInFlight() { httpInFlight.Inc() }
func DecrementInFlight() { httpInFlight.Dec() }

// RecordHTTPRequest records one handled request. path should be a route
// template, not the raw URL.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	method = strings.ToUpper(method)
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordLedgerOperation counts a deposit or withdrawal attempt.
func RecordLedgerOperation(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ledgerOps.WithLabelValues(operation, status).Inc()
}

func RecordDraw(status string) {
	draws.WithLabelValues(status).Inc()
}

// SetContestTotals publishes the current totals. entries is a float
// approximation of a 256-bit value.
func SetContestTotals(entries float64, count int) {
	totalEntries.Set(entries)
	participants.Set(float64(count))
}

func RecordVRFRequest(status string) {
	vrfRequests.WithLabelValues(status).Inc()
}

func RecordVRFFulfillment(d time.Duration) {
	if d <= 0 {
		d = time.Millisecond
	}
	vrfLatency.Observe(d.Seconds())
}

func RecordScheduledDraw(success bool) {
	scheduledRuns.WithLabelValues(strconv.FormatBool(success)).Inc()
}
