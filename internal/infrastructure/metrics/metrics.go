package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "greencoin"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	adapterCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "adapter",
			Name:      "calls_total",
			Help:      "External adapter calls by outcome (ok, rejected, timeout).",
		},
		[]string{"adapter", "op", "outcome"},
	)

	adapterDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "adapter",
			Name:      "call_duration_seconds",
			Help:      "Duration of external adapter calls.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"adapter", "op"},
	)

	ledgerAppends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "appends_total",
			Help:      "Ledger entries appended by direction.",
		},
		[]string{"direction"},
	)

	settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "operations_total",
			Help:      "Settlement operations (batch_mint, purchase, confirm_buy) by outcome.",
		},
		[]string{"kind", "outcome"},
	)

	reconciled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "reconciled_total",
			Help:      "Open settlement intents resolved by the reconciler.",
		},
		[]string{"kind", "outcome"},
	)

	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Scheduled job runs.",
		},
		[]string{"job", "success"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		adapterCalls,
		adapterDuration,
		ledgerAppends,
		settlements,
		reconciled,
		jobRuns,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordHTTP records one handled request. route is the matched route pattern, not the raw path.
func RecordHTTP(method, route string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordAdapterCall records one content-store or chain call.
func RecordAdapterCall(adapter, op, outcome string, duration time.Duration) {
	adapterCalls.WithLabelValues(adapter, op, outcome).Inc()
	adapterDuration.WithLabelValues(adapter, op).Observe(duration.Seconds())
}

func RecordLedgerAppend(direction string) {
	ledgerAppends.WithLabelValues(direction).Inc()
}

func RecordSettlement(kind, outcome string) {
	settlements.WithLabelValues(kind, outcome).Inc()
}

func RecordReconciled(kind, outcome string) {
	reconciled.WithLabelValues(kind, outcome).Inc()
}

func RecordJobRun(job string, success bool) {
	jobRuns.WithLabelValues(job, strconv.FormatBool(success)).Inc()
}
