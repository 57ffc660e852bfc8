// Package metrics provides Prometheus instrumentation for the XDR runtime.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xdr",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "xdr",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ChaosDecisionsTotal counts chaos engine decisions by kind.
	ChaosDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xdr",
			Name:      "chaos_decisions_total",
			Help:      "Total chaos engine decisions by kind (none, latency, drop, rug).",
		},
		[]string{"kind"},
	)

	// LedgerDebitsTotal counts ledger debit attempts by outcome.
	LedgerDebitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xdr",
			Name:      "ledger_debits_total",
			Help:      "Total ledger debit attempts by outcome (accepted, insufficient_funds).",
		},
		[]string{"outcome"},
	)

	// PaymentChallengesTotal counts 402 challenges issued.
	PaymentChallengesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "xdr",
		Name:      "payment_challenges_total",
		Help:      "Total 402 Payment Required challenges issued.",
	})

	// InvoicesMintedTotal counts invoices minted by the invoice minter.
	InvoicesMintedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "xdr",
		Name:      "invoices_minted_total",
		Help:      "Total invoices minted.",
	})

	// TraceBufferSize tracks the current number of entries retained in the
	// trace ring buffer.
	TraceBufferSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "xdr",
		Name:      "trace_buffer_entries",
		Help:      "Number of trace entries currently retained in the ring buffer.",
	})

	// ActiveAgents tracks the number of distinct agent accounts the
	// in-memory ledger store has created. The Postgres store does not
	// update it.
	ActiveAgents = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "xdr",
		Name:      "active_agents",
		Help:      "Number of agent accounts currently known to the ledger.",
	})

	// UpstreamForwardDuration observes forwarder latency, separate from the
	// inbound HTTPRequestDuration so injected chaos latency is visible on
	// its own axis.
	UpstreamForwardDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "xdr",
		Name:      "upstream_forward_duration_seconds",
		Help:      "Upstream forward latency in seconds, as observed by the forwarder.",
		Buckets:   prometheus.DefBuckets,
	})

	// ActiveStreamClients tracks the number of connected /_xdr/stream
	// websocket subscribers.
	ActiveStreamClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "xdr",
		Name:      "active_stream_clients",
		Help:      "Number of currently connected admin trace-stream clients.",
	})

	// DBOpenConnections tracks open database connections (optional Postgres
	// persistence only).
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "xdr", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "xdr", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "xdr", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "xdr", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ChaosDecisionsTotal,
		LedgerDebitsTotal,
		PaymentChallengesTotal,
		InvoicesMintedTotal,
		TraceBufferSize,
		ActiveAgents,
		ActiveStreamClients,
		UpstreamForwardDuration,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Only relevant when the optional Postgres
// ledger store is in use. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for the /metrics
// endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
