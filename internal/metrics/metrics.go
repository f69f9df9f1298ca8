// Package metrics provides Prometheus instrumentation for the wallet service.
package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path pattern, and status bucket.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shipcrowd_wallet",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status bucket.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shipcrowd_wallet",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// WalletOpsTotal counts ledger mutations by operation and result.
	WalletOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shipcrowd_wallet",
			Name:      "operations_total",
			Help:      "Total wallet operations by operation and result.",
		},
		[]string{"operation", "result"},
	)

	// WalletOpDuration observes mutation latency by operation, lock wait included.
	WalletOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shipcrowd_wallet",
			Name:      "operation_duration_seconds",
			Help:      "Wallet operation duration in seconds, including lock wait.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		},
		[]string{"operation"},
	)

	// InsufficientBalanceTotal counts debits rejected for insufficient funds.
	InsufficientBalanceTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shipcrowd_wallet",
		Name:      "insufficient_balance_total",
		Help:      "Total debit attempts rejected for insufficient balance.",
	})

	// IdempotentReplaysTotal counts mutations answered from a prior transaction.
	IdempotentReplaysTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shipcrowd_wallet",
		Name:      "idempotent_replays_total",
		Help:      "Total mutations short-circuited by an idempotency key match.",
	})

	// LockWaitDuration observes time spent waiting for the per-company lock.
	LockWaitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "shipcrowd_wallet",
		Name:      "lock_wait_seconds",
		Help:      "Time spent waiting to acquire a wallet lock in seconds.",
		Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
	})

	// LockTimeoutsTotal counts lock acquisitions that gave up.
	LockTimeoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shipcrowd_wallet",
		Name:      "lock_timeouts_total",
		Help:      "Total lock acquisitions abandoned after the wait deadline.",
	})

	// DisputesResolvedTotal counts dispute resolutions by outcome.
	DisputesResolvedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shipcrowd_wallet",
			Name:      "disputes_resolved_total",
			Help:      "Total weight disputes resolved by outcome.",
		},
		[]string{"outcome"},
	)

	// DisputesAutoResolvedTotal counts disputes closed by the expiry sweep.
	DisputesAutoResolvedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shipcrowd_wallet",
		Name:      "disputes_auto_resolved_total",
		Help:      "Total weight disputes auto-resolved after the response window.",
	})

	// AutoRechargesTotal counts auto-recharge attempts by result.
	AutoRechargesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shipcrowd_wallet",
			Name:      "auto_recharges_total",
			Help:      "Total auto-recharge attempts by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		WalletOpsTotal,
		WalletOpDuration,
		InsufficientBalanceTotal,
		IdempotentReplaysTotal,
		LockWaitDuration,
		LockTimeoutsTotal,
		DisputesResolvedTotal,
		DisputesAutoResolvedTotal,
		AutoRechargesTotal,
	)
}

// ObserveOperation records one wallet mutation outcome with its duration.
func ObserveOperation(operation, result string, start time.Time) {
	WalletOpsTotal.WithLabelValues(operation, result).Inc()
	WalletOpDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
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

// Handler returns the Prometheus scrape handler for the /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes (2xx, 3xx, 4xx, 5xx) to keep
// label cardinality flat.
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
