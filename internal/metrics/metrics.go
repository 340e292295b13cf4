package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	AttributionsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_attributions_total",
			Help: "Signups attributed, by method",
		},
		[]string{"method"},
	)
	ReferralCodesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "referral_codes_issued_total",
		Help: "Referral codes generated",
	})
	ReferralCodeCollisions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "referral_code_collisions_total",
		Help: "Generated codes discarded because they already existed",
	})
	CodeCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_code_cache_lookups_total",
			Help: "Referral code cache lookups, by result",
		},
		[]string{"result"},
	)

	PaymentsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commission_payments_processed_total",
			Help: "Payment events handled by the commission engine, by result",
		},
		[]string{"result"},
	)
	CommissionCents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commission_amount_cents_total",
			Help: "Commission booked in minor units, by role and currency",
		},
		[]string{"role", "currency"},
	)
	LedgerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commission_entry_transitions_total",
			Help: "Ledger entry state changes",
		},
		[]string{"from", "to"},
	)

	FraudSignalsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraud_signals_total",
			Help: "Fraud signals written, by type and severity",
		},
		[]string{"type", "severity"},
	)
	FraudScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fraud_scan_duration_seconds",
		Help:    "Duration of one fraud scan",
		Buckets: prometheus.DefBuckets,
	})
)

// Middleware records request count and latency. Routes are labelled by their
// template, not the raw path, to keep cardinality bounded.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}
