package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "staybook_http_requests_total",
		Help: "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "staybook_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	PaymentsInitiated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "staybook_payments_initiated_total",
		Help: "Payment initiations by outcome.",
	}, []string{"outcome"})

	PaymentsVerified = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "staybook_payments_verified_total",
		Help: "Payment verifications by resulting payment status.",
	}, []string{"status"})

	GatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "staybook_gateway_request_duration_seconds",
		Help:    "Payment gateway call latency by operation and outcome.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
	}, []string{"operation", "outcome"})

	BookingsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "staybook_bookings_created_total",
		Help: "Bookings created.",
	})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "staybook_notifications_total",
		Help: "Notification deliveries by kind and outcome.",
	}, []string{"kind", "outcome"})
)

// ObserveGateway records the latency of one gateway call
func ObserveGateway(operation, outcome string, started time.Time) {
	GatewayRequestDuration.WithLabelValues(operation, outcome).Observe(time.Since(started).Seconds())
}

// Middleware counts requests by matched route so path parameters do not
// explode label cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method

		HTTPRequests.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}
