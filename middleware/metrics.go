package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	ordersCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Total number of orders created",
		},
	)

	ordersCancelledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_cancelled_total",
			Help: "Total number of orders cancelled, by actor",
		},
		[]string{"actor"},
	)

	orderStatusUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_status_updates_total",
			Help: "Total number of order status updates applied from payment callbacks",
		},
		[]string{"status"},
	)

	stockConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stock_conflicts_total",
			Help: "Orders rejected because stock changed between validation and commit",
		},
	)

	paymentCallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_callbacks_total",
			Help: "Total number of payment callbacks received, by result",
		},
		[]string{"source", "result"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(ordersCreatedTotal)
	prometheus.MustRegister(ordersCancelledTotal)
	prometheus.MustRegister(orderStatusUpdatesTotal)
	prometheus.MustRegister(stockConflictsTotal)
	prometheus.MustRegister(paymentCallbacksTotal)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func RecordOrderCreated() {
	ordersCreatedTotal.Inc()
}

func RecordOrderCancelled(actor string) {
	ordersCancelledTotal.WithLabelValues(actor).Inc()
}

func RecordOrderStatusUpdate(status string) {
	orderStatusUpdatesTotal.WithLabelValues(status).Inc()
}

func RecordStockConflict() {
	stockConflictsTotal.Inc()
}

// RecordPaymentCallback counts a webhook or queue callback. source is
// "stripe" or "kafka"; result is "applied", "duplicate", "ignored" or "failed".
func RecordPaymentCallback(source, result string) {
	paymentCallbacksTotal.WithLabelValues(source, result).Inc()
}
