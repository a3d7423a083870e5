package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Business metrics
	UsersRegistered   prometheus.Counter
	LoginAttempts     *prometheus.CounterVec
	ContentRequests   *prometheus.CounterVec
	TokensDebited     prometheus.Counter
	TokensCredited    prometheus.Counter
	SubscriptionsSold prometheus.Counter
	WebhookDispatches *prometheus.CounterVec

	// Record store metrics
	StoreRequestDuration *prometheus.HistogramVec
}

// New creates a new Metrics instance registered against the default
// Prometheus registry, which is what the /metrics endpoint serves.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers all metrics against the given registerer.
// Tests use a private registry to avoid duplicate registration panics.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),

		UsersRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "users_registered_total",
			Help: "Total number of users registered",
		}),
		LoginAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "login_attempts_total",
				Help: "Total number of login attempts",
			},
			[]string{"status"}, // success, failed
		),
		ContentRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "content_requests_total",
				Help: "Total number of content generation requests",
			},
			[]string{"content_type"},
		),
		TokensDebited: factory.NewCounter(prometheus.CounterOpts{
			Name: "tokens_debited_total",
			Help: "Total tokens spent on generation requests",
		}),
		TokensCredited: factory.NewCounter(prometheus.CounterOpts{
			Name: "tokens_credited_total",
			Help: "Total tokens added by purchases and upgrades",
		}),
		SubscriptionsSold: factory.NewCounter(prometheus.CounterOpts{
			Name: "subscriptions_sold_total",
			Help: "Total number of Premium subscriptions sold",
		}),
		WebhookDispatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_dispatches_total",
				Help: "Total fulfillment webhook deliveries",
			},
			[]string{"status"}, // success, failed
		),

		StoreRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "store_request_duration_seconds",
				Help:    "Record store round-trip duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"table", "operation"},
		),
	}

	return m
}

// Middleware creates an Echo middleware for Prometheus metrics
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			path := c.Path() // route pattern, not the raw URL

			err := next(c)

			status := c.Response().Status
			duration := time.Since(start).Seconds()

			m.HTTPRequestsTotal.WithLabelValues(req.Method, path, strconv.Itoa(status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(req.Method, path, strconv.Itoa(status)).Observe(duration)

			return err
		}
	}
}

// RecordUserRegistered increments users registered counter
func (m *Metrics) RecordUserRegistered() {
	m.UsersRegistered.Inc()
}

// RecordLoginAttempt increments login attempts counter
func (m *Metrics) RecordLoginAttempt(success bool) {
	status := "failed"
	if success {
		status = "success"
	}
	m.LoginAttempts.WithLabelValues(status).Inc()
}

// RecordContentRequest counts a generation request by type
func (m *Metrics) RecordContentRequest(contentType string) {
	m.ContentRequests.WithLabelValues(contentType).Inc()
}

// RecordTokensDebited adds to the spent-token counter
func (m *Metrics) RecordTokensDebited(n int) {
	m.TokensDebited.Add(float64(n))
}

// RecordTokensCredited adds to the granted-token counter
func (m *Metrics) RecordTokensCredited(n int) {
	m.TokensCredited.Add(float64(n))
}

// RecordSubscriptionSold increments subscriptions sold counter
func (m *Metrics) RecordSubscriptionSold() {
	m.SubscriptionsSold.Inc()
}

// RecordWebhookDispatch counts a fulfillment handoff attempt
func (m *Metrics) RecordWebhookDispatch(success bool) {
	status := "failed"
	if success {
		status = "success"
	}
	m.WebhookDispatches.WithLabelValues(status).Inc()
}

// RecordStoreRequest records a record store round-trip duration
func (m *Metrics) RecordStoreRequest(table, operation string, duration time.Duration) {
	m.StoreRequestDuration.WithLabelValues(table, operation).Observe(duration.Seconds())
}
