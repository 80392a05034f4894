package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "institution"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds all Prometheus collectors of the service. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ProvisionTotal           *prometheus.CounterVec
	ProvisionDuration        *prometheus.HistogramVec
	CompensationTotal        *prometheus.CounterVec
	BulkItemsTotal           *prometheus.CounterVec
	IdentityProviderDuration *prometheus.HistogramVec
	HTTPRequestsTotal        *prometheus.CounterVec
	HTTPRequestDuration      *prometheus.HistogramVec
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		ProvisionTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provision_total",
				Help:      "User provisioning attempts by user type, outcome and the saga state reached on failure",
			},
			[]string{"user_type", "outcome", "failed_state"},
		),
		ProvisionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provision_duration_seconds",
				Help:      "End to end duration of a single user provisioning",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"user_type"},
		),
		CompensationTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "identity_compensation_total",
				Help:      "Compensating identity deletions by outcome",
			},
			[]string{"outcome"},
		),
		BulkItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bulk_provision_items_total",
				Help:      "Items processed by bulk provisioning",
			},
			[]string{"user_type", "outcome"},
		),
		IdentityProviderDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "identity_provider_request_duration_seconds",
				Help:      "Identity provider admin API latency",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
			},
			[]string{"operation", "outcome"},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration by method and route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

func (m *Metrics) ObserveProvision(userType, failedState string, err error, took time.Duration) {
	if m == nil {
		return
	}
	m.ProvisionTotal.WithLabelValues(userType, outcome(err), failedState).Inc()
	m.ProvisionDuration.WithLabelValues(userType).Observe(took.Seconds())
}

func (m *Metrics) ObserveCompensation(err error) {
	if m == nil {
		return
	}
	m.CompensationTotal.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) ObserveBulkItem(userType string, err error) {
	if m == nil {
		return
	}
	m.BulkItemsTotal.WithLabelValues(userType, outcome(err)).Inc()
}

func (m *Metrics) ObserveIdentityProvider(operation string, err error, took time.Duration) {
	if m == nil {
		return
	}
	m.IdentityProviderDuration.WithLabelValues(operation, outcome(err)).Observe(took.Seconds())
}

func (m *Metrics) ObserveHTTP(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, statusClass(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
