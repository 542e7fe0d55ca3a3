package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardflow_http_request_duration_seconds",
			Help:    "Latency of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"role", "method", "route", "status"},
	)

	// Authorizations counts Issuer authorization outcomes (approved, or the error code).
	Authorizations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardflow_issuer_authorizations_total",
			Help: "Authorization requests handled by the issuer.",
		},
		[]string{"outcome"},
	)

	Logins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardflow_issuer_logins_total",
			Help: "Cardholder login attempts.",
		},
		[]string{"result"},
	)

	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardflow_issuer_decisions_total",
			Help: "Terminal transitions committed or deferred.",
		},
		[]string{"outcome"},
	)

	Callbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardflow_issuer_callbacks_total",
			Help: "Merchant callback deliveries.",
		},
		[]string{"result"},
	)

	Routes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardflow_acquirer_routes_total",
			Help: "Acquirer routing decisions.",
		},
		[]string{"issuer", "result"},
	)

	Initiations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardflow_gateway_initiations_total",
			Help: "Payment initiations relayed by the gateway.",
		},
		[]string{"result"},
	)

	Outcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardflow_merchant_outcomes_total",
			Help: "Final outcomes received by the merchant.",
		},
		[]string{"result"},
	)

	registry = prometheus.NewRegistry()
	once     sync.Once
)

// Init registers the collectors once per process; apps started side by side
// in tests share them.
func Init() {
	once.Do(func() {
		registry.MustRegister(
			HTTPLatency,
			Authorizations,
			Logins,
			Decisions,
			Callbacks,
			Routes,
			Initiations,
			Outcomes,
		)
	})
}

// Handler serves the /metrics endpoint.
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
