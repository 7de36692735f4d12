// qr-payment-confirm/pkg/metrics/metrics.go
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Label "call" separates create and query so one dashboard covers both gateway endpoints
	GatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qrpay",
			Name:      "gateway_requests_total",
			Help:      "Total gateway calls by call and status",
		},
		[]string{"call", "status"},
	)

	GatewayRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "qrpay",
			Name:      "gateway_request_duration_seconds",
			Help:      "Gateway call latency by call and status",
			Buckets: []float64{
				0.01, 0.02, 0.03, 0.05, 0.08, 0.12,
				0.2, 0.3, 0.5, 0.8, 1.2, 2, 3, 5,
			},
		},
		[]string{"call", "status"},
	)

	SessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qrpay",
			Name:      "sessions_total",
			Help:      "Terminal session outcomes",
		},
		[]string{"outcome", "reason"},
	)

	FallbackQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qrpay",
			Name:      "fallback_queries_total",
			Help:      "Fallback status queries by trigger and result",
		},
		[]string{"trigger", "result"},
	)

	PushSignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qrpay",
			Name:      "push_signals_total",
			Help:      "Terminal signals delivered by push channels",
		},
		[]string{"signal"},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qrpay",
			Name:      "http_requests_total",
			Help:      "HTTP requests served per service",
		},
		[]string{"service", "status", "method"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "qrpay",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency per service",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		GatewayRequestsTotal, GatewayRequestDuration,
		SessionsTotal, FallbackQueriesTotal, PushSignalsTotal,
		HTTPRequestsTotal, HTTPRequestDuration,
	)
}

func ObserveGateway(call, status string, seconds float64) {
	GatewayRequestsTotal.WithLabelValues(call, status).Inc()
	GatewayRequestDuration.WithLabelValues(call, status).Observe(seconds)
}

func IncSession(outcome, reason string) {
	SessionsTotal.WithLabelValues(outcome, reason).Inc()
}

func IncFallback(trigger, result string) {
	FallbackQueriesTotal.WithLabelValues(trigger, result).Inc()
}

func IncPushSignal(signal string) {
	PushSignalsTotal.WithLabelValues(signal).Inc()
}

// Called from the sandbox metrics middleware
func IncRequest(service, status, method string) {
	HTTPRequestsTotal.WithLabelValues(service, status, method).Inc()
}
func ObserveDuration(service, status string, seconds float64) {
	HTTPRequestDuration.WithLabelValues(service, status).Observe(seconds)
}
