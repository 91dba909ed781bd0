package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bookingTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_transitions_total",
		Help: "Committed booking status transitions",
	}, []string{"from", "to"})

	paymentVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_verifications_total",
		Help: "Payment verification outcomes",
	}, []string{"outcome"})

	keyCodeRedemptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "key_code_redemptions_total",
		Help: "Handover code redemption outcomes",
	}, []string{"outcome"})

	gatewayCallDuration = promauto.NewSummaryVec(prometheus.SummaryOpts{
		Name:       "payment_gateway_call_duration_seconds",
		Help:       "Latency of payment gateway calls",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, []string{"operation"})
)

func Transition(from, to string) {
	bookingTransitionsTotal.WithLabelValues(from, to).Inc()
}

func Verification(outcome string) {
	paymentVerificationsTotal.WithLabelValues(outcome).Inc()
}

func Redemption(outcome string) {
	keyCodeRedemptionsTotal.WithLabelValues(outcome).Inc()
}

func GatewayCall(operation string, seconds float64) {
	gatewayCallDuration.WithLabelValues(operation).Observe(seconds)
}
