package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts the engine's externally visible operations. One instance
// per process, registered on the given registerer.
type Metrics struct {
	CartMutations  *prometheus.CounterVec
	CheckoutSteps  *prometheus.CounterVec
	Payments       *prometheus.CounterVec
	OrderPlacement *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CartMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkout",
			Name:      "cart_mutations_total",
			Help:      "Cart mutations by operation and result.",
		}, []string{"op", "result"}),
		CheckoutSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkout",
			Name:      "step_transitions_total",
			Help:      "Checkout step commits by step and result.",
		}, []string{"step", "result"}),
		Payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkout",
			Name:      "payments_total",
			Help:      "Payment attempts by method and outcome.",
		}, []string{"method", "outcome"}),
		OrderPlacement: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "checkout",
			Name:      "order_placement_duration_ms",
			Help:      "Order placement latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"result"}),
	}
	reg.MustRegister(m.CartMutations, m.CheckoutSteps, m.Payments, m.OrderPlacement)
	return m
}

func Handler() http.Handler {
	return promhttp.Handler()
}
