package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records counters for the checkout and reconciliation paths.
type CheckoutMetrics struct {
	ordersPlaced     *prometheus.CounterVec
	checkoutDuration *prometheus.HistogramVec
	callbacks        *prometheus.CounterVec
	ledgerPostings   *prometheus.CounterVec
	postingFailures  prometheus.Counter
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	ordersPlaced := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Orders persisted, labeled by payment method.",
	}, []string{"method"})
	checkoutDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Duration of checkout requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
	callbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_callbacks_total",
		Help: "Payment gateway callbacks, labeled by verification outcome.",
	}, []string{"outcome"})
	ledgerPostings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_postings_total",
		Help: "Ledger entries written, labeled by category.",
	}, []string{"category"})
	postingFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_posting_failures_total",
		Help: "Ledger postings that failed after the order was committed.",
	})
	reg.MustRegister(ordersPlaced, checkoutDuration, callbacks, ledgerPostings, postingFailures)
	return &CheckoutMetrics{
		ordersPlaced:     ordersPlaced,
		checkoutDuration: checkoutDuration,
		callbacks:        callbacks,
		ledgerPostings:   ledgerPostings,
		postingFailures:  postingFailures,
	}
}

// IncOrderPlaced increments the placed-order counter for the payment method.
func (m *CheckoutMetrics) IncOrderPlaced(method string) {
	if m == nil || m.ordersPlaced == nil {
		return
	}
	m.ordersPlaced.WithLabelValues(normalizeLabel(method)).Inc()
}

// ObserveCheckoutDuration records how long a checkout request took.
func (m *CheckoutMetrics) ObserveCheckoutDuration(method string, duration time.Duration) {
	if m == nil || m.checkoutDuration == nil {
		return
	}
	m.checkoutDuration.WithLabelValues(normalizeLabel(method)).Observe(duration.Seconds())
}

// IncCallback increments the callback counter for the given outcome.
func (m *CheckoutMetrics) IncCallback(outcome string) {
	if m == nil || m.callbacks == nil {
		return
	}
	m.callbacks.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncLedgerPosting increments the posting counter for the given category.
func (m *CheckoutMetrics) IncLedgerPosting(category string) {
	if m == nil || m.ledgerPostings == nil {
		return
	}
	m.ledgerPostings.WithLabelValues(normalizeLabel(category)).Inc()
}

// IncPostingFailure increments the post-commit posting failure counter.
func (m *CheckoutMetrics) IncPostingFailure() {
	if m == nil || m.postingFailures == nil {
		return
	}
	m.postingFailures.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
