package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess           = "success"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeInvalid           = "invalid"
	OutcomeError             = "error"
)

// Commerce records checkout outcomes, order transitions and stock conflicts.
// A nil *Commerce is valid and records nothing.
type Commerce struct {
	checkouts      *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	stockConflicts prometheus.Counter
}

// NewCommerce registers the commerce metrics on the provided registerer.
func NewCommerce(reg prometheus.Registerer) *Commerce {
	if reg == nil {
		return &Commerce{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_attempts_total",
		Help: "Checkout attempts by outcome.",
	}, []string{"outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Applied order status transitions.",
	}, []string{"from", "to"})
	stockConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stock_reservation_conflicts_total",
		Help: "Reservations rejected for insufficient stock.",
	})
	reg.MustRegister(checkouts, transitions, stockConflicts)
	return &Commerce{
		checkouts:      checkouts,
		transitions:    transitions,
		stockConflicts: stockConflicts,
	}
}

func (c *Commerce) IncCheckout(outcome string) {
	if c == nil || c.checkouts == nil {
		return
	}
	c.checkouts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (c *Commerce) IncTransition(from, to string) {
	if c == nil || c.transitions == nil {
		return
	}
	c.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

func (c *Commerce) IncStockConflict() {
	if c == nil || c.stockConflicts == nil {
		return
	}
	c.stockConflicts.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
