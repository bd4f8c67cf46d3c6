package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MarketplaceMetrics aggregates the counters emitted by the rental, escrow
// and yield engines.
type MarketplaceMetrics struct {
	rentalsBooked    prometheus.Counter
	rentalsCancelled prometheus.Counter
	rentalsSettled   *prometheus.CounterVec
	escrowsFunded    prometheus.Counter
	disputesOpened   *prometheus.CounterVec
	disputesResolved *prometheus.CounterVec
	claimsPaid       *prometheus.CounterVec
	yieldCollected   *prometheus.CounterVec
}

var (
	marketplaceOnce     sync.Once
	marketplaceRegistry *MarketplaceMetrics
)

// Marketplace returns the process-wide marketplace metrics, registering them
// on first use.
func Marketplace() *MarketplaceMetrics {
	marketplaceOnce.Do(func() {
		marketplaceRegistry = &MarketplaceMetrics{
			rentalsBooked: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "marketplace_rentals_booked_total",
				Help: "Count of rental agreements created by booking.",
			}),
			rentalsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "marketplace_rentals_cancelled_total",
				Help: "Count of rental agreements cancelled before activation.",
			}),
			rentalsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "marketplace_rentals_settled_total",
				Help: "Count of rentals reaching a terminal state by outcome.",
			}, []string{"outcome"}),
			escrowsFunded: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "marketplace_escrows_funded_total",
				Help: "Count of escrows reaching the funded state.",
			}),
			disputesOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "marketplace_disputes_opened_total",
				Help: "Count of disputes opened by type.",
			}, []string{"type"}),
			disputesResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "marketplace_disputes_resolved_total",
				Help: "Count of disputes resolved by outcome.",
			}, []string{"outcome"}),
			claimsPaid: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "marketplace_claims_paid_total",
				Help: "Count of escrow claims paid out by party.",
			}, []string{"party"}),
			yieldCollected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "marketplace_yield_collected_total",
				Help: "Count of yield collections by strategy tier.",
			}, []string{"tier"}),
		}
		prometheus.MustRegister(
			marketplaceRegistry.rentalsBooked,
			marketplaceRegistry.rentalsCancelled,
			marketplaceRegistry.rentalsSettled,
			marketplaceRegistry.escrowsFunded,
			marketplaceRegistry.disputesOpened,
			marketplaceRegistry.disputesResolved,
			marketplaceRegistry.claimsPaid,
			marketplaceRegistry.yieldCollected,
		)
	})
	return marketplaceRegistry
}

func (m *MarketplaceMetrics) ObserveRentalBooked() {
	if m == nil {
		return
	}
	m.rentalsBooked.Inc()
}

func (m *MarketplaceMetrics) ObserveRentalCancelled() {
	if m == nil {
		return
	}
	m.rentalsCancelled.Inc()
}

func (m *MarketplaceMetrics) ObserveRentalSettled(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.rentalsSettled.WithLabelValues(outcome).Inc()
}

func (m *MarketplaceMetrics) ObserveEscrowFunded() {
	if m == nil {
		return
	}
	m.escrowsFunded.Inc()
}

func (m *MarketplaceMetrics) ObserveDisputeOpened(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.disputesOpened.WithLabelValues(kind).Inc()
}

func (m *MarketplaceMetrics) ObserveDisputeResolved(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.disputesResolved.WithLabelValues(outcome).Inc()
}

func (m *MarketplaceMetrics) ObserveClaimPaid(party string) {
	if m == nil {
		return
	}
	if party == "" {
		party = "unknown"
	}
	m.claimsPaid.WithLabelValues(party).Inc()
}

func (m *MarketplaceMetrics) ObserveYieldCollected(tier string) {
	if m == nil {
		return
	}
	if tier == "" {
		tier = "unknown"
	}
	m.yieldCollected.WithLabelValues(tier).Inc()
}
