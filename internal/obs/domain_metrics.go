package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// OrdersPlacedTotal counts order placement attempts by outcome.
	OrdersPlacedTotal *prometheus.CounterVec
	// StockCompensationsTotal counts compensating stock increments issued
	// after a failed reservation pass.
	StockCompensationsTotal prometheus.Counter
	// CompensationFailuresTotal counts compensating increments that themselves
	// failed and were left to the log.
	CompensationFailuresTotal prometheus.Counter
	// PhotoCleanupTotal counts remote photo deletions by trigger and outcome.
	PhotoCleanupTotal *prometheus.CounterVec
	// ApplicationDecisionsTotal counts farmer application decisions.
	ApplicationDecisionsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		OrdersPlacedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_placed_total",
			Help:      "Count of order placement attempts by result.",
		}, []string{"result"})
		StockCompensationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_compensations_total",
			Help:      "Compensating stock increments issued during order rollback.",
		})
		CompensationFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_compensation_failures_total",
			Help:      "Compensating stock increments that failed.",
		})
		PhotoCleanupTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "photo_cleanup_total",
			Help:      "Remote photo deletions by trigger and result.",
		}, []string{"trigger", "result"})
		ApplicationDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "application_decisions_total",
			Help:      "Farmer application decisions by outcome.",
		}, []string{"decision"})

		mustRegisterCollector(reg, OrdersPlacedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OrdersPlacedTotal = v
			}
		})
		mustRegisterCollector(reg, StockCompensationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				StockCompensationsTotal = v
			}
		})
		mustRegisterCollector(reg, CompensationFailuresTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				CompensationFailuresTotal = v
			}
		})
		mustRegisterCollector(reg, PhotoCleanupTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PhotoCleanupTotal = v
			}
		})
		mustRegisterCollector(reg, ApplicationDecisionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ApplicationDecisionsTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
