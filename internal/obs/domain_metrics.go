package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CheckoutTotal counts checkout outcomes by payment method.
	CheckoutTotal *prometheus.CounterVec
	// DrawerTransitionsTotal counts drawer open/close transitions.
	DrawerTransitionsTotal *prometheus.CounterVec
	// DrawerDiscrepancyMinor records absolute closing discrepancies in minor units.
	DrawerDiscrepancyMinor prometheus.Histogram
	// EventsProcessedTotal counts worker event handling outcomes by topic.
	EventsProcessedTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of checkout outcomes by payment method.",
		}, []string{"method", "result"})
		DrawerTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drawer_transitions_total",
			Help:      "Count of drawer session state transitions.",
		}, []string{"transition"})
		DrawerDiscrepancyMinor = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "drawer_discrepancy_minor",
			Help:      "Absolute drawer closing discrepancy in minor currency units.",
			Buckets:   []float64{1, 10, 50, 100, 500, 1000, 5000, 10000, 50000},
		})
		EventsProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Count of domain events handled by the worker.",
		}, []string{"topic", "result"})

		mustRegisterCollector(reg, CheckoutTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CheckoutTotal = v
			}
		})
		mustRegisterCollector(reg, DrawerTransitionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				DrawerTransitionsTotal = v
			}
		})
		mustRegisterCollector(reg, DrawerDiscrepancyMinor, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				DrawerDiscrepancyMinor = v
			}
		})
		mustRegisterCollector(reg, EventsProcessedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				EventsProcessedTotal = v
			}
		})
	})
}

// RecordCheckout increments the checkout counter when domain metrics are registered.
func RecordCheckout(method, result string) {
	if CheckoutTotal != nil {
		CheckoutTotal.WithLabelValues(method, result).Inc()
	}
}

// RecordDrawerTransition increments the transition counter when domain metrics are registered.
func RecordDrawerTransition(transition string) {
	if DrawerTransitionsTotal != nil {
		DrawerTransitionsTotal.WithLabelValues(transition).Inc()
	}
}

// ObserveDiscrepancy records the absolute discrepancy of a closing.
func ObserveDiscrepancy(minor int64) {
	if DrawerDiscrepancyMinor == nil {
		return
	}
	if minor < 0 {
		minor = -minor
	}
	DrawerDiscrepancyMinor.Observe(float64(minor))
}

// RecordEventProcessed increments the worker outcome counter.
func RecordEventProcessed(topic, result string) {
	if EventsProcessedTotal != nil {
		EventsProcessedTotal.WithLabelValues(topic, result).Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
}
