package resilience

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec
	breakerOpened      *prometheus.CounterVec
	metricsOnce        sync.Once
)

// MustRegisterMetrics registers breaker collectors on reg (the default
// registerer when nil). Later calls are no-ops.
func MustRegisterMetrics(namespace string, reg prometheus.Registerer) {
	metricsOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		breakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Current breaker state: 0=closed,1=open,2=half-open",
		}, []string{"target"})
		breakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transition_total",
			Help:      "Count of breaker state transitions",
		}, []string{"target", "from", "to"})
		breakerOpened = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_open_total",
			Help:      "Number of times a breaker opened",
		}, []string{"target"})
		breakerState = register(reg, breakerState)
		breakerTransitions = register(reg, breakerTransitions)
		breakerOpened = register(reg, breakerOpened)
	})
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func recordState(target string, s State) {
	if breakerState == nil {
		return
	}
	breakerState.WithLabelValues(target).Set(float64(s))
}

func recordTransition(target string, from, to State) {
	if breakerTransitions != nil {
		breakerTransitions.WithLabelValues(target, from.String(), to.String()).Inc()
	}
	if to == Open && breakerOpened != nil {
		breakerOpened.WithLabelValues(target).Inc()
	}
}
