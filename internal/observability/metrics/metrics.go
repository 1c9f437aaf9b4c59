package metrics

import "github.com/prometheus/client_golang/prometheus"

// WizardMetrics exposes counters/histograms for booking wizard flows.
type WizardMetrics struct {
	stepTransitions *prometheus.CounterVec
	slotFetches     *prometheus.CounterVec
	slotLatency     *prometheus.HistogramVec
	customerSearch  *prometheus.CounterVec
	submits         *prometheus.CounterVec
	activeWizards   prometheus.Gauge
}

func NewWizardMetrics(reg prometheus.Registerer) *WizardMetrics {
	m := &WizardMetrics{
		stepTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "velo",
			Subsystem: "wizard",
			Name:      "step_transitions_total",
			Help:      "Total wizard step transitions",
		}, []string{"from", "to"}),
		slotFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "velo",
			Subsystem: "wizard",
			Name:      "slot_fetches_total",
			Help:      "Total availability fetches by outcome",
		}, []string{"outcome"}),
		slotLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "velo",
			Subsystem: "wizard",
			Name:      "slot_fetch_latency_seconds",
			Help:      "Latency of availability fetches",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		customerSearch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "velo",
			Subsystem: "wizard",
			Name:      "customer_searches_total",
			Help:      "Total admin customer searches by outcome",
		}, []string{"outcome"}),
		submits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "velo",
			Subsystem: "wizard",
			Name:      "booking_submits_total",
			Help:      "Total booking submissions by outcome",
		}, []string{"outcome"}),
		activeWizards: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "velo",
			Subsystem: "wizard",
			Name:      "active",
			Help:      "Wizards currently held in memory",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.stepTransitions, m.slotFetches, m.slotLatency, m.customerSearch, m.submits, m.activeWizards)
	return m
}

func (m *WizardMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.stepTransitions.WithLabelValues(from, to).Inc()
}

// ObserveSlotFetch records an availability fetch. outcome is one of
// "applied", "stale" or "error".
func (m *WizardMetrics) ObserveSlotFetch(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.slotFetches.WithLabelValues(outcome).Inc()
	m.slotLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *WizardMetrics) ObserveCustomerSearch(outcome string) {
	if m == nil {
		return
	}
	m.customerSearch.WithLabelValues(outcome).Inc()
}

func (m *WizardMetrics) ObserveSubmit(outcome string) {
	if m == nil {
		return
	}
	m.submits.WithLabelValues(outcome).Inc()
}

func (m *WizardMetrics) SetActiveWizards(n int) {
	if m == nil {
		return
	}
	m.activeWizards.Set(float64(n))
}
