package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "kubedit"

// Metrics holds the reconciliation collectors. A nil *Metrics records nothing.
type Metrics struct {
	verdicts   *prometheus.CounterVec
	pushes     *prometheus.CounterVec
	reloads    prometheus.Counter
	watchState *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg when it is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "verdicts_total",
			Help:      "Reconciliation decisions by verdict.",
		}, []string{"verdict"}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "pushes_total",
			Help:      "Push attempts by result.",
		}, []string{"result"}),
		reloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "reloads_total",
			Help:      "Documents replaced with the cluster copy.",
		}),
		watchState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "state",
			Help:      "1 for the current change stream state of each document, 0 otherwise.",
		}, []string{"document", "state"}),
	}
	if reg != nil {
		reg.MustRegister(m.verdicts, m.pushes, m.reloads, m.watchState)
	}
	return m
}

func (m *Metrics) ObserveVerdict(verdict string) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(verdict).Inc()
}

// ObservePush records a push result: "success", "conflict" or "error".
func (m *Metrics) ObservePush(result string) {
	if m == nil {
		return
	}
	m.pushes.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveReload() {
	if m == nil {
		return
	}
	m.reloads.Inc()
}

// SetWatchState marks state as the current one for document among states.
func (m *Metrics) SetWatchState(document, state string, states []string) {
	if m == nil {
		return
	}
	for _, s := range states {
		value := 0.0
		if s == state {
			value = 1
		}
		m.watchState.WithLabelValues(document, s).Set(value)
	}
}

// Forget drops the per-document series.
func (m *Metrics) Forget(document string) {
	if m == nil {
		return
	}
	m.watchState.DeletePartialMatch(prometheus.Labels{"document": document})
}
