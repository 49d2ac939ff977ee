package ledger

import "github.com/prometheus/client_golang/prometheus"

// UpdaterMetrics exposes Prometheus collectors for the balance updater.
type UpdaterMetrics struct {
	updates *prometheus.CounterVec
}

// NewUpdaterMetrics registers the updater metrics against the provided
// registerer. When nil, the default Prometheus registerer is used.
func NewUpdaterMetrics(registerer prometheus.Registerer) *UpdaterMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	updates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meritum_balance_updates_total",
		Help: "Balance update reactions partitioned by result and reason.",
	}, []string{"result", "reason"})
	registerer.MustRegister(updates)
	return &UpdaterMetrics{updates: updates}
}

func (m *UpdaterMetrics) observe(result, reason string) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(result, reason).Inc()
}
