// Package metrics holds the Prometheus counters for the session subsystem.
//
// A nil *Metrics is valid and records nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "retail_session"

// Metrics groups the counters recorded by the session manager and request client.
type Metrics struct {
	SignIns    *prometheus.CounterVec
	SignOuts   *prometheus.CounterVec
	Refreshes  *prometheus.CounterVec
	AuthRetry  prometheus.Counter
	Restores   *prometheus.CounterVec
	StoreCheck *prometheus.CounterVec
}

// New creates the counters and registers them with reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SignIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sign_ins_total",
			Help:      "Sign-in attempts by role and outcome.",
		}, []string{"role", "outcome"}),
		SignOuts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sign_outs_total",
			Help:      "Sessions ended by reason.",
		}, []string{"reason"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Access token refresh calls by outcome.",
		}, []string{"outcome"}),
		AuthRetry: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unauthorized_retries_total",
			Help:      "Requests re-issued after a 401 and a successful refresh.",
		}),
		Restores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restores_total",
			Help:      "Cold start hydration attempts by outcome.",
		}, []string{"outcome"}),
		StoreCheck: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_assignment_checks_total",
			Help:      "Staff store assignment validations by outcome.",
		}, []string{"outcome"}),
	}

	if reg != nil {
		reg.MustRegister(m.SignIns, m.SignOuts, m.Refreshes, m.AuthRetry, m.Restores, m.StoreCheck)
	}
	return m
}

func (m *Metrics) SignIn(role, outcome string) {
	if m == nil {
		return
	}
	m.SignIns.WithLabelValues(role, outcome).Inc()
}

func (m *Metrics) SignOut(reason string) {
	if m == nil {
		return
	}
	m.SignOuts.WithLabelValues(reason).Inc()
}

func (m *Metrics) Refresh(outcome string) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.AuthRetry.Inc()
}

func (m *Metrics) Restore(outcome string) {
	if m == nil {
		return
	}
	m.Restores.WithLabelValues(outcome).Inc()
}

func (m *Metrics) StoreAssignment(outcome string) {
	if m == nil {
		return
	}
	m.StoreCheck.WithLabelValues(outcome).Inc()
}
