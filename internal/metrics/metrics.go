// Package metrics expone los contadores Prometheus del subsistema de auth.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics agrupa los contadores del flujo de autenticación.
type Metrics struct {
	registry *prometheus.Registry

	LoginsStarted   *prometheus.CounterVec // provider
	LoginsCompleted *prometheus.CounterVec // provider, outcome
	Refreshes       *prometheus.CounterVec // outcome
	SessionsRevoked prometheus.Counter
}

// New registra los contadores en un registry propio.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		LoginsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coldreach",
			Subsystem: "auth",
			Name:      "logins_started_total",
			Help:      "Login attempts initiated, by provider.",
		}, []string{"provider"}),
		LoginsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coldreach",
			Subsystem: "auth",
			Name:      "logins_completed_total",
			Help:      "Login callbacks processed, by provider and outcome.",
		}, []string{"provider", "outcome"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coldreach",
			Subsystem: "auth",
			Name:      "refreshes_total",
			Help:      "Refresh token rotations, by outcome.",
		}, []string{"outcome"}),
		SessionsRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coldreach",
			Subsystem: "auth",
			Name:      "sessions_revoked_total",
			Help:      "Sessions revoked by logout and logout-all.",
		}),
	}

	reg.MustRegister(m.LoginsStarted, m.LoginsCompleted, m.Refreshes, m.SessionsRevoked)
	reg.MustRegister(prometheus.NewGoCollector())
	return m
}

// Handler sirve /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
