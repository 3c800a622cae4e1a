// Package metrics holds the Prometheus collectors of the token lifecycle.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tokenkeeper"

// Sweeper run results.
const (
	SweepOK      = "ok"
	SweepError   = "error"
	SweepSkipped = "skipped"
)

type Metrics struct {
	registry *prometheus.Registry

	validations    *prometheus.CounterVec
	tokensIssued   prometheus.Counter
	sweeperRuns    *prometheus.CounterVec
	sweeperRevoked prometheus.Counter
}

// New registers the collectors on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		validations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_validations_total",
			Help:      "Refresh token validations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		tokensIssued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Refresh tokens issued.",
		}),
		sweeperRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeper_runs_total",
			Help:      "Sweeper cycles by result.",
		}, []string{"result"}),
		sweeperRevoked: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeper_revoked_total",
			Help:      "Expired refresh tokens deactivated by the sweeper.",
		}),
	}
}

// Validation counts one pipeline outcome ("ok" or an error kind).
func (m *Metrics) Validation(operation, outcome string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) TokenIssued() {
	if m == nil {
		return
	}
	m.tokensIssued.Inc()
}

// SweepRun counts a sweeper cycle and the rows it deactivated.
func (m *Metrics) SweepRun(result string, revoked int64) {
	if m == nil {
		return
	}
	m.sweeperRuns.WithLabelValues(result).Inc()
	if revoked > 0 {
		m.sweeperRevoked.Add(float64(revoked))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
