// ABOUTME: Prometheus counters for logins, credential upgrades, token checks and background jobs
// ABOUTME: All methods are nil-safe so components can run without a registry in tests

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "aicaller"

// Metrics holds the gateway's Prometheus collectors.
// A nil *Metrics records nothing.
type Metrics struct {
	logins        *prometheus.CounterVec
	upgrades      *prometheus.CounterVec
	tokenChecks   *prometheus.CounterVec
	jobs          *prometheus.CounterVec
	loginDuration *prometheus.HistogramVec
}

// New registers the collectors with reg. Pass prometheus.NewRegistry() in
// tests to avoid clashing with the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by route and outcome",
		}, []string{"route", "outcome"}),

		upgrades: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "credential_upgrades_total",
			Help:      "Legacy plaintext credential upgrades by outcome",
		}, []string{"outcome"}),

		tokenChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "token_checks_total",
			Help:      "Session token validations by outcome",
		}, []string{"outcome"}),

		jobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "background",
			Name:      "jobs_total",
			Help:      "Background jobs by name and final outcome",
		}, []string{"job", "outcome"}),

		loginDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "login_duration_seconds",
			Help:      "Time spent answering a login request",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"route"}),
	}
}

// LoginAttempt counts a login on route ("login", "client_admin", "client_user")
// with outcome ("success", "invalid", "error").
func (m *Metrics) LoginAttempt(route, outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(route, outcome).Inc()
}

// ObserveLogin records how long a login request took.
func (m *Metrics) ObserveLogin(route string, seconds float64) {
	if m == nil {
		return
	}
	m.loginDuration.WithLabelValues(route).Observe(seconds)
}

// CredentialUpgrade counts an upgrade outcome ("upgraded", "skipped", "failed").
func (m *Metrics) CredentialUpgrade(outcome string) {
	if m == nil {
		return
	}
	m.upgrades.WithLabelValues(outcome).Inc()
}

// TokenCheck counts a token validation outcome ("valid", "expired", "malformed", "missing").
func (m *Metrics) TokenCheck(outcome string) {
	if m == nil {
		return
	}
	m.tokenChecks.WithLabelValues(outcome).Inc()
}

// JobDone matches background.Config.OnDone.
func (m *Metrics) JobDone(job, outcome string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(job, outcome).Inc()
}
