package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	AccountsRegistered prometheus.Counter
	Logins             prometheus.Counter
	TokenRequests      prometheus.Counter
	AuthFailures       prometheus.Counter
	CodesIssued        *prometheus.CounterVec
	RateLimited        *prometheus.CounterVec
	RoleApplications   *prometheus.CounterVec
	EndpointLatency    *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		AccountsRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "eduid_accounts_registered_total",
			Help: "Total number of accounts registered",
		}),
		Logins: promauto.NewCounter(prometheus.CounterOpts{
			Name: "eduid_logins_total",
			Help: "Total number of successful logins",
		}),
		TokenRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "eduid_token_requests_total",
			Help: "Total number of token issue and refresh requests",
		}),
		AuthFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "eduid_auth_failures_total",
			Help: "Total number of authentication failures",
		}),
		CodesIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "eduid_verification_codes_issued_total",
			Help: "Total number of verification codes issued, labeled by purpose",
		}, []string{"purpose"}),
		RateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "eduid_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter, labeled by kind",
		}, []string{"kind"}),
		RoleApplications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "eduid_role_applications_total",
			Help: "Total number of role application transitions, labeled by action",
		}, []string{"action"}),
		EndpointLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eduid_endpoint_latency_seconds",
			Help:    "Latency of endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}

// IncrementAccountsRegistered increments the account registration counter.
func (m *Metrics) IncrementAccountsRegistered() {
	m.AccountsRegistered.Inc()
}

// IncrementLogins increments the successful login counter.
func (m *Metrics) IncrementLogins() {
	m.Logins.Inc()
}

// IncrementTokenRequests increments the token request counter.
func (m *Metrics) IncrementTokenRequests() {
	m.TokenRequests.Inc()
}

// IncrementAuthFailures increments the authentication failure counter.
func (m *Metrics) IncrementAuthFailures() {
	m.AuthFailures.Inc()
}

// IncrementCodesIssued increments the issued code counter for a purpose.
func (m *Metrics) IncrementCodesIssued(purpose string) {
	m.CodesIssued.WithLabelValues(purpose).Inc()
}

// IncrementRateLimited increments the rate limited counter for a key kind.
func (m *Metrics) IncrementRateLimited(kind string) {
	m.RateLimited.WithLabelValues(kind).Inc()
}

// IncrementRoleApplications increments the role application counter for an action.
func (m *Metrics) IncrementRoleApplications(action string) {
	m.RoleApplications.WithLabelValues(action).Inc()
}
