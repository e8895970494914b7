package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jengabiz_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jengabiz_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	invitesIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jengabiz_invites_issued_total",
		Help: "Count of invite codes issued by account type",
	}, []string{"account_type"})

	inviteConsumptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jengabiz_invite_consumptions_total",
		Help: "Count of invite consumption attempts by result",
	}, []string{"result"})

	signups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jengabiz_signups_total",
		Help: "Count of signup attempts by result",
	}, []string{"result"})

	signupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "jengabiz_signup_duration_seconds",
		Help:    "Duration of the signup saga including compensation",
		Buckets: prometheus.DefBuckets,
	})

	compensations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jengabiz_signup_compensations_total",
		Help: "Count of identity compensation outcomes",
	}, []string{"result"})

	orphanedIdentities = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jengabiz_orphaned_identities",
		Help: "Identities awaiting deletion after exhausted compensation",
	})

	impersonationSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jengabiz_impersonation_sessions_total",
		Help: "Count of impersonation session actions",
	}, []string{"action"})

	subscriptionAssignments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jengabiz_subscription_assignments_total",
		Help: "Count of subscription auto-assignment outcomes",
	}, []string{"result"})

	sweepOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jengabiz_sweep_operations_total",
		Help: "Rows touched by the background sweeper by task and result",
	}, []string{"task", "result"})

	identityCircuitState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jengabiz_identity_circuit_state",
		Help: "Identity provider circuit breaker state (0 closed, 1 open, 2 half-open)",
	})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func ObserveInviteIssued(accountType string) {
	invitesIssued.WithLabelValues(accountType).Inc()
}

// ObserveInviteConsumption records consumed, invalid or error.
func ObserveInviteConsumption(result string) {
	inviteConsumptions.WithLabelValues(result).Inc()
}

// ObserveSignup records the outcome and duration of a signup saga.
func ObserveSignup(result string, duration time.Duration) {
	signups.WithLabelValues(result).Inc()
	signupDuration.Observe(duration.Seconds())
}

// ObserveCompensation records deleted or exhausted.
func ObserveCompensation(result string) {
	compensations.WithLabelValues(result).Inc()
}

// SetOrphanedIdentities sets the orphan gauge to a specific count.
func SetOrphanedIdentities(count int) {
	if count < 0 {
		count = 0
	}
	orphanedIdentities.Set(float64(count))
}

func ObserveImpersonation(action string) {
	impersonationSessions.WithLabelValues(action).Inc()
}

// ObserveSubscriptionAssignment records assigned, already_active, no_plan or error.
func ObserveSubscriptionAssignment(result string) {
	subscriptionAssignments.WithLabelValues(result).Inc()
}

// ObserveSweep adds count rows for a sweeper task.
func ObserveSweep(task, result string, count int64) {
	sweepOperations.WithLabelValues(task, result).Add(float64(count))
}

func SetIdentityCircuitState(state int) {
	identityCircuitState.Set(float64(state))
}
