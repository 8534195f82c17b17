package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the access-control and encryption counters.
type Metrics struct {
	AuthzDecisions    *prometheus.CounterVec
	DecryptFailures   *prometheus.CounterVec
	RevocationLookups *prometheus.CounterVec
	AuthFailures      *prometheus.CounterVec
	AssignmentChanges *prometheus.CounterVec
	JobRuns           *prometheus.CounterVec
	JobRowsAffected   *prometheus.CounterVec
}

// New creates metrics under namespace and registers them with reg.
// A nil reg leaves them unregistered, which suits tests.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthzDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authz_decisions_total",
			Help:      "Policy decisions by resource, operation and outcome",
		}, []string{"resource", "operation", "outcome"}),
		DecryptFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_decrypt_failures_total",
			Help:      "Records whose stored payload could not be decrypted",
		}, []string{"operation"}),
		RevocationLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revocation_lookups_total",
			Help:      "Revocation checks by source and result",
		}, []string{"source", "result"}),
		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected credentials by reason",
		}, []string{"reason"}),
		AssignmentChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignment_changes_total",
			Help:      "Nurse assignment transitions",
		}, []string{"action"}),
		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_job_runs_total",
			Help:      "Background job runs by job and status",
		}, []string{"job", "status"}),
		JobRowsAffected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_job_rows_total",
			Help:      "Rows removed by background jobs",
		}, []string{"job"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.AuthzDecisions,
			m.DecryptFailures,
			m.RevocationLookups,
			m.AuthFailures,
			m.AssignmentChanges,
			m.JobRuns,
			m.JobRowsAffected,
		)
	}
	return m
}

// NewNop returns unregistered metrics.
func NewNop() *Metrics {
	return New("test", nil)
}
