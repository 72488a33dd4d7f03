package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by flow (login|refresh) and result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domus_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"flow", "result"},
	)

	// PermissionChecks counts middleware gate evaluations (allow|deny).
	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domus_permission_checks_total",
			Help: "Total number of permission and scope checks",
		},
		[]string{"gate", "result"},
	)

	// DelegationDecisions counts delegation validator outcomes by check (permission|scope|cap).
	DelegationDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domus_delegation_decisions_total",
			Help: "Total number of delegation subset decisions",
		},
		[]string{"check", "result"},
	)

	// RBACCache counts effective permission cache lookups (hit|miss).
	RBACCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domus_rbac_cache_lookups_total",
			Help: "Effective permission cache lookups",
		},
		[]string{"result"},
	)

	// ActiveSessions tracks refresh sessions that are neither expired nor revoked.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "domus_active_sessions",
			Help: "Number of active refresh sessions",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "domus_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
