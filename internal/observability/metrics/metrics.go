package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Auth metrics exposed on /metrics. Labels stay low-cardinality: methods are
// "password"/"federated", outcomes are the error taxonomy names.
var (
	SignIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_sign_ins_total",
		Help: "Sign-in attempts by method and outcome.",
	}, []string{"method", "outcome"})

	Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_registrations_total",
		Help: "Completed registrations by selected role.",
	}, []string{"role"})

	GuardDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_guard_denials_total",
		Help: "Route guard denials by redirect target.",
	}, []string{"target"})

	RoleResolutionSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "auth_role_resolution_seconds",
		Help:    "Latency of directory role resolution during sign-in.",
		Buckets: prometheus.DefBuckets,
	})
)
