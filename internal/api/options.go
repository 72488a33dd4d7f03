package api

import "github.com/domushq/domus/internal/monitoring"

// Option customises router construction.
type Option func(*routerOptions)

type routerOptions struct {
	readiness []monitoring.Check
}

// WithReadinessChecks adds probes to the readiness endpoint alongside the
// database and role table probes that are always registered.
func WithReadinessChecks(checks ...monitoring.Check) Option {
	return func(o *routerOptions) {
		o.readiness = append(o.readiness, checks...)
	}
}
