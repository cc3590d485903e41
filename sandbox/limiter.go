package sandbox

// LimitReport records whether resource limits were actually applied to a
// worker. Platforms without limit support degrade to an explicit report
// rather than a silent no-op.
type LimitReport struct {
	// Enforced is true when every configured limit was applied.
	Enforced bool

	// Reason explains why limits were not (fully) enforced.
	Reason string
}

// ResourceLimiter applies resource limits to a started worker process.
// The platform-specific implementation is selected at build time;
// PlatformLimiter returns it.
type ResourceLimiter interface {
	// Apply applies limits to the process identified by pid and reports
	// what was enforced. Apply must not fail the execution: problems are
	// carried in the report.
	Apply(pid int, limits ResourceLimits) LimitReport
}
