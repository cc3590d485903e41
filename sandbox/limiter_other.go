//go:build !linux

package sandbox

// PlatformLimiter returns the degraded limiter for platforms without
// post-start resource limit support. The wall-clock timeout still bounds
// every execution; the report makes the degradation visible.
func PlatformLimiter() ResourceLimiter {
	return noopLimiter{}
}

type noopLimiter struct{}

func (noopLimiter) Apply(pid int, limits ResourceLimits) LimitReport {
	if limits == (ResourceLimits{}) {
		return LimitReport{Enforced: true}
	}
	return LimitReport{
		Enforced: false,
		Reason:   "resource limits are not supported on this platform; only the wall-clock timeout applies",
	}
}
