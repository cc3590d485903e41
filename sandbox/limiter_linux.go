//go:build linux

package sandbox

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// PlatformLimiter returns the Linux limiter, which applies limits to the
// running worker via prlimit(2).
func PlatformLimiter() ResourceLimiter {
	return prlimitLimiter{}
}

type prlimitLimiter struct{}

// Apply sets CPU-time, address-space, file-size, and process-count limits
// on the worker. Individual failures degrade that limit and are recorded;
// the worker keeps running either way.
func (prlimitLimiter) Apply(pid int, limits ResourceLimits) LimitReport {
	type entry struct {
		name     string
		resource int
		value    uint64
	}

	var entries []entry
	if limits.CPUTime > 0 {
		secs := uint64(limits.CPUTime.Seconds())
		if secs == 0 {
			secs = 1
		}
		entries = append(entries, entry{"cpu", unix.RLIMIT_CPU, secs})
	}
	if limits.MemoryBytes > 0 {
		entries = append(entries, entry{"memory", unix.RLIMIT_AS, uint64(limits.MemoryBytes)})
	}
	if limits.FileSizeBytes > 0 {
		entries = append(entries, entry{"fsize", unix.RLIMIT_FSIZE, uint64(limits.FileSizeBytes)})
	}
	if limits.MaxProcesses > 0 {
		entries = append(entries, entry{"nproc", unix.RLIMIT_NPROC, uint64(limits.MaxProcesses)})
	}

	var failed []string
	for _, e := range entries {
		rlim := unix.Rlimit{Cur: e.value, Max: e.value}
		if err := unix.Prlimit(pid, e.resource, &rlim, nil); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", e.name, err))
		}
	}

	if len(failed) > 0 {
		return LimitReport{Enforced: false, Reason: "prlimit: " + strings.Join(failed, "; ")}
	}
	return LimitReport{Enforced: true}
}
