package sandbox

import (
	"strings"
	"time"
)

// FaultKind is the executor's preliminary typing of a failed execution.
// The failure classifier refines recoverable faults into full categories.
type FaultKind string

const (
	// FaultNone marks a successful execution.
	FaultNone FaultKind = ""

	// FaultSyntax marks logic that could not be parsed or was rejected
	// by the target interpreter as malformed.
	FaultSyntax FaultKind = "syntax"

	// FaultTimeout marks an execution terminated at the wall-clock
	// deadline.
	FaultTimeout FaultKind = "timeout"

	// FaultRateLimit marks a failure whose message indicates throttling
	// or anti-access measures, detected heuristically.
	FaultRateLimit FaultKind = "rate_limit"

	// FaultRuntime marks any other execution failure.
	FaultRuntime FaultKind = "runtime"

	// FaultSecurity marks logic rejected by the static pre-check.
	FaultSecurity FaultKind = "security"
)

// Result is the typed outcome of one sandboxed execution. Output buffers
// are returned regardless of outcome; a timed-out execution still carries
// whatever partial output was captured.
type Result struct {
	// Success is true when the tool's logic completed without fault.
	Success bool

	// Output is the tool's structured return value: a handler's return,
	// or the __out value extracted from a worker's stdout.
	Output any

	// Stdout and Stderr are the captured output streams.
	Stdout string
	Stderr string

	// Error is the failure message, empty on success.
	Error string

	// Fault is the preliminary failure typing.
	Fault FaultKind

	// Limits reports whether resource limits were enforced on the
	// worker. Handler executions carry an explanatory degraded report.
	Limits LimitReport

	// Escalated is true when the executor retried once internally with a
	// doubled timeout before producing this result.
	Escalated bool

	// Duration is the wall-clock execution time.
	Duration time.Duration
}

// rateLimitTokens drive the heuristic message-content detection of
// throttling failures.
var rateLimitTokens = []string{
	"rate limit", "too many requests", "429", "throttl",
}

// faultFor types a failure message, defaulting to FaultRuntime.
func faultFor(message, stderr string) FaultKind {
	lower := strings.ToLower(message + " " + stderr)
	for _, tok := range rateLimitTokens {
		if strings.Contains(lower, tok) {
			return FaultRateLimit
		}
	}
	if strings.Contains(lower, "syntaxerror") || strings.Contains(lower, "syntax error") {
		return FaultSyntax
	}
	return FaultRuntime
}
