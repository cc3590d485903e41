package sandbox

import "errors"

// Sentinel errors for error classification.
var (
	// ErrSecurityViolation indicates the static pre-check rejected the
	// tool's logic before any worker was spawned. Never retried.
	ErrSecurityViolation = errors.New("sandbox security violation")

	// ErrConfiguration indicates an invalid executor or policy
	// configuration.
	ErrConfiguration = errors.New("sandbox configuration error")
)

// SecurityError reports why the static pre-check rejected the submitted
// logic.
type SecurityError struct {
	// Tool is the name of the rejected tool.
	Tool string

	// Reason describes the violation (disallowed import, denied call).
	Reason string
}

// Error returns the violation description.
func (e *SecurityError) Error() string {
	return "sandbox security violation: " + e.Tool + ": " + e.Reason
}

// Is reports whether this error matches ErrSecurityViolation, allowing
// sentinel-style checks with errors.Is.
func (e *SecurityError) Is(target error) bool {
	return target == ErrSecurityViolation
}
