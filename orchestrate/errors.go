package orchestrate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nexorch/toolorch/failure"
)

// Sentinel errors for terminal orchestration failures.
var (
	// ErrDependencyMissing marks an invocation of a tool whose transitive
	// dependencies are not all registered. A configuration error, never
	// retried, consumes no attempt budget.
	ErrDependencyMissing = errors.New("dependency missing")

	// ErrFallbackExhausted marks an invocation whose attempt budget ran
	// out without a successful execution.
	ErrFallbackExhausted = errors.New("fallback exhausted")
)

// DependencyError reports which transitive dependencies of a tool are
// absent from the registry.
type DependencyError struct {
	Tool    string
	Missing []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("tool %q is missing dependencies: %s", e.Tool, strings.Join(e.Missing, ", "))
}

func (e *DependencyError) Is(target error) bool {
	return target == ErrDependencyMissing
}

// ExhaustedError carries the last concrete failure when the attempt
// budget runs out. The last error is always surfaced, never swallowed.
type ExhaustedError struct {
	Tool     string
	Action   string
	Category failure.Category
	Attempts int
	LastErr  string
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("tool %q action %q failed after %d attempts (%s): %s",
		e.Tool, e.Action, e.Attempts, e.Category, e.LastErr)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrFallbackExhausted
}
