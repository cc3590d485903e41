package graph

import (
	"errors"
	"strings"
)

// ErrCircularDependency indicates that the declared "requires" relation
// contains a cycle, including self-dependency.
var ErrCircularDependency = errors.New("circular dependency detected")

// CycleError reports a dependency cycle found during Build.
// Path holds the cycle in declaration order, closed on the starting node
// (e.g., ["a", "b", "a"]).
type CycleError struct {
	// Path is the sequence of tool names forming the cycle.
	Path []string
}

// Error returns the cycle formatted as "a -> b -> a".
func (e *CycleError) Error() string {
	return "circular dependency detected: " + strings.Join(e.Path, " -> ")
}

// Is reports whether this error matches ErrCircularDependency, allowing
// sentinel-style checks with errors.Is.
func (e *CycleError) Is(target error) bool {
	return target == ErrCircularDependency
}
