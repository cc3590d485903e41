// Package fallback plans recovery from classified execution failures.
//
// A Planner owns per-(tool, action) attempt budgets and an append-only
// error history. After each failure the caller records the error and asks
// for the next strategy: a deterministic table keyed by failure category
// and attempt number proposes retrying with adjusted parameters, backing
// off, substituting a simpler action, or substituting an overlapping tool
// as a last resort. Before a first attempt the planner can pre-tune
// parameters from aggregated history, so a tool that has been timing out
// starts its next invocation with a larger deadline.
//
// Planner state is shared across concurrent invocations that use the same
// (tool, action) key; callers needing isolation use distinct action keys
// or separate planners. Reset clears budgets and history at task
// boundaries.
//
// # Basic Usage
//
//	planner := fallback.NewPlanner(fallback.Options{})
//	planner.RecordError("fetch", "get", failure.Timeout, "timed out", params)
//	if planner.ShouldRetry("fetch", "get") {
//		attempt := planner.Attempts("fetch", "get")
//		s := planner.Strategy("fetch", "get", failure.Timeout, attempt, params)
//		// retry s.Tool / s.Action with s.Params after s.Delay
//	}
package fallback
