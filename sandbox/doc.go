// Package sandbox executes a single tool invocation with bounded resources
// and a restricted capability surface. It never crashes the caller and
// always produces a typed result.
//
// Script and command tools pass a static pre-check before any worker is
// spawned: imports are matched against the policy allow-list, and
// dynamic-evaluation or process-spawning primitives are rejected outright.
// The check is allow-list/deny-list static analysis, not taint tracking;
// it cannot catch every escape and is a hardening layer, not a complete
// security boundary.
//
// Execution happens in a worker process supervised against a wall-clock
// deadline. On Linux the worker gets CPU, memory, file-size, and process
// limits applied via prlimit; on other platforms limits degrade to a
// recorded no-op, and the result states whether limits were enforced.
// On deadline expiry the worker's process group is terminated, then killed
// after a grace period; cancelling the calling context does the same, so
// no worker outlives its caller.
//
// Native handler tools run in a supervised goroutine with panic capture
// and the same deadline discipline; their output is captured through
// [Print] on the call context.
//
// # Basic Usage
//
//	exec, err := sandbox.NewExecutor(sandbox.Config{
//	    Policy: sandbox.DefaultPolicy(),
//	})
//
//	res, err := exec.Execute(ctx, sandbox.Request{
//	    Tool:    descriptor,
//	    Params:  map[string]any{"url": "https://example.com"},
//	    Timeout: 5 * time.Second,
//	})
package sandbox
