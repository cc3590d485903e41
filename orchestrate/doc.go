// Package orchestrate is the single public entry point for resilient tool
// execution.
//
// An Orchestrator wires the registry's dependency graph, the sandboxed
// executor, the failure classifier, and the fallback planner into one
// operation: Execute looks a tool up, validates its transitive
// dependencies, runs it in the sandbox, and on failure classifies the
// error and loops through planned fallback attempts until success or
// budget exhaustion. Missing dependencies and security violations are
// terminal immediately and consume no budget.
//
// Mutable retry state lives in a Session, never in package-level
// variables. Independent tasks use independent sessions, or call Reset at
// task boundaries; sessions sharing a (tool, action) key share its
// attempt budget.
//
// # Basic Usage
//
//	reg := registry.New(registry.Options{})
//	reg.Add(descriptor)
//
//	orch, err := orchestrate.New(orchestrate.Options{Registry: reg})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	res, err := orch.Execute(ctx, "fetch", map[string]any{"url": u})
//	if res.Success {
//		fmt.Println(res.Output)
//	}
package orchestrate
