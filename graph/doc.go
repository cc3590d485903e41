// Package graph models the "requires" relation between registered tools as
// a directed graph and provides the algorithms the registry builds on:
// cycle detection, deterministic topological ordering, and transitive
// dependency validation.
//
// A Builder accumulates nodes and edges in registration order; Build runs
// cycle detection and produces an immutable Graph. Graphs are value
// snapshots: once built they are never mutated, so they can be shared
// freely across goroutines.
//
// # Basic Usage
//
//	b := graph.NewBuilder()
//	b.Add("cache", nil)
//	b.Add("fetch", []string{"cache"})
//
//	g, err := b.Build()
//	if err != nil {
//	    var cycle *graph.CycleError
//	    if errors.As(err, &cycle) {
//	        fmt.Println("cycle:", cycle.Path)
//	    }
//	}
//
//	order := g.TopoOrder() // ["cache", "fetch"]
package graph
