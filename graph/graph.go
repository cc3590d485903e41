package graph

import "sort"

// Builder accumulates tool nodes and their declared dependencies in
// registration order. It is not safe for concurrent use; callers serialize
// access (the registry rebuilds under its write lock).
type Builder struct {
	order []string
	deps  map[string][]string
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{deps: make(map[string][]string)}
}

// Add inserts a node for name with one edge per declared dependency.
// Adding an existing name replaces its dependency set but keeps its
// original registration position. Duplicate dependency names are dropped.
func (b *Builder) Add(name string, required []string) {
	if _, exists := b.deps[name]; !exists {
		b.order = append(b.order, name)
	}

	seen := make(map[string]bool, len(required))
	deduped := make([]string, 0, len(required))
	for _, dep := range required {
		if seen[dep] {
			continue
		}
		seen[dep] = true
		deduped = append(deduped, dep)
	}
	b.deps[name] = deduped
}

// Remove deletes a node and its outgoing edges. Edges from other nodes
// pointing at name become dangling and surface through Validate.
func (b *Builder) Remove(name string) {
	if _, exists := b.deps[name]; !exists {
		return
	}
	delete(b.deps, name)
	for i, n := range b.order {
		if n == name {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// DFS colors for cycle detection.
const (
	white = iota // unvisited
	gray         // on the current DFS path
	black        // fully explored
)

// Build validates the accumulated relation and returns an immutable Graph.
// It fails with a *CycleError if any dependency cycle exists, including
// self-dependency; a graph containing a cycle is never returned.
func (b *Builder) Build() (*Graph, error) {
	color := make(map[string]int, len(b.order))

	// Three-color DFS; path tracks the gray chain so the cycle can be
	// reported in declaration order.
	var path []string
	var visit func(name string) *CycleError
	visit = func(name string) *CycleError {
		color[name] = gray
		path = append(path, name)
		for _, dep := range b.deps[name] {
			if _, exists := b.deps[dep]; !exists {
				// Dangling dependency: not a registered node, so it has no
				// outgoing edges and cannot close a cycle.
				continue
			}
			switch color[dep] {
			case gray:
				// Close the cycle on the repeated node.
				start := 0
				for i, n := range path {
					if n == dep {
						start = i
						break
					}
				}
				cycle := append(append([]string(nil), path[start:]...), dep)
				return &CycleError{Path: cycle}
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		path = path[:len(path)-1]
		color[name] = black
		return nil
	}

	for _, name := range b.order {
		if color[name] == white {
			if err := visit(name); err != nil {
				return nil, err
			}
		}
	}

	g := &Graph{
		order: append([]string(nil), b.order...),
		seq:   make(map[string]int, len(b.order)),
		deps:  make(map[string][]string, len(b.deps)),
	}
	for i, name := range b.order {
		g.seq[name] = i
		g.deps[name] = append([]string(nil), b.deps[name]...)
	}
	return g, nil
}

// Graph is an immutable snapshot of the dependency relation. All methods
// are safe for concurrent use.
type Graph struct {
	order []string
	seq   map[string]int
	deps  map[string][]string
}

// Empty returns a Graph with no nodes.
func Empty() *Graph {
	return &Graph{seq: map[string]int{}, deps: map[string][]string{}}
}

// Has reports whether name is a node in the graph.
func (g *Graph) Has(name string) bool {
	_, ok := g.seq[name]
	return ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.order)
}

// Names returns all node names in registration order.
func (g *Graph) Names() []string {
	return append([]string(nil), g.order...)
}

// Dependencies returns the immediate declared dependency set for name,
// not the transitive closure. Unknown names yield nil.
func (g *Graph) Dependencies(name string) []string {
	deps, ok := g.deps[name]
	if !ok || len(deps) == 0 {
		return nil
	}
	return append([]string(nil), deps...)
}

// TopoOrder returns an execution order in which, for every declared edge
// "A requires B", B precedes A. Ties are broken by registration order, so
// the result is stable and deterministic. Build guarantees acyclicity, so
// an order always exists. Dangling dependencies are ignored.
func (g *Graph) TopoOrder() []string {
	indegree := make(map[string]int, len(g.order))
	dependents := make(map[string][]string, len(g.order))
	for _, name := range g.order {
		for _, dep := range g.deps[name] {
			if !g.Has(dep) {
				continue
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	ready := make([]string, 0, len(g.order))
	for _, name := range g.order {
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}

	out := make([]string, 0, len(g.order))
	for len(ready) > 0 {
		// Pick the ready node registered earliest. Linear scan keeps the
		// tie-break rule obvious; registries are small.
		min := 0
		for i := 1; i < len(ready); i++ {
			if g.seq[ready[i]] < g.seq[ready[min]] {
				min = i
			}
		}
		name := ready[min]
		ready = append(ready[:min], ready[min+1:]...)
		out = append(out, name)

		for _, dependent := range dependents[name] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}
	return out
}

// Validate walks the transitive closure of name's declared dependencies
// and reports whether every transitively-required name satisfies exists.
// Missing names are returned sorted. A name that is not a node validates
// trivially: it declares nothing.
func (g *Graph) Validate(name string, exists func(string) bool) (bool, []string) {
	if !g.Has(name) {
		return true, nil
	}

	visited := map[string]bool{name: true}
	missing := make(map[string]bool)
	queue := append([]string(nil), g.deps[name]...)
	for len(queue) > 0 {
		dep := queue[0]
		queue = queue[1:]
		if visited[dep] {
			continue
		}
		visited[dep] = true

		if !exists(dep) {
			missing[dep] = true
			// Unknown tools declare nothing we can walk into.
			continue
		}
		queue = append(queue, g.deps[dep]...)
	}

	if len(missing) == 0 {
		return true, nil
	}
	out := make([]string, 0, len(missing))
	for dep := range missing {
		out = append(out, dep)
	}
	sort.Strings(out)
	return false, out
}
