package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/jonwraymond/tooldiscovery/index"
	"github.com/jonwraymond/tooldiscovery/search"
	"github.com/jonwraymond/tooldiscovery/tooldoc"
	"github.com/jonwraymond/toolfoundation/model"

	"github.com/nexorch/toolorch/graph"
)

// ErrNotRegistered is returned when an operation names an unknown tool.
var ErrNotRegistered = errors.New("registry: tool not registered")

// Options configures a Registry.
type Options struct {
	// NewIndex creates the discovery index backing Search and Namespaces.
	// The registry rebuilds the index on every mutation, so the factory is
	// called repeatedly. Defaults to an in-memory index with BM25 search.
	NewIndex func() index.Index
}

// applyDefaults sets default values for unset optional fields.
func (o *Options) applyDefaults() {
	if o.NewIndex == nil {
		o.NewIndex = func() index.Index {
			return index.NewInMemoryIndex(index.IndexOptions{
				Searcher: search.NewBM25Searcher(search.BM25Config{}),
			})
		}
	}
}

// Registry is the authoritative set of registered tools. Mutations rebuild
// the dependency graph and discovery index in full and publish both
// atomically; readers never observe a half-built state.
type Registry struct {
	newIndex func() index.Index

	mu          sync.RWMutex
	descriptors map[string]Descriptor
	order       []string

	snapshot atomic.Pointer[graph.Graph]
	idx      index.Index
	docs     tooldoc.Store
}

// New creates an empty Registry.
func New(opts Options) *Registry {
	opts.applyDefaults()
	r := &Registry{
		newIndex:    opts.NewIndex,
		descriptors: make(map[string]Descriptor),
	}
	r.snapshot.Store(graph.Empty())
	r.idx = opts.NewIndex()
	r.docs = tooldoc.NewInMemoryStore(tooldoc.StoreOptions{Index: r.idx})
	return r
}

// Add registers a descriptor, rebuilding the dependency graph and the
// discovery index. Registering an existing name replaces its descriptor.
// If the resulting graph would contain a cycle, Add fails and the previous
// registration state remains fully in effect.
func (r *Registry) Add(d Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	order := r.order
	if _, exists := r.descriptors[d.Name]; !exists {
		order = append(append([]string(nil), r.order...), d.Name)
	}

	next := make(map[string]Descriptor, len(r.descriptors)+1)
	for name, desc := range r.descriptors {
		next[name] = desc
	}
	next[d.Name] = d

	return r.commitLocked(next, order)
}

// Remove deletes a tool. Dependents that still declare the removed name
// keep their edges; they surface through ValidateDependencies as missing.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.descriptors[name]; !exists {
		return fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}

	next := make(map[string]Descriptor, len(r.descriptors)-1)
	for n, desc := range r.descriptors {
		if n != name {
			next[n] = desc
		}
	}
	order := make([]string, 0, len(r.order)-1)
	for _, n := range r.order {
		if n != name {
			order = append(order, n)
		}
	}

	return r.commitLocked(next, order)
}

// commitLocked rebuilds the graph and index for the proposed descriptor
// set and swaps both in only if every step succeeds. Callers hold mu.
func (r *Registry) commitLocked(next map[string]Descriptor, order []string) error {
	b := graph.NewBuilder()
	for _, name := range order {
		b.Add(name, next[name].RequiredTools)
	}
	g, err := b.Build()
	if err != nil {
		return err
	}

	idx := r.newIndex()
	for _, name := range order {
		d := next[name]
		if err := idx.RegisterTool(d.Tool(), model.NewLocalBackend(d.Name)); err != nil {
			return fmt.Errorf("registry: indexing %s: %w", d.Name, err)
		}
	}

	r.descriptors = next
	r.order = order
	r.idx = idx
	r.docs = tooldoc.NewInMemoryStore(tooldoc.StoreOptions{Index: idx})
	r.snapshot.Store(g)
	return nil
}

// Get returns the descriptor registered under name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[name]
	return d, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.descriptors)
}

// Names returns registered tool names sorted for deterministic output.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]string(nil), r.order...)
	sort.Strings(out)
	return out
}

// Graph returns the current dependency graph snapshot. The snapshot is
// immutable and safe to use while the registry mutates.
func (r *Registry) Graph() *graph.Graph {
	return r.snapshot.Load()
}

// ValidateDependencies walks the transitive closure of name's declared
// dependencies and reports whether every transitively-required tool is
// registered. Missing names are returned sorted.
func (r *Registry) ValidateDependencies(name string) (bool, []string) {
	g := r.snapshot.Load()
	return g.Validate(name, g.Has)
}

// ExecutionOrder returns a deterministic topological order over all
// registered tools: every tool follows the tools it requires.
func (r *Registry) ExecutionOrder() []string {
	return r.snapshot.Load().TopoOrder()
}

// Search finds registered tools matching the query via the discovery index.
func (r *Registry) Search(query string, limit int) ([]index.Summary, error) {
	r.mu.RLock()
	idx := r.idx
	r.mu.RUnlock()
	return idx.Search(query, limit)
}

// Namespaces lists the tool namespaces known to the discovery index.
func (r *Registry) Namespaces() ([]string, error) {
	r.mu.RLock()
	idx := r.idx
	r.mu.RUnlock()
	return idx.ListNamespaces()
}

// Docs returns the documentation store over the registered tools.
func (r *Registry) Docs() tooldoc.Store {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.docs
}
