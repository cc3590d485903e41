// Package registry manages the set of registered tools and the dependency
// relation between them.
//
// Each tool is described by a [Descriptor]: a unique name, the names of the
// tools it requires, the variant of logic it carries (handler function,
// script, or command), and MCP-compatible capability metadata. Descriptors
// are immutable once registered; re-registering a name replaces its
// descriptor wholesale.
//
// The registry rebuilds the dependency graph in full on every Add and
// Remove and publishes it with an atomic snapshot swap, so a concurrent
// reader always observes a complete, acyclic graph and never a partially
// rebuilt one. An Add that would introduce a cycle fails and leaves the
// previous snapshot in place.
//
// Registered tools are mirrored into a tooldiscovery index, giving the
// surrounding framework BM25 search and namespace listing over the same
// descriptor set used for execution.
//
// # Basic Usage
//
//	reg := registry.New(registry.Options{})
//
//	err := reg.Add(registry.Descriptor{
//	    Name:          "fetch",
//	    RequiredTools: []string{"cache"},
//	    Kind:          registry.KindHandler,
//	    Handler: func(ctx context.Context, params map[string]any) (any, error) {
//	        return "fetched", nil
//	    },
//	})
//
//	ok, missing := reg.ValidateDependencies("fetch") // false, ["cache"]
//	order := reg.ExecutionOrder()
package registry
