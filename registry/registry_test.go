package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/nexorch/toolorch/graph"
)

// handlerDescriptor returns a minimal valid descriptor for testing.
func handlerDescriptor(name string, required ...string) Descriptor {
	return Descriptor{
		Name:          name,
		Description:   "test tool " + name,
		RequiredTools: required,
		Handler: func(ctx context.Context, params map[string]any) (any, error) {
			return name, nil
		},
	}
}

func TestAdd_AndGet(t *testing.T) {
	reg := New(Options{})

	if err := reg.Add(handlerDescriptor("cache")); err != nil {
		t.Fatalf("Add(cache) error = %v", err)
	}
	if err := reg.Add(handlerDescriptor("fetch", "cache")); err != nil {
		t.Fatalf("Add(fetch) error = %v", err)
	}

	d, ok := reg.Get("fetch")
	if !ok {
		t.Fatal("Get(fetch) ok = false")
	}
	if d.EffectiveKind() != KindHandler {
		t.Errorf("EffectiveKind() = %q, want %q", d.EffectiveKind(), KindHandler)
	}
	if reg.Len() != 2 {
		t.Errorf("Len() = %d, want 2", reg.Len())
	}
}

func TestAdd_InvalidDescriptor(t *testing.T) {
	reg := New(Options{})

	if err := reg.Add(Descriptor{}); !errors.Is(err, ErrNameRequired) {
		t.Errorf("Add(empty) error = %v, want ErrNameRequired", err)
	}
	if err := reg.Add(Descriptor{Name: "noop"}); !errors.Is(err, ErrLogicRequired) {
		t.Errorf("Add(no logic) error = %v, want ErrLogicRequired", err)
	}

	err := reg.Add(handlerDescriptor("loop", "loop"))
	if !errors.Is(err, ErrSelfDependency) {
		t.Errorf("Add(self-dep) error = %v, want ErrSelfDependency", err)
	}
}

func TestAdd_CycleRejected(t *testing.T) {
	reg := New(Options{})

	if err := reg.Add(handlerDescriptor("a", "b")); err != nil {
		t.Fatalf("Add(a) error = %v", err)
	}

	// Registering b closes the a -> b -> a cycle.
	err := reg.Add(handlerDescriptor("b", "a"))
	if !errors.Is(err, graph.ErrCircularDependency) {
		t.Fatalf("Add(b) error = %v, want ErrCircularDependency", err)
	}

	// Previous state stays fully in effect: b is absent, a is intact.
	if _, ok := reg.Get("b"); ok {
		t.Error("Get(b) ok = true after rejected Add")
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
	if g := reg.Graph(); !g.Has("a") || g.Has("b") {
		t.Error("graph snapshot mutated by rejected Add")
	}
}

func TestValidateDependencies_Transitive(t *testing.T) {
	reg := New(Options{})

	if err := reg.Add(handlerDescriptor("fetch", "cache")); err != nil {
		t.Fatalf("Add(fetch) error = %v", err)
	}

	ok, missing := reg.ValidateDependencies("fetch")
	if ok {
		t.Fatal("ValidateDependencies(fetch) ok = true, want false")
	}
	if len(missing) != 1 || missing[0] != "cache" {
		t.Errorf("missing = %v, want [cache]", missing)
	}

	if err := reg.Add(handlerDescriptor("cache", "store")); err != nil {
		t.Fatalf("Add(cache) error = %v", err)
	}

	// cache itself resolves now, but its own dependency is absent.
	ok, missing = reg.ValidateDependencies("fetch")
	if ok {
		t.Fatal("ValidateDependencies(fetch) ok = true with transitive gap")
	}
	if len(missing) != 1 || missing[0] != "store" {
		t.Errorf("missing = %v, want [store]", missing)
	}

	if err := reg.Add(handlerDescriptor("store")); err != nil {
		t.Fatalf("Add(store) error = %v", err)
	}
	if ok, missing := reg.ValidateDependencies("fetch"); !ok || missing != nil {
		t.Errorf("ValidateDependencies(fetch) = (%v, %v), want (true, nil)", ok, missing)
	}
}

func TestExecutionOrder_DependenciesFirst(t *testing.T) {
	reg := New(Options{})

	for _, d := range []Descriptor{
		handlerDescriptor("report", "fetch"),
		handlerDescriptor("fetch", "cache"),
		handlerDescriptor("cache"),
	} {
		if err := reg.Add(d); err != nil {
			t.Fatalf("Add(%s) error = %v", d.Name, err)
		}
	}

	order := reg.ExecutionOrder()
	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	if pos["cache"] > pos["fetch"] || pos["fetch"] > pos["report"] {
		t.Errorf("ExecutionOrder() = %v, want cache before fetch before report", order)
	}
}

func TestRemove_SurfacesMissing(t *testing.T) {
	reg := New(Options{})

	if err := reg.Add(handlerDescriptor("cache")); err != nil {
		t.Fatalf("Add(cache) error = %v", err)
	}
	if err := reg.Add(handlerDescriptor("fetch", "cache")); err != nil {
		t.Fatalf("Add(fetch) error = %v", err)
	}

	if err := reg.Remove("cache"); err != nil {
		t.Fatalf("Remove(cache) error = %v", err)
	}
	if err := reg.Remove("cache"); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("second Remove error = %v, want ErrNotRegistered", err)
	}

	ok, missing := reg.ValidateDependencies("fetch")
	if ok || len(missing) != 1 || missing[0] != "cache" {
		t.Errorf("ValidateDependencies(fetch) = (%v, %v), want (false, [cache])", ok, missing)
	}
}

func TestAdd_ReplaceDescriptor(t *testing.T) {
	reg := New(Options{})

	if err := reg.Add(handlerDescriptor("fetch")); err != nil {
		t.Fatalf("Add(fetch) error = %v", err)
	}

	replacement := handlerDescriptor("fetch", "cache")
	replacement.Description = "replaced"
	if err := reg.Add(replacement); err != nil {
		t.Fatalf("Add(replacement) error = %v", err)
	}

	d, ok := reg.Get("fetch")
	if !ok || d.Description != "replaced" {
		t.Errorf("Get(fetch) = (%+v, %v), want replaced descriptor", d, ok)
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
	if deps := reg.Graph().Dependencies("fetch"); len(deps) != 1 || deps[0] != "cache" {
		t.Errorf("Dependencies(fetch) = %v, want [cache]", deps)
	}
}

func TestNames_Sorted(t *testing.T) {
	reg := New(Options{})
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := reg.Add(handlerDescriptor(name)); err != nil {
			t.Fatalf("Add(%s) error = %v", name, err)
		}
	}

	names := reg.Names()
	want := []string{"alpha", "mid", "zeta"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names() = %v, want %v", names, want)
		}
	}
}

func TestSearch_IndexKeptInSync(t *testing.T) {
	reg := New(Options{})

	d := handlerDescriptor("fetch")
	d.Description = "Fetches remote documents over HTTP"
	if err := reg.Add(d); err != nil {
		t.Fatalf("Add(fetch) error = %v", err)
	}

	if _, err := reg.Search("fetch documents", 5); err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	namespaces, err := reg.Namespaces()
	if err != nil {
		t.Fatalf("Namespaces() error = %v", err)
	}
	found := false
	for _, ns := range namespaces {
		if ns == "tools" {
			found = true
		}
	}
	if !found {
		t.Errorf("Namespaces() = %v, want to contain %q", namespaces, "tools")
	}
}

func TestDescriptor_KindInference(t *testing.T) {
	tests := []struct {
		name string
		d    Descriptor
		want Kind
	}{
		{"handler", handlerDescriptor("h"), KindHandler},
		{"script", Descriptor{Name: "s", Script: ScriptSpec{Source: "print(1)", Interpreter: "python3"}}, KindScript},
		{"command", Descriptor{Name: "c", Command: []string{"true"}}, KindCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.d.EffectiveKind(); got != tt.want {
				t.Errorf("EffectiveKind() = %q, want %q", got, tt.want)
			}
			if err := tt.d.Validate(); err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}

func TestDescriptor_ID(t *testing.T) {
	d := handlerDescriptor("fetch")
	if d.ID() != "tools:fetch" {
		t.Errorf("ID() = %q, want %q", d.ID(), "tools:fetch")
	}
	d.Namespace = "web"
	if d.ID() != "web:fetch" {
		t.Errorf("ID() = %q, want %q", d.ID(), "web:fetch")
	}
}
