package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/toolfoundation/model"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Errors returned by descriptor validation.
var (
	ErrNameRequired   = errors.New("registry: descriptor name is required")
	ErrLogicRequired  = errors.New("registry: descriptor carries no executable logic")
	ErrUnknownKind    = errors.New("registry: unknown descriptor kind")
	ErrSelfDependency = errors.New("registry: descriptor requires itself")
)

// Kind identifies the variant of logic a tool carries. The set is closed:
// tools are either native handler functions, script sources routed through
// the sandbox pre-check, or plain commands.
type Kind string

const (
	// KindHandler is a native Go handler function.
	KindHandler Kind = "handler"

	// KindScript is script source executed by an allow-listed interpreter
	// after static analysis.
	KindScript Kind = "script"

	// KindCommand is a plain argv invocation of an allow-listed program.
	KindCommand Kind = "command"
)

// HandlerFunc is the function signature for native tool handlers.
type HandlerFunc func(ctx context.Context, params map[string]any) (any, error)

// ScriptSpec describes the script variant of a tool's logic.
type ScriptSpec struct {
	// Language names the script language. "go" sources get a structural
	// AST pre-check; other languages get a token-level scan.
	Language string

	// Source is the script text.
	Source string

	// Interpreter is the program that runs the script. It must appear on
	// the sandbox policy's interpreter allow-list.
	Interpreter string

	// Args are extra interpreter arguments placed before the script.
	Args []string
}

// Cleanable is implemented by tool implementations that hold external
// resources needing release at session teardown. Tools declare the
// capability statically by implementing the interface; the orchestrator
// checks type membership, never attribute probing.
type Cleanable interface {
	Cleanup(ctx context.Context) error
}

// Cancellable is implemented by tool implementations that can abort
// in-flight work beyond context cancellation.
type Cancellable interface {
	Cancel()
}

// Descriptor describes a registered tool: identity, dependencies, logic
// variant, and capability metadata. Descriptors are value types; the
// registry stores copies and never mutates them after registration.
type Descriptor struct {
	// Name uniquely identifies the tool within the registry.
	Name string

	// Title is a human-readable display name.
	Title string

	// Description documents what the tool does, used for search.
	Description string

	// Namespace groups related tools in the discovery index.
	// Defaults to "tools".
	Namespace string

	// RequiredTools names the tools this tool depends on. Dependencies
	// are flat existence requirements, not version constraints.
	RequiredTools []string

	// Kind selects the logic variant. Defaults to KindHandler when a
	// Handler is set, KindScript when a Script source is set.
	Kind Kind

	// Handler is the native logic for KindHandler tools.
	Handler HandlerFunc

	// Script is the source for KindScript tools.
	Script ScriptSpec

	// Command is the argv for KindCommand tools.
	Command []string

	// InputSchema is an optional JSON Schema for parameter validation.
	InputSchema map[string]any

	// Tags classify the tool in the discovery index.
	Tags []string

	// Impl optionally references the backing implementation, consulted
	// for capability interfaces such as Cleanable.
	Impl any
}

// Validate checks the descriptor for registration.
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return ErrNameRequired
	}
	for _, dep := range d.RequiredTools {
		if dep == d.Name {
			return fmt.Errorf("%w: %s", ErrSelfDependency, d.Name)
		}
	}
	switch d.kind() {
	case KindHandler:
		if d.Handler == nil {
			return fmt.Errorf("%w: %s", ErrLogicRequired, d.Name)
		}
	case KindScript:
		if d.Script.Source == "" {
			return fmt.Errorf("%w: %s", ErrLogicRequired, d.Name)
		}
	case KindCommand:
		if len(d.Command) == 0 {
			return fmt.Errorf("%w: %s", ErrLogicRequired, d.Name)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, d.Kind)
	}
	return nil
}

// kind resolves the effective Kind, inferring it from the populated logic
// field when unset.
func (d Descriptor) kind() Kind {
	if d.Kind != "" {
		return d.Kind
	}
	switch {
	case d.Handler != nil:
		return KindHandler
	case d.Script.Source != "":
		return KindScript
	case len(d.Command) > 0:
		return KindCommand
	}
	return KindHandler
}

// EffectiveKind returns the resolved logic variant.
func (d Descriptor) EffectiveKind() Kind {
	return d.kind()
}

// namespace returns the descriptor namespace, defaulted.
func (d Descriptor) namespace() string {
	if d.Namespace == "" {
		return "tools"
	}
	return d.Namespace
}

// ID returns the canonical discovery identifier, "namespace:name".
func (d Descriptor) ID() string {
	return d.namespace() + ":" + d.Name
}

// Tool converts the descriptor to its discovery-index representation.
func (d Descriptor) Tool() model.Tool {
	return model.Tool{
		Tool: mcp.Tool{
			Name:        d.Name,
			Title:       d.Title,
			Description: d.Description,
			InputSchema: d.InputSchema,
		},
		Namespace: d.namespace(),
		Tags:      model.NormalizeTags(d.Tags),
	}
}
