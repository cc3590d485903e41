package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nexorch/toolorch/failure"
	"github.com/nexorch/toolorch/fallback"
	"github.com/nexorch/toolorch/registry"
	"github.com/nexorch/toolorch/sandbox"
)

// ParamAction selects the logical action within a tool. Together with the
// tool name it forms the attempt-budget correlation key.
const ParamAction = "action"

// DefaultAction is the action key used when params carry none.
const DefaultAction = "execute"

// ErrConfiguration indicates invalid orchestrator construction.
var ErrConfiguration = errors.New("orchestrate: invalid configuration")

// Logger is an optional interface for observability during orchestration.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: logging must be best-effort; Logf should not panic.
type Logger interface {
	// Logf logs a formatted message.
	Logf(format string, args ...any)
}

// Options configures an Orchestrator.
type Options struct {
	// Registry resolves tool descriptors and dependencies.
	// Required.
	Registry *registry.Registry

	// Executor runs tool logic. Defaults to a sandbox.NewExecutor with
	// the default policy.
	Executor *sandbox.Executor

	// Classifier categorizes failures. Defaults to the standard pattern
	// table.
	Classifier *failure.Classifier

	// Fallback configures the planner owned by each session.
	Fallback fallback.Options

	// Sleep waits between fallback attempts. Defaults to a context-aware
	// sleep; tests override it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error

	// Logger is an optional logger for observability.
	Logger Logger
}

func (o *Options) validate() error {
	if o.Registry == nil {
		return fmt.Errorf("%w: Registry is required", ErrConfiguration)
	}
	return nil
}

func (o *Options) applyDefaults() error {
	if o.Executor == nil {
		exec, err := sandbox.NewExecutor(sandbox.Config{})
		if err != nil {
			return err
		}
		o.Executor = exec
	}
	if o.Classifier == nil {
		c, err := failure.New(failure.Options{})
		if err != nil {
			return err
		}
		o.Classifier = c
	}
	if o.Sleep == nil {
		o.Sleep = ctxSleep
	}
	return nil
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result is the outcome of one orchestrated invocation.
type Result struct {
	// Success reports whether any attempt succeeded.
	Success bool

	// Output is the successful attempt's output. String output produced
	// by a substitute tool carries a fallback tag prefix.
	Output any

	// Tool is the tool that produced the output; differs from the
	// requested tool when a substitute succeeded.
	Tool string

	// Error is the last failure message, empty on success.
	Error string

	// Category is the classified category of the last failure.
	Category failure.Category

	// Attempts is the number of sandbox executions performed.
	Attempts int

	// Escalated reports whether the executor escalated a timeout
	// internally on the final attempt.
	Escalated bool

	// Limits is the final attempt's resource limit report.
	Limits sandbox.LimitReport

	// Remediation is advisory manual-intervention text, set only on
	// terminal failure.
	Remediation string
}

// Orchestrator sequences lookup, dependency validation, sandboxed
// execution, failure classification, and fallback planning.
//
// Contract:
// - Concurrency: safe for concurrent use. Invocations through the same
//   session that share a (tool, action) key share an attempt budget.
// - Errors: Execute returns a non-nil error for terminal failures
//   (missing dependencies, security violations, exhausted budgets); the
//   Result always carries the concrete failure detail.
type Orchestrator struct {
	opts    Options
	session *Session
}

// New creates an Orchestrator from opts.
func New(opts Options) (*Orchestrator, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := opts.applyDefaults(); err != nil {
		return nil, err
	}
	o := &Orchestrator{opts: opts}
	o.session = o.NewSession()
	return o, nil
}

// NewSession creates an isolated session with its own attempt budgets and
// error history.
func (o *Orchestrator) NewSession() *Session {
	fb := o.opts.Fallback
	return &Session{
		orch:    o,
		planner: fallback.NewPlanner(fb),
	}
}

// Execute runs the named tool through the orchestrator's default session.
func (o *Orchestrator) Execute(ctx context.Context, name string, params map[string]any) (Result, error) {
	return o.session.Execute(ctx, name, params)
}

// Reset clears the default session's budgets and history. Call at task
// boundaries.
func (o *Orchestrator) Reset() {
	o.session.Reset()
}

// Analyze returns the default session's informational history digest.
func (o *Orchestrator) Analyze() fallback.Analysis {
	return o.session.Analyze()
}

// AddTool registers a descriptor, rebuilding the dependency graph.
func (o *Orchestrator) AddTool(d registry.Descriptor) error {
	return o.opts.Registry.Add(d)
}

// RemoveTool unregisters a tool by name.
func (o *Orchestrator) RemoveTool(name string) error {
	return o.opts.Registry.Remove(name)
}

// ValidateDependencies reports whether every transitive dependency of the
// named tool is registered, with the sorted missing names.
func (o *Orchestrator) ValidateDependencies(name string) (bool, []string) {
	return o.opts.Registry.ValidateDependencies(name)
}

// ExecutionOrder returns a dependency-first ordering of all registered
// tools.
func (o *Orchestrator) ExecutionOrder() []string {
	return o.opts.Registry.ExecutionOrder()
}

// Close releases tools that declare cleanup, joining their errors.
func (o *Orchestrator) Close(ctx context.Context) error {
	var errs []error
	for _, name := range o.opts.Registry.Names() {
		d, ok := o.opts.Registry.Get(name)
		if !ok {
			continue
		}
		if c, ok := d.Impl.(registry.Cleanable); ok {
			if err := c.Cleanup(ctx); err != nil {
				errs = append(errs, fmt.Errorf("cleanup %s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.opts.Logger != nil {
		o.opts.Logger.Logf(format, args...)
	}
}
