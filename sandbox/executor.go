package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nexorch/toolorch/registry"
)

// TagResourceHeavy marks a tool whose timeout the executor may escalate
// once internally: a timed-out run is retried with a doubled deadline
// before the failure is surfaced.
const TagResourceHeavy = "resource-heavy"

const (
	defaultTimeout     = 30 * time.Second
	defaultGracePeriod = 2 * time.Second
	defaultOutputBytes = 1 << 20
)

// Config holds the configuration for an Executor.
type Config struct {
	// Policy governs the static pre-check and worker resource limits.
	// A zero Policy is replaced by DefaultPolicy().
	Policy Policy

	// Limiter applies resource limits to started workers.
	// Defaults to PlatformLimiter().
	Limiter ResourceLimiter

	// DefaultTimeout bounds executions whose request carries no timeout.
	// Defaults to 30s.
	DefaultTimeout time.Duration

	// GracePeriod is how long a terminated worker gets to shut down
	// before it is killed. Defaults to 2s.
	GracePeriod time.Duration

	// MaxConcurrent caps in-flight executions. Zero means unlimited.
	MaxConcurrent int

	// MaxOutputBytes caps each captured output stream. Defaults to 1 MiB.
	MaxOutputBytes int

	// Logger is an optional logger for observability.
	Logger Logger
}

// Validate checks the configuration for invalid values.
// Returns ErrConfiguration on failure.
func (c *Config) Validate() error {
	if err := c.Policy.Validate(); err != nil {
		return err
	}
	if c.DefaultTimeout < 0 {
		return fmt.Errorf("%w: DefaultTimeout must not be negative", ErrConfiguration)
	}
	if c.GracePeriod < 0 {
		return fmt.Errorf("%w: GracePeriod must not be negative", ErrConfiguration)
	}
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("%w: MaxConcurrent must not be negative", ErrConfiguration)
	}
	return nil
}

// applyDefaults sets default values for optional fields.
func (c *Config) applyDefaults() {
	if c.Policy.isZero() {
		c.Policy = DefaultPolicy()
	}
	if c.Limiter == nil {
		c.Limiter = PlatformLimiter()
	}
	if c.DefaultTimeout == 0 {
		c.DefaultTimeout = defaultTimeout
	}
	if c.GracePeriod == 0 {
		c.GracePeriod = defaultGracePeriod
	}
	if c.MaxOutputBytes == 0 {
		c.MaxOutputBytes = defaultOutputBytes
	}
}

// Request describes one execution.
type Request struct {
	// Tool is the descriptor whose logic runs.
	Tool registry.Descriptor

	// Params are the invocation parameters, passed to handlers directly
	// and to workers via the TOOLORCH_PARAMS environment variable.
	Params map[string]any

	// Timeout overrides the executor's default wall-clock deadline.
	Timeout time.Duration

	// Attempt is the caller's retry counter, used only for logging.
	Attempt int
}

// Executor runs tool logic under a security policy, resource limits, and
// a wall-clock timeout.
//
// Contract:
// - Concurrency: safe for concurrent use; MaxConcurrent gates admission.
// - Errors: Execute returns a non-nil error only for configuration
//   misuse, context cancellation before admission, and security
//   violations. Failures of the tool's own logic come back as a Result
//   with Success false and a nil error.
// - Ownership: the Result and its buffers belong to the caller.
type Executor struct {
	cfg Config
	sem *semaphore.Weighted
}

// NewExecutor creates an Executor from cfg.
func NewExecutor(cfg Config) (*Executor, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Executor{cfg: cfg}
	if cfg.MaxConcurrent > 0 {
		e.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	return e, nil
}

// Policy returns the executor's active policy.
func (e *Executor) Policy() Policy {
	return e.cfg.Policy
}

// Execute runs the requested tool. The static pre-check runs before any
// worker is spawned; a rejected tool never executes. Timed-out runs of
// tools tagged TagResourceHeavy are retried once with a doubled deadline.
func (e *Executor) Execute(ctx context.Context, req Request) (Result, error) {
	if err := req.Tool.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	if err := e.cfg.Policy.precheck(req.Tool); err != nil {
		var synErr *syntaxError
		if errors.As(err, &synErr) {
			return Result{Error: synErr.Error(), Fault: FaultSyntax}, nil
		}
		e.logf("tool %s rejected by pre-check: %v", req.Tool.Name, err)
		return Result{Error: err.Error(), Fault: FaultSecurity}, err
	}

	if e.sem != nil {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return Result{}, err
		}
		defer e.sem.Release(1)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}

	res := e.runOnce(ctx, req, timeout)
	if res.Fault == FaultTimeout && hasTag(req.Tool.Tags, TagResourceHeavy) {
		escalated := 2 * timeout
		e.logf("tool %s timed out after %s, escalating once to %s", req.Tool.Name, timeout, escalated)
		res = e.runOnce(ctx, req, escalated)
		res.Escalated = true
	}
	return res, nil
}

func (e *Executor) runOnce(ctx context.Context, req Request, timeout time.Duration) Result {
	switch req.Tool.EffectiveKind() {
	case registry.KindHandler:
		return e.runHandler(ctx, req, timeout)
	default:
		return e.runWorker(ctx, req, timeout)
	}
}

// runHandler executes a native handler in a supervised goroutine. Limits
// are reported as degraded: in-process logic cannot be resource-limited,
// only deadline-bounded.
func (e *Executor) runHandler(ctx context.Context, req Request, timeout time.Duration) Result {
	stdout := newCappedBuffer(e.cfg.MaxOutputBytes)
	cctx, cancel := context.WithTimeout(withPrinter(ctx, stdout), timeout)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := req.Tool.Handler(cctx, req.Params)
		done <- outcome{value: v, err: err}
	}()

	limits := LimitReport{
		Enforced: false,
		Reason:   "native handlers run in-process; only the wall-clock timeout applies",
	}

	select {
	case o := <-done:
		res := Result{Stdout: stdout.String(), Limits: limits, Duration: time.Since(start)}
		if o.err != nil {
			if errors.Is(o.err, context.DeadlineExceeded) {
				res.Fault = FaultTimeout
				res.Error = fmt.Sprintf("execution timed out after %s", timeout)
			} else {
				res.Error = o.err.Error()
				res.Fault = faultFor(o.err.Error(), "")
			}
			return res
		}
		res.Success = true
		res.Output = o.value
		return res
	case <-cctx.Done():
		if c, ok := req.Tool.Impl.(registry.Cancellable); ok {
			c.Cancel()
		}
		res := Result{Stdout: stdout.String(), Limits: limits, Duration: time.Since(start)}
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			res.Fault = FaultTimeout
			res.Error = fmt.Sprintf("execution timed out after %s", timeout)
		} else {
			res.Fault = FaultRuntime
			res.Error = cctx.Err().Error()
		}
		return res
	}
}

// runWorker executes script and command logic in a worker process under
// the policy's resource limits.
func (e *Executor) runWorker(ctx context.Context, req Request, timeout time.Duration) Result {
	argv, cleanup, err := e.workerArgv(req.Tool)
	if err != nil {
		return Result{Error: err.Error(), Fault: FaultRuntime}
	}
	defer cleanup()

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout := newCappedBuffer(e.cfg.MaxOutputBytes)
	stderr := newCappedBuffer(e.cfg.MaxOutputBytes)

	cmd := exec.CommandContext(cctx, argv[0], argv[1:]...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = workerEnv(req.Params)
	cmd.WaitDelay = e.cfg.GracePeriod
	configureWorker(cmd)
	cmd.Cancel = func() error { return terminateWorker(cmd) }

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{Error: fmt.Sprintf("starting worker: %v", err), Fault: FaultRuntime}
	}

	report := e.cfg.Limiter.Apply(cmd.Process.Pid, e.cfg.Policy.Limits)
	if !report.Enforced {
		e.logf("tool %s running with degraded limits: %s", req.Tool.Name, report.Reason)
	}

	waitErr := cmd.Wait()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Limits:   report,
		Duration: time.Since(start),
	}

	switch {
	case errors.Is(cctx.Err(), context.DeadlineExceeded):
		res.Fault = FaultTimeout
		res.Error = fmt.Sprintf("execution timed out after %s", timeout)
	case waitErr != nil:
		msg := waitErr.Error()
		if s := strings.TrimSpace(res.Stderr); s != "" {
			msg = msg + ": " + firstLine(s)
		}
		res.Error = msg
		res.Fault = faultFor(msg, res.Stderr)
	default:
		res.Success = true
		res.Output, res.Stdout = extractOut(res.Stdout)
	}
	return res
}

// workerArgv builds the worker command line. Script logic is written to a
// temporary file handed to its interpreter; cleanup removes it.
func (e *Executor) workerArgv(d registry.Descriptor) (argv []string, cleanup func(), err error) {
	cleanup = func() {}
	if d.EffectiveKind() == registry.KindCommand {
		return d.Command, cleanup, nil
	}

	f, err := os.CreateTemp("", "toolorch-*"+scriptExt(d.Script.Language))
	if err != nil {
		return nil, cleanup, fmt.Errorf("writing script: %w", err)
	}
	path := f.Name()
	if _, err := f.WriteString(d.Script.Source); err != nil {
		f.Close()
		os.Remove(path)
		return nil, cleanup, fmt.Errorf("writing script: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, cleanup, fmt.Errorf("writing script: %w", err)
	}

	argv = append(argv, d.Script.Interpreter)
	argv = append(argv, d.Script.Args...)
	argv = append(argv, path)
	return argv, func() { os.Remove(path) }, nil
}

// workerEnv builds the minimal worker environment: the lookup path plus
// the invocation parameters as JSON.
func workerEnv(params map[string]any) []string {
	env := []string{"PATH=" + os.Getenv("PATH")}
	if len(params) > 0 {
		if raw, err := json.Marshal(params); err == nil {
			env = append(env, "TOOLORCH_PARAMS="+string(raw))
		}
	}
	return env
}

func scriptExt(language string) string {
	switch strings.ToLower(language) {
	case "python", "python3":
		return ".py"
	case "javascript", "node":
		return ".js"
	case "go":
		return ".go"
	case "":
		return ""
	default:
		return "." + strings.ToLower(language)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

func (e *Executor) logf(format string, args ...any) {
	if e.cfg.Logger != nil {
		e.cfg.Logger.Logf(format, args...)
	}
}
