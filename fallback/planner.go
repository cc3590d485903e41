package fallback

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/nexorch/toolorch/failure"
)

// Parameter keys the strategy table reads and writes. Tools that honor
// them participate in timeout scaling and evasion pacing; others simply
// ignore the extra keys.
const (
	// ParamTimeoutMS is the execution deadline in milliseconds.
	ParamTimeoutMS = "timeout_ms"

	// ParamEvasion asks the tool to pace itself like an interactive user.
	ParamEvasion = "evasion"

	// ParamMinDelayMS and ParamMaxDelayMS bound the randomized
	// inter-call delay while evasion is on.
	ParamMinDelayMS = "min_delay_ms"
	ParamMaxDelayMS = "max_delay_ms"
)

const (
	defaultMaxAttempts = 3
	defaultTimeoutMS   = 30000

	// timeoutGrowth is the per-attempt multiplier for deadline scaling.
	timeoutGrowth = 1.5

	backoffBase = 500 * time.Millisecond
)

// Logger is an optional interface for observability during fallback
// planning.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: logging must be best-effort; Logf should not panic.
type Logger interface {
	// Logf logs a formatted message.
	Logf(format string, args ...any)
}

// Strategy is the planner's proposal for the next attempt.
type Strategy struct {
	// Tool is the target tool, the same one or a substitute.
	Tool string

	// Action is the action to request, possibly simpler than the
	// original.
	Action string

	// Params are the adjusted parameters for the attempt.
	Params map[string]any

	// Delay is how long to wait before the attempt.
	Delay time.Duration

	// Confidence scores how likely the planner considers this strategy
	// to succeed, decreasing with each attempt.
	Confidence float64

	// Reason is a short human-readable description of the adjustment.
	Reason string
}

// Options configures a Planner.
type Options struct {
	// MaxAttempts is the per-(tool, action) budget. Defaults to 3.
	MaxAttempts int

	// SimplerActions maps an action to a simpler action on the same tool,
	// tried when parameter adjustment alone has not helped.
	SimplerActions map[string]string

	// SubstituteTools maps a tool to a functionally overlapping tool,
	// tried as a last resort.
	SubstituteTools map[string]string

	// Rand is the source of delay jitter. Defaults to a time-seeded
	// source; fix it in tests for reproducible delays.
	Rand *rand.Rand

	// Logger is an optional logger for observability.
	Logger Logger
}

func (o *Options) applyDefaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
}

// Planner owns attempt budgets and error history for one session.
//
// Contract:
// - Concurrency: safe for concurrent use; a single mutex guards all state.
//   Invocations sharing a (tool, action) key share its budget.
// - Ownership: returned records and histories are copies.
type Planner struct {
	mu          sync.Mutex
	maxAttempts int
	simpler     map[string]string
	substitutes map[string]string
	rng         *rand.Rand
	logger      Logger

	attempts  map[string]int
	successes map[string]int
	history   []ErrorRecord
}

// NewPlanner creates a Planner from opts.
func NewPlanner(opts Options) *Planner {
	opts.applyDefaults()
	return &Planner{
		maxAttempts: opts.MaxAttempts,
		simpler:     opts.SimplerActions,
		substitutes: opts.SubstituteTools,
		rng:         opts.Rand,
		logger:      opts.Logger,
		attempts:    make(map[string]int),
		successes:   make(map[string]int),
	}
}

func budgetKey(tool, action string) string {
	return tool + ":" + action
}

// MaxAttempts returns the per-key budget.
func (p *Planner) MaxAttempts() int {
	return p.maxAttempts
}

// RecordError appends an ErrorRecord and consumes one unit of the key's
// attempt budget. The returned record carries the attempt count after
// this failure.
func (p *Planner) RecordError(tool, action string, category failure.Category, message string, params map[string]any) ErrorRecord {
	return p.RecordErrorKeyed(tool, action, tool, action, category, message, params)
}

// RecordErrorKeyed records a failure of execTool.execAction while
// charging the attempt budget of (budgetTool, budgetAction). Substitution
// chains stay bounded by their original key while per-tool statistics
// follow the tool that actually ran.
func (p *Planner) RecordErrorKeyed(budgetTool, budgetAction, execTool, execAction string, category failure.Category, message string, params map[string]any) ErrorRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := budgetKey(budgetTool, budgetAction)
	p.attempts[key]++
	rec := newRecord(execTool, execAction, category, message, params, p.attempts[key])
	p.history = append(p.history, rec)
	p.logf("error in %s.%s (%s, attempt %d): %s", execTool, execAction, category, rec.Attempt, message)
	return rec
}

// RecordSuccess notes a successful execution for analysis.
func (p *Planner) RecordSuccess(tool string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.successes[tool]++
}

// Attempts returns the number of failures recorded for the key.
func (p *Planner) Attempts(tool, action string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts[budgetKey(tool, action)]
}

// ShouldRetry reports whether the key still has budget for another
// attempt.
func (p *Planner) ShouldRetry(tool, action string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts[budgetKey(tool, action)] < p.maxAttempts
}

// Strategy proposes the next attempt for a failure of the given category.
// attempt is the number of failed attempts so far (1 after the first
// failure). The table is deterministic per (category, attempt); only the
// evasion and backoff delays are randomized within fixed bounds.
func (p *Planner) Strategy(tool, action string, category failure.Category, attempt int, params map[string]any) Strategy {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Strategy{
		Tool:       tool,
		Action:     action,
		Params:     copyParams(params),
		Confidence: 1 / float64(attempt+1),
		Reason:     "retry",
	}
	if s.Params == nil {
		s.Params = make(map[string]any)
	}

	switch category {
	case failure.Timeout:
		scaled := int64(float64(timeoutMS(s.Params)) * math.Pow(timeoutGrowth, float64(attempt)))
		s.Params[ParamTimeoutMS] = scaled
		s.Reason = "scaled timeout"
		switch {
		case attempt <= 1:
			p.enableEvasionLocked(&s, 800, 2500)
		case attempt == 2:
			p.simplifyLocked(&s)
		default:
			p.substituteLocked(&s)
		}
	case failure.RateLimit:
		min, max := int64(1500), int64(4000)
		for i := 1; i < attempt; i++ {
			min, max = min*2, max*2
		}
		p.enableEvasionLocked(&s, min, max)
		s.Reason = "evasion pacing"
		if attempt >= p.maxAttempts-1 {
			p.substituteLocked(&s)
		}
	case failure.Connection, failure.ServerError:
		s.Delay = p.backoffLocked(attempt)
		s.Reason = "retry with backoff"
	case failure.NotFound, failure.Extraction:
		if attempt <= 1 {
			p.simplifyLocked(&s)
		} else {
			p.substituteLocked(&s)
		}
	case failure.Syntax:
		p.simplifyLocked(&s)
	default:
		s.Delay = p.backoffLocked(attempt)
		s.Reason = "plain retry"
	}

	p.logf("fallback for %s.%s (%s, attempt %d): %s", tool, action, category, attempt, s.Reason)
	return s
}

// Pretune preemptively adjusts parameters from aggregated history before
// a first attempt. At least two prior timeouts for the tool scale the
// deadline up; any prior rate limiting turns evasion pacing on.
func (p *Planner) Pretune(tool string, params map[string]any) map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()

	tuned := copyParams(params)
	if tuned == nil {
		tuned = make(map[string]any)
	}

	var timeouts, rateLimits int
	for _, rec := range p.history {
		if rec.Tool != tool {
			continue
		}
		switch rec.Category {
		case failure.Timeout:
			timeouts++
		case failure.RateLimit:
			rateLimits++
		}
	}

	if timeouts >= 2 {
		scaled := int64(float64(timeoutMS(tuned)) * timeoutGrowth)
		tuned[ParamTimeoutMS] = scaled
		p.logf("pretune %s: raising timeout to %dms after %d prior timeouts", tool, scaled, timeouts)
	}
	if rateLimits >= 1 {
		tuned[ParamEvasion] = true
		tuned[ParamMinDelayMS] = int64(1000)
		tuned[ParamMaxDelayMS] = int64(3000)
		p.logf("pretune %s: enabling evasion pacing after %d prior rate limits", tool, rateLimits)
	}
	return tuned
}

// Reset clears budgets and history. Call at task boundaries so state
// never leaks across tasks.
func (p *Planner) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts = make(map[string]int)
	p.successes = make(map[string]int)
	p.history = nil
}

// History returns a copy of the error history in record order.
func (p *Planner) History() []ErrorRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ErrorRecord, len(p.history))
	copy(out, p.history)
	return out
}

// LastError returns the most recent record, if any.
func (p *Planner) LastError() (ErrorRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.history) == 0 {
		return ErrorRecord{}, false
	}
	return p.history[len(p.history)-1], true
}

func (p *Planner) enableEvasionLocked(s *Strategy, minMS, maxMS int64) {
	s.Params[ParamEvasion] = true
	s.Params[ParamMinDelayMS] = minMS
	s.Params[ParamMaxDelayMS] = maxMS
	s.Delay = time.Duration(minMS+p.rng.Int63n(maxMS-minMS)) * time.Millisecond
}

func (p *Planner) simplifyLocked(s *Strategy) {
	if simpler, ok := p.simpler[s.Action]; ok {
		s.Action = simpler
		s.Reason = "simpler action"
	}
}

func (p *Planner) substituteLocked(s *Strategy) {
	if sub, ok := p.substitutes[s.Tool]; ok {
		s.Tool = sub
		s.Reason = "substitute tool"
	}
}

// backoffLocked doubles from backoffBase per attempt with up to 50%
// jitter.
func (p *Planner) backoffLocked(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := backoffBase << (attempt - 1)
	jitter := time.Duration(p.rng.Int63n(int64(base / 2)))
	return base + jitter
}

// timeoutMS reads the deadline parameter, defaulting to 30000.
func timeoutMS(params map[string]any) int64 {
	switch v := params[ParamTimeoutMS].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return defaultTimeoutMS
}

func (p *Planner) logf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Logf(format, args...)
	}
}
