package orchestrate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nexorch/toolorch/fallback"
	"github.com/nexorch/toolorch/registry"
	"github.com/nexorch/toolorch/sandbox"
)

// Session owns the mutable retry state for a sequence of related
// invocations: attempt budgets and error history. Independent tasks use
// independent sessions, or call Reset between tasks.
type Session struct {
	orch    *Orchestrator
	planner *fallback.Planner
}

// Reset clears the session's budgets and history.
func (s *Session) Reset() {
	s.planner.Reset()
}

// Analyze returns an informational digest of the session's history.
func (s *Session) Analyze() fallback.Analysis {
	return s.planner.Analyze()
}

// History returns the session's error records in order.
func (s *Session) History() []fallback.ErrorRecord {
	return s.planner.History()
}

// Execute runs the named tool, looping through planned fallbacks until
// success or budget exhaustion. Missing dependencies and security
// violations are terminal immediately and consume no budget.
func (s *Session) Execute(ctx context.Context, name string, params map[string]any) (Result, error) {
	o := s.orch

	if _, ok := o.opts.Registry.Get(name); !ok {
		err := fmt.Errorf("%w: %s", registry.ErrNotRegistered, name)
		return Result{Error: err.Error()}, err
	}

	if ok, missing := o.opts.Registry.ValidateDependencies(name); !ok {
		err := &DependencyError{Tool: name, Missing: missing}
		o.logf("refusing %s: %v", name, err)
		return Result{Error: err.Error()}, err
	}

	action := actionOf(params)
	params = s.planner.Pretune(name, params)

	curTool, curAction, curParams := name, action, params
	attempts := 0

	for {
		d, ok := o.opts.Registry.Get(curTool)
		if !ok {
			err := fmt.Errorf("%w: %s", registry.ErrNotRegistered, curTool)
			return Result{Error: err.Error(), Attempts: attempts}, err
		}

		attempts++
		res, err := o.opts.Executor.Execute(ctx, sandbox.Request{
			Tool:    d,
			Params:  curParams,
			Timeout: requestTimeout(curParams),
			Attempt: attempts,
		})
		if err != nil {
			// Security violations and configuration misuse are terminal;
			// retrying rejected logic is itself unsafe.
			return Result{
				Error:    res.Error,
				Attempts: attempts,
				Limits:   res.Limits,
			}, err
		}

		if res.Success && s.successful(res) {
			s.planner.RecordSuccess(curTool)
			return Result{
				Success:   true,
				Output:    tagOutput(res.Output, name, curTool),
				Tool:      curTool,
				Attempts:  attempts,
				Escalated: res.Escalated,
				Limits:    res.Limits,
			}, nil
		}

		message := res.Error
		if message == "" {
			message = "output failed success checks: empty or error-dominated"
		}
		category := o.opts.Classifier.Classify(message)
		s.planner.RecordErrorKeyed(name, action, curTool, curAction, category, message, curParams)
		o.logf("attempt %d for %s.%s failed (%s): %s", attempts, curTool, curAction, category, message)

		if !s.planner.ShouldRetry(name, action) {
			exhausted := &ExhaustedError{
				Tool:     name,
				Action:   action,
				Category: category,
				Attempts: attempts,
				LastErr:  message,
			}
			return Result{
				Error:       message,
				Category:    category,
				Attempts:    attempts,
				Escalated:   res.Escalated,
				Limits:      res.Limits,
				Remediation: s.planner.Remediation(category, message),
			}, exhausted
		}

		strategy := s.planner.Strategy(curTool, curAction, category, s.planner.Attempts(name, action), curParams)
		if strategy.Tool != curTool {
			if _, ok := o.opts.Registry.Get(strategy.Tool); !ok {
				// Unregistered substitutes fall back to the same tool.
				strategy.Tool = curTool
			}
		}
		if err := o.opts.Sleep(ctx, strategy.Delay); err != nil {
			return Result{
				Error:     message,
				Category:  category,
				Attempts:  attempts,
				Escalated: res.Escalated,
				Limits:    res.Limits,
			}, err
		}

		curTool, curAction, curParams = strategy.Tool, strategy.Action, strategy.Params
		if curAction != actionOf(curParams) {
			curParams[ParamAction] = curAction
		}
	}
}

// successful applies the textual success heuristic to the execution's
// output. Structured non-string output passes on the executor's verdict.
func (s *Session) successful(res sandbox.Result) bool {
	switch out := res.Output.(type) {
	case string:
		return s.orch.opts.Classifier.IsSuccessful(out, res.Error)
	case nil:
		return s.orch.opts.Classifier.IsSuccessful(res.Stdout, res.Error)
	default:
		return res.Error == ""
	}
}

// tagOutput prefixes string output with the substitute tool's name so the
// caller can tell the result did not come from the requested tool.
func tagOutput(output any, requested, actual string) any {
	if requested == actual {
		return output
	}
	if text, ok := output.(string); ok {
		return fmt.Sprintf("[FALLBACK %s] %s", strings.ToUpper(actual), text)
	}
	return output
}

// actionOf reads the logical action from params, defaulting to "execute".
func actionOf(params map[string]any) string {
	if a, ok := params[ParamAction].(string); ok && a != "" {
		return a
	}
	return DefaultAction
}

// requestTimeout converts the timeout parameter to a deadline; zero lets
// the executor default apply.
func requestTimeout(params map[string]any) time.Duration {
	switch v := params[fallback.ParamTimeoutMS].(type) {
	case int:
		return time.Duration(v) * time.Millisecond
	case int64:
		return time.Duration(v) * time.Millisecond
	case float64:
		return time.Duration(v) * time.Millisecond
	}
	return 0
}
