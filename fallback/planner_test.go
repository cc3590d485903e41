package fallback

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/nexorch/toolorch/failure"
)

func testPlanner(t *testing.T, opts Options) *Planner {
	t.Helper()
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(1))
	}
	return NewPlanner(opts)
}

func TestPlanner_BudgetExhaustion(t *testing.T) {
	p := testPlanner(t, Options{MaxAttempts: 3})

	for i := 0; i < 3; i++ {
		if !p.ShouldRetry("fetch", "get") {
			t.Fatalf("budget exhausted early at failure %d", i)
		}
		p.RecordError("fetch", "get", failure.Timeout, "timed out", nil)
	}
	if p.ShouldRetry("fetch", "get") {
		t.Fatal("expected budget exhausted after 3 failures")
	}
	if got := p.Attempts("fetch", "get"); got != 3 {
		t.Errorf("Attempts = %d, want 3", got)
	}
}

func TestPlanner_BudgetIsPerKey(t *testing.T) {
	p := testPlanner(t, Options{MaxAttempts: 1})
	p.RecordError("fetch", "get", failure.Timeout, "timed out", nil)

	if p.ShouldRetry("fetch", "get") {
		t.Error("exhausted key should not retry")
	}
	if !p.ShouldRetry("fetch", "list") {
		t.Error("distinct action key must have its own budget")
	}
	if !p.ShouldRetry("store", "get") {
		t.Error("distinct tool key must have its own budget")
	}
}

func TestPlanner_RecordErrorSnapshotsParams(t *testing.T) {
	p := testPlanner(t, Options{})
	params := map[string]any{"query": "tools", "nested": map[string]any{"depth": 2}}

	rec := p.RecordError("search", "query", failure.Connection, "connection refused", params)
	params["query"] = "mutated"
	params["nested"].(map[string]any)["depth"] = 99

	if rec.Params["query"] != "tools" {
		t.Errorf("param snapshot mutated: %v", rec.Params["query"])
	}
	if rec.Params["nested"].(map[string]any)["depth"] != 2 {
		t.Errorf("nested snapshot mutated: %v", rec.Params["nested"])
	}
	if rec.ID == "" {
		t.Error("record must carry an identifier")
	}
	if rec.Attempt != 1 {
		t.Errorf("Attempt = %d, want 1", rec.Attempt)
	}
}

func TestPlanner_RecordErrorKeyedSplitsAttribution(t *testing.T) {
	p := testPlanner(t, Options{MaxAttempts: 3})
	p.RecordError("primary", "get", failure.NotFound, "404 not found", nil)

	rec := p.RecordErrorKeyed("primary", "get", "backup", "get", failure.NotFound, "404 not found", nil)
	if rec.Tool != "backup" {
		t.Errorf("record tool = %q, want executing tool backup", rec.Tool)
	}
	if rec.Attempt != 2 {
		t.Errorf("Attempt = %d, want 2 (budget charged to the original key)", rec.Attempt)
	}
	if got := p.Attempts("primary", "get"); got != 2 {
		t.Errorf("Attempts(primary) = %d, want 2", got)
	}
	if got := p.Attempts("backup", "get"); got != 0 {
		t.Errorf("Attempts(backup) = %d, want 0", got)
	}

	a := p.Analyze()
	if a.Tools["primary"].Failures != 1 || a.Tools["backup"].Failures != 1 {
		t.Errorf("per-tool failures = %+v, want one each", a.Tools)
	}
}

func TestPlanner_TimeoutStrategyScalesDeadline(t *testing.T) {
	p := testPlanner(t, Options{})
	params := map[string]any{ParamTimeoutMS: int64(5000)}

	s := p.Strategy("compute", "execute", failure.Timeout, 1, params)

	if got := s.Params[ParamTimeoutMS]; got != int64(7500) {
		t.Errorf("timeout after attempt 1 = %v, want 7500", got)
	}
	if s.Tool != "compute" || s.Action != "execute" {
		t.Errorf("strategy retargeted to %s.%s", s.Tool, s.Action)
	}
	if params[ParamTimeoutMS] != int64(5000) {
		t.Error("original params must not be mutated")
	}
}

func TestPlanner_TimeoutStrategyCompounds(t *testing.T) {
	p := testPlanner(t, Options{})
	s := p.Strategy("compute", "execute", failure.Timeout, 2, map[string]any{ParamTimeoutMS: int64(1000)})

	if got := s.Params[ParamTimeoutMS]; got != int64(2250) {
		t.Errorf("timeout after attempt 2 = %v, want 2250", got)
	}
}

func TestPlanner_TimeoutStrategySimplifiesThenSubstitutes(t *testing.T) {
	p := testPlanner(t, Options{
		SimplerActions:  map[string]string{"extract_structured": "get_text"},
		SubstituteTools: map[string]string{"browser": "web_search"},
	})

	second := p.Strategy("browser", "extract_structured", failure.Timeout, 2, nil)
	if second.Action != "get_text" {
		t.Errorf("attempt 2 action = %q, want simpler get_text", second.Action)
	}

	third := p.Strategy("browser", "extract_structured", failure.Timeout, 3, nil)
	if third.Tool != "web_search" {
		t.Errorf("attempt 3 tool = %q, want substitute web_search", third.Tool)
	}
}

func TestPlanner_RateLimitStrategyEnablesEvasion(t *testing.T) {
	p := testPlanner(t, Options{})
	s := p.Strategy("browser", "navigate", failure.RateLimit, 1, nil)

	if s.Params[ParamEvasion] != true {
		t.Error("expected evasion enabled")
	}
	min, _ := s.Params[ParamMinDelayMS].(int64)
	max, _ := s.Params[ParamMaxDelayMS].(int64)
	if min != 1500 || max != 4000 {
		t.Errorf("delay bounds = %d..%d, want 1500..4000", min, max)
	}
	if s.Delay < time.Duration(min)*time.Millisecond || s.Delay > time.Duration(max)*time.Millisecond {
		t.Errorf("Delay %v outside bounds", s.Delay)
	}
}

func TestPlanner_ConnectionStrategyBacksOff(t *testing.T) {
	p := testPlanner(t, Options{})

	first := p.Strategy("fetch", "get", failure.Connection, 1, nil)
	second := p.Strategy("fetch", "get", failure.Connection, 2, nil)

	if first.Delay <= 0 {
		t.Error("expected a backoff delay")
	}
	// Base doubles per attempt; jitter is at most half the base.
	if second.Delay < time.Second {
		t.Errorf("attempt 2 delay %v, want at least 1s", second.Delay)
	}
}

func TestPlanner_PretuneAfterRepeatedTimeouts(t *testing.T) {
	p := testPlanner(t, Options{})
	p.RecordError("compute", "execute", failure.Timeout, "timed out", nil)
	p.RecordError("compute", "execute", failure.Timeout, "timed out", nil)

	tuned := p.Pretune("compute", map[string]any{ParamTimeoutMS: int64(10000)})
	if got := tuned[ParamTimeoutMS]; got != int64(15000) {
		t.Errorf("pretuned timeout = %v, want 15000", got)
	}

	// A single timeout is not enough history to act on.
	q := testPlanner(t, Options{})
	q.RecordError("compute", "execute", failure.Timeout, "timed out", nil)
	tuned = q.Pretune("compute", map[string]any{ParamTimeoutMS: int64(10000)})
	if got := tuned[ParamTimeoutMS]; got != int64(10000) {
		t.Errorf("timeout after one failure = %v, want unchanged", got)
	}
}

func TestPlanner_PretuneAfterRateLimit(t *testing.T) {
	p := testPlanner(t, Options{})
	p.RecordError("browser", "navigate", failure.RateLimit, "429 too many requests", nil)

	tuned := p.Pretune("browser", nil)
	if tuned[ParamEvasion] != true {
		t.Error("expected evasion pre-enabled after prior rate limiting")
	}
}

func TestPlanner_PretuneIgnoresOtherTools(t *testing.T) {
	p := testPlanner(t, Options{})
	p.RecordError("browser", "navigate", failure.Timeout, "timed out", nil)
	p.RecordError("browser", "navigate", failure.Timeout, "timed out", nil)

	tuned := p.Pretune("compute", map[string]any{ParamTimeoutMS: int64(10000)})
	if got := tuned[ParamTimeoutMS]; got != int64(10000) {
		t.Errorf("unrelated tool pretuned: %v", got)
	}
}

func TestPlanner_ResetReproducesBehavior(t *testing.T) {
	run := func(p *Planner) []bool {
		var decisions []bool
		for i := 0; i < 4; i++ {
			decisions = append(decisions, p.ShouldRetry("fetch", "get"))
			p.RecordError("fetch", "get", failure.Connection, "connection reset", nil)
		}
		return decisions
	}

	p := testPlanner(t, Options{MaxAttempts: 3})
	first := run(p)
	p.Reset()
	second := run(p)

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("decision %d differs after reset: %v vs %v", i, first, second)
		}
	}
	if len(p.History()) != 4 {
		t.Errorf("history after reset run = %d records, want 4", len(p.History()))
	}
}

func TestPlanner_LastError(t *testing.T) {
	p := testPlanner(t, Options{})
	if _, ok := p.LastError(); ok {
		t.Fatal("empty planner must have no last error")
	}

	p.RecordError("fetch", "get", failure.Connection, "first", nil)
	p.RecordError("fetch", "get", failure.Timeout, "second", nil)

	rec, ok := p.LastError()
	if !ok || rec.Message != "second" {
		t.Errorf("LastError = %+v, %v", rec, ok)
	}
}

func TestPlanner_AnalyzeCriticalFlag(t *testing.T) {
	p := testPlanner(t, Options{MaxAttempts: 10})
	for i := 0; i < 5; i++ {
		p.RecordError("browser", "navigate", failure.RateLimit, "blocked", nil)
	}
	p.RecordSuccess("browser")
	p.RecordSuccess("store")

	a := p.Analyze()
	browser := a.Tools["browser"]
	if !browser.Critical {
		t.Errorf("browser stats %+v, want critical", browser)
	}
	if browser.Failures != 5 || browser.Successes != 1 {
		t.Errorf("browser stats %+v", browser)
	}
	store := a.Tools["store"]
	if store.Critical || store.SuccessRate != 1 {
		t.Errorf("store stats %+v", store)
	}
	if a.CategoryCounts[failure.RateLimit] != 5 {
		t.Errorf("category counts %v", a.CategoryCounts)
	}
	if len(a.Suggestions) == 0 {
		t.Error("expected suggestions for repeated rate limiting")
	}
}

func TestPlanner_AnalyzeBelowSampleNotCritical(t *testing.T) {
	p := testPlanner(t, Options{})
	p.RecordError("fetch", "get", failure.Connection, "refused", nil)

	a := p.Analyze()
	if a.Tools["fetch"].Critical {
		t.Error("one failure must not flag critical")
	}
}

func TestPlanner_Remediation(t *testing.T) {
	p := testPlanner(t, Options{})
	p.RecordError("browser", "navigate", failure.RateLimit, "429", nil)
	p.RecordError("web_search", "query", failure.RateLimit, "429", nil)

	text := p.Remediation(failure.RateLimit, "429 too many requests")
	if !strings.Contains(text, "429 too many requests") {
		t.Errorf("remediation missing last error: %q", text)
	}
	if !strings.Contains(text, "browser, web_search") {
		t.Errorf("remediation missing tools tried: %q", text)
	}
	if !strings.Contains(text, "throttling") {
		t.Errorf("remediation missing category guidance: %q", text)
	}
}
