package fallback

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nexorch/toolorch/failure"
)

const (
	// criticalRate and criticalSample gate the critical flag: a tool is
	// critical when its success rate is below the rate over at least the
	// sample size.
	criticalRate   = 0.30
	criticalSample = 5
)

// ToolStats aggregates one tool's outcomes.
type ToolStats struct {
	Successes   int
	Failures    int
	SuccessRate float64

	// Critical is set when the tool fails persistently enough that
	// automated fallback is unlikely to help. Informational only.
	Critical bool
}

// Analysis is an informational digest of the session's history. It never
// feeds back into control flow.
type Analysis struct {
	// CategoryCounts is the number of failures per category.
	CategoryCounts map[failure.Category]int

	// Tools maps tool name to its aggregated outcomes.
	Tools map[string]ToolStats

	// Suggestions are advisory improvement hints derived from the
	// dominant failure categories.
	Suggestions []string
}

// Analyze aggregates the history into per-category counts, per-tool
// success rates, critical flags, and improvement suggestions.
func (p *Planner) Analyze() Analysis {
	p.mu.Lock()
	defer p.mu.Unlock()

	a := Analysis{
		CategoryCounts: make(map[failure.Category]int),
		Tools:          make(map[string]ToolStats),
	}

	for _, rec := range p.history {
		a.CategoryCounts[rec.Category]++
		stats := a.Tools[rec.Tool]
		stats.Failures++
		a.Tools[rec.Tool] = stats
	}
	for tool, n := range p.successes {
		stats := a.Tools[tool]
		stats.Successes += n
		a.Tools[tool] = stats
	}

	for tool, stats := range a.Tools {
		total := stats.Successes + stats.Failures
		if total > 0 {
			stats.SuccessRate = float64(stats.Successes) / float64(total)
		}
		stats.Critical = total >= criticalSample && stats.SuccessRate < criticalRate
		a.Tools[tool] = stats
	}

	a.Suggestions = suggestions(a.CategoryCounts)
	return a
}

// suggestions derives advisory hints from category frequencies.
func suggestions(counts map[failure.Category]int) []string {
	if len(counts) == 0 {
		return nil
	}

	var out []string
	add := func(ss ...string) { out = append(out, ss...) }

	if counts[failure.Timeout] >= 2 {
		add("Increase default timeouts for this workload",
			"Break long-running operations into smaller steps")
	}
	if counts[failure.RateLimit] >= 1 {
		add("Add pacing delays between calls to the throttling service",
			"Prefer an official API over repeated direct access")
	}
	if counts[failure.Connection] >= 2 {
		add("Retry transient connection failures with exponential backoff",
			"Verify network reachability before issuing calls")
	}
	if counts[failure.Extraction] >= 2 {
		add("Use more tolerant extraction with layered fallback methods")
	}
	if counts[failure.NotFound] >= 2 {
		add("Verify resource identifiers before access",
			"Check for alternative sources of the same data")
	}
	if counts[failure.Authentication] >= 1 {
		add("Provision credentials or tokens before execution")
	}
	if counts[failure.ServerError] >= 1 {
		add("Retry server errors with increasing delays",
			"Check service status before further attempts")
	}
	if counts[failure.Syntax] >= 2 {
		add("Add format detection and more lenient parsing")
	}
	return out
}

// Remediation assembles advisory manual-intervention text for a terminal
// failure. It is informational output for a human operator; nothing acts
// on it automatically.
func (p *Planner) Remediation(category failure.Category, lastErr string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var b strings.Builder
	b.WriteString("Automated attempts are exhausted.\n")
	if lastErr != "" {
		fmt.Fprintf(&b, "Last error (%s): %s\n", category, lastErr)
	}

	tools := make(map[string]bool)
	for _, rec := range p.history {
		tools[rec.Tool] = true
	}
	if len(tools) > 0 {
		names := make([]string, 0, len(tools))
		for name := range tools {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(&b, "Tools tried: %s\n", strings.Join(names, ", "))
	}

	b.WriteString("Suggested manual steps:\n")
	switch category {
	case failure.Timeout:
		b.WriteString("  1. Re-run with a substantially larger timeout.\n")
		b.WriteString("  2. Split the operation into smaller pieces and run them separately.\n")
	case failure.RateLimit:
		b.WriteString("  1. Wait before retrying; the remote side is throttling access.\n")
		b.WriteString("  2. Use an official API or authenticated access with higher limits.\n")
	case failure.Connection:
		b.WriteString("  1. Check network connectivity to the target service.\n")
		b.WriteString("  2. Retry once the service is reachable.\n")
	case failure.Authentication:
		b.WriteString("  1. Supply or refresh the required credentials.\n")
		b.WriteString("  2. Confirm the account has access to the resource.\n")
	case failure.NotFound:
		b.WriteString("  1. Confirm the resource identifier; it may have moved or been removed.\n")
		b.WriteString("  2. Search for an alternative source of the same data.\n")
	default:
		b.WriteString("  1. Review the error message to understand what went wrong.\n")
		b.WriteString("  2. Consider an alternative approach or tool for the task.\n")
	}
	return b.String()
}
