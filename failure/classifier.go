package failure

import (
	"fmt"
	"regexp"
	"strings"
)

// Category is one of the fixed failure categories used to drive fallback
// decisions.
type Category string

const (
	Timeout        Category = "timeout"
	Connection     Category = "connection"
	RateLimit      Category = "rate_limit"
	NotFound       Category = "not_found"
	Extraction     Category = "extraction"
	Syntax         Category = "syntax"
	Authentication Category = "authentication"
	ServerError    Category = "server_error"

	// Unknown is returned when no category scores above zero.
	Unknown Category = "unknown"
)

// Rule associates a category with the message patterns that indicate it.
// Patterns are case-insensitive regular expressions.
type Rule struct {
	Category Category
	Patterns []string
}

// DefaultRules returns the standard pattern table in registration order.
// Table order is the tie-break for equal scores.
func DefaultRules() []Rule {
	return []Rule{
		{Timeout, []string{
			`timed? ?out`, `timeout`, `took too long`, `deadline exceeded`,
			`request timed out`, `connection timed out`,
		}},
		{Connection, []string{
			`connection (error|failed|refused|reset)`,
			`network (error|issue|unreachable)`, `unable to connect`,
			`host unreachable`, `no route to host`,
		}},
		{RateLimit, []string{
			`captcha`, `cloudflare`, `access denied`, `forbidden`, `blocked`,
			`\b403\b`, `bot detection`, `automated access`,
			`too many requests`, `rate limit(ed)?`, `\b429\b`,
		}},
		{NotFound, []string{
			`\b404\b`, `not found`, `does not exist`, `no longer available`,
			`removed`, `deleted`,
		}},
		{Extraction, []string{
			`extraction (error|failed)`, `no (content|data|text) found`,
			`empty (result|response)`, `invalid (format|structure)`,
			`parsing (failed|error)`, `no elements matching`,
			`selector not found`,
		}},
		{Syntax, []string{
			`syntax error`, `unexpected token`, `parsing error`,
			`invalid (json|html|xml|format)`, `malformed`,
		}},
		{Authentication, []string{
			`login required`, `authentication (failed|required)`,
			`not authorized`, `\b401\b`, `permission denied`,
			`invalid (token|credentials|api key)`,
		}},
		{ServerError, []string{
			`\b500\b`, `\b502\b`, `\b503\b`, `\b504\b`,
			`internal server error`, `bad gateway`, `service unavailable`,
			`gateway timeout`,
		}},
	}
}

// Thresholds tunes the IsSuccessful heuristic.
type Thresholds struct {
	// MinOutputLen is the minimum trimmed output length treated as
	// meaningful. Default 10.
	MinOutputLen int

	// ErrorTokenDensity is the fraction of error-vocabulary tokens above
	// which output is treated as a failure. Default 0.10.
	ErrorTokenDensity float64
}

// applyDefaults sets default values for unset fields.
func (t *Thresholds) applyDefaults() {
	if t.MinOutputLen == 0 {
		t.MinOutputLen = 10
	}
	if t.ErrorTokenDensity == 0 {
		t.ErrorTokenDensity = 0.10
	}
}

// errorVocabulary are the token stems counted by the density heuristic.
var errorVocabulary = []string{
	"error", "exception", "fail", "unable", "cannot", "invalid",
}

// Options configures a Classifier.
type Options struct {
	// Rules is the ordered pattern table. Defaults to DefaultRules.
	Rules []Rule

	// Thresholds tunes the success heuristic.
	Thresholds Thresholds
}

// Classifier maps raw error messages to categories. It is immutable after
// construction and safe for concurrent use.
type Classifier struct {
	rules      []compiledRule
	thresholds Thresholds
}

type compiledRule struct {
	category Category
	patterns []*regexp.Regexp
}

// New compiles the pattern table into a Classifier.
func New(opts Options) (*Classifier, error) {
	rules := opts.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	opts.Thresholds.applyDefaults()

	c := &Classifier{thresholds: opts.Thresholds}
	for _, r := range rules {
		cr := compiledRule{category: r.Category}
		for _, p := range r.Patterns {
			re, err := regexp.Compile(`(?i)` + p)
			if err != nil {
				return nil, fmt.Errorf("failure: pattern %q for %s: %w", p, r.Category, err)
			}
			cr.patterns = append(cr.patterns, re)
		}
		c.rules = append(c.rules, cr)
	}
	return c, nil
}

// Classify scores each category by the fraction of its patterns matching
// message and returns the highest-scoring one. Ties go to the category
// registered first; a message matching nothing returns Unknown.
func (c *Classifier) Classify(message string) Category {
	if message == "" {
		return Unknown
	}

	best := Unknown
	bestScore := 0.0
	for _, r := range c.rules {
		if len(r.patterns) == 0 {
			continue
		}
		matched := 0
		for _, re := range r.patterns {
			if re.MatchString(message) {
				matched++
			}
		}
		score := float64(matched) / float64(len(r.patterns))
		if score > bestScore {
			best = r.category
			bestScore = score
		}
	}
	return best
}

// IsSuccessful applies the success heuristic to a tool result: no explicit
// error, non-trivial output, and an error-vocabulary token density below
// the configured threshold.
func (c *Classifier) IsSuccessful(output, errMsg string) bool {
	if errMsg != "" {
		return false
	}
	trimmed := strings.TrimSpace(output)
	if len(trimmed) < c.thresholds.MinOutputLen {
		return false
	}

	words := strings.Fields(strings.ToLower(trimmed))
	if len(words) == 0 {
		return false
	}
	errorWords := 0
	for _, word := range words {
		for _, stem := range errorVocabulary {
			if strings.Contains(word, stem) {
				errorWords++
				break
			}
		}
	}
	return float64(errorWords)/float64(len(words)) <= c.thresholds.ErrorTokenDensity
}
