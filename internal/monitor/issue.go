package monitor

import (
	"fmt"
	"strings"

	"github.com/conwatch/conwatch/internal/bridge"
)

// NewIssue builds the issue for one recorded console call. The raw message
// is flattened immediately so whitelist matching doesn't depend on how the
// arguments serialize later.
func NewIssue(method string, args []any) bridge.Issue {
	return bridge.Issue{
		Type:       Classify(method),
		Message:    args,
		RawMessage: bridge.FlattenValues(args),
	}
}

// NewUncaughtErrorIssue synthesizes the issue for an uncaught page error.
// The raw message keeps the original description so users can whitelist by
// the underlying error text rather than the formatted wrapper.
func NewUncaughtErrorIssue(e PageError) bridge.Issue {
	msg := fmt.Sprintf("Uncaught Error: %s at %s:%d", e.Description, e.URL, e.Line)
	return bridge.Issue{
		Type:       bridge.TypeError,
		Message:    []any{msg},
		RawMessage: e.Description,
	}
}

// Filter returns the issues that are candidates for failing the test under
// cfg: every error, plus every warning when throwOnWarning is set.
// Informational issues never feed the fail decision. Candidates matching any
// whitelist entry are dropped.
func Filter(issues []bridge.Issue, cfg Config) []bridge.Issue {
	var out []bridge.Issue
	for _, issue := range issues {
		switch issue.Type {
		case bridge.TypeError:
		case bridge.TypeWarn:
			if !cfg.ThrowOnWarning.Bool {
				continue
			}
		default:
			continue
		}
		if whitelisted(issue, cfg.Whitelist) {
			continue
		}
		out = append(out, issue)
	}
	return out
}

func whitelisted(issue bridge.Issue, whitelist []Matcher) bool {
	raw := issue.Flattened()
	for _, m := range whitelist {
		if m.MatchString(raw) {
			return true
		}
	}
	return false
}

// ConsoleIssueError is the designed failure raised when filtered console
// issues exist and the effective failOnSpy policy says the test should fail.
// Its message enumerates every filtered issue.
type ConsoleIssueError struct {
	Issues []bridge.Issue
}

func (e *ConsoleIssueError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d console issue(s) detected during test execution:", len(e.Issues))
	for _, issue := range e.Issues {
		fmt.Fprintf(&b, "\n  - [%s] %s", strings.ToUpper(string(issue.Type)), issue.Display())
	}
	return b.String()
}
