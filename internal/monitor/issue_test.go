package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v3"

	"github.com/conwatch/conwatch/internal/bridge"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		method string
		exp    bridge.IssueType
	}{
		{method: "error", exp: bridge.TypeError},
		{method: "warn", exp: bridge.TypeWarn},
		{method: "info", exp: bridge.TypeInfo},
		{method: "log", exp: bridge.TypeInfo},
		{method: "debug", exp: bridge.TypeInfo},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.method, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.exp, Classify(tc.method))
		})
	}
}

func TestNewIssueFlattensEagerly(t *testing.T) {
	t.Parallel()

	issue := NewIssue("error", []any{"request failed:", bridge.ErrorValue{Name: "TypeError", Message: "x is undefined"}})
	assert.Equal(t, bridge.TypeError, issue.Type)
	assert.Equal(t, "request failed: TypeError: x is undefined", issue.RawMessage)
}

func TestNewUncaughtErrorIssue(t *testing.T) {
	t.Parallel()

	issue := NewUncaughtErrorIssue(PageError{
		Description: "Uncaught test error",
		URL:         "http://app.local/spec.js",
		Line:        42,
	})

	assert.Equal(t, bridge.TypeError, issue.Type)
	require.Len(t, issue.Message, 1)
	assert.Equal(t, "Uncaught Error: Uncaught test error at http://app.local/spec.js:42", issue.Message[0])
	// The raw message keeps the underlying description so it stays
	// whitelistable by the original error text.
	assert.Equal(t, "Uncaught test error", issue.RawMessage)
}

func TestFilter(t *testing.T) {
	t.Parallel()

	errIssue := NewIssue("error", []any{"boom"})
	warnIssue := NewIssue("warn", []any{"watch out"})
	infoIssue := NewIssue("info", []any{"just saying"})

	t.Run("errors are always candidates", func(t *testing.T) {
		t.Parallel()
		got := Filter([]bridge.Issue{errIssue, infoIssue}, NewConfig())
		assert.Equal(t, []bridge.Issue{errIssue}, got)
	})

	t.Run("warnings gated by throwOnWarning", func(t *testing.T) {
		t.Parallel()
		cfg := NewConfig()
		assert.Empty(t, Filter([]bridge.Issue{warnIssue}, cfg))

		cfg.ThrowOnWarning = null.BoolFrom(true)
		assert.Equal(t, []bridge.Issue{warnIssue}, Filter([]bridge.Issue{warnIssue}, cfg))
	})

	t.Run("info never feeds the fail decision", func(t *testing.T) {
		t.Parallel()
		cfg := NewConfig()
		cfg.ThrowOnWarning = null.BoolFrom(true)
		cfg.MethodsToTrack = []string{"error", "warn", "info"}
		assert.Empty(t, Filter([]bridge.Issue{infoIssue}, cfg))
	})

	t.Run("whitelist drops matching candidates", func(t *testing.T) {
		t.Parallel()
		cfg := NewConfig()
		cfg.Whitelist = []Matcher{NewMatcher("boom")}
		assert.Empty(t, Filter([]bridge.Issue{errIssue}, cfg))
	})

	t.Run("whitelist matching is case-sensitive", func(t *testing.T) {
		t.Parallel()
		cfg := NewConfig()
		cfg.Whitelist = []Matcher{NewMatcher("BOOM")}
		assert.Equal(t, []bridge.Issue{errIssue}, Filter([]bridge.Issue{errIssue}, cfg))
	})

	t.Run("pattern entries match the raw message", func(t *testing.T) {
		t.Parallel()
		pattern, err := NewPatternMatcher("^bo+m$")
		require.NoError(t, err)
		cfg := NewConfig()
		cfg.Whitelist = []Matcher{pattern}
		assert.Empty(t, Filter([]bridge.Issue{errIssue}, cfg))
	})

	t.Run("uncaught errors whitelisted by description", func(t *testing.T) {
		t.Parallel()
		uncaught := NewUncaughtErrorIssue(PageError{Description: "ResizeObserver loop limit exceeded", URL: "http://x", Line: 1})
		cfg := NewConfig()
		cfg.Whitelist = []Matcher{NewMatcher("ResizeObserver loop")}
		assert.Empty(t, Filter([]bridge.Issue{uncaught}, cfg))
	})
}

func TestConsoleIssueErrorMessage(t *testing.T) {
	t.Parallel()

	err := &ConsoleIssueError{Issues: []bridge.Issue{
		NewIssue("error", []any{"Test error"}),
		NewUncaughtErrorIssue(PageError{Description: "Uncaught test error", URL: "http://app.local/spec.js", Line: 7}),
	}}

	exp := "2 console issue(s) detected during test execution:\n" +
		"  - [ERROR] Test error\n" +
		"  - [ERROR] Uncaught Error: Uncaught test error at http://app.local/spec.js:7"
	assert.Equal(t, exp, err.Error())
}
