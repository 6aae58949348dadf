package monitor

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Matcher is one whitelist entry: either a plain substring matcher or, when
// written as "/expr/", a regular expression. Matching is case-sensitive and
// whitespace-literal; no normalization is applied on either side.
type Matcher struct {
	raw string
	re  *regexp.Regexp
}

// NewMatcher returns a substring matcher.
func NewMatcher(substr string) Matcher {
	return Matcher{raw: substr}
}

// NewPatternMatcher returns a regular-expression matcher.
func NewPatternMatcher(expr string) (Matcher, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Matcher{}, fmt.Errorf("compiling whitelist pattern %q: %w", expr, err)
	}
	return Matcher{raw: "/" + expr + "/", re: re}, nil
}

// MatchString reports whether s is covered by this whitelist entry.
func (m Matcher) MatchString(s string) bool {
	if m.re != nil {
		return m.re.MatchString(s)
	}
	return strings.Contains(s, m.raw)
}

func (m Matcher) String() string { return m.raw }

// MarshalJSON encodes the matcher back to its string form.
func (m Matcher) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.raw)
}

// UnmarshalJSON accepts a JSON string; "/expr/" compiles to a pattern,
// anything else matches by substring containment.
func (m *Matcher) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("whitelist entries must be strings: %w", err)
	}
	return m.decode(s)
}

// Decode implements envconfig.Decoder so whitelists can be supplied as a
// comma-separated CONWATCH_WHITELIST value.
func (m *Matcher) Decode(value string) error {
	return m.decode(value)
}

func (m *Matcher) decode(s string) error {
	if len(s) >= 2 && strings.HasPrefix(s, "/") && strings.HasSuffix(s, "/") {
		re, err := regexp.Compile(s[1 : len(s)-1])
		if err != nil {
			return fmt.Errorf("compiling whitelist pattern %q: %w", s, err)
		}
		*m = Matcher{raw: s, re: re}
		return nil
	}
	*m = Matcher{raw: s}
	return nil
}
