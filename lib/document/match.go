package document

import (
	"fmt"
	"regexp"
	"strings"
)

// MatchMode selects how a text pattern is evaluated against Document.LongText.
type MatchMode uint8

const (
	MatchSubstring MatchMode = iota // plain substring containment, never fails
	MatchRegex                      // full regular expression (RE2 syntax)
)

func (m MatchMode) String() string {
	switch m {
	case MatchSubstring:
		return "substring"
	case MatchRegex:
		return "regex"
	default:
		return "unknown"
	}
}

// Matcher evaluates a text predicate.
type Matcher interface {
	// Match reports whether text satisfies the predicate.
	Match(text string) bool
	// Pattern returns the raw pattern the matcher was built from.
	Pattern() string
	String() string
}

// NewMatcher builds a Matcher for the given mode.
// Only MatchRegex can fail, with the compile error of the pattern.
func NewMatcher(mode MatchMode, pattern string) (Matcher, error) {
	switch mode {
	case MatchSubstring:
		return substringMatcher(pattern), nil
	case MatchRegex:
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		return &regexMatcher{re: re}, nil
	default:
		return nil, fmt.Errorf("unknown match mode %d", mode)
	}
}

// Substring returns a substring matcher. It is a shortcut for NewMatcher(MatchSubstring, pattern).
func Substring(pattern string) Matcher {
	return substringMatcher(pattern)
}

type substringMatcher string

func (s substringMatcher) Match(text string) bool { return strings.Contains(text, string(s)) }
func (s substringMatcher) Pattern() string        { return string(s) }
func (s substringMatcher) String() string         { return fmt.Sprintf("contains(%q)", string(s)) }

type regexMatcher struct {
	re *regexp.Regexp
}

func (r *regexMatcher) Match(text string) bool { return r.re.MatchString(text) }
func (r *regexMatcher) Pattern() string        { return r.re.String() }
func (r *regexMatcher) String() string         { return fmt.Sprintf("regex(%q)", r.re.String()) }
