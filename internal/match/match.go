// Package match implements the glob/regex/predicate matchers // calls out for match/exclude/filter config, and the processor chain's
// per-node matcher. Glob matching is backed by
// github.com/bmatcuk/doublestar/v4, the same library bennypowers-cem and
// bennypowers-mappa use for pattern matching over project file trees.
package match

import (
	"regexp"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher tests a module's current path. Implementations must be safe for
// concurrent use.
type Matcher interface {
	Match(path string) bool
}

// Func adapts a plain predicate to a Matcher.
type Func func(path string) bool

func (f Func) Match(path string) bool { return f(path) }

// Glob matches paths against a doublestar pattern (e.g. "**/*.css").
type Glob struct{ Pattern string }

func (g Glob) Match(path string) bool {
	ok, err := doublestar.Match(g.Pattern, path)
	return err == nil && ok
}

// Regex matches paths against a compiled regular expression.
type Regex struct{ *regexp.Regexp }

func (r Regex) Match(path string) bool { return r.MatchString(path) }

// All ANDs a list of matchers together, // ("arrays ANDed").
type All []Matcher

func (a All) Match(path string) bool {
	for _, m := range a {
		if m == nil {
			continue
		}
		if !m.Match(path) {
			return false
		}
	}
	return true
}

// Any ORs a list of matchers together.
type Any []Matcher

func (a Any) Match(path string) bool {
	for _, m := range a {
		if m != nil && m.Match(path) {
			return true
		}
	}
	return false
}

// Not negates a matcher; used to combine an exclude list with a base
// include matcher.
type Not struct{ Matcher }

func (n Not) Match(path string) bool {
	if n.Matcher == nil {
		return false
	}
	return !n.Matcher.Match(path)
}

// Always matches every path; the zero value of a nil Matcher should be
// treated as Always by callers that skip the nil check.
var Always Matcher = Func(func(string) bool { return true })

// CompileGlobs builds an All matcher from a list of doublestar patterns,
// returning Always if patterns is empty.
func CompileGlobs(patterns []string) Matcher {
	if len(patterns) == 0 {
		return Always
	}
	var all All
	for _, p := range patterns {
		all = append(all, Glob{Pattern: p})
	}
	return all
}
