package index

import "strings"

// Matcher decides whether a cached name satisfies a query.
type Matcher interface {
	Match(name, query string) bool
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(name, query string) bool

func (f MatcherFunc) Match(name, query string) bool { return f(name, query) }

var (
	// ExactMatcher is used for navigation.
	ExactMatcher Matcher = MatcherFunc(func(name, query string) bool {
		return name == query
	})

	// PrefixMatcher is the case-insensitive prefix match used by content assist.
	// An empty query matches everything.
	PrefixMatcher Matcher = MatcherFunc(func(name, query string) bool {
		return len(name) >= len(query) && strings.EqualFold(name[:len(query)], query)
	})
)
