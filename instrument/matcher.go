package instrument

import "strings"

// MethodMatcher decides whether a method is instrumented. owner is the
// internal class name, such as "com/acme/Service".
type MethodMatcher interface {
	Match(owner, name string) bool
}

// ExactMatcher matches exact "owner.name" or just "name" patterns.
type ExactMatcher struct {
	patterns map[string]bool
}

// NewExactMatcher creates a matcher from a list of patterns.
// Patterns can be "name" (matches any class) or "owner.name" (exact match).
func NewExactMatcher(patterns []string) *ExactMatcher {
	m := &ExactMatcher{patterns: make(map[string]bool)}
	for _, p := range patterns {
		m.patterns[p] = true
	}
	return m
}

// Match returns true if the method matches any pattern.
func (m *ExactMatcher) Match(owner, name string) bool {
	if m.patterns[owner+"."+name] {
		return true
	}
	return m.patterns[name]
}

// WildcardMatcher matches method patterns with wildcard support.
//
// Supports patterns like:
//   - "com/acme/Service.run" - exact match
//   - "run" - matches the method in any class
//   - "com/acme/Service.*" - matches all methods of a class
//   - "com/acme/*" - matches all methods of classes in a package
//   - "*" - matches everything
type WildcardMatcher struct {
	exact     map[string]bool // exact "owner.name" matches
	names     map[string]bool // unqualified "name" matches
	ownerWild map[string]bool // "owner.*" matches
	packages  map[string]bool // "pkg/*" matches
	matchAll  bool            // "*" matches everything
}

// NewWildcardMatcher creates a matcher with wildcard support.
func NewWildcardMatcher(patterns []string) *WildcardMatcher {
	m := &WildcardMatcher{
		exact:     make(map[string]bool),
		names:     make(map[string]bool),
		ownerWild: make(map[string]bool),
		packages:  make(map[string]bool),
	}
	for _, p := range patterns {
		switch {
		case p == "*":
			m.matchAll = true
		case strings.HasSuffix(p, ".*"):
			m.ownerWild[strings.TrimSuffix(p, ".*")] = true
		case strings.HasSuffix(p, "/*"):
			m.packages[strings.TrimSuffix(p, "/*")] = true
		case strings.Contains(p, "."):
			m.exact[p] = true
		default:
			m.names[p] = true
		}
	}
	return m
}

// Match returns true if the method matches any pattern.
func (m *WildcardMatcher) Match(owner, name string) bool {
	if m.matchAll {
		return true
	}
	if m.ownerWild[owner] {
		return true
	}
	if i := strings.LastIndexByte(owner, '/'); i >= 0 && m.packages[owner[:i]] {
		return true
	}
	if m.exact[owner+"."+name] {
		return true
	}
	return m.names[name]
}

// CompositeMatcher combines multiple matchers.
type CompositeMatcher struct {
	matchers []MethodMatcher
}

// NewCompositeMatcher creates a matcher that matches if any sub-matcher matches.
func NewCompositeMatcher(matchers ...MethodMatcher) *CompositeMatcher {
	return &CompositeMatcher{matchers: matchers}
}

// Match returns true if any sub-matcher matches.
func (m *CompositeMatcher) Match(owner, name string) bool {
	for _, matcher := range m.matchers {
		if matcher != nil && matcher.Match(owner, name) {
			return true
		}
	}
	return false
}
