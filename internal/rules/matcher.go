// Package rules holds the category matching strategies and the default
// category rule sets. Both are compile-time registries.
package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Rule kinds.
const (
	KindExact    = "exact"
	KindContains = "contains"
	KindPrefix   = "prefix"
	KindRegex    = "regex"
)

// Matcher decides whether an app name or window title matches a pattern.
type Matcher interface {
	Match(value string) bool
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(value string) bool

// Match implements Matcher.
func (f MatcherFunc) Match(value string) bool {
	return f(value)
}

// MatcherFactory compiles a pattern into a Matcher.
type MatcherFactory func(pattern string) (Matcher, error)

// MatcherRegistry maps rule kinds to matcher factories.
type MatcherRegistry struct {
	factories map[string]MatcherFactory
}

// NewMatcherRegistry creates a registry with the built-in kinds.
// All built-in kinds are case-insensitive.
func NewMatcherRegistry() *MatcherRegistry {
	r := &MatcherRegistry{factories: make(map[string]MatcherFactory)}
	r.Register(KindExact, func(pattern string) (Matcher, error) {
		return MatcherFunc(func(v string) bool { return strings.EqualFold(v, pattern) }), nil
	})
	r.Register(KindContains, func(pattern string) (Matcher, error) {
		p := strings.ToLower(pattern)
		return MatcherFunc(func(v string) bool { return strings.Contains(strings.ToLower(v), p) }), nil
	})
	r.Register(KindPrefix, func(pattern string) (Matcher, error) {
		p := strings.ToLower(pattern)
		return MatcherFunc(func(v string) bool { return strings.HasPrefix(strings.ToLower(v), p) }), nil
	})
	r.Register(KindRegex, func(pattern string) (Matcher, error) {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, err
		}
		return MatcherFunc(re.MatchString), nil
	})
	return r
}

// Register adds or replaces a kind.
func (r *MatcherRegistry) Register(kind string, factory MatcherFactory) {
	r.factories[kind] = factory
}

// Compile builds a matcher for kind and pattern.
func (r *MatcherRegistry) Compile(kind, pattern string) (Matcher, error) {
	factory, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("unknown rule kind %q", kind)
	}
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("empty %s pattern", kind)
	}
	m, err := factory(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid %s pattern %q: %w", kind, pattern, err)
	}
	return m, nil
}

// Kinds returns the registered kinds, sorted.
func (r *MatcherRegistry) Kinds() []string {
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
