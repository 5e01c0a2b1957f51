package rules

import (
	"sort"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
)

// RuleSet is a default category with the rules that feed it.
// Implementations are registered at compile time and installed by "category seed".
type RuleSet interface {
	// ID returns unique identifier (e.g., "development").
	ID() string

	// Category returns the category the rules map to.
	Category() domain.Category

	// Rules returns the matching rules; CategoryID is filled in on install.
	Rules() []domain.CategoryRule
}

// Registry holds the default rule sets.
type Registry struct {
	sets map[string]RuleSet
}

// NewRegistry creates a registry with all default rule sets.
func NewRegistry() *Registry {
	return NewRegistryWithSets(
		NewDevelopmentRules(),
		NewProductivityRules(),
		NewCommunicationRules(),
		NewEntertainmentRules(),
	)
}

// NewRegistryWithSets creates a registry with custom sets (for testing).
func NewRegistryWithSets(sets ...RuleSet) *Registry {
	r := &Registry{sets: make(map[string]RuleSet)}
	for _, s := range sets {
		r.Register(s)
	}
	return r
}

// Register adds a rule set.
func (r *Registry) Register(s RuleSet) {
	r.sets[s.ID()] = s
}

// Get returns a rule set by ID.
func (r *Registry) Get(id string) (RuleSet, bool) {
	s, ok := r.sets[id]
	return s, ok
}

// GetAll returns all rule sets ordered by ID.
func (r *Registry) GetAll() []RuleSet {
	out := make([]RuleSet, 0, len(r.sets))
	for _, s := range r.sets {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// List returns all rule set IDs, sorted.
func (r *Registry) List() []string {
	ids := make([]string, 0, len(r.sets))
	for id := range r.sets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// staticRuleSet is the shared implementation behind the default sets.
type staticRuleSet struct {
	id       string
	category domain.Category
	rules    []domain.CategoryRule
}

func (s *staticRuleSet) ID() string { return s.id }
func (s *staticRuleSet) Category() domain.Category { return s.category }
func (s *staticRuleSet) Rules() []domain.CategoryRule {
	return append([]domain.CategoryRule(nil), s.rules...)
}

func appRule(kind, pattern string, priority int) domain.CategoryRule {
	return domain.CategoryRule{Kind: kind, AppPattern: pattern, Priority: priority}
}

func titleRule(kind, app, title string, priority int) domain.CategoryRule {
	return domain.CategoryRule{Kind: kind, AppPattern: app, TitlePattern: title, Priority: priority}
}
