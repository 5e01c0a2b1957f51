package rules

import "github.com/eliteGoblin/focusd/focustrack/internal/domain"

// NewProductivityRules maps browsers and office apps to Productivity.
// Browser tabs showing entertainment are caught first by the
// entertainment set's higher-priority title rules.
func NewProductivityRules() RuleSet {
	return &staticRuleSet{
		id: "productivity",
		category: domain.Category{
			Name:              "Productivity",
			ProductivityScore: 0.7,
			IsProductive:      true,
		},
		rules: []domain.CategoryRule{
			appRule(KindRegex, `(chrome|chromium|firefox|safari|brave|edge)`, 10),
			appRule(KindRegex, `(winword|word|excel|powerpnt|libreoffice|soffice)`, 20),
			appRule(KindContains, "notion", 20),
			appRule(KindContains, "obsidian", 20),
		},
	}
}
