package rules

import "github.com/eliteGoblin/focusd/focustrack/internal/domain"

// NewCommunicationRules maps chat and meeting apps to Communication.
func NewCommunicationRules() RuleSet {
	return &staticRuleSet{
		id: "communication",
		category: domain.Category{
			Name:              "Communication",
			ProductivityScore: 0.5,
			IsProductive:      false,
		},
		rules: []domain.CategoryRule{
			appRule(KindContains, "slack", 30),
			appRule(KindContains, "teams", 30),
			appRule(KindContains, "zoom", 30),
			appRule(KindRegex, `^(thunderbird|mail|outlook)$`, 30),
		},
	}
}
