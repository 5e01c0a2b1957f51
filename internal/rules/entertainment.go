package rules

import "github.com/eliteGoblin/focusd/focustrack/internal/domain"

// NewEntertainmentRules maps games and video sites to Entertainment.
// Title rules outrank the browser rules of the productivity set.
func NewEntertainmentRules() RuleSet {
	return &staticRuleSet{
		id: "entertainment",
		category: domain.Category{
			Name:              "Entertainment",
			ProductivityScore: 0.1,
			IsProductive:      false,
		},
		rules: []domain.CategoryRule{
			titleRule(KindRegex, `(chrome|chromium|firefox|safari|brave|edge)`, `youtube|netflix|twitch`, 60),
			appRule(KindRegex, `(steam|dota|game)`, 60),
			appRule(KindContains, "discord", 30),
			appRule(KindContains, "spotify", 30),
		},
	}
}
