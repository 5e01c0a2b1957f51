package rules

import "github.com/eliteGoblin/focusd/focustrack/internal/domain"

// NewDevelopmentRules maps editors, IDEs and terminals to Development.
func NewDevelopmentRules() RuleSet {
	return &staticRuleSet{
		id: "development",
		category: domain.Category{
			Name:              "Development",
			ProductivityScore: 0.9,
			IsProductive:      true,
		},
		rules: []domain.CategoryRule{
			appRule(KindExact, "code", 50),
			appRule(KindContains, "visual studio", 40),
			appRule(KindRegex, `^(goland|idea|pycharm|webstorm|clion|rider)`, 40),
			appRule(KindRegex, `^(n?vim|emacs|sublime_text|zed)$`, 40),
			appRule(KindRegex, `^(gnome-terminal|konsole|alacritty|kitty|wezterm|iterm2|terminal)`, 30),
			appRule(KindExact, "xcode", 40),
		},
	}
}
