package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcherRegistry_Kinds(t *testing.T) {
	r := NewMatcherRegistry()
	assert.Equal(t, []string{KindContains, KindExact, KindPrefix, KindRegex}, r.Kinds())
}

func TestMatcherRegistry_Compile(t *testing.T) {
	r := NewMatcherRegistry()

	tests := []struct {
		name    string
		kind    string
		pattern string
		value   string
		want    bool
	}{
		{"exact is case-insensitive", KindExact, "Code", "code", true},
		{"exact rejects substring", KindExact, "code", "vscode", false},
		{"contains", KindContains, "studio", "Visual Studio Code", true},
		{"contains miss", KindContains, "slack", "firefox", false},
		{"prefix", KindPrefix, "gnome-", "gnome-terminal-server", true},
		{"prefix miss", KindPrefix, "term", "gnome-terminal", false},
		{"regex", KindRegex, `^(n?vim|emacs)$`, "NVIM", true},
		{"regex anchored miss", KindRegex, `^vim$`, "gvim", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := r.Compile(tt.kind, tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Match(tt.value))
		})
	}
}

func TestMatcherRegistry_CompileErrors(t *testing.T) {
	r := NewMatcherRegistry()

	_, err := r.Compile("glob", "*.go")
	assert.ErrorContains(t, err, "unknown rule kind")

	_, err = r.Compile(KindRegex, "(unclosed")
	assert.Error(t, err)

	_, err = r.Compile(KindExact, "  ")
	assert.ErrorContains(t, err, "empty")
}

func TestMatcherRegistry_RegisterCustomKind(t *testing.T) {
	r := NewMatcherRegistry()
	r.Register("suffix", func(pattern string) (Matcher, error) {
		return MatcherFunc(func(v string) bool { return len(v) >= len(pattern) && v[len(v)-len(pattern):] == pattern }), nil
	})

	m, err := r.Compile("suffix", ".app")
	require.NoError(t, err)
	assert.True(t, m.Match("Safari.app"))
	assert.Contains(t, r.Kinds(), "suffix")
}

func TestRegistry_Defaults(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"communication", "development", "entertainment", "productivity"}, r.List())

	dev, ok := r.Get("development")
	require.True(t, ok)
	assert.Equal(t, "Development", dev.Category().Name)
	assert.True(t, dev.Category().IsProductive)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_DefaultRulesCompile(t *testing.T) {
	matchers := NewMatcherRegistry()
	for _, set := range NewRegistry().GetAll() {
		cat := set.Category()
		assert.GreaterOrEqual(t, cat.ProductivityScore, 0.0, set.ID())
		assert.LessOrEqual(t, cat.ProductivityScore, 1.0, set.ID())
		require.NotEmpty(t, set.Rules(), set.ID())

		for _, rule := range set.Rules() {
			_, err := matchers.Compile(rule.Kind, rule.AppPattern)
			assert.NoError(t, err, "%s: %s", set.ID(), rule.AppPattern)
			if rule.TitlePattern != "" {
				_, err := matchers.Compile(rule.Kind, rule.TitlePattern)
				assert.NoError(t, err, "%s: %s", set.ID(), rule.TitlePattern)
			}
		}
	}
}

func TestRuleSet_RulesReturnsCopy(t *testing.T) {
	set := NewCommunicationRules()
	rules := set.Rules()
	rules[0].AppPattern = "mutated"

	assert.NotEqual(t, "mutated", set.Rules()[0].AppPattern)
}
