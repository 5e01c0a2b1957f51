package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
	"github.com/eliteGoblin/focusd/focustrack/internal/rules"
)

// Classification is the result of classifying one app/window.
type Classification struct {
	CategoryID *int64
	Category   string
	Score      float64
	Productive bool
}

// IntervalClassifier classifies activity; satisfied by *Classifier.
type IntervalClassifier interface {
	Classify(app, title string) Classification
}

type compiledRule struct {
	rule     domain.CategoryRule
	app      rules.Matcher
	title    rules.Matcher // nil when the rule has no title pattern
	category domain.Category
}

type classifierSnapshot struct {
	rules []compiledRule
}

// Classifier maps app/window pairs to categories. Lookups read an immutable
// snapshot; Reload builds a new one and swaps it in atomically.
type Classifier struct {
	store    domain.CategoryStore
	matchers *rules.MatcherRegistry
	logger   *zap.Logger

	snapshot atomic.Pointer[classifierSnapshot]
	reloadMu sync.Mutex
}

// NewClassifier creates a classifier with an empty mapping. Call Reload to load rules.
func NewClassifier(store domain.CategoryStore, matchers *rules.MatcherRegistry, logger *zap.Logger) *Classifier {
	c := &Classifier{store: store, matchers: matchers, logger: logger}
	c.snapshot.Store(&classifierSnapshot{})
	return c
}

// Classify returns the first matching rule's category. Unknown apps are
// neutral: score 0, no category.
func (c *Classifier) Classify(app, title string) Classification {
	snap := c.snapshot.Load()
	for _, cr := range snap.rules {
		if !cr.app.Match(app) {
			continue
		}
		if cr.title != nil && !cr.title.Match(title) {
			continue
		}
		id := cr.category.ID
		return Classification{
			CategoryID: &id,
			Category:   cr.category.Name,
			Score:      cr.category.ProductivityScore,
			Productive: cr.category.IsProductive,
		}
	}
	return Classification{}
}

// RuleCount returns the number of active compiled rules.
func (c *Classifier) RuleCount() int {
	return len(c.snapshot.Load().rules)
}

// Reload rebuilds the mapping from the store. Rules that do not compile
// are skipped with a warning; the previous snapshot stays on store errors.
func (c *Classifier) Reload(ctx context.Context) error {
	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()

	categories, err := c.store.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("failed to load categories: %w", err)
	}
	ruleRows, err := c.store.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	byID := make(map[int64]domain.Category, len(categories))
	for _, cat := range categories {
		byID[cat.ID] = cat
	}

	snap := &classifierSnapshot{rules: make([]compiledRule, 0, len(ruleRows))}
	for _, r := range ruleRows {
		cat, ok := byID[r.CategoryID]
		if !ok {
			continue
		}
		appMatcher, err := c.matchers.Compile(r.Kind, r.AppPattern)
		if err != nil {
			c.logger.Warn("skipping category rule", zap.Int64("rule_id", r.ID), zap.Error(err))
			continue
		}
		var titleMatcher rules.Matcher
		if strings.TrimSpace(r.TitlePattern) != "" {
			titleMatcher, err = c.matchers.Compile(r.Kind, r.TitlePattern)
			if err != nil {
				c.logger.Warn("skipping category rule", zap.Int64("rule_id", r.ID), zap.Error(err))
				continue
			}
		}
		snap.rules = append(snap.rules, compiledRule{rule: r, app: appMatcher, title: titleMatcher, category: cat})
	}

	c.snapshot.Store(snap)
	c.logger.Debug("classifier reloaded",
		zap.Int("categories", len(categories)),
		zap.Int("rules", len(snap.rules)))
	return nil
}

// Categories lists stored categories.
func (c *Classifier) Categories(ctx context.Context) ([]domain.Category, error) {
	return c.store.ListCategories(ctx)
}

// Rules lists stored rules in evaluation order.
func (c *Classifier) Rules(ctx context.Context) ([]domain.CategoryRule, error) {
	return c.store.ListRules(ctx)
}

// AddCategory creates a category and reloads.
func (c *Classifier) AddCategory(ctx context.Context, cat domain.Category) (int64, error) {
	cat.Name = strings.TrimSpace(cat.Name)
	if cat.Name == "" {
		return 0, fmt.Errorf("category name is required")
	}
	id, err := c.store.CreateCategory(ctx, cat)
	if err != nil {
		return 0, err
	}
	return id, c.Reload(ctx)
}

// DeleteCategory removes a category by name and reloads. Intervals that
// referenced it keep their rows with no category.
func (c *Classifier) DeleteCategory(ctx context.Context, name string) error {
	cat, err := c.store.GetCategoryByName(ctx, name)
	if err != nil {
		return err
	}
	if err := c.store.DeleteCategory(ctx, cat.ID); err != nil {
		return err
	}
	return c.Reload(ctx)
}

// AddRule validates and stores a rule for the named category, then reloads.
func (c *Classifier) AddRule(ctx context.Context, categoryName string, rule domain.CategoryRule) (int64, error) {
	if _, err := c.matchers.Compile(rule.Kind, rule.AppPattern); err != nil {
		return 0, err
	}
	if rule.TitlePattern != "" {
		if _, err := c.matchers.Compile(rule.Kind, rule.TitlePattern); err != nil {
			return 0, err
		}
	}
	cat, err := c.store.GetCategoryByName(ctx, categoryName)
	if err != nil {
		return 0, err
	}
	rule.CategoryID = cat.ID
	id, err := c.store.CreateRule(ctx, rule)
	if err != nil {
		return 0, err
	}
	return id, c.Reload(ctx)
}

// DeleteRule removes a rule and reloads.
func (c *Classifier) DeleteRule(ctx context.Context, id int64) error {
	if err := c.store.DeleteRule(ctx, id); err != nil {
		return err
	}
	return c.Reload(ctx)
}

// SeedResult reports what Seed installed.
type SeedResult struct {
	CategoriesCreated int
	RulesCreated      int
}

// Seed installs rule sets from reg (all of them when ids is empty).
// Existing categories are reused and identical rules are not duplicated,
// so seeding twice is a no-op.
func (c *Classifier) Seed(ctx context.Context, reg *rules.Registry, ids ...string) (SeedResult, error) {
	var res SeedResult
	sets := reg.GetAll()
	if len(ids) > 0 {
		sets = sets[:0]
		for _, id := range ids {
			set, ok := reg.Get(id)
			if !ok {
				return res, fmt.Errorf("unknown rule set %q (available: %s)", id, strings.Join(reg.List(), ", "))
			}
			sets = append(sets, set)
		}
	}

	existing, err := c.store.ListRules(ctx)
	if err != nil {
		return res, err
	}
	type ruleKey struct {
		category         int64
		kind, app, title string
	}
	seen := make(map[ruleKey]bool, len(existing))
	for _, r := range existing {
		seen[ruleKey{r.CategoryID, r.Kind, r.AppPattern, r.TitlePattern}] = true
	}

	for _, set := range sets {
		def := set.Category()
		catID, created, err := c.ensureCategory(ctx, def)
		if err != nil {
			return res, err
		}
		if created {
			res.CategoriesCreated++
		}
		for _, r := range set.Rules() {
			key := ruleKey{catID, r.Kind, r.AppPattern, r.TitlePattern}
			if seen[key] {
				continue
			}
			r.CategoryID = catID
			if _, err := c.store.CreateRule(ctx, r); err != nil {
				return res, err
			}
			seen[key] = true
			res.RulesCreated++
		}
	}

	c.logger.Info("category rules seeded",
		zap.Int("categories_created", res.CategoriesCreated),
		zap.Int("rules_created", res.RulesCreated))
	return res, c.Reload(ctx)
}

func (c *Classifier) ensureCategory(ctx context.Context, def domain.Category) (int64, bool, error) {
	cat, err := c.store.GetCategoryByName(ctx, def.Name)
	if err == nil {
		return cat.ID, false, nil
	}
	if !isNotFound(err) {
		return 0, false, err
	}
	id, err := c.store.CreateCategory(ctx, def)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

var _ IntervalClassifier = (*Classifier)(nil)
