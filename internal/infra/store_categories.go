package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
)

type categoryRow struct {
	ID                int64   `db:"id"`
	Name              string  `db:"name"`
	ProductivityScore float64 `db:"productivity_score"`
	IsProductive      bool    `db:"is_productive"`
	CreatedAt         string  `db:"created_at"`
}

func (r categoryRow) toDomain() domain.Category {
	created, _ := parseTime(r.CreatedAt)
	return domain.Category{
		ID:                r.ID,
		Name:              r.Name,
		ProductivityScore: r.ProductivityScore,
		IsProductive:      r.IsProductive,
		CreatedAt:         created,
	}
}

type ruleRow struct {
	ID           int64  `db:"id"`
	CategoryID   int64  `db:"category_id"`
	Kind         string `db:"kind"`
	AppPattern   string `db:"app_pattern"`
	TitlePattern string `db:"title_pattern"`
	Priority     int    `db:"priority"`
}

// ListCategories returns all categories ordered by name.
func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var rows []categoryRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT id, name, productivity_score, is_productive, created_at FROM categories ORDER BY name`); err != nil {
		return nil, persistErr("list categories", err)
	}
	out := make([]domain.Category, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// GetCategoryByName returns domain.ErrNotFound when missing.
func (s *Store) GetCategoryByName(ctx context.Context, name string) (*domain.Category, error) {
	var row categoryRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, name, productivity_score, is_productive, created_at FROM categories WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %q: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return nil, persistErr("get category", err)
	}
	c := row.toDomain()
	return &c, nil
}

// CreateCategory inserts a category; names are unique.
func (s *Store) CreateCategory(ctx context.Context, c domain.Category) (int64, error) {
	if c.ProductivityScore < 0 || c.ProductivityScore > 1 {
		return 0, fmt.Errorf("productivity score %.2f outside [0, 1]", c.ProductivityScore)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (name, productivity_score, is_productive, created_at) VALUES (?, ?, ?, ?)`,
		c.Name, c.ProductivityScore, c.IsProductive, s.now())
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("category %q already exists: %w", c.Name, domain.ErrConflict)
	}
	if err != nil {
		return 0, persistErr("create category", err)
	}
	return res.LastInsertId()
}

// DeleteCategory removes a category. Its rules cascade; intervals keep their
// rows with category_id set to NULL.
func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return persistErr("delete category", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("category %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListRules returns rules in evaluation order: priority desc, then id.
func (s *Store) ListRules(ctx context.Context) ([]domain.CategoryRule, error) {
	var rows []ruleRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT id, category_id, kind, app_pattern, title_pattern, priority
		FROM category_rules ORDER BY priority DESC, id`); err != nil {
		return nil, persistErr("list rules", err)
	}
	out := make([]domain.CategoryRule, len(rows))
	for i, r := range rows {
		out[i] = domain.CategoryRule{
			ID:           r.ID,
			CategoryID:   r.CategoryID,
			Kind:         r.Kind,
			AppPattern:   r.AppPattern,
			TitlePattern: r.TitlePattern,
			Priority:     r.Priority,
		}
	}
	return out, nil
}

// CreateRule inserts a matching rule for an existing category.
func (s *Store) CreateRule(ctx context.Context, r domain.CategoryRule) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO category_rules (category_id, kind, app_pattern, title_pattern, priority, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.CategoryID, r.Kind, r.AppPattern, r.TitlePattern, r.Priority, s.now())
	if err != nil {
		return 0, persistErr("create rule", err)
	}
	return res.LastInsertId()
}

// DeleteRule removes one rule.
func (s *Store) DeleteRule(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM category_rules WHERE id = ?`, id)
	if err != nil {
		return persistErr("delete rule", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rule %d: %w", id, domain.ErrNotFound)
	}
	return nil
}
