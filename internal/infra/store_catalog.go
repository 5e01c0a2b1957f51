package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
)

type projectRow struct {
	ID          int64  `db:"id"`
	Name        string `db:"name"`
	Description string `db:"description"`
	Color       string `db:"color"`
	CreatedAt   string `db:"created_at"`
	UpdatedAt   string `db:"updated_at"`
}

type tagRow struct {
	ID        int64  `db:"id"`
	Name      string `db:"name"`
	Color     string `db:"color"`
	CreatedAt string `db:"created_at"`
}

func (r projectRow) toDomain() domain.Project {
	created, _ := parseTime(r.CreatedAt)
	updated, _ := parseTime(r.UpdatedAt)
	return domain.Project{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Color:       r.Color,
		CreatedAt:   created,
		UpdatedAt:   updated,
	}
}

// ListProjects returns projects ordered by name.
func (s *Store) ListProjects(ctx context.Context) ([]domain.Project, error) {
	var rows []projectRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT id, name, description, color, created_at, updated_at FROM projects ORDER BY name`); err != nil {
		return nil, persistErr("list projects", err)
	}
	out := make([]domain.Project, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// GetProjectByName returns domain.ErrNotFound when missing.
func (s *Store) GetProjectByName(ctx context.Context, name string) (*domain.Project, error) {
	var row projectRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, name, description, color, created_at, updated_at FROM projects WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %q: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return nil, persistErr("get project", err)
	}
	p := row.toDomain()
	return &p, nil
}

// CreateProject inserts a project; names are unique.
func (s *Store) CreateProject(ctx context.Context, p domain.Project) (int64, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (name, description, color, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		p.Name, p.Description, p.Color, now, now)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("project %q already exists: %w", p.Name, domain.ErrConflict)
	}
	if err != nil {
		return 0, persistErr("create project", err)
	}
	return res.LastInsertId()
}

// DeleteProject removes a project; its sessions keep a NULL project.
func (s *Store) DeleteProject(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return persistErr("delete project", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListTags returns tags ordered by name.
func (s *Store) ListTags(ctx context.Context) ([]domain.Tag, error) {
	var rows []tagRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, name, color, created_at FROM tags ORDER BY name`); err != nil {
		return nil, persistErr("list tags", err)
	}
	out := make([]domain.Tag, len(rows))
	for i, r := range rows {
		created, _ := parseTime(r.CreatedAt)
		out[i] = domain.Tag{ID: r.ID, Name: r.Name, Color: r.Color, CreatedAt: created}
	}
	return out, nil
}

// CreateTag inserts a tag; names are unique.
func (s *Store) CreateTag(ctx context.Context, t domain.Tag) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tags (name, color, created_at) VALUES (?, ?, ?)`, t.Name, t.Color, s.now())
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("tag %q already exists: %w", t.Name, domain.ErrConflict)
	}
	if err != nil {
		return 0, persistErr("create tag", err)
	}
	return res.LastInsertId()
}

// DeleteTag removes a tag and its session associations.
func (s *Store) DeleteTag(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	if err != nil {
		return persistErr("delete tag", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tag %d: %w", id, domain.ErrNotFound)
	}
	return nil
}
