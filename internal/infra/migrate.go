package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

type migration struct {
	version     int
	description string
	stmts       []string
}

var migrations = []migration{
	{
		version:     1,
		description: "core schema",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS categories (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL UNIQUE,
				productivity_score REAL NOT NULL DEFAULT 0 CHECK (productivity_score >= 0 AND productivity_score <= 1),
				is_productive INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS app_usage (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				app_name TEXT NOT NULL,
				window_title TEXT NOT NULL DEFAULT '',
				start_time TEXT NOT NULL,
				end_time TEXT NOT NULL,
				category_id INTEGER REFERENCES categories(id) ON DELETE SET NULL,
				productivity_score REAL NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				CHECK (end_time > start_time)
			)`,
			`CREATE TABLE IF NOT EXISTS projects (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL UNIQUE,
				description TEXT NOT NULL DEFAULT '',
				color TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS tags (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL UNIQUE,
				color TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS pomodoro_records (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				start_time TEXT NOT NULL,
				end_time TEXT,
				status TEXT NOT NULL CHECK (status IN ('running', 'paused', 'completed', 'interrupted')),
				notes TEXT NOT NULL DEFAULT '',
				project_id INTEGER REFERENCES projects(id) ON DELETE SET NULL,
				planned_ms INTEGER NOT NULL,
				elapsed_ms INTEGER NOT NULL DEFAULT 0,
				resumed_at TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS pomodoro_tags (
				pomodoro_id INTEGER NOT NULL REFERENCES pomodoro_records(id) ON DELETE CASCADE,
				tag_id INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
				created_at TEXT NOT NULL,
				PRIMARY KEY (pomodoro_id, tag_id)
			)`,
			`CREATE TABLE IF NOT EXISTS daily_summaries (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				date TEXT NOT NULL UNIQUE,
				total_work_ms INTEGER NOT NULL DEFAULT 0,
				productive_ms INTEGER NOT NULL DEFAULT 0,
				completed_pomodoros INTEGER NOT NULL DEFAULT 0,
				interrupted_pomodoros INTEGER NOT NULL DEFAULT 0,
				most_used_app TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS meta (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`,
		},
	},
	{
		version:     2,
		description: "category rules",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS category_rules (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				category_id INTEGER NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
				kind TEXT NOT NULL,
				app_pattern TEXT NOT NULL,
				title_pattern TEXT NOT NULL DEFAULT '',
				priority INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL
			)`,
		},
	},
	{
		version:     3,
		description: "query indexes",
		stmts: []string{
			`CREATE INDEX IF NOT EXISTS idx_app_usage_start ON app_usage(start_time)`,
			`CREATE INDEX IF NOT EXISTS idx_app_usage_end ON app_usage(end_time)`,
			`CREATE INDEX IF NOT EXISTS idx_app_usage_category ON app_usage(category_id)`,
			`CREATE INDEX IF NOT EXISTS idx_pomodoro_end ON pomodoro_records(end_time)`,
			`CREATE INDEX IF NOT EXISTS idx_pomodoro_status ON pomodoro_records(status)`,
			`CREATE INDEX IF NOT EXISTS idx_rules_priority ON category_rules(priority DESC, id)`,
		},
	},
}

// SchemaVersion is the latest migration version.
func SchemaVersion() int {
	return migrations[len(migrations)-1].version
}

// migrate applies every pending migration in one transaction.
// A recorded migration whose description differs from the binary's is an error.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var applied []int
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for _, m := range migrations {
			var desc string
			err := tx.GetContext(ctx, &desc, `SELECT description FROM schema_migrations WHERE version = ?`, m.version)
			switch {
			case err == nil:
				if desc != m.description {
					return fmt.Errorf("migration %d recorded as %q, expected %q", m.version, desc, m.description)
				}
				continue
			case !errors.Is(err, sql.ErrNoRows):
				return fmt.Errorf("read migration %d: %w", m.version, err)
			}

			for _, stmt := range m.stmts {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("migration %d (%s): %w", m.version, m.description, err)
				}
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)`,
				m.version, m.description, s.now()); err != nil {
				return fmt.Errorf("record migration %d: %w", m.version, err)
			}
			applied = append(applied, m.version)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		s.logger.Info("applied schema migrations", zap.Ints("versions", applied))
	}
	return nil
}

// AppliedMigrations returns recorded migration versions in order.
func (s *Store) AppliedMigrations(ctx context.Context) ([]int, error) {
	var versions []int
	if err := s.db.SelectContext(ctx, &versions, `SELECT version FROM schema_migrations ORDER BY version`); err != nil {
		return nil, err
	}
	return versions, nil
}
