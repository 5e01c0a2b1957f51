package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
)

type sessionRow struct {
	ID        int64          `db:"id"`
	StartTime string         `db:"start_time"`
	EndTime   sql.NullString `db:"end_time"`
	Status    string         `db:"status"`
	Notes     string         `db:"notes"`
	ProjectID sql.NullInt64  `db:"project_id"`
	PlannedMs int64          `db:"planned_ms"`
	ElapsedMs int64          `db:"elapsed_ms"`
	ResumedAt sql.NullString `db:"resumed_at"`
	CreatedAt string         `db:"created_at"`
	UpdatedAt string         `db:"updated_at"`
}

const sessionColumns = `id, start_time, end_time, status, notes, project_id, planned_ms, elapsed_ms, resumed_at, created_at, updated_at`

func (r sessionRow) toDomain() (domain.Session, error) {
	start, err := parseTime(r.StartTime)
	if err != nil {
		return domain.Session{}, err
	}
	end, err := parseNullTime(r.EndTime)
	if err != nil {
		return domain.Session{}, err
	}
	resumed, err := parseNullTime(r.ResumedAt)
	if err != nil {
		return domain.Session{}, err
	}
	created, _ := parseTime(r.CreatedAt)
	updated, _ := parseTime(r.UpdatedAt)
	return domain.Session{
		ID:        r.ID,
		Start:     start,
		End:       end,
		Status:    domain.SessionStatus(r.Status),
		Notes:     r.Notes,
		ProjectID: ptrInt64(r.ProjectID),
		Planned:   time.Duration(r.PlannedMs) * time.Millisecond,
		Elapsed:   time.Duration(r.ElapsedMs) * time.Millisecond,
		ResumedAt: resumed,
		CreatedAt: created,
		UpdatedAt: updated,
	}, nil
}

// ActiveSession returns the running or paused session, nil if none.
func (s *Store) ActiveSession(ctx context.Context) (*domain.Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+sessionColumns+` FROM pomodoro_records WHERE end_time IS NULL ORDER BY id DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("load active session", err)
	}
	return s.withTags(ctx, row)
}

// GetSession returns one session with its tags.
func (s *Store) GetSession(ctx context.Context, id int64) (*domain.Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, `SELECT `+sessionColumns+` FROM pomodoro_records WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, persistErr("get session", err)
	}
	return s.withTags(ctx, row)
}

func (s *Store) withTags(ctx context.Context, row sessionRow) (*domain.Session, error) {
	sess, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	tags, err := s.tagsFor(ctx, []int64{sess.ID})
	if err != nil {
		return nil, err
	}
	sess.Tags = tags[sess.ID]
	return &sess, nil
}

// CreateSession inserts a running session. The active-session check and the
// insert share one transaction so two starts cannot both succeed.
func (s *Store) CreateSession(ctx context.Context, sess domain.Session) (int64, error) {
	var id int64
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var active int
		if err := tx.GetContext(ctx, &active, `SELECT COUNT(*) FROM pomodoro_records WHERE end_time IS NULL`); err != nil {
			return err
		}
		if active > 0 {
			return fmt.Errorf("another session is active: %w", domain.ErrConflict)
		}
		now := s.now()
		res, err := tx.ExecContext(ctx, `
			INSERT INTO pomodoro_records
				(start_time, end_time, status, notes, project_id, planned_ms, elapsed_ms, resumed_at, created_at, updated_at)
			VALUES (?, NULL, ?, ?, ?, ?, ?, ?, ?, ?)`,
			formatTime(sess.Start), string(sess.Status), sess.Notes, nullInt64(sess.ProjectID),
			sess.Planned.Milliseconds(), sess.Elapsed.Milliseconds(), formatNullTime(sess.ResumedAt), now, now)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, persistErr("create session", err)
	}
	return id, nil
}

// UpdateSession writes the mutable session columns guarded by the expected status.
func (s *Store) UpdateSession(ctx context.Context, sess domain.Session, expected domain.SessionStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pomodoro_records
		SET end_time = ?, status = ?, notes = ?, elapsed_ms = ?, resumed_at = ?, updated_at = ?
		WHERE id = ? AND status = ? AND end_time IS NULL`,
		formatNullTime(sess.End), string(sess.Status), sess.Notes, sess.Elapsed.Milliseconds(),
		formatNullTime(sess.ResumedAt), s.now(), sess.ID, string(expected))
	if err != nil {
		return persistErr("update session", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %d is no longer %s: %w", sess.ID, expected, domain.ErrConflict)
	}
	return nil
}

// AttachTag links tag to a non-terminal session, creating the tag on first use.
func (s *Store) AttachTag(ctx context.Context, sessionID int64, tag string) error {
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var status string
		err := tx.GetContext(ctx, &status, `SELECT status FROM pomodoro_records WHERE id = ?`, sessionID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("session %d: %w", sessionID, domain.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if domain.SessionStatus(status).IsTerminal() {
			return fmt.Errorf("session %d is %s: %w", sessionID, status, domain.ErrConflict)
		}

		now := s.now()
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO tags (name, color, created_at) VALUES (?, '', ?)`, tag, now); err != nil {
			return err
		}
		var tagID int64
		if err := tx.GetContext(ctx, &tagID, `SELECT id FROM tags WHERE name = ?`, tag); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO pomodoro_tags (pomodoro_id, tag_id, created_at) VALUES (?, ?, ?)`,
			sessionID, tagID, now)
		return err
	})
	return persistErr("attach tag", err)
}

// ListSessions returns sessions that started inside r, with tags.
func (s *Store) ListSessions(ctx context.Context, r domain.TimeRange) ([]domain.Session, error) {
	var rows []sessionRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT `+sessionColumns+` FROM pomodoro_records
		WHERE start_time >= ? AND start_time < ?
		ORDER BY start_time, id`,
		formatTime(r.From), formatTime(r.To)); err != nil {
		return nil, persistErr("list sessions", err)
	}
	if len(rows) == 0 {
		return []domain.Session{}, nil
	}

	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	tags, err := s.tagsFor(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Session, 0, len(rows))
	for _, row := range rows {
		sess, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		sess.Tags = tags[sess.ID]
		out = append(out, sess)
	}
	return out, nil
}

// CountSessionsEnded counts terminal sessions whose end falls in r.
func (s *Store) CountSessionsEnded(ctx context.Context, r domain.TimeRange) (int, int, error) {
	var counts struct {
		Completed   int `db:"completed"`
		Interrupted int `db:"interrupted"`
	}
	err := s.db.GetContext(ctx, &counts, `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0) AS completed,
			COALESCE(SUM(CASE WHEN status = 'interrupted' THEN 1 ELSE 0 END), 0) AS interrupted
		FROM pomodoro_records
		WHERE end_time IS NOT NULL AND end_time >= ? AND end_time < ?`,
		formatTime(r.From), formatTime(r.To))
	if err != nil {
		return 0, 0, persistErr("count sessions", err)
	}
	return counts.Completed, counts.Interrupted, nil
}

func (s *Store) tagsFor(ctx context.Context, sessionIDs []int64) (map[int64][]string, error) {
	query, args, err := sqlx.In(`
		SELECT pt.pomodoro_id AS pomodoro_id, t.name AS name
		FROM pomodoro_tags pt JOIN tags t ON t.id = pt.tag_id
		WHERE pt.pomodoro_id IN (?)
		ORDER BY t.name`, sessionIDs)
	if err != nil {
		return nil, fmt.Errorf("build tag query: %w", err)
	}
	var rows []struct {
		PomodoroID int64  `db:"pomodoro_id"`
		Name       string `db:"name"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, persistErr("load session tags", err)
	}
	out := make(map[int64][]string, len(sessionIDs))
	for _, r := range rows {
		out[r.PomodoroID] = append(out[r.PomodoroID], r.Name)
	}
	return out, nil
}
