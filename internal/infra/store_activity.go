package infra

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
)

const checkpointKey = "sampler_checkpoint"

type intervalRow struct {
	ID                int64         `db:"id"`
	AppName           string        `db:"app_name"`
	WindowTitle       string        `db:"window_title"`
	StartTime         string        `db:"start_time"`
	EndTime           string        `db:"end_time"`
	CategoryID        sql.NullInt64 `db:"category_id"`
	ProductivityScore float64       `db:"productivity_score"`
}

func (r intervalRow) toDomain() (domain.ActivityInterval, error) {
	start, err := parseTime(r.StartTime)
	if err != nil {
		return domain.ActivityInterval{}, err
	}
	end, err := parseTime(r.EndTime)
	if err != nil {
		return domain.ActivityInterval{}, err
	}
	return domain.ActivityInterval{
		ID:                r.ID,
		AppName:           r.AppName,
		WindowTitle:       r.WindowTitle,
		Start:             start,
		End:               end,
		CategoryID:        ptrInt64(r.CategoryID),
		ProductivityScore: r.ProductivityScore,
	}, nil
}

const intervalColumns = `id, app_name, window_title, start_time, end_time, category_id, productivity_score`

// InsertInterval writes one closed interval. A category deleted since
// classification is stored as NULL instead of failing the foreign key.
func (s *Store) InsertInterval(ctx context.Context, iv domain.ActivityInterval) (int64, error) {
	if !iv.End.After(iv.Start) {
		return 0, fmt.Errorf("invalid interval for %q: end %s not after start %s", iv.AppName, iv.End, iv.Start)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO app_usage (app_name, window_title, start_time, end_time, category_id, productivity_score, created_at)
		VALUES (?, ?, ?, ?, (SELECT id FROM categories WHERE id = ?), ?, ?)`,
		iv.AppName, iv.WindowTitle, formatTime(iv.Start), formatTime(iv.End),
		nullInt64(iv.CategoryID), iv.ProductivityScore, s.now())
	if err != nil {
		return 0, persistErr("insert interval", err)
	}
	return res.LastInsertId()
}

// HasIntervalStartingAt reports whether app already has an interval starting at start.
func (s *Store) HasIntervalStartingAt(ctx context.Context, app string, start time.Time) (bool, error) {
	var n int
	if err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM app_usage WHERE app_name = ? AND start_time = ?`, app, formatTime(start)); err != nil {
		return false, persistErr("find interval", err)
	}
	return n > 0, nil
}

// ListActivity returns intervals overlapping r ordered by start time.
func (s *Store) ListActivity(ctx context.Context, r domain.TimeRange) ([]domain.ActivityInterval, error) {
	return s.IntervalsOverlapping(ctx, r)
}

// IntervalsOverlapping returns intervals that intersect [r.From, r.To).
func (s *Store) IntervalsOverlapping(ctx context.Context, r domain.TimeRange) ([]domain.ActivityInterval, error) {
	var rows []intervalRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+intervalColumns+` FROM app_usage
		WHERE start_time < ? AND end_time > ?
		ORDER BY start_time, id`,
		formatTime(r.To), formatTime(r.From))
	if err != nil {
		return nil, persistErr("list intervals", err)
	}
	out := make([]domain.ActivityInterval, 0, len(rows))
	for _, row := range rows {
		iv, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, nil
}

// FirstActivity returns the earliest interval start, nil when empty.
func (s *Store) FirstActivity(ctx context.Context) (*time.Time, error) {
	var first sql.NullString
	if err := s.db.GetContext(ctx, &first, `SELECT MIN(start_time) FROM app_usage`); err != nil {
		return nil, persistErr("first activity", err)
	}
	return parseNullTime(first)
}

// SaveCheckpoint stores the open interval snapshot.
func (s *Store) SaveCheckpoint(ctx context.Context, cp domain.SamplerCheckpoint) error {
	return s.putMeta(ctx, checkpointKey, cp)
}

// LoadCheckpoint returns the stored snapshot, nil when none.
func (s *Store) LoadCheckpoint(ctx context.Context) (*domain.SamplerCheckpoint, error) {
	var cp domain.SamplerCheckpoint
	found, err := s.getMeta(ctx, checkpointKey, &cp)
	if err != nil || !found {
		return nil, err
	}
	return &cp, nil
}

// ClearCheckpoint removes the snapshot.
func (s *Store) ClearCheckpoint(ctx context.Context) error {
	return s.deleteMeta(ctx, checkpointKey)
}

func (s *Store) putMeta(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, key, string(data))
	return persistErr("write "+key, err)
}

func (s *Store) getMeta(ctx context.Context, key string, v interface{}) (bool, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw, `SELECT value FROM meta WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, persistErr("read "+key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) deleteMeta(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM meta WHERE key = ?`, key)
	return persistErr("delete "+key, err)
}
