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

type summaryRow struct {
	Date                 string         `db:"date"`
	TotalWorkMs          int64          `db:"total_work_ms"`
	ProductiveMs         int64          `db:"productive_ms"`
	CompletedPomodoros   int            `db:"completed_pomodoros"`
	InterruptedPomodoros int            `db:"interrupted_pomodoros"`
	MostUsedApp          sql.NullString `db:"most_used_app"`
	CreatedAt            string         `db:"created_at"`
	UpdatedAt            string         `db:"updated_at"`
}

const summaryColumns = `date, total_work_ms, productive_ms, completed_pomodoros, interrupted_pomodoros, most_used_app, created_at, updated_at`

func (r summaryRow) toDomain() domain.DailySummary {
	created, _ := parseTime(r.CreatedAt)
	updated, _ := parseTime(r.UpdatedAt)
	return domain.DailySummary{
		Date:                 r.Date,
		TotalWorkTime:        time.Duration(r.TotalWorkMs) * time.Millisecond,
		ProductiveTime:       time.Duration(r.ProductiveMs) * time.Millisecond,
		CompletedPomodoros:   r.CompletedPomodoros,
		InterruptedPomodoros: r.InterruptedPomodoros,
		MostUsedApp:          r.MostUsedApp.String,
		CreatedAt:            created,
		UpdatedAt:            updated,
	}
}

// UpsertSummary stores sum keyed by date. An identical stored row is left
// untouched, so rerunning an aggregation is bit-identical.
func (s *Store) UpsertSummary(ctx context.Context, sum domain.DailySummary) (bool, error) {
	// Durations are stored in milliseconds; compare at that precision.
	sum.TotalWorkTime = sum.TotalWorkTime.Truncate(time.Millisecond)
	sum.ProductiveTime = sum.ProductiveTime.Truncate(time.Millisecond)

	changed := false
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var row summaryRow
		err := tx.GetContext(ctx, &row, `SELECT `+summaryColumns+` FROM daily_summaries WHERE date = ?`, sum.Date)
		switch {
		case err == nil:
			if row.toDomain().SameValues(sum) {
				return nil
			}
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		mostUsed := sql.NullString{String: sum.MostUsedApp, Valid: sum.MostUsedApp != ""}
		now := s.now()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO daily_summaries
				(date, total_work_ms, productive_ms, completed_pomodoros, interrupted_pomodoros, most_used_app, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(date) DO UPDATE SET
				total_work_ms = excluded.total_work_ms,
				productive_ms = excluded.productive_ms,
				completed_pomodoros = excluded.completed_pomodoros,
				interrupted_pomodoros = excluded.interrupted_pomodoros,
				most_used_app = excluded.most_used_app,
				updated_at = excluded.updated_at`,
			sum.Date, sum.TotalWorkTime.Milliseconds(), sum.ProductiveTime.Milliseconds(),
			sum.CompletedPomodoros, sum.InterruptedPomodoros, mostUsed, now, now)
		if err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, persistErr("upsert summary", err)
	}
	return changed, nil
}

// GetSummary returns domain.ErrNotFound when the day was never aggregated.
func (s *Store) GetSummary(ctx context.Context, date string) (*domain.DailySummary, error) {
	var row summaryRow
	err := s.db.GetContext(ctx, &row, `SELECT `+summaryColumns+` FROM daily_summaries WHERE date = ?`, date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("summary %s: %w", date, domain.ErrNotFound)
	}
	if err != nil {
		return nil, persistErr("get summary", err)
	}
	sum := row.toDomain()
	return &sum, nil
}

// ListSummaries returns summaries whose date falls in r, using r's location
// for the calendar dates.
func (s *Store) ListSummaries(ctx context.Context, r domain.TimeRange) ([]domain.DailySummary, error) {
	from := r.From.Format("2006-01-02")
	to := r.To.Format("2006-01-02")
	var rows []summaryRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT `+summaryColumns+` FROM daily_summaries WHERE date >= ? AND date < ? ORDER BY date`,
		from, to); err != nil {
		return nil, persistErr("list summaries", err)
	}
	out := make([]domain.DailySummary, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// LatestSummaryDate returns "" when no summary exists.
func (s *Store) LatestSummaryDate(ctx context.Context) (string, error) {
	var latest sql.NullString
	if err := s.db.GetContext(ctx, &latest, `SELECT MAX(date) FROM daily_summaries`); err != nil {
		return "", persistErr("latest summary", err)
	}
	return latest.String, nil
}
