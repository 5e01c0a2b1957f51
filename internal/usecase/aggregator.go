package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
)

// DateLayout is the summary key layout.
const DateLayout = "2006-01-02"

// AggregatorConfig holds aggregation settings.
type AggregatorConfig struct {
	ProductiveThreshold float64 // score above this counts as productive
	Location            *time.Location
	MaxCatchUpDays      int
}

// DefaultAggregatorConfig returns default aggregation settings in local time.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		ProductiveThreshold: 0.7,
		Location:            time.Local,
		MaxCatchUpDays:      366,
	}
}

// Aggregator folds intervals and sessions into daily summaries.
// Summaries are recomputed from scratch and upserted, never accumulated.
type Aggregator struct {
	cfg    AggregatorConfig
	store  domain.SummaryStore
	clock  clockwork.Clock
	logger *zap.Logger
}

// NewAggregator creates an aggregator.
func NewAggregator(cfg AggregatorConfig, store domain.SummaryStore, clock clockwork.Clock, logger *zap.Logger) *Aggregator {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxCatchUpDays <= 0 {
		cfg.MaxCatchUpDays = DefaultAggregatorConfig().MaxCatchUpDays
	}
	return &Aggregator{cfg: cfg, store: store, clock: clock, logger: logger}
}

// Location returns the calendar location days are cut in.
func (a *Aggregator) Location() *time.Location {
	return a.cfg.Location
}

// DayRange returns [00:00, next 00:00) of the calendar day containing t.
// Days are 23 or 25 hours long across DST changes.
func (a *Aggregator) DayRange(t time.Time) domain.TimeRange {
	local := t.In(a.cfg.Location)
	from := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, a.cfg.Location)
	return domain.TimeRange{From: from, To: from.AddDate(0, 0, 1)}
}

// ParseDate parses a YYYY-MM-DD date in the aggregator's location.
func (a *Aggregator) ParseDate(date string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, date, a.cfg.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", date, err)
	}
	return t, nil
}

// Today returns the current calendar day.
func (a *Aggregator) Today() time.Time {
	return a.DayRange(a.clock.Now()).From
}

// Aggregate recomputes and stores the summary for the day containing day.
func (a *Aggregator) Aggregate(ctx context.Context, day time.Time) (domain.DailySummary, error) {
	r := a.DayRange(day)
	summary, err := a.compute(ctx, r)
	if err != nil {
		return domain.DailySummary{}, err
	}

	changed, err := a.store.UpsertSummary(ctx, summary)
	if err != nil {
		return domain.DailySummary{}, fmt.Errorf("failed to store summary for %s: %w", summary.Date, err)
	}
	if summary.TotalWorkTime == 0 && summary.CompletedPomodoros == 0 && summary.InterruptedPomodoros == 0 {
		a.logger.Debug("no activity for day, stored zero summary", zap.String("date", summary.Date))
	}
	if changed {
		a.logger.Info("daily summary updated",
			zap.String("date", summary.Date),
			zap.Duration("total", summary.TotalWorkTime),
			zap.Duration("productive", summary.ProductiveTime),
			zap.String("most_used_app", summary.MostUsedApp))
	}

	stored, err := a.store.GetSummary(ctx, summary.Date)
	if err != nil {
		return summary, nil
	}
	return *stored, nil
}

// Preview computes the summary for the calendar day containing day
// without storing it.
func (a *Aggregator) Preview(ctx context.Context, day time.Time) (domain.DailySummary, error) {
	return a.compute(ctx, a.DayRange(day))
}

func (a *Aggregator) compute(ctx context.Context, r domain.TimeRange) (domain.DailySummary, error) {
	summary := domain.DailySummary{Date: r.From.Format(DateLayout)}

	intervals, err := a.store.IntervalsOverlapping(ctx, r)
	if err != nil {
		return summary, fmt.Errorf("failed to load intervals: %w", err)
	}
	categories, err := a.store.ListCategories(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to load categories: %w", err)
	}
	productiveCategory := make(map[int64]bool, len(categories))
	for _, c := range categories {
		productiveCategory[c.ID] = c.IsProductive
	}

	perApp := make(map[string]time.Duration)
	for _, iv := range intervals {
		d := iv.Clip(r)
		if d <= 0 {
			continue
		}
		summary.TotalWorkTime += d
		perApp[iv.AppName] += d
		if a.productive(iv, productiveCategory) {
			summary.ProductiveTime += d
		}
	}
	summary.MostUsedApp = mostUsed(perApp)

	summary.CompletedPomodoros, summary.InterruptedPomodoros, err = a.store.CountSessionsEnded(ctx, r)
	if err != nil {
		return summary, fmt.Errorf("failed to count sessions: %w", err)
	}
	return summary, nil
}

func (a *Aggregator) productive(iv domain.ActivityInterval, productiveCategory map[int64]bool) bool {
	if iv.CategoryID != nil && productiveCategory[*iv.CategoryID] {
		return true
	}
	return iv.ProductivityScore > a.cfg.ProductiveThreshold
}

// mostUsed returns the app with the largest total; ties go to the
// lexically smallest name.
func mostUsed(perApp map[string]time.Duration) string {
	best := ""
	var bestDur time.Duration
	for app, d := range perApp {
		if d > bestDur || (d == bestDur && app < best) {
			best, bestDur = app, d
		}
	}
	return best
}

// AggregateRange aggregates every calendar day from from through to, inclusive.
func (a *Aggregator) AggregateRange(ctx context.Context, from, to time.Time) ([]domain.DailySummary, error) {
	start := a.DayRange(from).From
	end := a.DayRange(to).From
	if end.Before(start) {
		return nil, fmt.Errorf("invalid range: %s is after %s", start.Format(DateLayout), end.Format(DateLayout))
	}

	var out []domain.DailySummary
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		s, err := a.Aggregate(ctx, day)
		if err != nil {
			return out, err
		}
		out = append(out, s)
	}
	return out, nil
}

// CatchUp aggregates every day from the latest stored summary (or the
// first tracked activity) through today, so days the daemon missed while
// stopped get a summary.
func (a *Aggregator) CatchUp(ctx context.Context) (int, error) {
	today := a.Today()
	from := today

	latest, err := a.store.LatestSummaryDate(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read latest summary: %w", err)
	}
	if latest != "" {
		if from, err = a.ParseDate(latest); err != nil {
			return 0, err
		}
	} else {
		first, err := a.store.FirstActivity(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to read first activity: %w", err)
		}
		if first != nil {
			from = a.DayRange(*first).From
		}
	}

	if from.After(today) {
		from = today
	}
	if oldest := today.AddDate(0, 0, -a.cfg.MaxCatchUpDays); from.Before(oldest) {
		a.logger.Warn("catch-up range truncated", zap.String("from", from.Format(DateLayout)), zap.Int("max_days", a.cfg.MaxCatchUpDays))
		from = oldest
	}

	summaries, err := a.AggregateRange(ctx, from, today)
	if err != nil {
		return len(summaries), err
	}
	a.logger.Debug("aggregation caught up",
		zap.String("from", from.Format(DateLayout)),
		zap.Int("days", len(summaries)))
	return len(summaries), nil
}
