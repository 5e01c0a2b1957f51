package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
)

func newTestAggregator(t *testing.T, loc *time.Location, now time.Time) (*Aggregator, *memSummaryStore, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(now)
	store := newMemSummaryStore(clock.Now)
	cfg := DefaultAggregatorConfig()
	cfg.Location = loc
	return NewAggregator(cfg, store, clock, zap.NewNop()), store, clock
}

func interval(app string, start time.Time, d time.Duration) domain.ActivityInterval {
	return domain.ActivityInterval{AppName: app, Start: start, End: start.Add(d)}
}

func TestAggregator_MidnightSplit(t *testing.T) {
	loc := time.UTC
	agg, store, _ := newTestAggregator(t, loc, time.Date(2024, 3, 12, 12, 0, 0, 0, loc))
	store.intervals = []domain.ActivityInterval{
		interval("code", time.Date(2024, 3, 11, 23, 50, 0, 0, loc), 20*time.Minute),
	}
	ctx := context.Background()

	before, err := agg.Aggregate(ctx, time.Date(2024, 3, 11, 8, 0, 0, 0, loc))
	require.NoError(t, err)
	after, err := agg.Aggregate(ctx, time.Date(2024, 3, 12, 8, 0, 0, 0, loc))
	require.NoError(t, err)

	assert.Equal(t, "2024-03-11", before.Date)
	assert.Equal(t, 10*time.Minute, before.TotalWorkTime)
	assert.Equal(t, "2024-03-12", after.Date)
	assert.Equal(t, 10*time.Minute, after.TotalWorkTime)
}

func TestAggregator_MostUsedApp(t *testing.T) {
	loc := time.UTC
	day := time.Date(2024, 3, 11, 0, 0, 0, 0, loc)
	agg, store, _ := newTestAggregator(t, loc, day.Add(20*time.Hour))
	store.intervals = []domain.ActivityInterval{
		interval("AppA", day.Add(9*time.Hour), 25*time.Minute),
		interval("AppB", day.Add(10*time.Hour), 25*time.Minute),
		interval("AppA", day.Add(11*time.Hour), 15*time.Minute),
	}

	s, err := agg.Aggregate(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, "AppA", s.MostUsedApp)
	assert.Equal(t, 65*time.Minute, s.TotalWorkTime)
}

func TestAggregator_MostUsedTieIsLexical(t *testing.T) {
	perApp := map[string]time.Duration{
		"zed":   time.Hour,
		"emacs": time.Hour,
		"vim":   time.Hour,
		"slack": time.Minute,
	}
	assert.Equal(t, "emacs", mostUsed(perApp))
	assert.Equal(t, "", mostUsed(nil))
}

func TestAggregator_ProductiveTime(t *testing.T) {
	loc := time.UTC
	day := time.Date(2024, 3, 11, 0, 0, 0, 0, loc)
	agg, store, _ := newTestAggregator(t, loc, day.Add(20*time.Hour))
	dev, chat := int64(1), int64(2)
	store.categories = []domain.Category{
		{ID: dev, Name: "Development", ProductivityScore: 0.5, IsProductive: true},
		{ID: chat, Name: "Communication", ProductivityScore: 0.5},
	}
	store.intervals = []domain.ActivityInterval{
		{AppName: "code", Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour), CategoryID: &dev, ProductivityScore: 0.5},
		{AppName: "slack", Start: day.Add(10 * time.Hour), End: day.Add(11 * time.Hour), CategoryID: &chat, ProductivityScore: 0.5},
		// Category deleted since; the stored score still counts.
		{AppName: "notion", Start: day.Add(11 * time.Hour), End: day.Add(11*time.Hour + 30*time.Minute), ProductivityScore: 0.8},
		{AppName: "tetris", Start: day.Add(12 * time.Hour), End: day.Add(12*time.Hour + 30*time.Minute), ProductivityScore: 0.7},
	}

	s, err := agg.Aggregate(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Hour, s.TotalWorkTime)
	assert.Equal(t, 90*time.Minute, s.ProductiveTime)
	assert.InDelta(t, 0.5, s.ProductivityRatio(), 1e-9)
}

func TestAggregator_CountsSessionsByEndDate(t *testing.T) {
	loc := time.UTC
	day := time.Date(2024, 3, 11, 0, 0, 0, 0, loc)
	agg, store, _ := newTestAggregator(t, loc, day.Add(48*time.Hour))
	end := func(d time.Duration) *time.Time { e := day.Add(d); return &e }
	store.sessions = []domain.Session{
		{ID: 1, Status: domain.StatusCompleted, End: end(10 * time.Hour)},
		{ID: 2, Status: domain.StatusCompleted, End: end(23*time.Hour + 59*time.Minute)},
		{ID: 3, Status: domain.StatusInterrupted, End: end(12 * time.Hour)},
		{ID: 4, Status: domain.StatusCompleted, End: end(24 * time.Hour)},
		{ID: 5, Status: domain.StatusRunning},
	}

	s, err := agg.Aggregate(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 2, s.CompletedPomodoros)
	assert.Equal(t, 1, s.InterruptedPomodoros)
}

func TestAggregator_Idempotent(t *testing.T) {
	loc := time.UTC
	day := time.Date(2024, 3, 11, 0, 0, 0, 0, loc)
	agg, store, clock := newTestAggregator(t, loc, day.Add(20*time.Hour))
	store.intervals = []domain.ActivityInterval{interval("code", day.Add(time.Hour), time.Hour)}
	ctx := context.Background()

	first, err := agg.Aggregate(ctx, day)
	require.NoError(t, err)
	clock.Advance(time.Hour)
	second, err := agg.Aggregate(ctx, day)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.writes)

	// A backfilled interval changes the summary on the next run.
	store.intervals = append(store.intervals, interval("code", day.Add(5*time.Hour), time.Hour))
	third, err := agg.Aggregate(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, third.TotalWorkTime)
	assert.Equal(t, first.CreatedAt, third.CreatedAt)
	assert.True(t, third.UpdatedAt.After(first.UpdatedAt))
}

func TestAggregator_PreviewDoesNotWrite(t *testing.T) {
	loc := time.UTC
	day := time.Date(2024, 3, 11, 0, 0, 0, 0, loc)
	agg, store, _ := newTestAggregator(t, loc, day.Add(12*time.Hour))
	store.intervals = []domain.ActivityInterval{
		interval("code", day.Add(9*time.Hour), 40*time.Minute),
	}

	s, err := agg.Preview(context.Background(), day.Add(10*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "2024-03-11", s.Date)
	assert.Equal(t, 40*time.Minute, s.TotalWorkTime)
	assert.Equal(t, "code", s.MostUsedApp)
	assert.Equal(t, 0, store.writes)
	assert.Empty(t, store.summaries)
}

func TestAggregator_EmptyDayWritesZeroSummary(t *testing.T) {
	loc := time.UTC
	day := time.Date(2024, 3, 11, 0, 0, 0, 0, loc)
	agg, store, _ := newTestAggregator(t, loc, day)

	s, err := agg.Aggregate(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-11", s.Date)
	assert.Zero(t, s.TotalWorkTime)
	assert.Empty(t, s.MostUsedApp)
	assert.Contains(t, store.summaries, "2024-03-11")
}

func TestAggregator_DayRangeAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata not available")
	}
	agg, _, _ := newTestAggregator(t, loc, time.Now())

	spring := agg.DayRange(time.Date(2024, 3, 31, 12, 0, 0, 0, loc))
	assert.Equal(t, 23*time.Hour, spring.To.Sub(spring.From))

	autumn := agg.DayRange(time.Date(2024, 10, 27, 12, 0, 0, 0, loc))
	assert.Equal(t, 25*time.Hour, autumn.To.Sub(autumn.From))
}

func TestAggregator_LocalMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	agg, store, _ := newTestAggregator(t, loc, time.Date(2024, 3, 12, 12, 0, 0, 0, loc))
	// 13:30-14:30 UTC is 23:30-00:30 local.
	store.intervals = []domain.ActivityInterval{
		interval("code", time.Date(2024, 3, 11, 13, 30, 0, 0, time.UTC), time.Hour),
	}

	s, err := agg.Aggregate(context.Background(), time.Date(2024, 3, 11, 9, 0, 0, 0, loc))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, s.TotalWorkTime)
}

func TestAggregator_AggregateRange(t *testing.T) {
	loc := time.UTC
	day := time.Date(2024, 3, 11, 0, 0, 0, 0, loc)
	agg, store, _ := newTestAggregator(t, loc, day.AddDate(0, 0, 5))

	got, err := agg.AggregateRange(context.Background(), day, day.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "2024-03-13", got[2].Date)
	assert.Len(t, store.summaries, 3)

	_, err = agg.AggregateRange(context.Background(), day.AddDate(0, 0, 1), day)
	assert.Error(t, err)
}

func TestAggregator_CatchUp(t *testing.T) {
	loc := time.UTC
	today := time.Date(2024, 3, 15, 0, 0, 0, 0, loc)
	agg, store, _ := newTestAggregator(t, loc, today.Add(9*time.Hour))
	store.intervals = []domain.ActivityInterval{
		interval("code", time.Date(2024, 3, 12, 10, 0, 0, 0, loc), time.Hour),
	}

	n, err := agg.CatchUp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Contains(t, store.summaries, "2024-03-12")
	assert.Contains(t, store.summaries, "2024-03-15")

	// From the latest summary on the next run.
	n, err = agg.CatchUp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAggregator_CatchUpEmptyStore(t *testing.T) {
	loc := time.UTC
	agg, store, _ := newTestAggregator(t, loc, time.Date(2024, 3, 15, 9, 0, 0, 0, loc))

	n, err := agg.CatchUp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, store.summaries, "2024-03-15")
}

func TestAggregator_ParseDate(t *testing.T) {
	agg, _, _ := newTestAggregator(t, time.UTC, time.Now())

	d, err := agg.ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), d)

	_, err = agg.ParseDate("29/02/2024")
	assert.Error(t, err)
}
