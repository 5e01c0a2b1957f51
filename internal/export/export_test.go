package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
)

var day = time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)

// memReader implements domain.ActivityReader for testing
type memReader struct {
	intervals  []domain.ActivityInterval
	sessions   []domain.Session
	summaries  []domain.DailySummary
	categories []domain.Category
	err        error
}

func (m *memReader) ListActivity(ctx context.Context, r domain.TimeRange) ([]domain.ActivityInterval, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.ActivityInterval
	for _, iv := range m.intervals {
		if iv.End.After(r.From) && iv.Start.Before(r.To) {
			out = append(out, iv)
		}
	}
	return out, nil
}

func (m *memReader) ListSessions(ctx context.Context, r domain.TimeRange) ([]domain.Session, error) {
	return m.sessions, nil
}

func (m *memReader) GetSummary(ctx context.Context, date string) (*domain.DailySummary, error) {
	for _, s := range m.summaries {
		if s.Date == date {
			return &s, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memReader) ListSummaries(ctx context.Context, r domain.TimeRange) ([]domain.DailySummary, error) {
	return m.summaries, nil
}

func (m *memReader) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return m.categories, nil
}

func newReader() *memReader {
	dev := int64(1)
	fun := int64(2)
	end := day.Add(10 * time.Hour)
	return &memReader{
		categories: []domain.Category{
			{ID: dev, Name: "Development", ProductivityScore: 0.9, IsProductive: true},
			{ID: fun, Name: "Entertainment", ProductivityScore: 0.1},
		},
		intervals: []domain.ActivityInterval{
			{AppName: "code", WindowTitle: "main.go, focustrack", Start: day.Add(9 * time.Hour), End: day.Add(9*time.Hour + 30*time.Minute), CategoryID: &dev, ProductivityScore: 0.9},
			{AppName: "firefox", WindowTitle: "cats", Start: day.Add(10 * time.Hour), End: day.Add(10*time.Hour + 15*time.Minute), CategoryID: &fun, ProductivityScore: 0.1},
			{AppName: "notes", Start: day.Add(11 * time.Hour), End: day.Add(11*time.Hour + 6*time.Minute), ProductivityScore: 0.8},
		},
		sessions: []domain.Session{
			{ID: 7, Start: day.Add(9 * time.Hour), End: &end, Status: domain.StatusCompleted, Planned: 25 * time.Minute, Elapsed: 25 * time.Minute, Tags: []string{"deep"}},
			{ID: 8, Start: day.Add(11 * time.Hour), Status: domain.StatusRunning, Planned: 25 * time.Minute},
		},
		summaries: []domain.DailySummary{
			{Date: "2024-03-11", TotalWorkTime: 51 * time.Minute, ProductiveTime: 36 * time.Minute, CompletedPomodoros: 1, MostUsedApp: "code"},
		},
	}
}

func request() Request {
	return Request{Range: domain.TimeRange{From: day, To: day.AddDate(0, 0, 1)}, ProductiveThreshold: 0.7}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"csv", "json"}, r.List())

	e, err := r.Get("csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv; charset=utf-8", e.ContentType())

	_, err = r.Get("xlsx")
	assert.ErrorContains(t, err, `unknown export format "xlsx"`)
}

func TestCSVExporter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewCSVExporter().Export(context.Background(), &buf, newReader(), request()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{
		"2024-03-11", "code", "main.go, focustrack", "Development",
		"2024-03-11T09:00:00Z", "2024-03-11T09:30:00Z", "30.00", "true",
	}, records[1])
	assert.Equal(t, "false", records[2][7])
	// Uncategorized but above the threshold.
	assert.Equal(t, "", records[3][3])
	assert.Equal(t, "true", records[3][7])
	assert.Equal(t, "6.00", records[3][6])
}

func TestCSVExporter_LocalDates(t *testing.T) {
	req := request()
	req.Location = time.FixedZone("UTC+10", 10*60*60)

	var buf bytes.Buffer
	require.NoError(t, NewCSVExporter().Export(context.Background(), &buf, newReader(), req))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "2024-03-11T19:00:00+10:00", records[1][4])
}

func TestCSVExporter_EmptyRangeWritesHeader(t *testing.T) {
	var buf bytes.Buffer
	req := request()
	req.Range = domain.TimeRange{From: day.AddDate(0, 0, 5), To: day.AddDate(0, 0, 6)}
	require.NoError(t, NewCSVExporter().Export(context.Background(), &buf, newReader(), req))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestJSONExporter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSONExporter().Export(context.Background(), &buf, newReader(), request()))

	var doc struct {
		Activities []ActivityView `json:"activities"`
		Sessions   []SessionView  `json:"sessions"`
		Summaries  []SummaryView  `json:"summaries"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	require.Len(t, doc.Activities, 3)
	assert.Equal(t, "Development", doc.Activities[0].Category)
	assert.Equal(t, 1800.0, doc.Activities[0].DurationSeconds)

	require.Len(t, doc.Sessions, 2)
	assert.Equal(t, "completed", doc.Sessions[0].Status)
	assert.NotNil(t, doc.Sessions[0].End)
	assert.Nil(t, doc.Sessions[1].End)
	assert.Equal(t, []string{}, doc.Sessions[1].Tags)

	require.Len(t, doc.Summaries, 1)
	assert.InDelta(t, 36.0/51.0, doc.Summaries[0].ProductivityRatio, 1e-9)
}

func TestExport_PropagatesReaderErrors(t *testing.T) {
	src := newReader()
	src.err = errors.New("database is locked")

	for _, e := range NewRegistry().exporters {
		t.Run(e.Name(), func(t *testing.T) {
			err := e.Export(context.Background(), &bytes.Buffer{}, src, request())
			assert.ErrorContains(t, err, "database is locked")
		})
	}
}
