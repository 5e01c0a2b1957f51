package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
)

// SessionView is the exported shape of a session.
type SessionView struct {
	ID             int64      `json:"id"`
	Start          time.Time  `json:"start"`
	End            *time.Time `json:"end,omitempty"`
	Status         string     `json:"status"`
	Notes          string     `json:"notes,omitempty"`
	ProjectID      *int64     `json:"project_id,omitempty"`
	PlannedSeconds float64    `json:"planned_seconds"`
	ElapsedSeconds float64    `json:"elapsed_seconds"`
	Tags           []string   `json:"tags"`
}

// SummaryView is the exported shape of a daily summary.
type SummaryView struct {
	Date                 string  `json:"date"`
	TotalWorkSeconds     float64 `json:"total_work_seconds"`
	ProductiveSeconds    float64 `json:"productive_seconds"`
	ProductivityRatio    float64 `json:"productivity_ratio"`
	CompletedPomodoros   int     `json:"completed_pomodoros"`
	InterruptedPomodoros int     `json:"interrupted_pomodoros"`
	MostUsedApp          string  `json:"most_used_app,omitempty"`
}

type jsonDocument struct {
	From       time.Time      `json:"from"`
	To         time.Time      `json:"to"`
	Activities []ActivityView `json:"activities"`
	Sessions   []SessionView  `json:"sessions"`
	Summaries  []SummaryView  `json:"summaries"`
}

// JSONExporter writes activity, sessions and summaries as one document.
type JSONExporter struct{}

// NewJSONExporter creates a JSON exporter.
func NewJSONExporter() *JSONExporter {
	return &JSONExporter{}
}

// Name implements Exporter.
func (e *JSONExporter) Name() string { return "json" }

// ContentType implements Exporter.
func (e *JSONExporter) ContentType() string { return "application/json" }

// Export implements Exporter.
func (e *JSONExporter) Export(ctx context.Context, w io.Writer, src domain.ActivityReader, req Request) error {
	activities, err := LoadActivity(ctx, src, req)
	if err != nil {
		return err
	}
	sessions, err := src.ListSessions(ctx, req.Range)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	loc := req.location()
	summaries, err := src.ListSummaries(ctx, domain.TimeRange{From: req.Range.From.In(loc), To: req.Range.To.In(loc)})
	if err != nil {
		return fmt.Errorf("failed to list summaries: %w", err)
	}

	doc := jsonDocument{
		From:       req.Range.From.In(loc),
		To:         req.Range.To.In(loc),
		Activities: activities,
		Sessions:   make([]SessionView, 0, len(sessions)),
		Summaries:  make([]SummaryView, 0, len(summaries)),
	}
	for _, s := range sessions {
		doc.Sessions = append(doc.Sessions, SessionJSON(s, loc))
	}
	for _, s := range summaries {
		doc.Summaries = append(doc.Summaries, SummaryJSON(s))
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode json export: %w", err)
	}
	return nil
}

// SessionJSON converts a session to its exported shape.
func SessionJSON(s domain.Session, loc *time.Location) SessionView {
	out := SessionView{
		ID:             s.ID,
		Start:          s.Start.In(loc),
		Status:         string(s.Status),
		Notes:          s.Notes,
		ProjectID:      s.ProjectID,
		PlannedSeconds: s.Planned.Seconds(),
		ElapsedSeconds: s.Elapsed.Seconds(),
		Tags:           s.Tags,
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	if s.End != nil {
		end := s.End.In(loc)
		out.End = &end
	}
	return out
}

// SummaryJSON converts a summary to its exported shape.
func SummaryJSON(s domain.DailySummary) SummaryView {
	return SummaryView{
		Date:                 s.Date,
		TotalWorkSeconds:     s.TotalWorkTime.Seconds(),
		ProductiveSeconds:    s.ProductiveTime.Seconds(),
		ProductivityRatio:    s.ProductivityRatio(),
		CompletedPomodoros:   s.CompletedPomodoros,
		InterruptedPomodoros: s.InterruptedPomodoros,
		MostUsedApp:          s.MostUsedApp,
	}
}

var _ Exporter = (*JSONExporter)(nil)
