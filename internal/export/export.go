// Package export renders tracked data through the read-only ActivityReader.
// Formats are registered at compile time.
package export

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
)

// Request selects what to export.
type Request struct {
	Range               domain.TimeRange
	Location            *time.Location // calendar dates and local times; nil means UTC
	ProductiveThreshold float64        // score above which uncategorized-productive counts as productive
}

func (r Request) location() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

// Exporter writes one export format.
type Exporter interface {
	// Name is the format name used on the command line and in URLs.
	Name() string

	// ContentType is the HTTP media type of the output.
	ContentType() string

	Export(ctx context.Context, w io.Writer, src domain.ActivityReader, req Request) error
}

// Registry holds the available formats.
type Registry struct {
	exporters map[string]Exporter
}

// NewRegistry creates a registry with the built-in formats.
func NewRegistry() *Registry {
	return NewRegistryWithExporters(NewCSVExporter(), NewJSONExporter())
}

// NewRegistryWithExporters creates a registry with custom exporters (for testing).
func NewRegistryWithExporters(exporters ...Exporter) *Registry {
	r := &Registry{exporters: make(map[string]Exporter)}
	for _, e := range exporters {
		r.Register(e)
	}
	return r
}

// Register adds an exporter, replacing one with the same name.
func (r *Registry) Register(e Exporter) {
	r.exporters[e.Name()] = e
}

// Get returns the exporter for format.
func (r *Registry) Get(format string) (Exporter, error) {
	e, ok := r.exporters[format]
	if !ok {
		return nil, fmt.Errorf("unknown export format %q (available: %v)", format, r.List())
	}
	return e, nil
}

// List returns format names, sorted.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.exporters))
	for name := range r.exporters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ActivityView is one interval joined with its category.
type ActivityView struct {
	Date            string    `json:"date"`
	App             string    `json:"app"`
	WindowTitle     string    `json:"window_title"`
	Category        string    `json:"category,omitempty"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationSeconds float64   `json:"duration_seconds"`
	Score           float64   `json:"productivity_score"`
	Productive      bool      `json:"productive"`
}

// LoadActivity reads intervals in req.Range and resolves their categories.
func LoadActivity(ctx context.Context, src domain.ActivityReader, req Request) ([]ActivityView, error) {
	intervals, err := src.ListActivity(ctx, req.Range)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	categories, err := src.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	byID := make(map[int64]domain.Category, len(categories))
	for _, c := range categories {
		byID[c.ID] = c
	}

	loc := req.location()
	rows := make([]ActivityView, 0, len(intervals))
	for _, iv := range intervals {
		row := ActivityView{
			Date:            iv.Start.In(loc).Format("2006-01-02"),
			App:             iv.AppName,
			WindowTitle:     iv.WindowTitle,
			Start:           iv.Start.In(loc),
			End:             iv.End.In(loc),
			DurationSeconds: iv.Duration().Seconds(),
			Score:           iv.ProductivityScore,
			Productive:      iv.ProductivityScore > req.ProductiveThreshold,
		}
		if iv.CategoryID != nil {
			if c, ok := byID[*iv.CategoryID]; ok {
				row.Category = c.Name
				row.Productive = row.Productive || c.IsProductive
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
