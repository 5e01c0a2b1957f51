package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
)

var csvHeader = []string{
	"date", "app", "window_title", "category", "start", "end", "duration_minutes", "productive",
}

// CSVExporter writes one row per activity interval.
type CSVExporter struct{}

// NewCSVExporter creates a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Name implements Exporter.
func (e *CSVExporter) Name() string { return "csv" }

// ContentType implements Exporter.
func (e *CSVExporter) ContentType() string { return "text/csv; charset=utf-8" }

// Export implements Exporter.
func (e *CSVExporter) Export(ctx context.Context, w io.Writer, src domain.ActivityReader, req Request) error {
	rows, err := LoadActivity(ctx, src, req)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.Date,
			row.App,
			row.WindowTitle,
			row.Category,
			row.Start.Format(time.RFC3339),
			row.End.Format(time.RFC3339),
			strconv.FormatFloat(row.DurationSeconds/60, 'f', 2, 64),
			strconv.FormatBool(row.Productive),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

var _ Exporter = (*CSVExporter)(nil)
