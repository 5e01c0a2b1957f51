package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focustrack/internal/api"
	"github.com/eliteGoblin/focusd/focustrack/internal/daemon"
	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
	"github.com/eliteGoblin/focusd/focustrack/internal/export"
	"github.com/eliteGoblin/focusd/focustrack/internal/infra"
)

var (
	aggregateDays dayFlags
	summaryDays   dayFlags
	activityDays  dayFlags
	exportDays    dayFlags

	summaryJSON   bool
	exportFormat  string
	exportOutput  string
	serveAddr     string
	backupList    bool
	backupRestore string
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate [date]",
	Short: "Recompute daily summaries",
	Long: `Recompute daily summaries from tracked activity and sessions.
Summaries are rebuilt from scratch, so running this twice changes nothing.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAggregate,
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show daily summaries",
	Args:  cobra.NoArgs,
	RunE:  runSummary,
}

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "List tracked activity intervals",
	Args:  cobra.NoArgs,
	RunE:  runActivity,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export tracked data",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve tracked data over a read-only HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot the database",
	Long: `Take a consistent snapshot of the database into the backup directory.
Only the newest snapshots are kept (storage.max_backups).

Use --list to show snapshots and --restore <file> to replace the database
with one. Restoring requires the tracker to be stopped.`,
	Args: cobra.NoArgs,
	RunE: runBackup,
}

func init() {
	aggregateDays.register(aggregateCmd)
	summaryDays.register(summaryCmd)
	activityDays.register(activityCmd)
	exportDays.register(exportCmd)

	summaryCmd.Flags().BoolVar(&summaryJSON, "json", false, "Output as JSON")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "export format (csv, json)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to file instead of stdout")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	backupCmd.Flags().BoolVar(&backupList, "list", false, "list snapshots")
	backupCmd.Flags().StringVar(&backupRestore, "restore", "", "restore the named snapshot file")

	rootCmd.AddCommand(aggregateCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(activityCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(backupCmd)
}

func runAggregate(cmd *cobra.Command, args []string) error {
	flags := aggregateDays
	if len(args) == 1 {
		flags.date = args[0]
	}
	return withApp(func(ctx context.Context, a *app) error {
		agg := a.aggregator()
		from, to, err := flags.days(agg)
		if err != nil {
			return err
		}
		summaries, err := agg.AggregateRange(ctx, from, to)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Aggregated %d day(s)\n", len(summaries))
		printSummaries(cmd.OutOrStdout(), summaries)
		return nil
	})
}

func runSummary(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		agg := a.aggregator()
		from, to, err := summaryDays.days(agg)
		if err != nil {
			return err
		}
		summaries, err := a.store.ListSummaries(ctx, rangeOf(agg, from, to))
		if err != nil {
			return err
		}

		if summaryJSON {
			views := make([]export.SummaryView, 0, len(summaries))
			for _, s := range summaries {
				views = append(views, export.SummaryJSON(s))
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(views)
		}
		if len(summaries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No summaries in range (run 'focustrack aggregate' to build them)")
			return nil
		}
		printSummaries(cmd.OutOrStdout(), summaries)
		return nil
	})
}

func printSummaries(w io.Writer, summaries []domain.DailySummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tTRACKED\tPRODUCTIVE\tRATIO\tDONE\tINTERRUPTED\tMOST USED")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.0f%%\t%d\t%d\t%s\n",
			s.Date, formatDuration(s.TotalWorkTime), formatDuration(s.ProductiveTime),
			s.ProductivityRatio()*100, s.CompletedPomodoros, s.InterruptedPomodoros, s.MostUsedApp)
	}
	tw.Flush()
}

func runActivity(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		agg := a.aggregator()
		from, to, err := activityDays.days(agg)
		if err != nil {
			return err
		}
		rows, err := export.LoadActivity(ctx, a.store, a.exportRequest(rangeOf(agg, from, to)))
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No activity in range")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "START\tEND\tDURATION\tAPP\tCATEGORY\tTITLE")
		for _, r := range rows {
			category := r.Category
			if category == "" {
				category = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.Start.Format("01-02 15:04:05"), r.End.Format("15:04:05"),
				formatDuration(time.Duration(r.DurationSeconds*float64(time.Second))),
				r.App, category, truncate(r.WindowTitle, 60))
		}
		return tw.Flush()
	})
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

func runExport(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		exporter, err := a.exporters().Get(exportFormat)
		if err != nil {
			return err
		}
		agg := a.aggregator()
		from, to, err := exportDays.days(agg)
		if err != nil {
			return err
		}

		var w io.Writer = cmd.OutOrStdout()
		if exportOutput != "" {
			f, err := os.OpenFile(exportOutput, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", exportOutput, err)
			}
			defer f.Close()
			w = f
		}

		if err := exporter.Export(ctx, w, a.store, a.exportRequest(rangeOf(agg, from, to))); err != nil {
			return err
		}
		if exportOutput != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %s to %s\n", exporter.Name(), exportOutput)
		}
		return nil
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		addr := serveAddr
		if addr == "" {
			addr = a.cfg.API.Addr
		}
		server := api.NewServer(api.Config{
			Location:            a.cfg.Location(),
			ProductiveThreshold: a.cfg.Aggregator.ProductiveThreshold,
		}, a.store, a.exporters(), a.clock, a.logger)

		fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://%s (Ctrl+C to stop)\n", addr)
		return server.ListenAndServe(ctx, addr)
	})
}

func runBackup(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		bm := a.backups()
		out := cmd.OutOrStdout()

		switch {
		case backupList:
			records, err := bm.List()
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintf(out, "No backups in %s\n", bm.Dir())
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tCREATED\tSIZE\tSCHEMA")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", r.File, r.CreatedAt.Local().Format(time.DateTime), r.SizeBytes, r.SchemaVersion)
			}
			return tw.Flush()

		case backupRestore != "":
			return restoreBackup(ctx, a, bm, out)

		default:
			record, err := bm.Backup(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Backup written: %s (%d bytes, sha256 %s)\n", record.File, record.SizeBytes, record.SHA256[:12])
			return nil
		}
	})
}

func restoreBackup(ctx context.Context, a *app, bm *infra.BackupManager, out io.Writer) error {
	st, err := daemon.Inspect(ctx, a.store, infra.NewProcessManager(), a.clock, a.cfg.Tracker.HeartbeatInterval.Duration)
	if err != nil {
		return err
	}
	if st.Running {
		return fmt.Errorf("%w: stop it with 'focustrack stop' before restoring", daemon.ErrAlreadyRunning)
	}

	records, err := bm.List()
	if err != nil {
		return err
	}
	var record *infra.BackupRecord
	for i := range records {
		if records[i].File == backupRestore {
			record = &records[i]
			break
		}
	}
	if record == nil {
		return fmt.Errorf("backup %q not found in %s", backupRestore, bm.Dir())
	}

	dst := a.store.Path()
	if err := a.store.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	if err := bm.Restore(*record, dst); err != nil {
		return err
	}
	a.logger.Info("database restored", zap.String("file", record.File), zap.String("path", dst))
	fmt.Fprintf(out, "Restored %s (schema %d, current %d)\n", record.File, record.SchemaVersion, infra.SchemaVersion())
	return nil
}
