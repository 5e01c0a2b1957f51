package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focustrack/internal/config"
	"github.com/eliteGoblin/focusd/focustrack/internal/daemon"
	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
	"github.com/eliteGoblin/focusd/focustrack/internal/export"
	"github.com/eliteGoblin/focusd/focustrack/internal/infra"
	"github.com/eliteGoblin/focusd/focustrack/internal/rules"
	"github.com/eliteGoblin/focusd/focustrack/internal/usecase"
)

// settings is the resolved configuration and filesystem layout.
type settings struct {
	cfg   config.Config
	paths *infra.Paths
}

func loadSettings() (settings, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return settings{}, fmt.Errorf("failed to load config: %w", err)
	}
	if dataDirFlag != "" {
		cfg.DataDir = dataDirFlag
	}
	paths := infra.DetectPaths().WithDataDir(cfg.DataDir)
	if cfg.Storage.BackupDir != "" {
		paths.BackupDir = cfg.Storage.BackupDir
	}
	return settings{cfg: cfg, paths: paths}, nil
}

// app holds the opened store and the components built on it.
type app struct {
	settings
	store  *infra.Store
	clock  clockwork.Clock
	logger *zap.Logger
}

func openApp(ctx context.Context, s settings, logger *zap.Logger) (*app, error) {
	clock := clockwork.NewRealClock()
	store, err := infra.OpenDataStore(ctx, s.paths.DataDir, s.cfg.Storage.Encrypt, clock, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database in %s: %w", s.paths.DataDir, err)
	}
	return &app{settings: s, store: store, clock: clock, logger: logger}, nil
}

// withApp loads settings, opens the store for one interactive command and
// closes it afterwards.
func withApp(fn func(ctx context.Context, a *app) error) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := loadSettings()
	if err != nil {
		return err
	}
	logger := cliLogger()
	defer logger.Sync()

	a, err := openApp(ctx, s, logger)
	if err != nil {
		return err
	}
	defer a.store.Close()
	return fn(ctx, a)
}

func (a *app) classifier() *usecase.Classifier {
	return usecase.NewClassifier(a.store, rules.NewMatcherRegistry(), a.logger)
}

func (a *app) samplerConfig() usecase.SamplerConfig {
	t := a.cfg.Tracker
	return usecase.SamplerConfig{
		SampleInterval:     t.SampleInterval.Duration,
		IdleThreshold:      t.IdleThreshold.Duration,
		ProbeTimeout:       t.ProbeTimeout.Duration,
		MaxPersistAttempts: t.MaxPersistAttempts,
		FailureReportEvery: t.FailureReportEvery,
	}
}

func (a *app) sessions(notifier domain.Notifier) *usecase.SessionMachine {
	return usecase.NewSessionMachine(usecase.SessionConfig{
		DefaultDuration:       a.cfg.Session.DefaultDuration.Duration,
		MinCompletionFraction: a.cfg.Session.MinCompletionFraction,
	}, a.store, notifier, a.clock, a.logger)
}

func (a *app) aggregator() *usecase.Aggregator {
	return usecase.NewAggregator(usecase.AggregatorConfig{
		ProductiveThreshold: a.cfg.Aggregator.ProductiveThreshold,
		Location:            a.cfg.Location(),
	}, a.store, a.clock, a.logger)
}

func (a *app) exporters() *export.Registry {
	return export.NewRegistry()
}

func (a *app) exportRequest(r domain.TimeRange) export.Request {
	return export.Request{
		Range:               r,
		Location:            a.cfg.Location(),
		ProductiveThreshold: a.cfg.Aggregator.ProductiveThreshold,
	}
}

func (a *app) backups() *infra.BackupManager {
	return infra.NewBackupManager(a.store, a.paths.BackupDir, a.cfg.Storage.MaxBackups, a.clock, a.logger)
}

func (a *app) trackerConfig() daemon.TrackerConfig {
	tc := daemon.DefaultTrackerConfig()
	tc.SampleInterval = a.cfg.Tracker.SampleInterval.Duration
	tc.HeartbeatInterval = a.cfg.Tracker.HeartbeatInterval.Duration
	tc.RuleReloadInterval = a.cfg.Tracker.RuleReloadInterval.Duration
	tc.AggregateInterval = a.cfg.Aggregator.Interval.Duration
	tc.ExpiryCheckInterval = a.cfg.Session.ExpiryCheckInterval.Duration
	tc.BackupInterval = a.cfg.Storage.BackupInterval.Duration
	return tc
}

// dayFlags selects calendar days with --date or --from/--to (inclusive).
type dayFlags struct {
	date string
	from string
	to   string
}

func (f *dayFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.date, "date", "", "single day (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&f.from, "from", "", "first day of range (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "last day of range, inclusive (YYYY-MM-DD)")
}

// days resolves the flags into first and last day. Missing ends default to today.
func (f *dayFlags) days(agg *usecase.Aggregator) (time.Time, time.Time, error) {
	if f.date != "" && (f.from != "" || f.to != "") {
		return time.Time{}, time.Time{}, fmt.Errorf("--date cannot be combined with --from/--to")
	}
	parse := func(v string) (time.Time, error) {
		if v == "" {
			return agg.Today(), nil
		}
		return agg.ParseDate(v)
	}
	if f.date != "" {
		day, err := agg.ParseDate(f.date)
		return day, day, err
	}
	from, err := parse(f.from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parse(f.to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to %s is before --from %s", f.to, f.from)
	}
	return from, to, nil
}

// rangeOf returns the half-open span covering the days first..last.
func rangeOf(agg *usecase.Aggregator, first, last time.Time) domain.TimeRange {
	return domain.TimeRange{From: agg.DayRange(first).From, To: agg.DayRange(last).To}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, m)
	}
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%dm%02ds", m, s)
}
