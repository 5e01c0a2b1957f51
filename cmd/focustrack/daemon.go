package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focustrack/internal/daemon"
	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
	"github.com/eliteGoblin/focusd/focustrack/internal/infra"
	"github.com/eliteGoblin/focusd/focustrack/internal/notify"
	"github.com/eliteGoblin/focusd/focustrack/internal/usecase"
)

const stopTimeout = 15 * time.Second

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the background tracker",
	Long: `Start the tracker daemon in the background. It samples the focused
window, keeps daily summaries current and watches the focus session.`,
	RunE: runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background tracker",
	Long:  `Stop the tracker daemon. The open activity interval is closed and saved first.`,
	RunE:  runStop,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tracker status",
	RunE:  runStatus,
}

var daemonCmd = &cobra.Command{
	Use:    "daemon",
	Short:  "Run the tracker in the foreground (used by start)",
	Hidden: true,
	RunE:   runDaemon,
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Start the tracker at login",
	Long: `Install a login item for the tracker: a LaunchAgent on macOS or a
systemd user unit on Linux. The running tracker restores it if it is removed
by hand; use 'focustrack uninstall' to remove it for good.`,
	RunE: runInstall,
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop the tracker and remove the login item",
	RunE:  runUninstall,
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		var extra []string
		if configPath != "" {
			extra = append(extra, "--config", configPath)
		}
		if dataDirFlag != "" {
			extra = append(extra, "--data-dir", dataDirFlag)
		}

		pid, err := daemon.StartDaemon(ctx, "", a.store, infra.NewProcessManager(), extra...)
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			fmt.Fprintf(cmd.OutOrStdout(), "Tracker already running (PID %d)\n", pid)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to start tracker: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Tracker started (PID %d)\n", pid)
		fmt.Fprintf(cmd.OutOrStdout(), "Logs: %s\n", a.paths.LogDir)
		return nil
	})
}

func runStop(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		state, err := daemon.StopDaemon(ctx, a.store, infra.NewProcessManager(), a.clock, stopTimeout)
		if errors.Is(err, daemon.ErrNotRunning) {
			fmt.Fprintln(cmd.OutOrStdout(), "Tracker is not running")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Tracker stopped (PID %d)\n", state.PID)
		return nil
	})
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		out := cmd.OutOrStdout()
		st, err := daemon.Inspect(ctx, a.store, infra.NewProcessManager(), a.clock, a.cfg.Tracker.HeartbeatInterval.Duration)
		if err != nil {
			return err
		}

		fmt.Fprintln(out, "=== focustrack Status ===")
		fmt.Fprintln(out)
		switch {
		case st.State == nil || !st.Running:
			fmt.Fprintln(out, "Tracker:    STOPPED")
		case st.Stale:
			fmt.Fprintf(out, "Tracker:    STALE (PID %d, last heartbeat %s ago)\n",
				st.State.PID, formatDuration(a.clock.Since(st.State.LastHeartbeat)))
		default:
			fmt.Fprintf(out, "Tracker:    RUNNING (PID %d, up %s, version %s)\n",
				st.State.PID, formatDuration(a.clock.Since(st.State.StartedAt)), st.State.Version)
		}
		fmt.Fprintf(out, "Data:       %s\n", a.paths.DataDir)
		fmt.Fprintf(out, "Encrypted:  %v\n", a.cfg.Storage.Encrypt)
		fmt.Fprintf(out, "Autostart:  %v\n", infra.NewAutostartManager(a.paths).IsInstalled())

		fmt.Fprintln(out)
		session, err := a.sessions(nil).Current(ctx)
		if err != nil {
			return err
		}
		if session == nil {
			fmt.Fprintln(out, "Session:    none")
		} else {
			printSessionLine(out, session, a.clock.Now())
		}

		agg := a.aggregator()
		summary, err := agg.Preview(ctx, agg.Today())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Today:      %s tracked, %s productive (%.0f%%), %d pomodoros\n",
			formatDuration(summary.TotalWorkTime), formatDuration(summary.ProductiveTime),
			summary.ProductivityRatio()*100, summary.CompletedPomodoros)
		if summary.MostUsedApp != "" {
			fmt.Fprintf(out, "Most used:  %s\n", summary.MostUsedApp)
		}
		return nil
	})
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := loadSettings()
	if err != nil {
		return err
	}
	logger := createLogger(s.paths.LogDir)
	defer logger.Sync()

	a, err := openApp(ctx, s, logger)
	if err != nil {
		logger.Error("failed to open database", zap.Error(err))
		return err
	}
	defer a.store.Close()

	notifier, err := notify.NewRegistry().New(s.cfg.Session.Notifier, logger)
	if err != nil {
		logger.Warn("unknown notifier, falling back to log", zap.String("notifier", s.cfg.Session.Notifier), zap.Error(err))
		notifier = notify.NewLogNotifier(logger)
	}

	pm := infra.NewProcessManager()
	classifier := a.classifier()
	sampler := usecase.NewSampler(a.samplerConfig(), infra.NewForegroundProbe(pm), a.store, classifier, a.clock, logger)
	state := domain.DaemonState{
		PID:     os.Getpid(),
		RunID:   uuid.NewString(),
		Version: Version,
	}

	tracker := daemon.NewTracker(a.trackerConfig(), sampler, classifier, a.sessions(notifier), a.aggregator(), a.store, state, a.clock, logger).
		WithBackups(a.backups())
	autostart := infra.NewAutostartManager(s.paths)
	if autostart.IsInstalled() {
		if exe, err := os.Executable(); err == nil {
			tracker.WithAutostart(autostart, exe)
		}
	}

	logger.Info("starting tracker daemon",
		zap.String("version", Version),
		zap.String("data_dir", s.paths.DataDir),
		zap.Bool("encrypted", s.cfg.Storage.Encrypt))

	err = tracker.Run(ctx)
	if errors.Is(err, daemon.ErrReplaced) {
		logger.Warn("another tracker took over, exiting")
		return nil
	}
	return err
}

func runInstall(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to resolve executable: %w", err)
	}

	m := infra.NewAutostartManager(s.paths)
	if m.IsInstalled() && !m.NeedsUpdate(exe) {
		fmt.Fprintf(cmd.OutOrStdout(), "Autostart already installed: %s\n", m.Path())
		return nil
	}
	if m.IsInstalled() {
		err = m.Update(exe)
	} else {
		err = m.Install(exe)
	}
	if err != nil {
		return fmt.Errorf("failed to install autostart: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Autostart installed: %s\n", m.Path())
	return nil
}

func runUninstall(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		// A running tracker would put the login item back.
		if _, err := daemon.StopDaemon(ctx, a.store, infra.NewProcessManager(), a.clock, stopTimeout); err != nil && !errors.Is(err, daemon.ErrNotRunning) {
			return err
		}
		m := infra.NewAutostartManager(a.paths)
		if err := m.Uninstall(); err != nil {
			return fmt.Errorf("failed to remove autostart: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Autostart removed; tracker stopped")
		return nil
	})
}
