// Package daemon implements the tracker daemon loop and its process control.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
	"github.com/eliteGoblin/focusd/focustrack/internal/infra"
	"github.com/eliteGoblin/focusd/focustrack/internal/usecase"
)

// ErrReplaced means another daemon registered while this one was running.
var ErrReplaced = errors.New("tracker daemon replaced by another instance")

// Backuper takes database snapshots; satisfied by *infra.BackupManager.
type Backuper interface {
	Backup(ctx context.Context) (*infra.BackupRecord, error)
}

// RuleReloader refreshes classification rules; satisfied by *usecase.Classifier.
type RuleReloader interface {
	Reload(ctx context.Context) error
}

// ExpiryChecker raises the planned-time-up notification; satisfied by
// *usecase.SessionMachine.
type ExpiryChecker interface {
	CheckExpiry(ctx context.Context) (bool, error)
}

// TrackerConfig holds tracker daemon configuration.
type TrackerConfig struct {
	SampleInterval         time.Duration // how often the probe is polled
	HeartbeatInterval      time.Duration // heartbeat and sampler checkpoint
	AggregateInterval      time.Duration // daily summary refresh
	RuleReloadInterval     time.Duration // picks up rules added from the CLI
	ExpiryCheckInterval    time.Duration // session planned-time check
	BackupInterval         time.Duration // database snapshot, when backups are enabled
	AutostartCheckInterval time.Duration // restores a removed login item
	ShutdownTimeout        time.Duration // bound on the final flush
}

// DefaultTrackerConfig returns default tracker configuration.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		SampleInterval:         5 * time.Second,
		HeartbeatInterval:      30 * time.Second,
		AggregateInterval:      15 * time.Minute,
		RuleReloadInterval:     time.Minute,
		ExpiryCheckInterval:    15 * time.Second,
		BackupInterval:         24 * time.Hour,
		AutostartCheckInterval: 10 * time.Minute,
		ShutdownTimeout:        10 * time.Second,
	}
}

// Tracker is the background daemon. It samples the foreground window,
// keeps its registry heartbeat and sampler checkpoint fresh, refreshes
// daily summaries, reloads rules, raises session expiry notifications
// and takes periodic backups.
type Tracker struct {
	config     TrackerConfig
	sampler    *usecase.Sampler
	rules      RuleReloader
	sessions   ExpiryChecker
	aggregator *usecase.Aggregator
	registry   domain.DaemonRegistry
	state      domain.DaemonState
	clock      clockwork.Clock
	logger     *zap.Logger

	autostart domain.AutostartManager
	execPath  string
	backups   Backuper
}

// NewTracker creates a tracker daemon. state identifies this run (PID,
// RunID, Version); start and heartbeat times are filled in by Run.
func NewTracker(
	config TrackerConfig,
	sampler *usecase.Sampler,
	rules RuleReloader,
	sessions ExpiryChecker,
	aggregator *usecase.Aggregator,
	registry domain.DaemonRegistry,
	state domain.DaemonState,
	clock clockwork.Clock,
	logger *zap.Logger,
) *Tracker {
	return &Tracker{
		config:     config,
		sampler:    sampler,
		rules:      rules,
		sessions:   sessions,
		aggregator: aggregator,
		registry:   registry,
		state:      state,
		clock:      clock,
		logger:     logger.With(zap.String("run_id", state.RunID)),
	}
}

// WithAutostart makes the tracker keep the login item installed for execPath.
func (t *Tracker) WithAutostart(m domain.AutostartManager, execPath string) *Tracker {
	t.autostart = m
	t.execPath = execPath
	return t
}

// WithBackups enables periodic database snapshots.
func (t *Tracker) WithBackups(b Backuper) *Tracker {
	t.backups = b
	return t
}

// Run starts the tracker loop. It blocks until ctx is canceled, then
// closes the open interval with a fresh bounded context and unregisters.
func (t *Tracker) Run(ctx context.Context) error {
	now := t.clock.Now()
	t.state.StartedAt = now
	t.state.LastHeartbeat = now
	if err := t.registry.Register(ctx, t.state); err != nil {
		t.logger.Error("failed to register tracker", zap.Error(err))
		return err
	}

	t.logger.Info("tracker daemon started",
		zap.Int("pid", t.state.PID),
		zap.String("version", t.state.Version))

	t.startup(ctx)

	sampleTicker := t.clock.NewTicker(t.config.SampleInterval)
	heartbeatTicker := t.clock.NewTicker(t.config.HeartbeatInterval)
	aggregateTicker := t.clock.NewTicker(t.config.AggregateInterval)
	reloadTicker := t.clock.NewTicker(t.config.RuleReloadInterval)
	expiryTicker := t.clock.NewTicker(t.config.ExpiryCheckInterval)
	defer func() {
		sampleTicker.Stop()
		heartbeatTicker.Stop()
		aggregateTicker.Stop()
		reloadTicker.Stop()
		expiryTicker.Stop()
	}()

	// Optional duties get a nil channel, which never fires.
	var backupC, autostartC <-chan time.Time
	if t.backups != nil {
		ticker := t.clock.NewTicker(t.config.BackupInterval)
		defer ticker.Stop()
		backupC = ticker.Chan()
	}
	if t.autostart != nil {
		ticker := t.clock.NewTicker(t.config.AutostartCheckInterval)
		defer ticker.Stop()
		autostartC = ticker.Chan()
	}

	t.sample(ctx)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("tracker daemon stopping")
			return t.shutdown()

		case <-sampleTicker.Chan():
			t.sample(ctx)

		case <-heartbeatTicker.Chan():
			if err := t.heartbeat(ctx); errors.Is(err, ErrReplaced) {
				t.logger.Warn("another tracker took over, exiting", zap.Error(err))
				// The newer instance owns the registry entry.
				return errors.Join(err, t.flushOnly())
			}

		case <-aggregateTicker.Chan():
			t.aggregate(ctx)

		case <-reloadTicker.Chan():
			t.reloadRules(ctx)

		case <-expiryTicker.Chan():
			t.checkExpiry(ctx)

		case <-backupC:
			t.backup(ctx)

		case <-autostartC:
			t.ensureAutostart()
		}
	}
}

// startup recovers state a previous run may have left behind.
func (t *Tracker) startup(ctx context.Context) {
	t.reloadRules(ctx)

	if recovered, err := t.sampler.Recover(ctx); err != nil {
		t.logger.Warn("failed to recover sampler checkpoint", zap.Error(err))
	} else if recovered {
		t.logger.Info("recovered activity from previous run")
	}

	if days, err := t.aggregator.CatchUp(ctx); err != nil {
		t.logger.Warn("aggregation catch-up failed", zap.Error(err))
	} else {
		t.logger.Debug("aggregation catch-up done", zap.Int("days", days))
	}

	t.ensureAutostart()
}

func (t *Tracker) sample(ctx context.Context) {
	if err := t.sampler.Tick(ctx); err != nil && ctx.Err() == nil {
		t.logger.Warn("sample tick failed", zap.Error(err))
	}
}

// heartbeat checkpoints the open interval and refreshes liveness.
func (t *Tracker) heartbeat(ctx context.Context) error {
	if err := t.sampler.Checkpoint(ctx); err != nil {
		t.logger.Warn("failed to checkpoint sampler", zap.Error(err))
	}
	err := t.registry.UpdateHeartbeat(ctx, t.state.RunID, t.clock.Now())
	switch {
	case err == nil:
		stats := t.sampler.Stats()
		t.logger.Debug("heartbeat",
			zap.Uint64("ticks", stats.Ticks),
			zap.Uint64("skipped", stats.SkippedTicks),
			zap.Uint64("persisted", stats.Persisted),
			zap.Int("pending", stats.Pending))
		return nil
	case errors.Is(err, domain.ErrConflict):
		return fmt.Errorf("%w: %w", ErrReplaced, err)
	case errors.Is(err, domain.ErrNotFound):
		// Cleared by hand; put ourselves back.
		t.state.LastHeartbeat = t.clock.Now()
		if regErr := t.registry.Register(ctx, t.state); regErr != nil {
			t.logger.Warn("failed to re-register tracker", zap.Error(regErr))
		}
		return nil
	default:
		t.logger.Warn("failed to update heartbeat", zap.Error(err))
		return err
	}
}

// aggregate refreshes summaries from the newest stored day through today,
// which also covers a midnight rollover.
func (t *Tracker) aggregate(ctx context.Context) {
	if _, err := t.aggregator.CatchUp(ctx); err != nil && ctx.Err() == nil {
		t.logger.Warn("aggregation failed", zap.Error(err))
	}
}

func (t *Tracker) reloadRules(ctx context.Context) {
	if t.rules == nil {
		return
	}
	if err := t.rules.Reload(ctx); err != nil && ctx.Err() == nil {
		t.logger.Warn("failed to reload category rules", zap.Error(err))
	}
}

func (t *Tracker) checkExpiry(ctx context.Context) {
	if t.sessions == nil {
		return
	}
	if _, err := t.sessions.CheckExpiry(ctx); err != nil && ctx.Err() == nil {
		t.logger.Warn("session expiry check failed", zap.Error(err))
	}
}

func (t *Tracker) backup(ctx context.Context) {
	record, err := t.backups.Backup(ctx)
	if err != nil {
		t.logger.Error("scheduled backup failed", zap.Error(err))
		return
	}
	t.logger.Info("scheduled backup done", zap.String("file", record.File))
}

// ensureAutostart restores a deleted login item and rewrites an outdated one.
func (t *Tracker) ensureAutostart() {
	if t.autostart == nil {
		return
	}
	if !t.autostart.IsInstalled() {
		t.logger.Info("autostart entry missing, restoring", zap.String("path", t.autostart.Path()))
		if err := t.autostart.Install(t.execPath); err != nil {
			t.logger.Error("failed to restore autostart entry", zap.Error(err))
		}
		return
	}
	if t.autostart.NeedsUpdate(t.execPath) {
		t.logger.Info("autostart entry outdated, updating", zap.String("path", t.autostart.Path()))
		if err := t.autostart.Update(t.execPath); err != nil {
			t.logger.Error("failed to update autostart entry", zap.Error(err))
		}
	}
}

// shutdown flushes, refreshes today's summary and unregisters.
func (t *Tracker) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), t.config.ShutdownTimeout)
	defer cancel()

	err := t.sampler.Shutdown(ctx)
	if err != nil {
		t.logger.Error("failed to flush activity at shutdown", zap.Error(err))
	}
	if _, aggErr := t.aggregator.Aggregate(ctx, t.aggregator.Today()); aggErr != nil {
		t.logger.Warn("final aggregation failed", zap.Error(aggErr))
	}

	current, getErr := t.registry.Get(ctx)
	if getErr == nil && current != nil && current.RunID == t.state.RunID {
		if clearErr := t.registry.Clear(ctx); clearErr != nil {
			t.logger.Warn("failed to unregister tracker", zap.Error(clearErr))
		}
	}
	t.logger.Info("tracker daemon stopped")
	return err
}

// flushOnly closes the open interval without touching the registry.
func (t *Tracker) flushOnly() error {
	ctx, cancel := context.WithTimeout(context.Background(), t.config.ShutdownTimeout)
	defer cancel()
	return t.sampler.Shutdown(ctx)
}
