package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
)

// SamplerConfig holds sampler tuning.
type SamplerConfig struct {
	SampleInterval     time.Duration // expected gap between ticks
	IdleThreshold      time.Duration // idle this long closes the open interval
	ProbeTimeout       time.Duration // a slower probe skips the tick
	MaxPersistAttempts int           // a closed interval is dropped after this many failed writes
	FailureReportEvery int           // warn on every Nth consecutive probe failure
}

// DefaultSamplerConfig returns default sampler configuration.
func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		SampleInterval:     5 * time.Second,
		IdleThreshold:      5 * time.Minute,
		ProbeTimeout:       2 * time.Second,
		MaxPersistAttempts: 5,
		FailureReportEvery: 12,
	}
}

// SamplerStats are cumulative sampler counters.
type SamplerStats struct {
	Ticks           uint64
	SkippedTicks    uint64
	ProbeFailures   uint64
	Discontinuities uint64
	Persisted       uint64
	Dropped         uint64
	Pending         int
	Open            bool
}

// tickGapTolerance is how many sample intervals a late tick may lag before
// it is treated as a clock jump.
const tickGapTolerance = 3

type openInterval struct {
	app        string
	title      string
	start      time.Time
	lastActive time.Time
}

type pendingInterval struct {
	interval domain.ActivityInterval
	attempts int
}

// Sampler turns periodic probe samples into closed activity intervals.
// It owns the open interval; intervals are written once, when they close.
type Sampler struct {
	cfg        SamplerConfig
	probe      domain.ForegroundProbe
	store      domain.ActivityStore
	classifier IntervalClassifier
	clock      clockwork.Clock
	logger     *zap.Logger

	mu           sync.Mutex
	open         *openInterval
	lastTick     time.Time
	floor        time.Time // end of the newest closed interval
	pending      []pendingInterval
	failures     int
	checkpointed bool
	stats        SamplerStats
}

// NewSampler creates a sampler.
func NewSampler(
	cfg SamplerConfig,
	probe domain.ForegroundProbe,
	store domain.ActivityStore,
	classifier IntervalClassifier,
	clock clockwork.Clock,
	logger *zap.Logger,
) *Sampler {
	if cfg.MaxPersistAttempts <= 0 {
		cfg.MaxPersistAttempts = 1
	}
	if cfg.FailureReportEvery <= 0 {
		cfg.FailureReportEvery = 1
	}
	return &Sampler{
		cfg:        cfg,
		probe:      probe,
		store:      store,
		classifier: classifier,
		clock:      clock,
		logger:     logger,
	}
}

// wall strips the monotonic reading: suspend does not advance the monotonic
// clock on every platform, and stored times are wall times.
func wall(t time.Time) time.Time {
	return t.Round(0)
}

// Tick polls the probe once and updates the open interval. It only returns
// an error when ctx is canceled; probe and storage failures are absorbed.
func (s *Sampler) Tick(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := wall(s.clock.Now())
	s.stats.Ticks++
	s.detectDiscontinuity(now)
	s.lastTick = now

	sample, err := s.poll(ctx)
	switch {
	case err == nil:
		s.probeRecovered()
		s.observe(now, sample)
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		s.stats.SkippedTicks++
		s.logger.Debug("probe timed out, skipping tick", zap.Duration("timeout", s.cfg.ProbeTimeout))
	default:
		s.probeFailed(err)
	}

	s.flush(ctx)
	return nil
}

func (s *Sampler) poll(ctx context.Context) (domain.Sample, error) {
	if s.cfg.ProbeTimeout <= 0 {
		return s.probe.Poll(ctx)
	}
	pctx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	type result struct {
		sample domain.Sample
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		sample, err := s.probe.Poll(pctx)
		ch <- result{sample, err}
	}()

	select {
	case r := <-ch:
		return r.sample, r.err
	case <-pctx.Done():
		return domain.Sample{}, pctx.Err()
	}
}

// observe applies one successful sample.
func (s *Sampler) observe(now time.Time, sample domain.Sample) {
	if !sample.HasFocus() || sample.IsIdle(s.cfg.IdleThreshold) {
		if s.open == nil {
			return
		}
		end := s.open.lastActive
		if sample.IdleFor > 0 {
			if lastInput := now.Add(-sample.IdleFor); lastInput.Before(end) {
				end = lastInput
			}
		}
		reason := "idle"
		if !sample.HasFocus() {
			reason = "no focus"
		}
		s.closeOpen(end, reason)
		return
	}

	if s.open == nil {
		s.openAt(now, now, sample)
		return
	}
	if sample.SameFocus(s.open.app, s.open.title) {
		s.open.lastActive = now
		return
	}

	// Still active across the switch: the two intervals meet at switchAt.
	switchAt := now
	if sample.IdleFor > 0 {
		switchAt = now.Add(-sample.IdleFor)
		if switchAt.Before(s.open.lastActive) {
			switchAt = s.open.lastActive
		}
	}
	s.closeOpen(switchAt, "focus change")
	s.openAt(switchAt, now, sample)
}

func (s *Sampler) openAt(start, now time.Time, sample domain.Sample) {
	if start.Before(s.floor) {
		s.logger.Debug("clock behind last closed interval, not opening",
			zap.Time("start", start), zap.Time("floor", s.floor))
		return
	}
	s.open = &openInterval{
		app:        sample.AppName,
		title:      sample.WindowTitle,
		start:      start,
		lastActive: now,
	}
}

// closeOpen ends the open interval at end and queues it for persistence.
// Empty intervals are discarded.
func (s *Sampler) closeOpen(end time.Time, reason string) {
	o := s.open
	s.open = nil
	if o == nil {
		return
	}
	if !end.After(o.start) {
		s.logger.Debug("discarding empty interval", zap.String("app", o.app), zap.String("reason", reason))
		return
	}

	c := s.classifier.Classify(o.app, o.title)
	s.pending = append(s.pending, pendingInterval{interval: domain.ActivityInterval{
		AppName:           o.app,
		WindowTitle:       o.title,
		Start:             o.start,
		End:               end,
		CategoryID:        c.CategoryID,
		ProductivityScore: c.Score,
	}})
	if end.After(s.floor) {
		s.floor = end
	}
	s.logger.Debug("interval closed",
		zap.String("app", o.app),
		zap.String("category", c.Category),
		zap.Duration("duration", end.Sub(o.start)),
		zap.String("reason", reason))
}

func (s *Sampler) detectDiscontinuity(now time.Time) {
	if s.lastTick.IsZero() || s.open == nil {
		return
	}
	gap := now.Sub(s.lastTick)
	if gap >= 0 && gap <= s.maxTickGap() {
		return
	}
	s.stats.Discontinuities++
	s.logger.Warn("wall clock discontinuity, closing open interval",
		zap.Duration("gap", gap),
		zap.Time("last_tick", s.lastTick))
	s.closeOpen(s.open.lastActive, "clock discontinuity")
}

// maxTickGap is the longest gap between ticks that still counts as
// continuous: the idle threshold, but never less than a few ticks.
func (s *Sampler) maxTickGap() time.Duration {
	limit := s.cfg.IdleThreshold
	if m := tickGapTolerance * s.cfg.SampleInterval; m > limit {
		limit = m
	}
	return limit
}

func (s *Sampler) probeFailed(err error) {
	s.failures++
	s.stats.ProbeFailures++
	if s.open != nil {
		s.closeOpen(s.open.lastActive, "probe failure")
	}
	if s.failures == 1 || s.failures%s.cfg.FailureReportEvery == 0 {
		s.logger.Warn("foreground probe failed",
			zap.Int("consecutive_failures", s.failures),
			zap.Error(err))
	}
}

func (s *Sampler) probeRecovered() {
	if s.failures > 0 {
		s.logger.Info("foreground probe recovered", zap.Int("failed_ticks", s.failures))
		s.failures = 0
	}
}

// flush writes queued intervals in order. Failed writes stay queued until
// MaxPersistAttempts, then are dropped with a warning.
func (s *Sampler) flush(ctx context.Context) {
	if len(s.pending) == 0 {
		return
	}
	persisted := false
	kept := s.pending[:0]
	for _, p := range s.pending {
		if ctx.Err() != nil {
			kept = append(kept, p)
			continue
		}
		if _, err := s.store.InsertInterval(ctx, p.interval); err != nil {
			p.attempts++
			if p.attempts >= s.cfg.MaxPersistAttempts {
				s.stats.Dropped++
				s.logger.Warn("dropping interval after repeated persistence failures",
					zap.String("app", p.interval.AppName),
					zap.Time("start", p.interval.Start),
					zap.Duration("duration", p.interval.Duration()),
					zap.Int("attempts", p.attempts),
					zap.Error(err))
				continue
			}
			s.logger.Debug("interval write failed, will retry",
				zap.String("app", p.interval.AppName),
				zap.Int("attempts", p.attempts),
				zap.Error(err))
			kept = append(kept, p)
			continue
		}
		s.stats.Persisted++
		persisted = true
	}
	s.pending = kept

	// A stale checkpoint would be recovered as a duplicate after a crash.
	if persisted && s.checkpointed && len(s.pending) == 0 {
		if err := s.store.ClearCheckpoint(ctx); err == nil {
			s.checkpointed = false
		}
	}
}

// Checkpoint persists the open interval so a crash loses at most one
// checkpoint period of activity.
func (s *Sampler) Checkpoint(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open == nil {
		if s.checkpointed && len(s.pending) == 0 {
			if err := s.store.ClearCheckpoint(ctx); err != nil {
				return err
			}
			s.checkpointed = false
		}
		return nil
	}
	cp := domain.SamplerCheckpoint{
		AppName:     s.open.app,
		WindowTitle: s.open.title,
		Start:       s.open.start,
		LastActive:  s.open.lastActive,
	}
	if err := s.store.SaveCheckpoint(ctx, cp); err != nil {
		return fmt.Errorf("failed to save sampler checkpoint: %w", err)
	}
	s.checkpointed = true
	return nil
}

// Recover persists an interval left open by a crash, using its last
// checkpoint. It returns true when an interval was recovered.
func (s *Sampler) Recover(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, err := s.store.LoadCheckpoint(ctx)
	if err != nil || cp == nil {
		return false, err
	}

	recovered := false
	if cp.LastActive.After(cp.Start) {
		exists, err := s.store.HasIntervalStartingAt(ctx, cp.AppName, cp.Start)
		if err != nil {
			return false, err
		}
		if !exists {
			s.open = &openInterval{app: cp.AppName, title: cp.WindowTitle, start: cp.Start, lastActive: cp.LastActive}
			s.closeOpen(cp.LastActive, "recovered")
			s.flush(ctx)
			recovered = true
			s.logger.Info("recovered interval from checkpoint",
				zap.String("app", cp.AppName),
				zap.Time("start", cp.Start),
				zap.Time("end", cp.LastActive))
		}
		if cp.LastActive.After(s.floor) {
			s.floor = cp.LastActive
		}
	}

	if len(s.pending) > 0 {
		// Keep the checkpoint until the recovered interval is written.
		s.checkpointed = true
		return recovered, nil
	}
	if err := s.store.ClearCheckpoint(ctx); err != nil {
		return recovered, err
	}
	s.checkpointed = false
	return recovered, nil
}

// Shutdown closes the open interval at the shutdown time and flushes.
// After a long gap since the last tick (suspend) it closes at the last
// active time instead.
func (s *Sampler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := wall(s.clock.Now())
	if s.open != nil {
		end := now
		if !s.lastTick.IsZero() {
			if gap := now.Sub(s.lastTick); gap < 0 || gap > s.maxTickGap() {
				end = s.open.lastActive
			}
		}
		s.closeOpen(end, "shutdown")
	}
	s.flush(ctx)

	if n := len(s.pending); n > 0 {
		s.logger.Warn("intervals not persisted at shutdown", zap.Int("count", n))
		return fmt.Errorf("%d intervals not persisted: %w", n, domain.ErrPersistence)
	}
	if s.checkpointed {
		if err := s.store.ClearCheckpoint(ctx); err != nil {
			return err
		}
		s.checkpointed = false
	}
	return nil
}

// Current returns the open interval's focus, ok=false when none is open.
func (s *Sampler) Current() (app, title string, since time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open == nil {
		return "", "", time.Time{}, false
	}
	return s.open.app, s.open.title, s.open.start, true
}

// Stats returns a copy of the counters.
func (s *Sampler) Stats() SamplerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Pending = len(s.pending)
	st.Open = s.open != nil
	return st
}
