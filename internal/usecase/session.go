package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
)

// SessionConfig holds focus session settings.
type SessionConfig struct {
	DefaultDuration       time.Duration
	MinCompletionFraction float64 // of planned duration, required to complete
}

// DefaultSessionConfig returns the classic 25 minute pomodoro.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		DefaultDuration:       25 * time.Minute,
		MinCompletionFraction: 0.8,
	}
}

// SessionMachine drives the focus session lifecycle:
// idle -> running <-> paused -> completed | interrupted.
//
// The active session lives in the store so the CLI and the daemon see the
// same state; every transition re-reads it and writes with a status guard.
type SessionMachine struct {
	cfg      SessionConfig
	store    domain.SessionStore
	notifier domain.Notifier
	clock    clockwork.Clock
	logger   *zap.Logger

	mu sync.Mutex
	// Only one session is active at a time, so the last notified id is enough.
	lastNotified int64
}

// NewSessionMachine creates a session machine. notifier may be nil.
func NewSessionMachine(
	cfg SessionConfig,
	store domain.SessionStore,
	notifier domain.Notifier,
	clock clockwork.Clock,
	logger *zap.Logger,
) *SessionMachine {
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = DefaultSessionConfig().DefaultDuration
	}
	return &SessionMachine{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
	}
}

// Current returns the running or paused session, nil when idle.
func (m *SessionMachine) Current(ctx context.Context) (*domain.Session, error) {
	s, err := m.store.ActiveSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active session: %w", err)
	}
	return s, nil
}

// State returns the machine state, StatusIdle when no session is active.
func (m *SessionMachine) State(ctx context.Context) (domain.SessionStatus, error) {
	s, err := m.Current(ctx)
	if err != nil {
		return "", err
	}
	return stateOf(s), nil
}

func stateOf(s *domain.Session) domain.SessionStatus {
	if s == nil {
		return domain.StatusIdle
	}
	return s.Status
}

// Start begins a new running session. planned <= 0 uses the default
// duration. Starting while another session is active is rejected.
func (m *SessionMachine) Start(ctx context.Context, planned time.Duration, projectID *int64) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	active, err := m.Current(ctx)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, domain.NewInvalidTransition(active.Status, "start")
	}
	if planned <= 0 {
		planned = m.cfg.DefaultDuration
	}

	now := m.now()
	s := domain.Session{
		Start:     now,
		Status:    domain.StatusRunning,
		ProjectID: projectID,
		Planned:   planned,
		ResumedAt: &now,
	}
	id, err := m.store.CreateSession(ctx, s)
	if err != nil {
		return nil, m.rejected(ctx, err, "start")
	}
	s.ID = id
	m.logger.Info("session started", zap.Int64("session_id", id), zap.Duration("planned", planned))
	return &s, nil
}

// Pause stops the running clock; elapsed time is kept.
func (m *SessionMachine) Pause(ctx context.Context) (*domain.Session, error) {
	return m.transition(ctx, "pause", []domain.SessionStatus{domain.StatusRunning}, func(s *domain.Session, now time.Time) error {
		s.Elapsed = s.ElapsedAt(now)
		s.ResumedAt = nil
		s.Status = domain.StatusPaused
		return nil
	})
}

// Resume restarts the clock of a paused session.
func (m *SessionMachine) Resume(ctx context.Context) (*domain.Session, error) {
	return m.transition(ctx, "resume", []domain.SessionStatus{domain.StatusPaused}, func(s *domain.Session, now time.Time) error {
		s.ResumedAt = &now
		s.Status = domain.StatusRunning
		return nil
	})
}

// Complete finishes a running session. It fails with ErrTooShort when
// less than the minimum fraction of the planned time has run.
func (m *SessionMachine) Complete(ctx context.Context) (*domain.Session, error) {
	return m.transition(ctx, "complete", []domain.SessionStatus{domain.StatusRunning}, func(s *domain.Session, now time.Time) error {
		elapsed := s.ElapsedAt(now)
		required := time.Duration(float64(s.Planned) * m.cfg.MinCompletionFraction)
		if elapsed < required {
			return fmt.Errorf("%w: %s of %s run, need %s", domain.ErrTooShort,
				elapsed.Round(time.Second), s.Planned, required.Round(time.Second))
		}
		s.Elapsed = elapsed
		s.ResumedAt = nil
		s.End = &now
		s.Status = domain.StatusCompleted
		return nil
	})
}

// Interrupt ends a running or paused session early and records reason.
func (m *SessionMachine) Interrupt(ctx context.Context, reason string) (*domain.Session, error) {
	allowed := []domain.SessionStatus{domain.StatusRunning, domain.StatusPaused}
	return m.transition(ctx, "interrupt", allowed, func(s *domain.Session, now time.Time) error {
		s.Elapsed = s.ElapsedAt(now)
		s.ResumedAt = nil
		s.End = &now
		s.Status = domain.StatusInterrupted
		if reason = strings.TrimSpace(reason); reason != "" {
			s.Notes = reason
		}
		return nil
	})
}

// AttachTag labels the active session, creating the tag on first use.
func (m *SessionMachine) AttachTag(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("tag name is required")
	}
	active, err := m.Current(ctx)
	if err != nil {
		return err
	}
	if active == nil {
		return domain.NewInvalidTransition(domain.StatusIdle, "tag")
	}
	if err := m.store.AttachTag(ctx, active.ID, name); err != nil {
		return m.rejected(ctx, err, "tag")
	}
	return nil
}

// CheckExpiry notifies once when the running session's planned time is up.
// The session keeps running until completed or interrupted.
func (m *SessionMachine) CheckExpiry(ctx context.Context) (bool, error) {
	active, err := m.Current(ctx)
	if err != nil || active == nil || active.Status != domain.StatusRunning {
		return false, err
	}
	if active.Remaining(m.now()) > 0 {
		return false, nil
	}

	m.mu.Lock()
	if m.lastNotified == active.ID {
		m.mu.Unlock()
		return false, nil
	}
	m.lastNotified = active.ID
	m.mu.Unlock()

	m.logger.Info("session planned time elapsed", zap.Int64("session_id", active.ID), zap.Duration("planned", active.Planned))
	if m.notifier == nil {
		return true, nil
	}
	n := domain.Notification{
		Title:   "Focus session complete",
		Message: fmt.Sprintf("%s is up. Run `focustrack session complete` or keep going.", active.Planned),
	}
	if err := m.notifier.Notify(ctx, n); err != nil {
		m.logger.Warn("failed to deliver expiry notification", zap.Int64("session_id", active.ID), zap.Error(err))
	}
	return true, nil
}

// transition applies mutate to the active session when its status is in
// allowed. A rejected action performs no write.
func (m *SessionMachine) transition(
	ctx context.Context,
	action string,
	allowed []domain.SessionStatus,
	mutate func(s *domain.Session, now time.Time) error,
) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	active, err := m.Current(ctx)
	if err != nil {
		return nil, err
	}
	state := stateOf(active)
	if !statusIn(state, allowed) {
		return nil, domain.NewInvalidTransition(state, action)
	}

	next := *active
	now := m.now()
	if err := mutate(&next, now); err != nil {
		return nil, err
	}
	if err := m.store.UpdateSession(ctx, next, active.Status); err != nil {
		return nil, m.rejected(ctx, err, action)
	}

	m.logger.Info("session "+actionPast(action),
		zap.Int64("session_id", next.ID),
		zap.String("status", string(next.Status)),
		zap.Duration("elapsed", next.ElapsedAt(now)))
	return &next, nil
}

// rejected maps a store conflict to InvalidTransition using the state
// another process left behind.
func (m *SessionMachine) rejected(ctx context.Context, err error, action string) error {
	if !errors.Is(err, domain.ErrConflict) {
		return err
	}
	current, loadErr := m.store.ActiveSession(ctx)
	if loadErr != nil {
		return err
	}
	state := stateOf(current)
	if action == "start" && current == nil {
		state = domain.StatusRunning
	}
	return domain.NewInvalidTransition(state, action)
}

func (m *SessionMachine) now() time.Time {
	return m.clock.Now().Round(0)
}

func statusIn(s domain.SessionStatus, allowed []domain.SessionStatus) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}

func actionPast(action string) string {
	switch action {
	case "pause":
		return "paused"
	case "resume":
		return "resumed"
	case "complete":
		return "completed"
	case "interrupt":
		return "interrupted"
	}
	return action
}
