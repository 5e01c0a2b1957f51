// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"strings"
	"time"
)

// Sample is one observation of the foreground window.
type Sample struct {
	AppName     string
	WindowTitle string
	PID         int
	IdleFor     time.Duration // Time since last user input
}

// HasFocus reports whether some application owns the foreground.
// A locked screen or an empty desktop yields no focus.
func (s Sample) HasFocus() bool {
	return strings.TrimSpace(s.AppName) != ""
}

// IsIdle reports whether the user has been inactive for at least threshold.
func (s Sample) IsIdle(threshold time.Duration) bool {
	return threshold > 0 && s.IdleFor >= threshold
}

// SameFocus reports whether two samples describe the same (app, title) pair.
func (s Sample) SameFocus(app, title string) bool {
	return s.AppName == app && s.WindowTitle == title
}

// ActivityInterval is a closed span of continuous focus on one app/window.
// Intervals are written once, when they close, and never updated.
type ActivityInterval struct {
	ID                int64
	AppName           string
	WindowTitle       string
	Start             time.Time
	End               time.Time
	CategoryID        *int64
	ProductivityScore float64
}

// Duration returns End - Start.
func (a ActivityInterval) Duration() time.Duration {
	return a.End.Sub(a.Start)
}

// Clip returns the part of the interval's duration that falls inside r.
func (a ActivityInterval) Clip(r TimeRange) time.Duration {
	start, end := a.Start, a.End
	if start.Before(r.From) {
		start = r.From
	}
	if end.After(r.To) {
		end = r.To
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start)
}

// Category groups applications by productivity.
type Category struct {
	ID                int64
	Name              string
	ProductivityScore float64 // 0.0 - 1.0
	IsProductive      bool
	CreatedAt         time.Time
}

// CategoryRule maps applications to a category.
// Kind names a registered matcher ("exact", "contains", "prefix", "regex").
type CategoryRule struct {
	ID           int64
	CategoryID   int64
	Kind         string
	AppPattern   string
	TitlePattern string // optional, same kind as AppPattern
	Priority     int    // higher wins
}

// Project is a user-defined bucket for sessions.
type Project struct {
	ID          int64
	Name        string
	Description string
	Color       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Tag labels sessions.
type Tag struct {
	ID        int64
	Name      string
	Color     string
	CreatedAt time.Time
}

// SessionStatus is the persisted state of a focus session.
type SessionStatus string

const (
	// StatusIdle is the machine state when no session is active. Never stored.
	StatusIdle        SessionStatus = "idle"
	StatusRunning     SessionStatus = "running"
	StatusPaused      SessionStatus = "paused"
	StatusCompleted   SessionStatus = "completed"
	StatusInterrupted SessionStatus = "interrupted"
)

// IsTerminal reports whether no further transition is possible.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusInterrupted
}

// Session is one focus (pomodoro) session.
type Session struct {
	ID        int64
	Start     time.Time
	End       *time.Time // set once, on the terminal transition
	Status    SessionStatus
	Notes     string
	ProjectID *int64
	Planned   time.Duration
	Elapsed   time.Duration // running time accumulated before ResumedAt
	ResumedAt *time.Time    // start of the current running span, nil while paused
	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ElapsedAt returns running time up to now, excluding paused spans.
func (s Session) ElapsedAt(now time.Time) time.Duration {
	elapsed := s.Elapsed
	if s.Status == StatusRunning && s.ResumedAt != nil && now.After(*s.ResumedAt) {
		elapsed += now.Sub(*s.ResumedAt)
	}
	return elapsed
}

// Remaining returns planned time left, never negative.
func (s Session) Remaining(now time.Time) time.Duration {
	left := s.Planned - s.ElapsedAt(now)
	if left < 0 {
		return 0
	}
	return left
}

// DailySummary is the derived per-day rollup.
type DailySummary struct {
	Date                 string // YYYY-MM-DD, local calendar day
	TotalWorkTime        time.Duration
	ProductiveTime       time.Duration
	CompletedPomodoros   int
	InterruptedPomodoros int
	MostUsedApp          string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ProductivityRatio returns productive / total, 0 when nothing was tracked.
func (d DailySummary) ProductivityRatio() float64 {
	if d.TotalWorkTime <= 0 {
		return 0
	}
	return float64(d.ProductiveTime) / float64(d.TotalWorkTime)
}

// SameValues reports whether two summaries carry identical derived values.
func (d DailySummary) SameValues(o DailySummary) bool {
	return d.Date == o.Date &&
		d.TotalWorkTime == o.TotalWorkTime &&
		d.ProductiveTime == o.ProductiveTime &&
		d.CompletedPomodoros == o.CompletedPomodoros &&
		d.InterruptedPomodoros == o.InterruptedPomodoros &&
		d.MostUsedApp == o.MostUsedApp
}

// TimeRange is a half-open [From, To) span.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls in [From, To).
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && t.Before(r.To)
}

// SamplerCheckpoint is the open interval snapshot persisted on heartbeat
// so a crash loses at most one heartbeat of activity.
type SamplerCheckpoint struct {
	AppName     string    `json:"app_name"`
	WindowTitle string    `json:"window_title"`
	Start       time.Time `json:"start"`
	LastActive  time.Time `json:"last_active"`
}

// DaemonState describes the running tracker daemon.
type DaemonState struct {
	PID           int       `json:"pid"`
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	Version       string    `json:"version"`
}

// Notification is a user-facing message.
type Notification struct {
	Title   string
	Message string
}
