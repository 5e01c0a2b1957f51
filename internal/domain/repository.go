package domain

import (
	"context"
	"time"
)

// ForegroundProbe reports the currently focused application.
// Implementations are platform specific; Poll must honor ctx cancellation.
type ForegroundProbe interface {
	Poll(ctx context.Context) (Sample, error)
}

// ActivityStore persists closed intervals and the sampler checkpoint.
type ActivityStore interface {
	// InsertInterval writes one closed interval. Intervals are immutable.
	InsertInterval(ctx context.Context, interval ActivityInterval) (int64, error)

	// HasIntervalStartingAt reports whether app already has an interval starting at start.
	HasIntervalStartingAt(ctx context.Context, app string, start time.Time) (bool, error)

	SaveCheckpoint(ctx context.Context, cp SamplerCheckpoint) error

	// LoadCheckpoint returns nil when no checkpoint is stored.
	LoadCheckpoint(ctx context.Context) (*SamplerCheckpoint, error)

	ClearCheckpoint(ctx context.Context) error
}

// CategoryStore manages categories and their matching rules.
type CategoryStore interface {
	ListCategories(ctx context.Context) ([]Category, error)
	GetCategoryByName(ctx context.Context, name string) (*Category, error)
	CreateCategory(ctx context.Context, c Category) (int64, error)

	// DeleteCategory removes a category; intervals keep their rows with a NULL category.
	DeleteCategory(ctx context.Context, id int64) error

	ListRules(ctx context.Context) ([]CategoryRule, error)
	CreateRule(ctx context.Context, r CategoryRule) (int64, error)
	DeleteRule(ctx context.Context, id int64) error
}

// SessionStore persists focus sessions.
type SessionStore interface {
	// ActiveSession returns the running or paused session, nil if none.
	ActiveSession(ctx context.Context) (*Session, error)

	// CreateSession inserts a new running session. It returns ErrConflict
	// when another session is still active.
	CreateSession(ctx context.Context, s Session) (int64, error)

	// UpdateSession writes s only if the stored status still equals expected.
	// It returns ErrConflict otherwise.
	UpdateSession(ctx context.Context, s Session, expected SessionStatus) error

	GetSession(ctx context.Context, id int64) (*Session, error)

	// AttachTag links a tag (created on first use) to a non-terminal session.
	// It returns ErrConflict when the session is already terminal.
	AttachTag(ctx context.Context, sessionID int64, tag string) error
}

// CatalogStore manages projects and tags.
type CatalogStore interface {
	ListProjects(ctx context.Context) ([]Project, error)
	GetProjectByName(ctx context.Context, name string) (*Project, error)
	CreateProject(ctx context.Context, p Project) (int64, error)
	DeleteProject(ctx context.Context, id int64) error

	ListTags(ctx context.Context) ([]Tag, error)
	CreateTag(ctx context.Context, t Tag) (int64, error)
	DeleteTag(ctx context.Context, id int64) error
}

// SummaryStore reads aggregation input and stores daily summaries.
type SummaryStore interface {
	// IntervalsOverlapping returns intervals that intersect r.
	IntervalsOverlapping(ctx context.Context, r TimeRange) ([]ActivityInterval, error)

	// CountSessionsEnded counts terminal sessions whose end falls in r.
	CountSessionsEnded(ctx context.Context, r TimeRange) (completed, interrupted int, err error)

	ListCategories(ctx context.Context) ([]Category, error)

	// UpsertSummary stores s keyed by date. updated_at changes only when a
	// value changed; changed reports whether a write happened.
	UpsertSummary(ctx context.Context, s DailySummary) (changed bool, err error)

	GetSummary(ctx context.Context, date string) (*DailySummary, error)

	// LatestSummaryDate returns "" when no summary exists.
	LatestSummaryDate(ctx context.Context) (string, error)

	// FirstActivity returns nil when nothing was tracked yet.
	FirstActivity(ctx context.Context) (*time.Time, error)
}

// ActivityReader is the read-only contract consumed by exporters and the API.
type ActivityReader interface {
	ListActivity(ctx context.Context, r TimeRange) ([]ActivityInterval, error)
	ListSessions(ctx context.Context, r TimeRange) ([]Session, error)
	GetSummary(ctx context.Context, date string) (*DailySummary, error)
	ListSummaries(ctx context.Context, r TimeRange) ([]DailySummary, error)
	ListCategories(ctx context.Context) ([]Category, error)
}

// DaemonRegistry tracks the running tracker daemon.
type DaemonRegistry interface {
	Register(ctx context.Context, state DaemonState) error
	UpdateHeartbeat(ctx context.Context, runID string, at time.Time) error

	// Get returns nil when no daemon is registered.
	Get(ctx context.Context) (*DaemonState, error)
	Clear(ctx context.Context) error
}

// ProcessManager handles process operations.
type ProcessManager interface {
	// ProcessName resolves a PID to its executable name.
	ProcessName(pid int) (string, error)

	IsRunning(pid int) bool

	// Terminate asks a process to exit (SIGTERM).
	Terminate(pid int) error

	GetCurrentPID() int
}

// KeyProvider retrieves the database encryption key.
type KeyProvider interface {
	GetKey() ([]byte, error)
	StoreKey(key []byte) error
	KeyExists() bool
}

// Notifier delivers user-facing notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// AutostartManager installs the daemon as a login item
// (LaunchAgent on macOS, systemd user unit on Linux).
type AutostartManager interface {
	Install(execPath string) error
	Uninstall() error
	IsInstalled() bool
	NeedsUpdate(execPath string) bool
	Update(execPath string) error
	Path() string
}
