package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
)

var errStoreDown = errors.New("disk I/O error")

// stubProbe implements domain.ForegroundProbe for testing
type stubProbe struct {
	mu     sync.Mutex
	sample domain.Sample
	err    error
	block  bool
	calls  int
}

func (p *stubProbe) set(sample domain.Sample, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sample, p.err, p.block = sample, err, false
}

func (p *stubProbe) hang() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.block = true
}

func (p *stubProbe) Poll(ctx context.Context) (domain.Sample, error) {
	p.mu.Lock()
	p.calls++
	sample, err, block := p.sample, p.err, p.block
	p.mu.Unlock()
	if block {
		<-ctx.Done()
		return domain.Sample{}, ctx.Err()
	}
	return sample, err
}

// memActivityStore implements domain.ActivityStore for testing
type memActivityStore struct {
	mu          sync.Mutex
	intervals   []domain.ActivityInterval
	checkpoint  *domain.SamplerCheckpoint
	failInserts int
	inserts     int
	clears      int
}

func (m *memActivityStore) InsertInterval(ctx context.Context, iv domain.ActivityInterval) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if m.failInserts > 0 {
		m.failInserts--
		return 0, errStoreDown
	}
	iv.ID = int64(len(m.intervals) + 1)
	m.intervals = append(m.intervals, iv)
	return iv.ID, nil
}

func (m *memActivityStore) HasIntervalStartingAt(ctx context.Context, app string, start time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, iv := range m.intervals {
		if iv.AppName == app && iv.Start.Equal(start) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memActivityStore) SaveCheckpoint(ctx context.Context, cp domain.SamplerCheckpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoint = &cp
	return nil
}

func (m *memActivityStore) LoadCheckpoint(ctx context.Context) (*domain.SamplerCheckpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.checkpoint == nil {
		return nil, nil
	}
	cp := *m.checkpoint
	return &cp, nil
}

func (m *memActivityStore) ClearCheckpoint(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	m.checkpoint = nil
	return nil
}

func (m *memActivityStore) all() []domain.ActivityInterval {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]domain.ActivityInterval(nil), m.intervals...)
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// classifierFunc implements IntervalClassifier for testing
type classifierFunc func(app, title string) Classification

func (f classifierFunc) Classify(app, title string) Classification {
	return f(app, title)
}

func neutralClassifier() IntervalClassifier {
	return classifierFunc(func(string, string) Classification { return Classification{} })
}

// memSessionStore implements domain.SessionStore for testing.
// Guards mirror the SQL store: one active session, status-checked updates.
type memSessionStore struct {
	mu       sync.Mutex
	sessions map[int64]*domain.Session
	nextID   int64
	err      error
	writes   int
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[int64]*domain.Session)}
}

func copySession(s *domain.Session) *domain.Session {
	c := *s
	c.Tags = append([]string(nil), s.Tags...)
	return &c
}

func (m *memSessionStore) ActiveSession(ctx context.Context) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, s := range m.sessions {
		if s.End == nil {
			return copySession(s), nil
		}
	}
	return nil, nil
}

func (m *memSessionStore) CreateSession(ctx context.Context, s domain.Session) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	for _, existing := range m.sessions {
		if existing.End == nil {
			return 0, domain.ErrConflict
		}
	}
	m.nextID++
	s.ID = m.nextID
	m.sessions[s.ID] = copySession(&s)
	m.writes++
	return s.ID, nil
}

func (m *memSessionStore) UpdateSession(ctx context.Context, s domain.Session, expected domain.SessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	cur, ok := m.sessions[s.ID]
	if !ok || cur.Status != expected || cur.End != nil {
		return domain.ErrConflict
	}
	s.Tags = cur.Tags
	m.sessions[s.ID] = copySession(&s)
	m.writes++
	return nil
}

func (m *memSessionStore) GetSession(ctx context.Context, id int64) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copySession(s), nil
}

func (m *memSessionStore) AttachTag(ctx context.Context, sessionID int64, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	if s.Status.IsTerminal() {
		return domain.ErrConflict
	}
	for _, t := range s.Tags {
		if t == tag {
			return nil
		}
	}
	s.Tags = append(s.Tags, tag)
	m.writes++
	return nil
}

// recordingNotifier implements domain.Notifier for testing
type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (n *recordingNotifier) Notify(ctx context.Context, msg domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// memSummaryStore implements domain.SummaryStore for testing
type memSummaryStore struct {
	intervals  []domain.ActivityInterval
	sessions   []domain.Session
	categories []domain.Category
	summaries  map[string]domain.DailySummary
	writes     int
	now        func() time.Time
}

func newMemSummaryStore(now func() time.Time) *memSummaryStore {
	return &memSummaryStore{summaries: make(map[string]domain.DailySummary), now: now}
}

func (m *memSummaryStore) IntervalsOverlapping(ctx context.Context, r domain.TimeRange) ([]domain.ActivityInterval, error) {
	var out []domain.ActivityInterval
	for _, iv := range m.intervals {
		if iv.Start.Before(r.To) && iv.End.After(r.From) {
			out = append(out, iv)
		}
	}
	return out, nil
}

func (m *memSummaryStore) CountSessionsEnded(ctx context.Context, r domain.TimeRange) (int, int, error) {
	var completed, interrupted int
	for _, s := range m.sessions {
		if s.End == nil || !r.Contains(*s.End) {
			continue
		}
		switch s.Status {
		case domain.StatusCompleted:
			completed++
		case domain.StatusInterrupted:
			interrupted++
		}
	}
	return completed, interrupted, nil
}

func (m *memSummaryStore) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return m.categories, nil
}

func (m *memSummaryStore) UpsertSummary(ctx context.Context, s domain.DailySummary) (bool, error) {
	prev, ok := m.summaries[s.Date]
	if ok && prev.SameValues(s) {
		return false, nil
	}
	now := m.now()
	s.CreatedAt, s.UpdatedAt = now, now
	if ok {
		s.CreatedAt = prev.CreatedAt
	}
	m.summaries[s.Date] = s
	m.writes++
	return true, nil
}

func (m *memSummaryStore) GetSummary(ctx context.Context, date string) (*domain.DailySummary, error) {
	s, ok := m.summaries[date]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (m *memSummaryStore) LatestSummaryDate(ctx context.Context) (string, error) {
	latest := ""
	for d := range m.summaries {
		if d > latest {
			latest = d
		}
	}
	return latest, nil
}

func (m *memSummaryStore) FirstActivity(ctx context.Context) (*time.Time, error) {
	var first *time.Time
	for _, iv := range m.intervals {
		if first == nil || iv.Start.Before(*first) {
			t := iv.Start
			first = &t
		}
	}
	return first, nil
}
