package infra

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
)

var testEpoch = time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)

// newTestStore opens a migrated in-memory store on a fake clock.
func newTestStore(t *testing.T) (*Store, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testEpoch)
	store, err := OpenMemoryStore(context.Background(), clock)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, clock
}

// newFileStore opens a plain store on disk, for tests that need a real file.
func newFileStore(t *testing.T, dir string) (*Store, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testEpoch)
	store, err := OpenDataStore(context.Background(), dir, false, clock, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, clock
}

// mockProcessManager is a test double for domain.ProcessManager
type mockProcessManager struct {
	names       map[int]string
	runningPIDs map[int]bool
	terminated  []int
}

func newMockProcessManager() *mockProcessManager {
	return &mockProcessManager{
		names:       make(map[int]string),
		runningPIDs: make(map[int]bool),
	}
}

func (m *mockProcessManager) ProcessName(pid int) (string, error) {
	name, ok := m.names[pid]
	if !ok {
		return "", fmt.Errorf("process %d not found", pid)
	}
	return name, nil
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	return m.runningPIDs[pid]
}

func (m *mockProcessManager) Terminate(pid int) error {
	m.terminated = append(m.terminated, pid)
	delete(m.runningPIDs, pid)
	return nil
}

func (m *mockProcessManager) GetCurrentPID() int {
	return 4242
}

var _ domain.ProcessManager = (*mockProcessManager)(nil)

// recordingRunner records commands instead of running them.
type recordingRunner struct {
	mu       sync.Mutex
	commands []string
	fail     map[string]error
}

func (r *recordingRunner) run(name string, args ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd := strings.TrimSpace(name + " " + strings.Join(args, " "))
	r.commands = append(r.commands, cmd)
	return r.fail[name]
}

func (r *recordingRunner) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.commands...)
}

// scriptedOutput answers probe commands from a table keyed by command name.
type scriptedOutput struct {
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func (s *scriptedOutput) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	s.calls = append(s.calls, name)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.errs[name]; err != nil {
		return nil, err
	}
	out, ok := s.outputs[name]
	if !ok {
		return nil, fmt.Errorf("exec: %q: executable file not found in $PATH", name)
	}
	return []byte(out), nil
}
