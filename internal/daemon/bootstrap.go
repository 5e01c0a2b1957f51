package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
)

// ErrAlreadyRunning means a live tracker is registered.
var ErrAlreadyRunning = errors.New("tracker daemon already running")

// ErrNotRunning means no live tracker is registered.
var ErrNotRunning = errors.New("tracker daemon not running")

// Status describes the registered tracker.
type Status struct {
	State   *domain.DaemonState // nil when nothing is registered
	Running bool                // the registered PID is alive
	Stale   bool                // alive but the heartbeat is overdue
}

// Inspect reads the registry and checks the registered process.
// A heartbeat older than three intervals marks the daemon stale.
func Inspect(ctx context.Context, registry domain.DaemonRegistry, pm domain.ProcessManager, clock clockwork.Clock, heartbeat time.Duration) (Status, error) {
	state, err := registry.Get(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("failed to read daemon registry: %w", err)
	}
	if state == nil {
		return Status{}, nil
	}
	st := Status{State: state, Running: pm.IsRunning(state.PID)}
	if st.Running && heartbeat > 0 && clock.Since(state.LastHeartbeat) > 3*heartbeat {
		st.Stale = true
	}
	return st, nil
}

// StartDaemon spawns `<executable> daemon [args...]` detached from the
// parent (new session, no stdio) and returns its PID. It refuses when a
// live tracker is already registered.
func StartDaemon(ctx context.Context, executable string, registry domain.DaemonRegistry, pm domain.ProcessManager, args ...string) (int, error) {
	state, err := registry.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read daemon registry: %w", err)
	}
	if state != nil && pm.IsRunning(state.PID) {
		return state.PID, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, state.PID)
	}
	if executable == "" {
		if executable, err = os.Executable(); err != nil {
			return 0, err
		}
	}

	cmd := exec.Command(executable, append([]string{"daemon"}, args...)...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // Create new session (detach from terminal)
	}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to spawn tracker daemon: %w", err)
	}
	pid := cmd.Process.Pid
	// The child is reparented; release it so no zombie is left behind.
	_ = cmd.Process.Release()
	return pid, nil
}

// StopDaemon sends SIGTERM to the registered tracker and waits until it
// exits or timeout passes. The daemon unregisters itself on a clean exit;
// an entry left by a dead process is cleared here.
func StopDaemon(ctx context.Context, registry domain.DaemonRegistry, pm domain.ProcessManager, clock clockwork.Clock, timeout time.Duration) (*domain.DaemonState, error) {
	state, err := registry.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read daemon registry: %w", err)
	}
	if state == nil {
		return nil, ErrNotRunning
	}
	if !pm.IsRunning(state.PID) {
		if err := registry.Clear(ctx); err != nil {
			return state, err
		}
		return state, ErrNotRunning
	}

	if err := pm.Terminate(state.PID); err != nil {
		return state, fmt.Errorf("failed to signal pid %d: %w", state.PID, err)
	}

	deadline := clock.After(timeout)
	for pm.IsRunning(state.PID) {
		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-deadline:
			return state, fmt.Errorf("tracker (pid %d) did not exit within %s", state.PID, timeout)
		case <-clock.After(100 * time.Millisecond):
		}
	}
	return state, nil
}
