// Package infra implements infrastructure concerns: storage, processes,
// the foreground probe, autostart and backups.
package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
)

// ProcessManagerImpl implements domain.ProcessManager using gopsutil.
type ProcessManagerImpl struct{}

// NewProcessManager creates a new process manager.
func NewProcessManager() *ProcessManagerImpl {
	return &ProcessManagerImpl{}
}

// ProcessName resolves pid to a display name: the executable base name,
// with a trailing ".exe" or ".app" removed.
func (pm *ProcessManagerImpl) ProcessName(pid int) (string, error) {
	if pid <= 0 {
		return "", fmt.Errorf("invalid pid %d", pid)
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	name, err := p.Name()
	if err != nil || name == "" {
		exe, exeErr := p.Exe()
		if exeErr != nil {
			return "", fmt.Errorf("failed to resolve name of process %d: %w", pid, err)
		}
		name = filepath.Base(exe)
	}
	return CleanAppName(name), nil
}

// CleanAppName normalizes a raw process or bundle name.
func CleanAppName(name string) string {
	name = strings.TrimSpace(name)
	for _, suffix := range []string{".exe", ".app"} {
		if strings.HasSuffix(strings.ToLower(name), suffix) {
			name = name[:len(name)-len(suffix)]
		}
	}
	return name
}

// IsRunning reports whether pid is alive. Zombies count as gone.
func (pm *ProcessManagerImpl) IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExists(int32(pid))
	if err != nil || !exists {
		return false
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	status, err := p.Status()
	if err != nil {
		return true
	}
	for _, st := range status {
		if st == process.Zombie {
			return false
		}
	}
	return true
}

// Terminate sends SIGTERM so the daemon can flush its open interval.
func (pm *ProcessManagerImpl) Terminate(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return err
	}
	return p.Terminate()
}

// GetCurrentPID returns the current process PID.
func (pm *ProcessManagerImpl) GetCurrentPID() int {
	return os.Getpid()
}

var _ domain.ProcessManager = (*ProcessManagerImpl)(nil)
