package infra

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
)

// OutputRunner runs a command and returns its stdout; replaced in tests.
type OutputRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// NewForegroundProbe returns the probe for the running OS.
func NewForegroundProbe(pm domain.ProcessManager) domain.ForegroundProbe {
	return NewForegroundProbeFor(runtime.GOOS, pm, runOutput)
}

// NewForegroundProbeFor selects a probe by GOOS with a custom runner.
func NewForegroundProbeFor(goos string, pm domain.ProcessManager, run OutputRunner) domain.ForegroundProbe {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return &X11Probe{run: run, pm: pm}
	case "darwin":
		return &MacProbe{run: run, pm: pm}
	default:
		return unsupportedProbe{goos: goos}
	}
}

// X11Probe reads the focused window through xdotool and idle time through
// xprintidle.
type X11Probe struct {
	run OutputRunner
	pm  domain.ProcessManager
}

// Poll implements domain.ForegroundProbe.
func (p *X11Probe) Poll(ctx context.Context) (domain.Sample, error) {
	out, err := p.run(ctx, "xdotool", "getactivewindow", "getwindowpid", "getwindowname")
	if err != nil {
		return domain.Sample{}, probeErr(ctx, "xdotool", err)
	}
	pid, title, err := parsePIDAndTitle(out)
	if err != nil {
		return domain.Sample{}, fmt.Errorf("%w: %w", domain.ErrProbeUnavailable, err)
	}

	sample := domain.Sample{PID: pid, WindowTitle: title}
	if name, err := p.pm.ProcessName(pid); err == nil {
		sample.AppName = name
	} else {
		return domain.Sample{}, fmt.Errorf("%w: %w", domain.ErrProbeUnavailable, err)
	}

	// Idle time is optional; without xprintidle the user is never idle.
	if idleOut, err := p.run(ctx, "xprintidle"); err == nil {
		if ms, err := strconv.ParseInt(strings.TrimSpace(string(idleOut)), 10, 64); err == nil {
			sample.IdleFor = time.Duration(ms) * time.Millisecond
		}
	} else if ctx.Err() != nil {
		return domain.Sample{}, ctx.Err()
	}
	return sample, nil
}

// parsePIDAndTitle reads "pid\ntitle" as printed by chained xdotool commands.
func parsePIDAndTitle(out []byte) (int, string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	if !scanner.Scan() {
		return 0, "", fmt.Errorf("empty window info")
	}
	pid, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return 0, "", fmt.Errorf("invalid window pid %q: %w", scanner.Text(), err)
	}
	var title string
	if scanner.Scan() {
		title = strings.TrimSpace(scanner.Text())
	}
	return pid, title, nil
}

const macFrontmostScript = `tell application "System Events"
	set frontProc to first application process whose frontmost is true
	set procName to name of frontProc
	set procPID to unix id of frontProc
	set winTitle to ""
	try
		set winTitle to name of front window of frontProc
	end try
end tell
return (procPID as text) & linefeed & winTitle & linefeed & procName`

var hidIdleRe = regexp.MustCompile(`"HIDIdleTime"\s*=\s*(\d+)`)

// MacProbe reads the frontmost application through AppleScript and idle
// time through the IOHIDSystem registry entry.
type MacProbe struct {
	run OutputRunner
	pm  domain.ProcessManager
}

// Poll implements domain.ForegroundProbe.
func (p *MacProbe) Poll(ctx context.Context) (domain.Sample, error) {
	out, err := p.run(ctx, "osascript", "-e", macFrontmostScript)
	if err != nil {
		return domain.Sample{}, probeErr(ctx, "osascript", err)
	}
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	if len(lines) < 3 {
		return domain.Sample{}, fmt.Errorf("%w: unexpected osascript output %q", domain.ErrProbeUnavailable, out)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return domain.Sample{}, fmt.Errorf("%w: invalid pid %q", domain.ErrProbeUnavailable, lines[0])
	}
	sample := domain.Sample{
		PID:         pid,
		WindowTitle: strings.TrimSpace(lines[1]),
		AppName:     CleanAppName(lines[2]),
	}
	if sample.AppName == "" {
		if name, err := p.pm.ProcessName(pid); err == nil {
			sample.AppName = name
		}
	}

	if idleOut, err := p.run(ctx, "ioreg", "-c", "IOHIDSystem", "-d", "4", "-r", "-k", "HIDIdleTime"); err == nil {
		if m := hidIdleRe.FindSubmatch(idleOut); m != nil {
			if ns, err := strconv.ParseInt(string(m[1]), 10, 64); err == nil {
				sample.IdleFor = time.Duration(ns)
			}
		}
	} else if ctx.Err() != nil {
		return domain.Sample{}, ctx.Err()
	}
	return sample, nil
}

type unsupportedProbe struct {
	goos string
}

func (p unsupportedProbe) Poll(ctx context.Context) (domain.Sample, error) {
	return domain.Sample{}, fmt.Errorf("%w: no probe for %s", domain.ErrProbeUnavailable, p.goos)
}

// probeErr keeps context errors distinct so the sampler can tell a timeout
// from an unavailable probe.
func probeErr(ctx context.Context, tool string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrProbeUnavailable, tool, err)
}
