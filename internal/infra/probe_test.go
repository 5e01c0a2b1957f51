package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
)

func TestX11Probe_Poll(t *testing.T) {
	pm := newMockProcessManager()
	pm.names[1234] = "code"
	out := &scriptedOutput{outputs: map[string]string{
		"xdotool":    "1234\nmain.go - focustrack - Visual Studio Code\n",
		"xprintidle": "4500\n",
	}}
	probe := NewForegroundProbeFor("linux", pm, out.run)

	sample, err := probe.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Sample{
		AppName:     "code",
		WindowTitle: "main.go - focustrack - Visual Studio Code",
		PID:         1234,
		IdleFor:     4500 * time.Millisecond,
	}, sample)
}

func TestX11Probe_WithoutIdleTool(t *testing.T) {
	pm := newMockProcessManager()
	pm.names[7] = "firefox"
	out := &scriptedOutput{outputs: map[string]string{"xdotool": "7\nInbox\n"}}
	probe := NewForegroundProbeFor("linux", pm, out.run)

	sample, err := probe.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "firefox", sample.AppName)
	assert.Zero(t, sample.IdleFor)
}

func TestX11Probe_Errors(t *testing.T) {
	tests := []struct {
		name   string
		output *scriptedOutput
	}{
		{"xdotool missing", &scriptedOutput{}},
		{"xdotool fails", &scriptedOutput{errs: map[string]error{"xdotool": errors.New("exit status 1")}}},
		{"garbage output", &scriptedOutput{outputs: map[string]string{"xdotool": "not-a-pid\n"}}},
		{"unknown pid", &scriptedOutput{outputs: map[string]string{"xdotool": "99\nwindow\n"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe := NewForegroundProbeFor("linux", newMockProcessManager(), tt.output.run)
			_, err := probe.Poll(context.Background())
			assert.ErrorIs(t, err, domain.ErrProbeUnavailable)
		})
	}
}

func TestX11Probe_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	probe := NewForegroundProbeFor("linux", newMockProcessManager(), (&scriptedOutput{}).run)

	_, err := probe.Poll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrProbeUnavailable)
}

func TestParsePIDAndTitle(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantPID   int
		wantTitle string
		wantErr   bool
	}{
		{"pid and title", "42\nterminal\n", 42, "terminal", false},
		{"pid only", "42\n", 42, "", false},
		{"padded", "  42 \n  title  \n", 42, "title", false},
		{"empty", "", 0, "", true},
		{"bad pid", "abc\ntitle", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pid, title, err := parsePIDAndTitle([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPID, pid)
			assert.Equal(t, tt.wantTitle, title)
		})
	}
}

func TestMacProbe_Poll(t *testing.T) {
	out := &scriptedOutput{outputs: map[string]string{
		"osascript": "501\nREADME.md\nSafari.app\n",
		"ioreg":     `    |   "HIDIdleTime" = 120000000000`,
	}}
	probe := NewForegroundProbeFor("darwin", newMockProcessManager(), out.run)

	sample, err := probe.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Safari", sample.AppName)
	assert.Equal(t, "README.md", sample.WindowTitle)
	assert.Equal(t, 501, sample.PID)
	assert.Equal(t, 2*time.Minute, sample.IdleFor)
	assert.Equal(t, []string{"osascript", "ioreg"}, out.calls)
}

func TestMacProbe_FallsBackToProcessName(t *testing.T) {
	pm := newMockProcessManager()
	pm.names[88] = "iTerm2"
	out := &scriptedOutput{outputs: map[string]string{"osascript": "88\n\n \n"}}
	probe := NewForegroundProbeFor("darwin", pm, out.run)

	sample, err := probe.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "iTerm2", sample.AppName)
	assert.Empty(t, sample.WindowTitle)
}

func TestMacProbe_ShortOutput(t *testing.T) {
	out := &scriptedOutput{outputs: map[string]string{"osascript": "88\n"}}
	probe := NewForegroundProbeFor("darwin", newMockProcessManager(), out.run)

	_, err := probe.Poll(context.Background())
	assert.ErrorIs(t, err, domain.ErrProbeUnavailable)
}

func TestUnsupportedProbe(t *testing.T) {
	probe := NewForegroundProbeFor("windows", newMockProcessManager(), (&scriptedOutput{}).run)
	_, err := probe.Poll(context.Background())
	assert.ErrorIs(t, err, domain.ErrProbeUnavailable)
	assert.ErrorContains(t, err, "windows")
}

func TestCleanAppName(t *testing.T) {
	tests := map[string]string{
		"Safari.app":  "Safari",
		"steam.exe":   "steam",
		"  firefox  ": "firefox",
		"code":        "code",
		"Notes.APP":   "Notes",
		"":            "",
	}
	for in, want := range tests {
		assert.Equal(t, want, CleanAppName(in), "CleanAppName(%q)", in)
	}
}
