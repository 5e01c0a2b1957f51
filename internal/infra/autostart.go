package infra

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
)

// LaunchAgent plist template (macOS)
const launchAgentTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>

    <key>ProgramArguments</key>
    <array>
        <string>{{.ExecutablePath}}</string>
        <string>daemon</string>
    </array>

    <key>RunAtLoad</key>
    <true/>

    <key>KeepAlive</key>
    <dict>
        <key>Crashed</key>
        <true/>
    </dict>

    <key>StandardOutPath</key>
    <string>{{.LogPath}}</string>

    <key>StandardErrorPath</key>
    <string>{{.ErrorLogPath}}</string>

    <key>ProcessType</key>
    <string>Background</string>

    <key>ThrottleInterval</key>
    <integer>10</integer>
</dict>
</plist>`

// systemd user unit template (Linux)
const systemdUnitTemplate = `[Unit]
Description=focustrack activity tracker
After=graphical-session.target

[Service]
Type=simple
ExecStart={{.ExecutablePath}} daemon
Restart=on-failure
RestartSec=10
StandardOutput=append:{{.LogPath}}
StandardError=append:{{.ErrorLogPath}}

[Install]
WantedBy=default.target
`

type unitConfig struct {
	Label          string
	ExecutablePath string
	LogPath        string
	ErrorLogPath   string
}

// CommandRunner runs an external command; replaced in tests.
type CommandRunner func(name string, args ...string) error

func runCommand(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// AutostartManagerImpl writes and loads a login item for the daemon.
type AutostartManagerImpl struct {
	goos     string
	mode     ExecMode
	path     string
	logDir   string
	template string
	run      CommandRunner
}

// NewAutostartManager creates a manager for the resolved paths.
func NewAutostartManager(paths *Paths) *AutostartManagerImpl {
	return NewAutostartManagerWithRunner(paths, runCommand)
}

// NewAutostartManagerWithRunner creates a manager with a custom command runner (for testing).
func NewAutostartManagerWithRunner(paths *Paths, run CommandRunner) *AutostartManagerImpl {
	tmpl := systemdUnitTemplate
	if paths.GOOS == "darwin" {
		tmpl = launchAgentTemplate
	}
	return &AutostartManagerImpl{
		goos:     paths.GOOS,
		mode:     paths.Mode,
		path:     paths.AutostartPath,
		logDir:   paths.LogDir,
		template: tmpl,
		run:      run,
	}
}

// generateContent renders the unit for execPath.
func (m *AutostartManagerImpl) generateContent(execPath string) ([]byte, error) {
	config := unitConfig{
		Label:          DefaultLaunchdLabel,
		ExecutablePath: execPath,
		LogPath:        filepath.Join(m.logDir, AppName+".out.log"),
		ErrorLogPath:   filepath.Join(m.logDir, AppName+".err.log"),
	}

	tmpl, err := template.New("autostart").Parse(m.template)
	if err != nil {
		return nil, fmt.Errorf("failed to parse autostart template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, config); err != nil {
		return nil, fmt.Errorf("failed to execute autostart template: %w", err)
	}
	return buf.Bytes(), nil
}

// Install writes and loads the login item.
func (m *AutostartManagerImpl) Install(execPath string) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}
	if err := os.MkdirAll(m.logDir, 0755); err != nil {
		return err
	}
	content, err := m.generateContent(execPath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.path, content, 0644); err != nil {
		return err
	}
	return m.load()
}

// Uninstall unloads and removes the login item.
func (m *AutostartManagerImpl) Uninstall() error {
	// Unload first (ignore errors if not loaded)
	_ = m.unload()
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// IsInstalled checks if the unit file exists.
func (m *AutostartManagerImpl) IsInstalled() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// NeedsUpdate reports whether the installed unit differs from what
// execPath would produce.
func (m *AutostartManagerImpl) NeedsUpdate(execPath string) bool {
	current, err := os.ReadFile(m.path)
	if err != nil {
		return true
	}
	expected, err := m.generateContent(execPath)
	if err != nil {
		return true
	}
	return !bytes.Equal(current, expected)
}

// Update rewrites the unit for a new binary location and reloads it.
func (m *AutostartManagerImpl) Update(execPath string) error {
	_ = m.unload()
	content, err := m.generateContent(execPath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.path, content, 0644); err != nil {
		return err
	}
	return m.load()
}

// Path returns the unit file path.
func (m *AutostartManagerImpl) Path() string {
	return m.path
}

func (m *AutostartManagerImpl) load() error {
	if m.goos == "darwin" {
		return m.run("launchctl", "load", m.path)
	}
	if err := m.run("systemctl", m.systemctlArgs("daemon-reload")...); err != nil {
		return err
	}
	return m.run("systemctl", m.systemctlArgs("enable", AppName+".service")...)
}

func (m *AutostartManagerImpl) unload() error {
	if m.goos == "darwin" {
		return m.run("launchctl", "unload", m.path)
	}
	return m.run("systemctl", m.systemctlArgs("disable", AppName+".service")...)
}

func (m *AutostartManagerImpl) systemctlArgs(args ...string) []string {
	if m.mode == ExecModeSystem {
		return args
	}
	return append([]string{"--user"}, args...)
}

var _ domain.AutostartManager = (*AutostartManagerImpl)(nil)
