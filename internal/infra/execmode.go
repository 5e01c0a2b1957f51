package infra

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
)

// ExecMode represents the execution mode of the application.
type ExecMode string

const (
	// ExecModeUser tracks the invoking user's session (no sudo required)
	ExecModeUser ExecMode = "user"
	// ExecModeSystem runs as root; data lives in a system directory
	ExecModeSystem ExecMode = "system"
)

// AppName is used for directories, unit names and the binary.
const AppName = "focustrack"

// DefaultLaunchdLabel is the LaunchAgent label on macOS.
const DefaultLaunchdLabel = "com.focusd.focustrack"

// Paths holds filesystem locations resolved for the current user and OS.
type Paths struct {
	Mode          ExecMode
	GOOS          string
	Home          string
	DataDir       string // database, key file
	LogDir        string
	BackupDir     string
	AutostartDir  string
	AutostartPath string // LaunchAgent plist or systemd user unit
	IsRoot        bool
}

// DetectPaths resolves paths for the current process.
// FOCUSTRACK_DATA_DIR-style overrides are applied by the caller.
func DetectPaths() *Paths {
	if os.Geteuid() == 0 && os.Getenv("SUDO_USER") == "" {
		return systemPaths(runtime.GOOS)
	}
	return PathsForHome(GetRealUserHome(), runtime.GOOS)
}

// PathsForHome returns user-mode paths rooted at home (used by tests).
func PathsForHome(home, goos string) *Paths {
	p := &Paths{
		Mode:   ExecModeUser,
		GOOS:   goos,
		Home:   home,
		IsRoot: os.Geteuid() == 0,
	}

	switch goos {
	case "darwin":
		p.DataDir = filepath.Join(home, "Library", "Application Support", AppName)
		p.LogDir = filepath.Join(home, "Library", "Logs", AppName)
		p.AutostartDir = filepath.Join(home, "Library", "LaunchAgents")
		p.AutostartPath = filepath.Join(p.AutostartDir, DefaultLaunchdLabel+".plist")
	default:
		dataHome := strings.TrimSpace(os.Getenv("XDG_DATA_HOME"))
		if dataHome == "" {
			dataHome = filepath.Join(home, ".local", "share")
		}
		configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
		if configHome == "" {
			configHome = filepath.Join(home, ".config")
		}
		p.DataDir = filepath.Join(dataHome, AppName)
		p.LogDir = filepath.Join(p.DataDir, "logs")
		p.AutostartDir = filepath.Join(configHome, "systemd", "user")
		p.AutostartPath = filepath.Join(p.AutostartDir, AppName+".service")
	}
	p.BackupDir = filepath.Join(p.DataDir, "backups")
	return p
}

func systemPaths(goos string) *Paths {
	p := &Paths{
		Mode:    ExecModeSystem,
		GOOS:    goos,
		Home:    "/root",
		DataDir: filepath.Join("/var/lib", AppName),
		LogDir:  filepath.Join("/var/log", AppName),
		IsRoot:  true,
	}
	if goos == "darwin" {
		p.AutostartDir = "/Library/LaunchDaemons"
		p.AutostartPath = filepath.Join(p.AutostartDir, DefaultLaunchdLabel+".plist")
	} else {
		p.AutostartDir = "/etc/systemd/system"
		p.AutostartPath = filepath.Join(p.AutostartDir, AppName+".service")
	}
	p.BackupDir = filepath.Join(p.DataDir, "backups")
	return p
}

// WithDataDir returns a copy of p rooted at dataDir.
func (p Paths) WithDataDir(dataDir string) *Paths {
	if dataDir == "" {
		return &p
	}
	p.DataDir = dataDir
	p.BackupDir = filepath.Join(dataDir, "backups")
	if p.GOOS != "darwin" {
		p.LogDir = filepath.Join(dataDir, "logs")
	}
	return &p
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (root)"
	case ExecModeUser:
		return "user"
	default:
		return "unknown"
	}
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
// Under sudo, os.UserHomeDir() returns root's home, so we use SUDO_USER to find the real user.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}
