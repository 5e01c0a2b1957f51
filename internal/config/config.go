// Package config loads tracker settings from a JSON file and the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables that override file values.
const (
	EnvConfigPath     = "FOCUSTRACK_CONFIG"
	EnvDataDir        = "FOCUSTRACK_DATA_DIR"
	EnvSampleInterval = "FOCUSTRACK_SAMPLE_INTERVAL"
	EnvIdleThreshold  = "FOCUSTRACK_IDLE_THRESHOLD"
	EnvEncrypt        = "FOCUSTRACK_ENCRYPT"
	EnvAPIAddr        = "FOCUSTRACK_API_ADDR"
	EnvTimezone       = "FOCUSTRACK_TIMEZONE"
	EnvNotifier       = "FOCUSTRACK_NOTIFIER"
)

// Defaults.
const (
	DefaultSampleInterval        = 5 * time.Second
	DefaultIdleThreshold         = 5 * time.Minute
	DefaultProbeTimeout          = 2 * time.Second
	DefaultHeartbeatInterval     = 30 * time.Second
	DefaultRuleReloadInterval    = time.Minute
	DefaultMaxPersistAttempts    = 5
	DefaultFailureReportEvery    = 12
	DefaultSessionDuration       = 25 * time.Minute
	DefaultMinCompletionFraction = 0.8
	DefaultExpiryCheckInterval   = 15 * time.Second
	DefaultAggregateInterval     = 15 * time.Minute
	DefaultProductiveThreshold   = 0.7
	DefaultBackupInterval        = 24 * time.Hour
	DefaultMaxBackups            = 7
	DefaultAPIAddr               = "127.0.0.1:7420"
	DefaultNotifier              = "log"

	// MinIdleSamples is the smallest idle threshold, in sample intervals.
	MinIdleSamples = 3
)

// Duration is a time.Duration stored as a Go duration string ("5m", "30s").
type Duration struct {
	time.Duration
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler. Bare numbers are seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var secs float64
		if err := json.Unmarshal(b, &secs); err != nil {
			return fmt.Errorf("duration must be a string or number of seconds: %w", err)
		}
		d.Duration = time.Duration(secs * float64(time.Second))
		return nil
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// TrackerConfig controls the sampler and daemon loop.
type TrackerConfig struct {
	SampleInterval     Duration `json:"sample_interval"`
	IdleThreshold      Duration `json:"idle_threshold"`
	ProbeTimeout       Duration `json:"probe_timeout"`
	HeartbeatInterval  Duration `json:"heartbeat_interval"`
	RuleReloadInterval Duration `json:"rule_reload_interval"`
	MaxPersistAttempts int      `json:"max_persist_attempts"`
	FailureReportEvery int      `json:"failure_report_every"`
}

// SessionConfig controls focus sessions.
type SessionConfig struct {
	DefaultDuration       Duration `json:"default_duration"`
	MinCompletionFraction float64  `json:"min_completion_fraction"`
	ExpiryCheckInterval   Duration `json:"expiry_check_interval"`
	Notifier              string   `json:"notifier"`
}

// AggregatorConfig controls daily rollups.
type AggregatorConfig struct {
	Interval            Duration `json:"interval"`
	ProductiveThreshold float64  `json:"productive_threshold"`
	Timezone            string   `json:"timezone,omitempty"` // IANA name, empty = local
}

// StorageConfig controls the database and its backups.
type StorageConfig struct {
	Encrypt        bool     `json:"encrypt"`
	BackupInterval Duration `json:"backup_interval"`
	MaxBackups     int      `json:"max_backups"`
	BackupDir      string   `json:"backup_dir,omitempty"`
}

// APIConfig controls the read-only HTTP server.
type APIConfig struct {
	Addr string `json:"addr"`
}

// Config holds user-configurable settings.
type Config struct {
	DataDir    string           `json:"data_dir,omitempty"`
	Tracker    TrackerConfig    `json:"tracker"`
	Session    SessionConfig    `json:"session"`
	Aggregator AggregatorConfig `json:"aggregator"`
	Storage    StorageConfig    `json:"storage"`
	API        APIConfig        `json:"api"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Tracker: TrackerConfig{
			SampleInterval:     Duration{DefaultSampleInterval},
			IdleThreshold:      Duration{DefaultIdleThreshold},
			ProbeTimeout:       Duration{DefaultProbeTimeout},
			HeartbeatInterval:  Duration{DefaultHeartbeatInterval},
			RuleReloadInterval: Duration{DefaultRuleReloadInterval},
			MaxPersistAttempts: DefaultMaxPersistAttempts,
			FailureReportEvery: DefaultFailureReportEvery,
		},
		Session: SessionConfig{
			DefaultDuration:       Duration{DefaultSessionDuration},
			MinCompletionFraction: DefaultMinCompletionFraction,
			ExpiryCheckInterval:   Duration{DefaultExpiryCheckInterval},
			Notifier:              DefaultNotifier,
		},
		Aggregator: AggregatorConfig{
			Interval:            Duration{DefaultAggregateInterval},
			ProductiveThreshold: DefaultProductiveThreshold,
		},
		Storage: StorageConfig{
			Encrypt:        true,
			BackupInterval: Duration{DefaultBackupInterval},
			MaxBackups:     DefaultMaxBackups,
		},
		API: APIConfig{Addr: DefaultAPIAddr},
	}
}

// ConfigPath returns the location of the config file.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "focustrack", "config.json"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config path: %w", err)
	}
	return filepath.Join(home, ".config", "focustrack", "config.json"), nil
}

// Load reads the optional .env file, the config file at path (ConfigPath when
// empty) and environment overrides. A missing config file yields defaults.
func Load(path string) (Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return Default(), err
	}
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return Default(), err
		}
		path = p
	}
	cfg, err := LoadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return Normalize(cfg), nil
}

// LoadDotEnv loads env files that exist. Variables already set win.
func LoadDotEnv(files ...string) error {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// LoadFile reads configuration from disk on top of the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("parse config: %w", err)
	}
	return Normalize(cfg), nil
}

// Save writes configuration to disk.
func Save(path string, cfg Config) error {
	cfg = Normalize(cfg)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ApplyEnv overlays FOCUSTRACK_* variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv(EnvDataDir)); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSampleInterval)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSampleInterval, err)
		}
		cfg.Tracker.SampleInterval = Duration{d}
	}
	if v := strings.TrimSpace(os.Getenv(EnvIdleThreshold)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvIdleThreshold, err)
		}
		cfg.Tracker.IdleThreshold = Duration{d}
	}
	if v := strings.TrimSpace(os.Getenv(EnvEncrypt)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvEncrypt, err)
		}
		cfg.Storage.Encrypt = b
	}
	if v := strings.TrimSpace(os.Getenv(EnvAPIAddr)); v != "" {
		cfg.API.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTimezone)); v != "" {
		cfg.Aggregator.Timezone = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvNotifier)); v != "" {
		cfg.Session.Notifier = v
	}
	return nil
}

// Normalize ensures defaults are set and invalid values are sanitized.
func Normalize(cfg Config) Config {
	def := Default()
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)

	positive := func(d *Duration, fallback Duration) {
		if d.Duration <= 0 {
			*d = fallback
		}
	}
	positive(&cfg.Tracker.SampleInterval, def.Tracker.SampleInterval)
	positive(&cfg.Tracker.IdleThreshold, def.Tracker.IdleThreshold)
	positive(&cfg.Tracker.ProbeTimeout, def.Tracker.ProbeTimeout)
	positive(&cfg.Tracker.HeartbeatInterval, def.Tracker.HeartbeatInterval)
	positive(&cfg.Tracker.RuleReloadInterval, def.Tracker.RuleReloadInterval)
	positive(&cfg.Session.DefaultDuration, def.Session.DefaultDuration)
	positive(&cfg.Session.ExpiryCheckInterval, def.Session.ExpiryCheckInterval)
	positive(&cfg.Aggregator.Interval, def.Aggregator.Interval)
	positive(&cfg.Storage.BackupInterval, def.Storage.BackupInterval)

	// A probe slower than the sample cadence would overlap ticks.
	if cfg.Tracker.ProbeTimeout.Duration > cfg.Tracker.SampleInterval.Duration {
		cfg.Tracker.ProbeTimeout = cfg.Tracker.SampleInterval
	}
	// Idle detection needs a few samples to tell a pause from a tick gap.
	if minIdle := MinIdleSamples * cfg.Tracker.SampleInterval.Duration; cfg.Tracker.IdleThreshold.Duration < minIdle {
		cfg.Tracker.IdleThreshold = Duration{minIdle}
	}
	if cfg.Tracker.MaxPersistAttempts <= 0 {
		cfg.Tracker.MaxPersistAttempts = def.Tracker.MaxPersistAttempts
	}
	if cfg.Tracker.FailureReportEvery <= 0 {
		cfg.Tracker.FailureReportEvery = def.Tracker.FailureReportEvery
	}
	if cfg.Session.MinCompletionFraction <= 0 || cfg.Session.MinCompletionFraction > 1 {
		cfg.Session.MinCompletionFraction = def.Session.MinCompletionFraction
	}
	cfg.Session.Notifier = strings.TrimSpace(cfg.Session.Notifier)
	if cfg.Session.Notifier == "" {
		cfg.Session.Notifier = def.Session.Notifier
	}
	if cfg.Aggregator.ProductiveThreshold < 0 || cfg.Aggregator.ProductiveThreshold > 1 {
		cfg.Aggregator.ProductiveThreshold = def.Aggregator.ProductiveThreshold
	}
	cfg.Aggregator.Timezone = strings.TrimSpace(cfg.Aggregator.Timezone)
	if _, err := loadLocation(cfg.Aggregator.Timezone); err != nil {
		cfg.Aggregator.Timezone = ""
	}
	if cfg.Storage.MaxBackups <= 0 {
		cfg.Storage.MaxBackups = def.Storage.MaxBackups
	}
	cfg.API.Addr = strings.TrimSpace(cfg.API.Addr)
	if cfg.API.Addr == "" {
		cfg.API.Addr = def.API.Addr
	}
	return cfg
}

// Location returns the aggregation time zone.
func (c Config) Location() *time.Location {
	loc, err := loadLocation(c.Aggregator.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}
