// Package notify delivers user-facing notifications through sinks
// registered at compile time.
package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
)

// Sink names.
const (
	SinkLog     = "log"
	SinkDesktop = "desktop"
	SinkNone    = "none"
)

// Factory builds a notifier from the shared dependencies.
type Factory func(logger *zap.Logger) domain.Notifier

// Registry maps sink names to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a registry with the built-in sinks.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(SinkLog, func(logger *zap.Logger) domain.Notifier { return NewLogNotifier(logger) })
	r.Register(SinkDesktop, func(logger *zap.Logger) domain.Notifier {
		return NewDesktopNotifier(runtime.GOOS, runCommand, logger)
	})
	r.Register(SinkNone, func(*zap.Logger) domain.Notifier { return Discard{} })
	return r
}

// Register adds or replaces a sink.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// New builds the named sink.
func (r *Registry) New(name string, logger *zap.Logger) (domain.Notifier, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown notifier %q (available: %v)", name, r.List())
	}
	return f(logger), nil
}

// List returns registered sink names, sorted.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LogNotifier writes notifications to the daemon log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify implements domain.Notifier.
func (n *LogNotifier) Notify(ctx context.Context, msg domain.Notification) error {
	n.logger.Info("notification", zap.String("title", msg.Title), zap.String("message", msg.Message))
	return nil
}

// Discard drops every notification.
type Discard struct{}

// Notify implements domain.Notifier.
func (Discard) Notify(context.Context, domain.Notification) error { return nil }

// CommandRunner runs an external command; replaced in tests.
type CommandRunner func(ctx context.Context, name string, args ...string) error

func runCommand(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// DesktopNotifier shows a system notification: notify-send on Linux,
// osascript on macOS. Delivery failures fall back to the log.
type DesktopNotifier struct {
	goos   string
	run    CommandRunner
	logger *zap.Logger
}

// NewDesktopNotifier creates a desktop notifier for goos.
func NewDesktopNotifier(goos string, run CommandRunner, logger *zap.Logger) *DesktopNotifier {
	return &DesktopNotifier{goos: goos, run: run, logger: logger}
}

// Notify implements domain.Notifier.
func (n *DesktopNotifier) Notify(ctx context.Context, msg domain.Notification) error {
	name, args, err := n.command(msg)
	if err == nil {
		err = n.run(ctx, name, args...)
	}
	if err != nil {
		n.logger.Info("notification", zap.String("title", msg.Title), zap.String("message", msg.Message))
		return fmt.Errorf("failed to show desktop notification: %w", err)
	}
	return nil
}

func (n *DesktopNotifier) command(msg domain.Notification) (string, []string, error) {
	switch n.goos {
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s sound name \"Glass\"",
			strconv.Quote(msg.Message), strconv.Quote(msg.Title))
		return "osascript", []string{"-e", script}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "notify-send", []string{"--app-name=focustrack", msg.Title, msg.Message}, nil
	default:
		return "", nil, fmt.Errorf("desktop notifications are not supported on %s", n.goos)
	}
}

var (
	_ domain.Notifier = (*LogNotifier)(nil)
	_ domain.Notifier = (*DesktopNotifier)(nil)
	_ domain.Notifier = Discard{}
)
