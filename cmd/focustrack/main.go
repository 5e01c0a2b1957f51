// Package main provides the CLI entry point for focustrack.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	configPath  string
	dataDirFlag string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "focustrack",
	Short: "Personal productivity tracker",
	Long: `focustrack records which application has your focus, classifies it into
productivity categories, runs pomodoro-style focus sessions and rolls
everything up into daily summaries.

Run 'focustrack start' to launch the background tracker.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE:  runVersion,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/focustrack/config.json)")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "data directory (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")

	versionCmd.Flags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runVersion(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()

	if jsonOutput {
		fmt.Fprintf(out, `{"version":"%s","commit":"%s","build_time":"%s"}`+"\n", Version, Commit, BuildTime)
	} else {
		fmt.Fprintf(out, "focustrack %s (commit: %s, built: %s)\n", Version, Commit, BuildTime)
	}
	return nil
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// createLogger creates the daemon logger writing JSON to logDir.
func createLogger(logDir string) *zap.Logger {
	if err := os.MkdirAll(logDir, 0700); err != nil {
		logger, _ := zap.NewProduction()
		logger.Warn("failed to create log directory, logging to stderr", zap.String("dir", logDir), zap.Error(err))
		return logger
	}

	config := zap.NewProductionConfig()
	config.OutputPaths = []string{filepath.Join(logDir, "focustrack.log")}
	config.ErrorOutputPaths = []string{filepath.Join(logDir, "focustrack.error.log")}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		// Fallback to stdout
		logger, _ = zap.NewProduction()
	}
	return logger
}

// cliLogger is used by interactive commands: warnings only unless -v.
func cliLogger() *zap.Logger {
	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
