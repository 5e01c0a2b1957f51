package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
)

var (
	sessionDuration time.Duration
	sessionProject  string
	sessionTags     []string
	interruptReason string
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage focus sessions",
	Long: `Manage pomodoro-style focus sessions.

A session runs for a planned duration (25m by default), can be paused and
resumed, and ends either completed or interrupted. Completing requires at
least the configured fraction of the planned time; interrupt otherwise.`,
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a focus session",
	Args:  cobra.NoArgs,
	RunE:  runSessionStart,
}

var sessionPauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the running session",
	Args:  cobra.NoArgs,
	RunE:  runSessionPause,
}

var sessionResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume the paused session",
	Args:  cobra.NoArgs,
	RunE:  runSessionResume,
}

var sessionCompleteCmd = &cobra.Command{
	Use:   "complete",
	Short: "Complete the active session",
	Args:  cobra.NoArgs,
	RunE:  runSessionComplete,
}

var sessionInterruptCmd = &cobra.Command{
	Use:   "interrupt",
	Short: "End the active session early",
	Args:  cobra.NoArgs,
	RunE:  runSessionInterrupt,
}

var sessionTagCmd = &cobra.Command{
	Use:   "tag <name>...",
	Short: "Tag the active session",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSessionTag,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active session",
	Args:  cobra.NoArgs,
	RunE:  runSessionShow,
}

func init() {
	sessionStartCmd.Flags().DurationVarP(&sessionDuration, "duration", "d", 0, "planned duration (default from config)")
	sessionStartCmd.Flags().StringVarP(&sessionProject, "project", "p", "", "project name")
	sessionStartCmd.Flags().StringSliceVarP(&sessionTags, "tag", "t", nil, "tags to attach")
	sessionInterruptCmd.Flags().StringVarP(&interruptReason, "reason", "r", "", "why the session was interrupted")

	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionPauseCmd)
	sessionCmd.AddCommand(sessionResumeCmd)
	sessionCmd.AddCommand(sessionCompleteCmd)
	sessionCmd.AddCommand(sessionInterruptCmd)
	sessionCmd.AddCommand(sessionTagCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	rootCmd.AddCommand(sessionCmd)
}

func runSessionStart(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		var projectID *int64
		if sessionProject != "" {
			p, err := a.store.GetProjectByName(ctx, sessionProject)
			if err != nil {
				return fmt.Errorf("project %q: %w", sessionProject, err)
			}
			projectID = &p.ID
		}

		machine := a.sessions(nil)
		s, err := machine.Start(ctx, sessionDuration, projectID)
		if err != nil {
			return err
		}
		for _, tag := range sessionTags {
			if err := machine.AttachTag(ctx, tag); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session #%d started: %s planned\n", s.ID, formatDuration(s.Planned))
		return nil
	})
}

func runSessionPause(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		s, err := a.sessions(nil).Pause(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session #%d paused (%s remaining)\n", s.ID, formatDuration(s.Remaining(a.clock.Now())))
		return nil
	})
}

func runSessionResume(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		s, err := a.sessions(nil).Resume(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session #%d resumed (%s remaining)\n", s.ID, formatDuration(s.Remaining(a.clock.Now())))
		return nil
	})
}

func runSessionComplete(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		s, err := a.sessions(nil).Complete(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session #%d completed after %s\n", s.ID, formatDuration(s.Elapsed))
		return refreshToday(ctx, a)
	})
}

func runSessionInterrupt(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		s, err := a.sessions(nil).Interrupt(ctx, interruptReason)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session #%d interrupted after %s\n", s.ID, formatDuration(s.Elapsed))
		return refreshToday(ctx, a)
	})
}

func runSessionTag(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		machine := a.sessions(nil)
		for _, tag := range args {
			if err := machine.AttachTag(ctx, tag); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Tagged: %s\n", strings.Join(args, ", "))
		return nil
	})
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		s, err := a.sessions(nil).Current(ctx)
		if err != nil {
			return err
		}
		if s == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "No active session")
			return nil
		}
		printSessionLine(cmd.OutOrStdout(), s, a.clock.Now())
		if len(s.Tags) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Tags:       %s\n", strings.Join(s.Tags, ", "))
		}
		return nil
	})
}

func printSessionLine(w io.Writer, s *domain.Session, now time.Time) {
	fmt.Fprintf(w, "Session:    #%d %s, %s of %s elapsed, %s remaining\n",
		s.ID, strings.ToUpper(string(s.Status)),
		formatDuration(s.ElapsedAt(now)), formatDuration(s.Planned), formatDuration(s.Remaining(now)))
}

// refreshToday recomputes today's summary so pomodoro counts show up
// without waiting for the daemon.
func refreshToday(ctx context.Context, a *app) error {
	agg := a.aggregator()
	_, err := agg.Aggregate(ctx, agg.Today())
	return err
}
