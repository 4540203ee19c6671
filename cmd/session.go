package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/codevcli/codev/internal/output"
	"github.com/codevcli/codev/internal/store"
)

var (
	sessionBranch        string
	sessionJSON          bool
	sessionLinesAdded    int
	sessionLinesRemoved  int
	sessionTestsAdded    int
	sessionCoverage      float64
	sessionLintErrors    int
	sessionSweepOlder    time.Duration
	sessionIncludePaused bool
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage terminal sessions",
	Long: `Manage the per-terminal sessions tracked in this repository.

Each terminal registers one session. The session id is derived from the
controlling terminal; override it with --session or CODEV_SESSION.`,
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Register this terminal as a new session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionStartRun()
	},
}

var sessionListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List live sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionListRun()
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show one session in detail",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionShowRun(sessionArg(args))
	},
}

var sessionTouchCmd = &cobra.Command{
	Use:   "touch <file>...",
	Short: "Record files this session is modifying",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionTouchRun(args)
	},
}

var sessionRecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a commit's line and test counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionRecordRun()
	},
}

var sessionQualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "Record coverage and lint figures",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionQualityRun()
	},
}

var sessionPauseCmd = &cobra.Command{
	Use:   "pause [id]",
	Short: "Pause a session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionPauseRun(sessionArg(args))
	},
}

var sessionResumeCmd = &cobra.Command{
	Use:   "resume [id]",
	Short: "Resume a paused session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionResumeRun(sessionArg(args))
	},
}

var sessionCloseCmd = &cobra.Command{
	Use:   "close [id]",
	Short: "Close a session and archive its record",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionCloseRun(sessionArg(args))
	},
}

var sessionSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Close sessions with no recent activity",
	Long: `Close sessions whose last activity is older than the threshold
(default: session.stale_after, 7 days). Use --dry-run to list candidates
without closing them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionSweepRun()
	},
}

func init() {
	sessionStartCmd.Flags().StringVar(&sessionBranch, "branch", "", "Branch to register (default: current branch)")

	sessionListCmd.Flags().BoolVar(&sessionJSON, "json", false, "Output as JSON")
	sessionShowCmd.Flags().BoolVar(&sessionJSON, "json", false, "Output as JSON")

	sessionRecordCmd.Flags().IntVar(&sessionLinesAdded, "added", 0, "Lines added")
	sessionRecordCmd.Flags().IntVar(&sessionLinesRemoved, "removed", 0, "Lines removed")
	sessionRecordCmd.Flags().IntVar(&sessionTestsAdded, "tests", 0, "Tests added")

	sessionQualityCmd.Flags().Float64Var(&sessionCoverage, "coverage", 0, "Coverage percentage 0-100")
	sessionQualityCmd.Flags().IntVar(&sessionLintErrors, "lint", 0, "Lint error count")

	sessionSweepCmd.Flags().DurationVar(&sessionSweepOlder, "older-than", 0, "Inactivity threshold (default: session.stale_after)")
	sessionSweepCmd.Flags().BoolVar(&sessionIncludePaused, "include-paused", false, "Also sweep paused sessions")

	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionTouchCmd)
	sessionCmd.AddCommand(sessionRecordCmd)
	sessionCmd.AddCommand(sessionQualityCmd)
	sessionCmd.AddCommand(sessionPauseCmd)
	sessionCmd.AddCommand(sessionResumeCmd)
	sessionCmd.AddCommand(sessionCloseCmd)
	sessionCmd.AddCommand(sessionSweepCmd)
	rootCmd.AddCommand(sessionCmd)
}

// sessionArg picks the explicit id argument or falls back to the terminal's.
func sessionArg(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return currentSessionID()
}

func sessionStartRun() error {
	m, err := getManager()
	if err != nil {
		return err
	}

	branch := sessionBranch
	if branch == "" {
		g, err := getGit()
		if err != nil {
			return err
		}
		branch, err = g.CurrentBranch()
		if err != nil {
			return fmt.Errorf("resolve current branch (use --branch): %w", err)
		}
	}

	id := currentSessionID()
	if dryRun {
		ui.DryRunMsg("Would register session %s on %s", id, branch)
		return nil
	}

	session, err := m.Register(context.Background(), id, branch)
	if err != nil {
		return err
	}
	ui.Success("Session %s started on %s (%s %s)", session.SessionID, session.Branch, session.Phase, session.Phase.Name())
	return nil
}

func sessionListRun() error {
	m, err := getManager()
	if err != nil {
		return err
	}
	list, err := m.List(context.Background())
	if err != nil {
		return err
	}

	if sessionJSON {
		return printJSON(list)
	}
	if len(list) == 0 {
		ui.Info("No live sessions. Use 'codev session start' to register one.")
		return nil
	}

	table := ui.Table([]string{"Session", "Branch", "Phase", "Status", "Files", "Activity"})
	for _, s := range list {
		table.Append([]string{
			output.Cyan(s.SessionID),
			s.Branch,
			fmt.Sprintf("%s %s", s.Phase, s.Phase.Name()),
			output.StatusColor(string(s.Status)),
			strconv.Itoa(len(s.FilesModified)),
			timeAgo(s.LastActivity),
		})
	}
	table.Render()
	return nil
}

func sessionShowRun(id string) error {
	m, err := getManager()
	if err != nil {
		return err
	}
	session, err := m.Get(context.Background(), id)
	if err != nil {
		return err
	}

	if sessionJSON {
		return printJSON(session)
	}

	fmt.Fprintf(ui.Out, "%s\n", output.Cyan(session.SessionID))
	fmt.Fprintf(ui.Out, "  Branch:   %s\n", session.Branch)
	fmt.Fprintf(ui.Out, "  Phase:    %s %s\n", session.Phase, session.Phase.Name())
	fmt.Fprintf(ui.Out, "  Status:   %s\n", output.StatusColor(string(session.Status)))
	fmt.Fprintf(ui.Out, "  Started:  %s\n", session.StartedAt.Local().Format(time.RFC822))
	fmt.Fprintf(ui.Out, "  Activity: %s\n", timeAgo(session.LastActivity))
	fmt.Fprintf(ui.Out, "  Metrics:  %d commits, +%d/-%d lines, %d tests\n",
		session.Metrics.Commits, session.Metrics.LinesAdded, session.Metrics.LinesRemoved, session.Metrics.TestsAdded)
	if session.Quality.Coverage > 0 || session.Quality.LintErrors > 0 {
		fmt.Fprintf(ui.Out, "  Quality:  %.1f%% coverage, %d lint errors\n",
			session.Quality.Coverage, session.Quality.LintErrors)
	}
	if len(session.FilesModified) > 0 {
		fmt.Fprintf(ui.Out, "  Files:\n")
		for _, f := range session.FilesModified {
			fmt.Fprintf(ui.Out, "    %s\n", f)
		}
	}
	if len(session.LocksHeld) > 0 {
		fmt.Fprintf(ui.Out, "  Locks:    %v\n", session.LocksHeld)
	}
	if len(session.PhaseHistory) > 1 {
		fmt.Fprintf(ui.Out, "  History:\n")
		for _, rec := range session.PhaseHistory {
			fmt.Fprintf(ui.Out, "    %s  %s %s\n", rec.Timestamp.Local().Format(time.RFC822), rec.Phase, rec.Phase.Name())
		}
	}
	return nil
}

func sessionTouchRun(files []string) error {
	m, err := getManager()
	if err != nil {
		return err
	}
	session, err := m.Touch(context.Background(), currentSessionID(), files...)
	if err != nil {
		return err
	}
	ui.Success("Session %s tracking %d files", session.SessionID, len(session.FilesModified))
	return nil
}

func sessionRecordRun() error {
	m, err := getManager()
	if err != nil {
		return err
	}
	session, err := m.RecordCommit(context.Background(), currentSessionID(),
		sessionLinesAdded, sessionLinesRemoved, sessionTestsAdded)
	if err != nil {
		return err
	}
	ui.Success("Recorded commit %d (+%d/-%d lines, %d tests)",
		session.Metrics.Commits, sessionLinesAdded, sessionLinesRemoved, sessionTestsAdded)
	return nil
}

func sessionQualityRun() error {
	m, err := getManager()
	if err != nil {
		return err
	}
	session, err := m.RecordQuality(context.Background(), currentSessionID(), sessionCoverage, sessionLintErrors)
	if err != nil {
		return err
	}
	ui.Success("Recorded quality for %s: %.1f%% coverage, %d lint errors",
		session.SessionID, session.Quality.Coverage, session.Quality.LintErrors)
	return nil
}

func sessionPauseRun(id string) error {
	m, err := getManager()
	if err != nil {
		return err
	}
	session, err := m.Pause(context.Background(), id)
	if err != nil {
		return err
	}
	ui.Success("Session %s paused", session.SessionID)
	return nil
}

func sessionResumeRun(id string) error {
	m, err := getManager()
	if err != nil {
		return err
	}
	session, err := m.Resume(context.Background(), id)
	if err != nil {
		return err
	}
	ui.Success("Session %s resumed on %s", session.SessionID, session.Branch)
	return nil
}

func sessionCloseRun(id string) error {
	m, err := getManager()
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would close session %s", id)
		return nil
	}
	if err := m.Close(context.Background(), id); err != nil {
		return err
	}
	ui.Success("Session %s closed and archived", id)
	return nil
}

func sessionSweepRun() error {
	m, err := getManager()
	if err != nil {
		return err
	}

	olderThan := sessionSweepOlder
	if olderThan == 0 {
		olderThan = viper.GetDuration("session.stale_after")
	}

	results, err := m.Sweep(context.Background(), store.SweepOptions{
		OlderThan:     olderThan,
		IncludePaused: sessionIncludePaused,
		DryRun:        dryRun,
	})
	if err != nil {
		return err
	}
	if len(results) == 0 {
		ui.Info("No stale sessions")
		return nil
	}
	for _, r := range results {
		if r.Closed {
			ui.Success("Closed %s (last active %s)", r.SessionID, timeAgo(r.LastActivity))
		} else {
			ui.Info("Would close %s (last active %s)", r.SessionID, timeAgo(r.LastActivity))
		}
	}
	return nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(ui.Out, string(data))
	return nil
}

// timeAgo returns a human-readable duration from a time.
func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	}
}
