package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/codevcli/codev/internal/output"
)

var statusStale bool

var statusCmd = &cobra.Command{
	Use:   "status [session]",
	Short: "Show the session status dashboard",
	Long: `Show a cross-session overview or detailed status for one session.

Without arguments, shows every live session plus the global totals.
With a session id, shows detailed status for that session.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return sessionShowRun(args[0]) // reuse session show for detail
		}
		return statusOverviewRun()
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusStale, "stale", false, "Show only stale sessions (past session.stale_after)")
	rootCmd.AddCommand(statusCmd)
}

func statusOverviewRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	sessions, err := s.ListSessions(ctx)
	if err != nil {
		return err
	}
	state, err := s.LoadState(ctx)
	if err != nil {
		return err
	}

	if len(sessions) == 0 {
		ui.Info("No live sessions. Use 'codev session start' to register one.")
		return nil
	}

	staleAfter := viper.GetDuration("session.stale_after")
	cutoff := time.Now().Add(-staleAfter)

	table := ui.Table([]string{"Session", "Branch", "Phase", "Status", "Files", "Locks", "Activity"})
	shown := 0
	for _, sess := range sessions {
		if statusStale && sess.LastActivity.After(cutoff) {
			continue
		}
		shown++

		activity := timeAgo(sess.LastActivity)
		if sess.LastActivity.Before(cutoff) {
			activity = output.Red(activity)
		}

		table.Append([]string{
			output.Cyan(sess.SessionID),
			sess.Branch,
			fmt.Sprintf("%s %s", sess.Phase, sess.Phase.Name()),
			output.StatusColor(string(sess.Status)),
			strconv.Itoa(len(sess.FilesModified)),
			strconv.Itoa(len(sess.LocksHeld)),
			activity,
		})
	}
	if shown == 0 {
		ui.Info("No stale sessions")
		return nil
	}
	table.Render()

	fmt.Fprintln(ui.Out)
	fmt.Fprintf(ui.Out, "Branches in flight: %s\n", strings.Join(state.ActiveBranches, ", "))
	if len(state.ResourceLocks) > 0 {
		fmt.Fprintf(ui.Out, "Resource locks held: %d (codev lock list)\n", len(state.ResourceLocks))
	}
	return nil
}
