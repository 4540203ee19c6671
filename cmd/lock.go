package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/codevcli/codev/internal/models"
	"github.com/codevcli/codev/internal/output"
)

var (
	lockTimeout time.Duration
	lockForce   bool
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Hold named resource locks across terminals",
	Long: `Acquire and release named advisory locks shared by every terminal
working in this repository. Locks survive process exit and go stale
after five minutes, so a crashed holder never wedges the others.`,
}

var lockAcquireCmd = &cobra.Command{
	Use:   "acquire <name>",
	Short: "Acquire a named lock",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return lockAcquireRun(args[0])
	},
}

var lockReleaseCmd = &cobra.Command{
	Use:   "release <name>",
	Short: "Release a named lock",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return lockReleaseRun(args[0])
	},
}

var lockListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List held resource locks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return lockListRun()
	},
}

func init() {
	lockAcquireCmd.Flags().DurationVar(&lockTimeout, "timeout", 0, "How long to wait (default: lock.timeout config)")
	lockReleaseCmd.Flags().BoolVar(&lockForce, "force", false, "Release even if another session holds the claim")

	lockCmd.AddCommand(lockAcquireCmd)
	lockCmd.AddCommand(lockReleaseCmd)
	lockCmd.AddCommand(lockListCmd)
	rootCmd.AddCommand(lockCmd)
}

func lockAcquireRun(name string) error {
	locker, err := getLocker()
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()
	id := currentSessionID()

	timeout := lockTimeout
	if timeout == 0 {
		timeout = viper.GetDuration("lock.timeout")
	}

	if dryRun {
		ui.DryRunMsg("Would acquire lock %q for session %s", name, id)
		return nil
	}

	handle, err := locker.Acquire(ctx, name, timeout)
	if err != nil {
		return err
	}

	// Record the claim so other terminals can see who holds what. The lock
	// token on disk is the actual mutual exclusion.
	_, err = s.SaveState(ctx, func(state *models.GlobalState) error {
		state.ResourceLocks[name] = models.LockClaim{SessionID: id, AcquiredAt: handle.AcquiredAt}
		return nil
	})
	if err != nil {
		_ = handle.Release()
		return fmt.Errorf("record lock claim: %w", err)
	}
	if _, err := s.UpdateSession(ctx, id, func(sess *models.Session) error {
		sess.HoldLock(name)
		return nil
	}); err != nil {
		ui.VerboseLog("no session record for %s: %v", id, err)
	}

	ui.Success("Lock %q acquired by %s", name, id)
	return nil
}

func lockReleaseRun(name string) error {
	locker, err := getLocker()
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()
	id := currentSessionID()

	state, err := s.LoadState(ctx)
	if err != nil {
		return err
	}
	if claim, ok := state.ResourceLocks[name]; ok && claim.SessionID != id && !lockForce {
		return fmt.Errorf("lock %q is held by session %s (use --force to release it anyway)", name, claim.SessionID)
	}

	if dryRun {
		ui.DryRunMsg("Would release lock %q", name)
		return nil
	}

	if err := locker.Release(name); err != nil {
		return err
	}
	_, err = s.SaveState(ctx, func(state *models.GlobalState) error {
		delete(state.ResourceLocks, name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear lock claim: %w", err)
	}
	if _, err := s.UpdateSession(ctx, id, func(sess *models.Session) error {
		sess.DropLock(name)
		return nil
	}); err != nil {
		ui.VerboseLog("no session record for %s: %v", id, err)
	}

	ui.Success("Lock %q released", name)
	return nil
}

func lockListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	state, err := s.LoadState(context.Background())
	if err != nil {
		return err
	}
	if len(state.ResourceLocks) == 0 {
		ui.Info("No resource locks held")
		return nil
	}

	names := make([]string, 0, len(state.ResourceLocks))
	for name := range state.ResourceLocks {
		names = append(names, name)
	}
	sort.Strings(names)

	table := ui.Table([]string{"Lock", "Session", "Acquired"})
	for _, name := range names {
		claim := state.ResourceLocks[name]
		table.Append([]string{output.Cyan(name), claim.SessionID, timeAgo(claim.AcquiredAt)})
	}
	table.Render()
	return nil
}
