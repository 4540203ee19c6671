package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codevcli/codev/internal/output"
)

var stateJSON bool

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect and maintain the shared state document",
	Long: `Read and write the repository-wide coordination document, manage its
backups, and validate the state directory.`,
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the global state document",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stateShowRun()
	},
}

var stateGetCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Read one value by dotted path",
	Long:  `Read one value from the global document, e.g. 'codev state get stats.total_sessions'.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return stateGetRun(args[0])
	},
}

var stateSetCmd = &cobra.Command{
	Use:   "set <path> <value>",
	Short: "Write one value by dotted path",
	Long: `Write one value into the global document. The value is parsed as JSON
when possible, so numbers and booleans keep their types. Writes that do
not fit the document schema are rejected.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return stateSetRun(args[0], args[1])
	},
}

var stateBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot the global state document",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stateBackupRun()
	},
}

var stateBackupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "List available backups",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stateBackupsRun()
	},
}

var stateRestoreCmd = &cobra.Command{
	Use:   "restore [name]",
	Short: "Restore the global state document from a backup",
	Long: `Restore the global document from the named backup, or from the most
recent one. The current document is backed up first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		return stateRestoreRun(name)
	},
}

var stateValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the state directory and heal the active set",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stateValidateRun()
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the state directory for this repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		return initRun()
	},
}

func init() {
	stateShowCmd.Flags().BoolVar(&stateJSON, "json", false, "Output as JSON")

	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateGetCmd)
	stateCmd.AddCommand(stateSetCmd)
	stateCmd.AddCommand(stateBackupCmd)
	stateCmd.AddCommand(stateBackupsCmd)
	stateCmd.AddCommand(stateRestoreCmd)
	stateCmd.AddCommand(stateValidateCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(initCmd)
}

func initRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ui.Success("State directory ready at %s", s.Root())
	return nil
}

func stateShowRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	state, err := s.LoadState(context.Background())
	if err != nil {
		return err
	}

	if stateJSON {
		return printJSON(state)
	}

	fmt.Fprintf(ui.Out, "Schema version: %d\n", state.Version)
	fmt.Fprintf(ui.Out, "Active terminals: %v\n", state.ActiveTerminals)
	fmt.Fprintf(ui.Out, "Active branches:  %v\n", state.ActiveBranches)
	fmt.Fprintf(ui.Out, "Resource locks:   %d\n", len(state.ResourceLocks))
	fmt.Fprintf(ui.Out, "Totals: %d sessions, %d branches, %d merges\n",
		state.Stats.TotalSessions, state.Stats.TotalBranches, state.Stats.TotalMerges)
	fmt.Fprintf(ui.Out, "Updated: %s\n", timeAgo(state.UpdatedAt))
	return nil
}

func stateGetRun(path string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	value, err := s.Get(context.Background(), path)
	if err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	fmt.Fprintln(ui.Out, string(data))
	return nil
}

func stateSetRun(path, raw string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	// JSON first so numbers and booleans keep their types; anything that
	// does not parse is stored as a string.
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		value = raw
	}

	if dryRun {
		ui.DryRunMsg("Would set %s = %v", path, value)
		return nil
	}
	if err := s.Set(context.Background(), path, value); err != nil {
		return err
	}
	ui.Success("%s = %v", path, value)
	return nil
}

func stateBackupRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would back up the global state document")
		return nil
	}
	path, err := s.Backup(context.Background())
	if err != nil {
		return err
	}
	ui.Success("State backed up to %s", path)
	return nil
}

func stateBackupsRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	backups, err := s.ListBackups(context.Background())
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		ui.Info("No backups yet. Use 'codev state backup' to create one.")
		return nil
	}

	table := ui.Table([]string{"Backup", "Size", "Created"})
	for _, b := range backups {
		table.Append([]string{output.Cyan(b.Name), formatBytes(b.Size), timeAgo(b.CreatedAt)})
	}
	table.Render()
	return nil
}

func stateRestoreRun(name string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if name == "" {
		backups, err := s.ListBackups(ctx)
		if err != nil {
			return err
		}
		if len(backups) == 0 {
			return fmt.Errorf("no backups to restore from")
		}
		name = backups[0].Name
	}

	if dryRun {
		ui.DryRunMsg("Would restore state from %s", name)
		return nil
	}
	if err := s.Restore(ctx, name); err != nil {
		return err
	}
	ui.Success("State restored from %s", name)
	return nil
}

func stateValidateRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	report, err := s.Validate(context.Background())
	if err != nil {
		return err
	}

	for _, id := range report.PrunedTerminals {
		ui.Warning("Pruned terminal %s from the active set (no session document)", id)
	}
	for _, p := range report.Problems {
		ui.Error("%s", p)
	}
	if !report.Valid {
		return fmt.Errorf("state validation failed with %d problems", len(report.Problems))
	}
	ui.Success("State is valid")
	return nil
}

// formatBytes returns a human-readable byte size string.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
