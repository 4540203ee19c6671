package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/codevcli/codev/internal/conflict"
	"github.com/codevcli/codev/internal/models"
	"github.com/codevcli/codev/internal/output"
)

var (
	conflictBranch string
	conflictBase   string
	conflictJSON   bool
	conflictSave   bool
	conflictAuto   bool
)

var conflictCmd = &cobra.Command{
	Use:   "conflict",
	Short: "Detect and resolve conflicts between branches and sessions",
	Long: `Detect conflicts before they land: compare a branch against its base,
check overlap across live sessions, rehearse a merge in a throwaway
worktree, and resolve conflicted files.

Detection is advisory. Nothing here ever blocks another session from
editing a file.`,
}

var conflictDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Analyze a branch against its base for conflicts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return conflictDetectRun()
	},
}

var conflictCheckCmd = &cobra.Command{
	Use:     "check",
	Aliases: []string{"cross-check"},
	Short:   "Check live sessions for overlapping files",
	RunE: func(cmd *cobra.Command, args []string) error {
		return conflictCheckRun()
	},
}

var conflictSimulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Rehearse the merge in a disposable worktree",
	Long: `Attempt a real merge of the branch into its base inside a throwaway
worktree and report the conflicted files. The working tree and index
are never touched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return conflictSimulateRun()
	},
}

var conflictResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve conflicted files in the current merge",
	Long: `Walk the conflicted files of the merge in progress and resolve each
one by taking ours, taking theirs, or leaving it for manual editing.

With --auto, only regenerable dependency lock files are resolved (taking
the incoming side); everything else is left alone.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return conflictResolveRun()
	},
}

var conflictStrategyCmd = &cobra.Command{
	Use:   "strategy",
	Short: "Suggest how to land a branch on its base",
	RunE: func(cmd *cobra.Command, args []string) error {
		return conflictStrategyRun()
	},
}

func init() {
	for _, c := range []*cobra.Command{conflictDetectCmd, conflictSimulateCmd, conflictStrategyCmd} {
		c.Flags().StringVar(&conflictBranch, "branch", "", "Branch to analyze (default: current branch)")
		c.Flags().StringVar(&conflictBase, "base", "", "Base branch (default: base_branch config)")
	}
	conflictDetectCmd.Flags().BoolVar(&conflictJSON, "json", false, "Output the report as JSON")
	conflictDetectCmd.Flags().BoolVar(&conflictSave, "save", false, "Save the report under the state directory")
	conflictResolveCmd.Flags().BoolVar(&conflictAuto, "auto", false, "Only auto-resolve dependency lock files")

	conflictCmd.AddCommand(conflictDetectCmd)
	conflictCmd.AddCommand(conflictCheckCmd)
	conflictCmd.AddCommand(conflictSimulateCmd)
	conflictCmd.AddCommand(conflictResolveCmd)
	conflictCmd.AddCommand(conflictStrategyCmd)
	rootCmd.AddCommand(conflictCmd)
}

// branchPair resolves the branch and base for analysis commands.
func branchPair() (branch, base string, err error) {
	branch = conflictBranch
	if branch == "" {
		g, err := getGit()
		if err != nil {
			return "", "", err
		}
		branch, err = g.CurrentBranch()
		if err != nil {
			return "", "", fmt.Errorf("resolve current branch (use --branch): %w", err)
		}
	}
	base = conflictBase
	if base == "" {
		base = viper.GetString("base_branch")
	}
	if branch == base {
		return "", "", fmt.Errorf("branch and base are both %q; nothing to compare", branch)
	}
	return branch, base, nil
}

func conflictDetectRun() error {
	engine, err := getEngine()
	if err != nil {
		return err
	}
	branch, base, err := branchPair()
	if err != nil {
		return err
	}
	ctx := context.Background()

	report, err := engine.Detect(ctx, branch, base)
	if err != nil {
		return err
	}

	if conflictSave {
		path, err := engine.SaveReport(ctx, report)
		if err != nil {
			return err
		}
		ui.Info("Report saved to %s", path)
	}

	if conflictJSON {
		return printJSON(report)
	}
	printReport(report)

	if !report.Clean() {
		strategy, err := engine.SuggestStrategy(ctx, branch, base)
		if err == nil {
			ui.Info("Suggested strategy: %s", strategy)
		}
	}
	return nil
}

func printReport(r *models.ConflictReport) {
	fmt.Fprintf(ui.Out, "%s vs %s (merge base %.8s)\n", output.Cyan(r.Branch), output.Cyan(r.Base), r.MergeBase)

	if r.Clean() {
		ui.Success("No overlapping changes")
	} else {
		fmt.Fprintf(ui.Out, "Severity: %s  Score: %s  Files: %d  Conflict markers: %d\n",
			output.SeverityColor(string(r.Severity)), output.ScoreColor(r.Score), len(r.Files), r.MarkerCount)

		table := ui.Table([]string{"File", "Category"})
		for _, f := range r.Files {
			table.Append([]string{f.Path, string(f.Category)})
		}
		table.Render()
	}

	for _, o := range r.Overlaps {
		ui.Warning("Session %s is also editing: %s", o.SessionID, strings.Join(o.Files, ", "))
	}
	for _, f := range r.Findings {
		ui.Warning("%s: %s", f.Path, f.Detail)
	}
}

func conflictCheckRun() error {
	engine, err := getEngine()
	if err != nil {
		return err
	}
	pairs, err := engine.CrossSessionCheck(context.Background())
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		ui.Success("No overlap between live sessions")
		return nil
	}
	table := ui.Table([]string{"Session", "Session", "Shared files"})
	for _, p := range pairs {
		table.Append([]string{output.Cyan(p.SessionA), output.Cyan(p.SessionB), strings.Join(p.Files, ", ")})
	}
	table.Render()
	return nil
}

func conflictSimulateRun() error {
	engine, err := getEngine()
	if err != nil {
		return err
	}
	branch, base, err := branchPair()
	if err != nil {
		return err
	}

	ui.Info("Rehearsing merge of %s into %s", branch, base)
	result, err := engine.SimulateMerge(context.Background(), branch, base)
	if err != nil {
		return err
	}
	if result.Clean {
		ui.Success("Merge is clean")
		return nil
	}
	ui.Warning("Merge conflicts in %d files:", len(result.Conflicts))
	for _, f := range result.Conflicts {
		fmt.Fprintf(ui.Out, "  %s\n", f)
	}
	return nil
}

func conflictResolveRun() error {
	engine, err := getEngine()
	if err != nil {
		return err
	}
	ctx := context.Background()

	var outcomes []conflict.Resolution
	if conflictAuto {
		outcomes, err = engine.AutoResolveTrivial(ctx)
	} else {
		outcomes, err = engine.ResolveInteractive(ctx, stdinChooser(rootCmd.InOrStdin(), ui.Out))
	}
	if err != nil {
		return err
	}
	if len(outcomes) == 0 {
		ui.Info("Nothing to resolve")
		return nil
	}

	unresolved := 0
	for _, res := range outcomes {
		if res.Resolved {
			ui.Success("%s: %s", res.Path, res.Detail)
		} else {
			unresolved++
			ui.Warning("%s: %s", res.Path, res.Detail)
		}
	}
	if unresolved > 0 {
		ui.Info("%d files still need attention", unresolved)
	}
	return nil
}

// stdinChooser prompts for one of ours/theirs/manual/skip per file.
func stdinChooser(in io.Reader, out io.Writer) conflict.ChooserFunc {
	reader := bufio.NewReader(in)
	return func(path string) (conflict.Choice, error) {
		for {
			fmt.Fprintf(out, "%s [o]urs/[t]heirs/[m]anual/[s]kip: ", path)
			line, err := reader.ReadString('\n')
			if err != nil {
				return "", err
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "o", "ours":
				return conflict.ChoiceOurs, nil
			case "t", "theirs":
				return conflict.ChoiceTheirs, nil
			case "m", "manual":
				return conflict.ChoiceManual, nil
			case "s", "skip":
				return conflict.ChoiceSkip, nil
			default:
				fmt.Fprintln(out, "  choose o, t, m, or s")
			}
		}
	}
}

func conflictStrategyRun() error {
	engine, err := getEngine()
	if err != nil {
		return err
	}
	branch, base, err := branchPair()
	if err != nil {
		return err
	}
	strategy, err := engine.SuggestStrategy(context.Background(), branch, base)
	if err != nil {
		return err
	}
	ui.Info("Suggested strategy for %s onto %s: %s", branch, base, output.Cyan(string(strategy)))
	return nil
}
