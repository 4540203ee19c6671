package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codevcli/codev/internal/models"
	"github.com/codevcli/codev/internal/output"
	"github.com/codevcli/codev/internal/phase"
)

var phaseJSON bool

var phaseCmd = &cobra.Command{
	Use:   "phase",
	Short: "Drive a session through the development lifecycle",
	Long: `Show and change the lifecycle phase of a session (P0 Discovery
through P7 Monitoring). Moving forward runs the configured gate command;
moving backward or skipping ahead warns but is never blocked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return phaseShowRun(currentSessionID())
	},
}

var phaseShowCmd = &cobra.Command{
	Use:     "show [id]",
	Aliases: []string{"progress"},
	Short:   "Show the session's phase and progress",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return phaseShowRun(sessionArg(args))
	},
}

var phaseNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Advance to the next phase",
	RunE: func(cmd *cobra.Command, args []string) error {
		return phaseNextRun(currentSessionID())
	},
}

var phasePrevCmd = &cobra.Command{
	Use:     "prev",
	Aliases: []string{"previous", "back"},
	Short:   "Move back to the previous phase",
	RunE: func(cmd *cobra.Command, args []string) error {
		return phasePrevRun(currentSessionID())
	},
}

var phaseSetCmd = &cobra.Command{
	Use:   "set <phase>",
	Short: "Jump to a specific phase",
	Long:  `Jump to a phase by short form ("P3"), index ("3"), or name ("implementation").`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return phaseSetRun(currentSessionID(), args[0])
	},
}

var phaseGatesCmd = &cobra.Command{
	Use:   "gates",
	Short: "Run the gate check for the session's current phase",
	RunE: func(cmd *cobra.Command, args []string) error {
		return phaseGatesRun(currentSessionID())
	},
}

var phaseChecklistCmd = &cobra.Command{
	Use:   "checklist [phase]",
	Short: "Show deliverables expected for a phase",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return phaseChecklistRun(currentSessionID(), args)
	},
}

func init() {
	phaseShowCmd.Flags().BoolVar(&phaseJSON, "json", false, "Output as JSON")

	phaseCmd.AddCommand(phaseShowCmd)
	phaseCmd.AddCommand(phaseNextCmd)
	phaseCmd.AddCommand(phasePrevCmd)
	phaseCmd.AddCommand(phaseSetCmd)
	phaseCmd.AddCommand(phaseGatesCmd)
	phaseCmd.AddCommand(phaseChecklistCmd)
	rootCmd.AddCommand(phaseCmd)
}

func phaseShowRun(id string) error {
	machine, err := getMachine()
	if err != nil {
		return err
	}
	ctx := context.Background()

	current, err := machine.Current(ctx, id)
	if err != nil {
		return err
	}
	progress, err := machine.Progress(ctx, current)
	if err != nil {
		return err
	}

	if phaseJSON {
		return printJSON(struct {
			SessionID  string       `json:"session_id"`
			Phase      models.Phase `json:"phase"`
			Name       string       `json:"name"`
			Percent    int          `json:"percent"`
			GatePassed bool         `json:"gate_passed"`
			GateDetail string       `json:"gate_detail"`
		}{id, current, current.Name(), progress.Percent, progress.GatePassed, progress.GateDetail})
	}

	fmt.Fprintf(ui.Out, "Session %s is in %s %s (%d%% complete)\n",
		output.Cyan(id), current, current.Name(), progress.Percent)
	printGate(progress.GatePassed, progress.GateDetail)
	printChecks(progress.Checks)
	return nil
}

func phaseNextRun(id string) error {
	machine, err := getMachine()
	if err != nil {
		return err
	}
	session, err := machine.Next(context.Background(), id)
	if err != nil {
		return err
	}
	ui.Success("Session %s advanced to %s %s", session.SessionID, session.Phase, session.Phase.Name())
	return nil
}

func phasePrevRun(id string) error {
	machine, err := getMachine()
	if err != nil {
		return err
	}
	session, err := machine.Previous(context.Background(), id)
	if err != nil {
		return err
	}
	ui.Success("Session %s moved back to %s %s", session.SessionID, session.Phase, session.Phase.Name())
	return nil
}

func phaseSetRun(id, raw string) error {
	target, err := models.ParsePhase(raw)
	if err != nil {
		return err
	}
	machine, err := getMachine()
	if err != nil {
		return err
	}
	session, err := machine.Transition(context.Background(), id, target)
	if err != nil {
		return err
	}
	ui.Success("Session %s is now in %s %s", session.SessionID, session.Phase, session.Phase.Name())
	return nil
}

func phaseGatesRun(id string) error {
	machine, err := getMachine()
	if err != nil {
		return err
	}
	ctx := context.Background()

	current, err := machine.Current(ctx, id)
	if err != nil {
		return err
	}
	result, err := machine.CheckGates(ctx, current)
	if err != nil {
		return err
	}
	printGate(result.Passed, result.Detail)
	if !result.Passed {
		return fmt.Errorf("gates for %s did not pass", current)
	}
	return nil
}

func phaseChecklistRun(id string, args []string) error {
	machine, err := getMachine()
	if err != nil {
		return err
	}

	var target models.Phase
	if len(args) == 1 {
		target, err = models.ParsePhase(args[0])
		if err != nil {
			return err
		}
	} else {
		target, err = machine.Current(context.Background(), id)
		if err != nil {
			return err
		}
	}

	checks := machine.Checklist(target)
	fmt.Fprintf(ui.Out, "Deliverables for %s %s:\n", target, target.Name())
	if len(checks) == 0 {
		ui.Info("No deliverables configured")
		return nil
	}
	printChecks(checks)
	return nil
}

func printGate(passed bool, detail string) {
	if passed {
		ui.Success("Gate: passed%s", gateDetailSuffix(detail))
	} else {
		ui.Warning("Gate: not passed%s", gateDetailSuffix(detail))
	}
}

func gateDetailSuffix(detail string) string {
	if detail == "" {
		return ""
	}
	return " (" + detail + ")"
}

func printChecks(checks []phase.Check) {
	for _, c := range checks {
		if c.Passed {
			ui.Success("%s (%s)", c.Path, c.Detail)
		} else {
			ui.Warning("%s (%s)", c.Path, c.Detail)
		}
	}
}
