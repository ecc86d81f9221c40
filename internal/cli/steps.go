package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"turdusctl/internal/workflow"
)

func newStepsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List the workflow step chain with statuses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireWorkflow(app); err != nil {
				return err
			}
			cmd.SilenceUsage = true

			wf := app.Controller.Workflow()
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n\n", wf.Description())
			for i, step := range wf.Chain() {
				marker := "checkpoint"
				if !step.IsCheckpoint() {
					marker = string(app.Controller.StatusOf(step.ID))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%2d. [%-11s] %s\n", i+1, marker, step.Description)
			}

			p := app.Controller.Paths()
			fmt.Fprintln(cmd.OutOrStdout())
			printPath(cmd, "firmware", p.Firmware)
			if wf.Mode == workflow.ModeUntethered {
				printPath(cmd, "shsh", p.SHSH)
			}
			printPath(cmd, "shcblock", p.SHCBlock)
			printPath(cmd, "pteblock", p.PTEBlock)
			return nil
		},
	}
}

func printPath(cmd *cobra.Command, name, path string) {
	if path == "" {
		path = "(not selected)"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%-9s %s\n", name+":", path)
}
