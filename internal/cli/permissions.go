package cli

import (
	"github.com/spf13/cobra"

	"turdusctl/internal/workflow"
)

func newPermissionsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "permissions",
		Short: "Make the downgrade tools executable",
		Long: `Clear quarantine attributes from both tool binaries and mark them
executable. Run this once before the first device step.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireWorkflow(app); err != nil {
				return err
			}
			return runStep(app, cmd, workflow.StepSetPermissions)
		},
	}
}
