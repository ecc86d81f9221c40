package cli

import (
	"github.com/spf13/cobra"

	"turdusctl/internal/workflow"
)

func newRestoreCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Restore the firmware onto the device",
		Long: `Run the class- and mode-specific restore command. Tethered restores
leave the device dependent on the boot step; untethered restores need the
signed ticket (--shsh).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireWorkflow(app); err != nil {
				return err
			}
			return runStep(app, cmd, workflow.StepRestoreDevice)
		},
	}
}
