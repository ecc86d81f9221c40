package cli

import (
	"github.com/spf13/cobra"

	"turdusctl/internal/workflow"
)

func newBootCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "boot",
		Short: "Boot the tethered device",
		Long: `Boot a tethered-restored device. The older generation boots from the
PTE block; the newer one needs the signed boot images in ./image4.
Untethered workflows have no boot step - the device boots on its own.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireWorkflow(app); err != nil {
				return err
			}
			return runStep(app, cmd, workflow.StepBootDevice)
		},
	}
}
