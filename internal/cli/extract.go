package cli

import (
	"github.com/spf13/cobra"

	"turdusctl/internal/workflow"
)

func newExtractSHCCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "extract-shc",
		Short: "Extract the SHC block from the device",
		Long: `Extract the SHC block for the selected firmware. The device must be
in pwned DFU mode. On success the block is located on disk (newest match
wins) and recorded for the following steps; the device restarts afterwards
and must be put back in DFU mode.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireWorkflow(app); err != nil {
				return err
			}
			return runStep(app, cmd, workflow.StepExtractSHC)
		},
	}
}

func newExtractPTECommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "extract-pte",
		Short: "Extract the PTE block from the device",
		Long: `Extract the PTE block using the previously extracted SHC block.
Only the tethered workflow on the older device generation needs this step.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireWorkflow(app); err != nil {
				return err
			}
			return runStep(app, cmd, workflow.StepExtractPTE)
		},
	}
}
