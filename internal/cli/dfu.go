package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"turdusctl/internal/workflow"
)

func newDFUCommand(app *App) *cobra.Command {
	var reenter string

	cmd := &cobra.Command{
		Use:   "dfu",
		Short: "Enter pwned DFU mode",
		Long: `Put the connected device into pwned DFU mode.

This is the only command supervised for output stalls: if the tool goes
silent mid-handshake it is automatically restarted in place, up to three
times. Untethered workflows pair the entry with the ticket's generator
value (--generator, or prompted).

Use --reenter to mark a re-entry after a device restart:
  turdusctl dfu --reenter pte      (before PTE block extraction)
  turdusctl dfu --reenter restore  (before the restore step)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireWorkflow(app); err != nil {
				return err
			}
			id := workflow.StepEnterPwnedDFU
			switch reenter {
			case "":
			case "pte":
				id = workflow.StepReenterDFUPTE
			case "restore":
				id = workflow.StepReenterDFURestore
			default:
				return fmt.Errorf("invalid --reenter value %q (want pte or restore)", reenter)
			}
			return runStep(app, cmd, id)
		},
	}

	cmd.Flags().StringVar(&reenter, "reenter", "", "re-entry point: pte or restore")
	return cmd
}
