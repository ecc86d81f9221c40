package cli

import (
	"github.com/spf13/cobra"

	"turdusctl/internal/controller"
)

func newRunCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Walk the workflow step chain",
		Long: `Walk the selected workflow's step chain from the first incomplete
step, running each step in order and pausing at validation checkpoints
until their artifact exists.

Example:
  turdusctl --class a9 --mode tethered --firmware ./ipsw/iPhone8,1.ipsw run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireWorkflow(app); err != nil {
				return err
			}
			cmd.SilenceUsage = true
			ctx := cmd.Context()

			for {
				step, guidance, done, ok := app.Controller.NextStep()
				if done {
					app.Printer.Info("All workflow steps completed")
					if err := app.Controller.SaveNotes(); err != nil {
						app.Printer.Warn("%v", err)
					}
					return nil
				}
				if !ok {
					app.Printer.Warn("%s", guidance)
					if err := app.Controller.SaveNotes(); err != nil {
						app.Printer.Warn("%v", err)
					}
					return NewExitError(exitBlocked)
				}

				st, err := app.Controller.RunStep(ctx, step.ID)
				if err != nil {
					app.Printer.Error("%v", err)
					return NewExitError(exitBlocked)
				}
				switch st {
				case controller.StatusCompleted:
					// next loop iteration advances the chain
				case controller.StatusPartial:
					app.Printer.Warn("Select the missing file manually, then run again")
					return NewExitError(exitBlocked)
				case controller.StatusCanceled:
					if err := app.Controller.SaveNotes(); err != nil {
						app.Printer.Warn("%v", err)
					}
					return NewExitError(exitFailure)
				default:
					app.Printer.Warn("Step did not complete - it can be retried")
					return NewExitError(exitFailure)
				}
			}
		},
	}
}
