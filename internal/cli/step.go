package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"turdusctl/internal/controller"
	"turdusctl/internal/workflow"
)

// Exit codes for step commands. Dispatch problems (step not in workflow,
// missing preconditions) are distinguished from command failures so scripts
// can tell "fix your inputs" apart from "the tool failed".
const (
	exitFailure = 1
	exitBlocked = 2
)

// runStep dispatches one workflow step through the controller and maps the
// outcome to an exit error.
func runStep(app *App, cmd *cobra.Command, id workflow.StepID) error {
	cmd.SilenceUsage = true

	st, err := app.Controller.RunStep(cmd.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, controller.ErrStepNotInWorkflow),
			errors.Is(err, controller.ErrCheckpoint),
			errors.Is(err, controller.ErrPrecondition):
			app.Printer.Error("%v", err)
			return NewExitError(exitBlocked)
		default:
			app.Printer.Error("%v", err)
			return NewExitError(exitFailure)
		}
	}

	switch st {
	case controller.StatusCompleted, controller.StatusPartial:
		return nil
	case controller.StatusCanceled:
		return NewExitError(exitFailure)
	default:
		return NewExitError(exitFailure)
	}
}

// requireWorkflow fails fast with usage help when no workflow is selected.
func requireWorkflow(app *App) error {
	if app.Controller.Workflow() == nil {
		return fmt.Errorf("no workflow selected: pass --class and --mode")
	}
	return nil
}
