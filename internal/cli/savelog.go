package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSaveLogCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "save-log",
		Short: "Save the session transcript to the working directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			path, err := app.Printer.SaveLog(app.Config.WorkDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Log saved to %s\n", path)
			return nil
		},
	}
}
