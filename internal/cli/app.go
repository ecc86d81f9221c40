// Package cli wires the cobra command tree for turdusctl.
//
// Every command operates on a shared [App] container so tests can inject a
// mock command runner and a buffered printer. The root command carries the
// selection flags (device class, mode, firmware, ticket, blocks); each
// subcommand maps to exactly one workflow step, plus `run` for the guided
// loop and `steps` for a status listing.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"turdusctl/internal/artifacts"
	"turdusctl/internal/config"
	"turdusctl/internal/controller"
	"turdusctl/internal/output"
	"turdusctl/internal/runner"
	"turdusctl/internal/workflow"
)

// App bundles the dependencies shared by all commands.
type App struct {
	Config     *config.Config
	Printer    *output.Printer
	Controller *controller.Controller
	Confirmer  controller.Confirmer
}

// NewApp builds the production dependency graph from a loaded config.
func NewApp(cfg *config.Config) *App {
	printer := output.NewPrinter()

	confirm := controller.Confirmer(NewStdinConfirmer(printer))
	app := &App{
		Config:    cfg,
		Printer:   printer,
		Confirmer: confirm,
	}
	app.Controller = controller.New(controller.Options{
		Tools: workflow.Tools{
			DFU:     cfg.Tools.DFU,
			Restore: cfg.Tools.Restore,
		},
		WorkDir: cfg.WorkDir,
		Runner: runner.New(runner.Tuning{
			StallBudget:   cfg.Session.StallBudget,
			CheckInterval: cfg.Session.CheckInterval,
			GracePeriod:   cfg.Session.GracePeriod,
		}),
		Printer:          printer,
		Confirmer:        confirm,
		PreserveProgress: cfg.PreserveProgress,
	})
	return app
}

// rootFlags holds the selection flags shared by every subcommand.
type rootFlags struct {
	class     string
	mode      string
	firmware  string
	shsh      string
	shcBlock  string
	pteBlock  string
	generator string
	workDir   string
	yes       bool
}

// NewRootCommand creates the turdusctl root command.
func NewRootCommand(app *App) *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "turdusctl",
		Short: "Operator-guided device firmware downgrade",
		Long: `turdusctl supervises the external downgrade tools through the
step chain for your device generation and downgrade mode.

Select a workflow with --class and --mode, point it at a firmware image
with --firmware, then either walk the chain interactively with "run" or
execute individual steps (permissions, dfu, extract-shc, extract-pte,
restore, boot).`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return applyFlags(app, flags)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.class, "class", "", "device class: a9 or a10")
	pf.StringVar(&flags.mode, "mode", "", "downgrade mode: tethered or untethered")
	pf.StringVar(&flags.firmware, "firmware", "", "path to the firmware image (.ipsw)")
	pf.StringVar(&flags.shsh, "shsh", "", "path to the signed ticket (.shsh2), untethered only")
	pf.StringVar(&flags.shcBlock, "shcblock", "", "manually selected SHC block file")
	pf.StringVar(&flags.pteBlock, "pteblock", "", "manually selected PTE block file")
	pf.StringVar(&flags.generator, "generator", "", "generator value from the signed ticket, untethered only")
	pf.StringVar(&flags.workDir, "work-dir", "", "working directory (overrides config)")
	pf.BoolVarP(&flags.yes, "yes", "y", false, "answer yes to all confirmation prompts")

	rootCmd.AddCommand(
		newRunCommand(app),
		newStepsCommand(app),
		newPermissionsCommand(app),
		newDFUCommand(app),
		newExtractSHCCommand(app),
		newExtractPTECommand(app),
		newRestoreCommand(app),
		newBootCommand(app),
		newSaveLogCommand(app),
	)
	return rootCmd
}

// applyFlags folds parsed flags into the controller before any subcommand
// runs. Workflow selection happens last so its summary output reflects the
// selected paths.
func applyFlags(app *App, flags *rootFlags) error {
	if flags.workDir != "" {
		app.Config.WorkDir = flags.workDir
	}
	if err := artifacts.EnsureLayout(app.Config.WorkDir); err != nil {
		return fmt.Errorf("preparing working directory: %w", err)
	}
	if flags.yes {
		app.Confirmer = AutoYes{}
		app.Controller.SetConfirmer(app.Confirmer)
	}

	if flags.firmware != "" {
		// The firmware is copied into the work dir so the whole session,
		// artifacts included, survives the source file moving.
		dest, err := artifacts.CopyFirmware(flags.firmware, app.Config.WorkDir)
		if err != nil {
			return fmt.Errorf("copying firmware into working directory: %w", err)
		}
		app.Controller.SetFirmware(dest)
	}
	if flags.shsh != "" {
		app.Controller.SetSHSH(flags.shsh)
	}
	if flags.shcBlock != "" {
		app.Controller.SetManualBlock(artifacts.KindSHCBlock, flags.shcBlock)
	}
	if flags.pteBlock != "" {
		app.Controller.SetManualBlock(artifacts.KindPTEBlock, flags.pteBlock)
	}
	if flags.generator != "" {
		app.Controller.SetGenerator(flags.generator)
	}

	if flags.class != "" || flags.mode != "" {
		if flags.class == "" || flags.mode == "" {
			return fmt.Errorf("--class and --mode must be given together")
		}
		class, err := workflow.ParseDeviceClass(flags.class)
		if err != nil {
			return err
		}
		mode, err := workflow.ParseMode(flags.mode)
		if err != nil {
			return err
		}
		if err := app.Controller.SelectWorkflow(class, mode); err != nil {
			return err
		}
	}
	return nil
}

// Execute runs the CLI and exits the process with the resulting code. An
// interrupt cancels the command context, which in turn terminates the live
// tool session under the graceful-stop policy.
func Execute() {
	cfg, err := config.NewLoader().Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "turdusctl: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := NewApp(cfg)
	rootCmd := NewRootCommand(app)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if code, ok := IsExitError(err); ok {
			os.Exit(code)
		}
		fmt.Fprintf(os.Stderr, "turdusctl: %v\n", err)
		os.Exit(1)
	}
}
