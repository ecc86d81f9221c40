// Package controller drives an operator through the active downgrade
// workflow.
//
// The controller owns the mutable session state the immutable
// [workflow.Workflow] deliberately does not: the current step, the
// per-control step statuses, the discovered and operator-supplied artifact
// paths, and the generator value for untethered flows. After every
// transition it recomputes the next actionable step by walking the chain
// from the first incomplete step, auto-advancing validation checkpoints
// whose artifact requirement is already satisfied.
//
// A step failure never aborts the workflow: every control-bearing step is
// independently retryable, and cancellations are tracked separately from
// natural failures.
package controller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"turdusctl/internal/artifacts"
	"turdusctl/internal/output"
	"turdusctl/internal/runner"
	"turdusctl/internal/session"
	"turdusctl/internal/workflow"
)

// Sentinel errors for step dispatch.
var (
	// ErrStepNotInWorkflow is returned when the requested step is not part
	// of the active workflow (e.g. block extraction on a generation that
	// skips it). Callers should inform the operator, not fail.
	ErrStepNotInWorkflow = errors.New("step is not part of the current workflow")

	// ErrCheckpoint is returned when a validation checkpoint is dispatched
	// directly; checkpoints advance on their own once their artifact exists.
	ErrCheckpoint = errors.New("step is a validation checkpoint and cannot be run directly")

	// ErrPrecondition is returned when a step's file or input requirements
	// are not met. The step keeps its prior status.
	ErrPrecondition = errors.New("step preconditions not met")
)

// Confirmer obtains operator confirmation and input. The coordinator blocks
// on these; no process work proceeds while a prompt is open.
type Confirmer interface {
	// Confirm asks a yes/no question and reports the answer.
	Confirm(prompt string) bool

	// Input asks for a free-form value; ok is false when the operator
	// declined to provide one.
	Input(prompt string) (value string, ok bool)
}

// CommandRunner is the slice of [runner.Runner] the controller needs.
// Tests substitute a mock.
type CommandRunner interface {
	RunWait(ctx context.Context, spec session.Spec, sink runner.LogSink) (session.Result, error)
	Cancel()
	Running() bool
}

// Controller sequences the active workflow for one operator session.
type Controller struct {
	tools    workflow.Tools
	workDir  string
	run      CommandRunner
	printer  *output.Printer
	confirm  Confirmer
	preserve bool

	wf        *workflow.Workflow
	current   workflow.StepID
	statuses  map[int]Status
	paths     workflow.Paths
	manual    workflow.Paths
	generator string
}

// Options configures a Controller.
type Options struct {
	// Tools are the external binary paths.
	Tools workflow.Tools

	// WorkDir is the session working directory.
	WorkDir string

	// Runner executes external commands; usually a [runner.Runner].
	Runner CommandRunner

	// Printer receives operator messages and tool output.
	Printer *output.Printer

	// Confirmer answers confirmation prompts. A nil Confirmer answers yes
	// to everything and declines free-form input.
	Confirmer Confirmer

	// PreserveProgress keeps Completed/Failed statuses across workflow
	// switches instead of resetting everything.
	PreserveProgress bool
}

// New creates a Controller with no workflow selected.
func New(opts Options) *Controller {
	confirm := opts.Confirmer
	if confirm == nil {
		confirm = autoConfirm{}
	}
	return &Controller{
		tools:    opts.Tools,
		workDir:  opts.WorkDir,
		run:      opts.Runner,
		printer:  opts.Printer,
		confirm:  confirm,
		preserve: opts.PreserveProgress,
		statuses: make(map[int]Status),
	}
}

// autoConfirm answers yes to every confirmation and declines input prompts.
type autoConfirm struct{}

func (autoConfirm) Confirm(string) bool         { return true }
func (autoConfirm) Input(string) (string, bool) { return "", false }

// SetConfirmer replaces the confirmation source. Used when the operator
// passes an auto-confirm flag.
func (c *Controller) SetConfirmer(confirm Confirmer) {
	if confirm == nil {
		confirm = autoConfirm{}
	}
	c.confirm = confirm
}

// Workflow returns the active workflow, or nil before [SelectWorkflow].
func (c *Controller) Workflow() *workflow.Workflow {
	return c.wf
}

// SelectWorkflow activates the workflow for a device class and mode.
//
// By default every step status reverts to Ready: a class/mode switch means a
// different device or procedure, and stale progress is more dangerous than
// lost progress. With progress preservation enabled, Completed and Failed
// statuses survive the switch and only non-terminal statuses reset.
func (c *Controller) SelectWorkflow(class workflow.DeviceClass, mode workflow.Mode) error {
	wf, ok := workflow.Get(class, mode)
	if !ok {
		return fmt.Errorf("no workflow for device class %q and mode %q", class, mode)
	}
	c.wf = wf
	c.current = ""

	if c.preserve {
		for idx, st := range c.statuses {
			if !st.Terminal() {
				c.statuses[idx] = StatusReady
			}
		}
	} else {
		c.statuses = make(map[int]Status)
	}

	c.printer.System("===== Workflow updated: %s =====", wf.Description())
	c.printer.Info("%s", wf.Summary)
	c.printer.Warn("%s", wf.Warning)
	if mode == workflow.ModeUntethered && c.effectiveSHSH() == "" {
		c.printer.Error("Please select an SHSH blob file before continuing")
	}
	return nil
}

// SetFirmware records the operator-selected firmware image path.
func (c *Controller) SetFirmware(path string) {
	c.paths.Firmware = path
}

// SetSHSH records the operator-selected signed ticket path.
func (c *Controller) SetSHSH(path string) {
	c.paths.SHSH = path
}

// SetGenerator records the operator-entered generator value used by
// untethered privileged-mode entry.
func (c *Controller) SetGenerator(value string) {
	c.generator = value
}

// SetManualBlock records an operator-supplied block path. Manual paths take
// precedence over auto-discovery on every dependent step.
func (c *Controller) SetManualBlock(kind artifacts.Kind, path string) {
	switch kind {
	case artifacts.KindSHCBlock:
		c.manual.SHCBlock = path
	case artifacts.KindPTEBlock:
		c.manual.PTEBlock = path
	}
}

// Paths returns the effective artifact paths: manual overrides first, then
// discovered ones.
func (c *Controller) Paths() workflow.Paths {
	return workflow.Paths{
		Firmware: c.paths.Firmware,
		SHSH:     c.effectiveSHSH(),
		SHCBlock: c.effectiveBlock(artifacts.KindSHCBlock),
		PTEBlock: c.effectiveBlock(artifacts.KindPTEBlock),
	}
}

// StatusOf returns the status of a step. Checkpoints and never-attempted
// steps report Ready.
func (c *Controller) StatusOf(id workflow.StepID) Status {
	if c.wf == nil {
		return StatusReady
	}
	step, ok := c.wf.Step(id)
	if !ok || step.IsCheckpoint() {
		return StatusReady
	}
	if st, ok := c.statuses[step.ControlIndex]; ok {
		return st
	}
	return StatusReady
}

// CurrentStep returns the step the controller considers current, or empty.
func (c *Controller) CurrentStep() workflow.StepID {
	return c.current
}

// Cancel forwards cancellation to the active command, if any.
func (c *Controller) Cancel() {
	c.run.Cancel()
}

// NextStep computes the next actionable step by walking the chain from the
// first incomplete step.
//
// Checkpoints whose artifact requirement is satisfied are skipped silently.
// When the chain is blocked — no firmware selected, ticket missing in
// untethered mode, or a checkpoint waiting on its artifact — the returned
// guidance string carries the instruction to re-display and ok is false.
// done is true once every step in the chain is completed.
func (c *Controller) NextStep() (next workflow.Step, guidance string, done bool, ok bool) {
	if c.wf == nil {
		return workflow.Step{}, "No workflow selected", false, false
	}
	if c.paths.Firmware == "" {
		return workflow.Step{}, "Please select a firmware file first", false, false
	}
	if c.wf.Mode == workflow.ModeUntethered && c.effectiveSHSH() == "" {
		return workflow.Step{}, c.wf.Description() + ": Please select an SHSH blob file", false, false
	}

	for _, step := range c.wf.Chain() {
		if step.IsCheckpoint() {
			if c.requirementsSatisfied(step) {
				continue
			}
			return workflow.Step{}, step.Description, false, false
		}
		switch c.statuses[step.ControlIndex] {
		case StatusCompleted:
			continue
		case StatusPartial:
			// A partial extraction is passed once its block has been
			// supplied, usually by a manual selection.
			if c.extractionSatisfied(step) {
				continue
			}
		}
		return step, "", false, true
	}
	return workflow.Step{}, "", true, false
}

// extractionSatisfied reports whether the block an extraction step was meant
// to produce now resolves to a usable file.
func (c *Controller) extractionSatisfied(step workflow.Step) bool {
	kind, ok := extractionKind(step.ID)
	if !ok {
		return false
	}
	path := c.effectiveBlock(kind)
	return path != "" && nonEmptyFile(path)
}

// extractionKind maps an extraction step to the block kind it produces.
func extractionKind(id workflow.StepID) (artifacts.Kind, bool) {
	switch id {
	case workflow.StepExtractSHC:
		return artifacts.KindSHCBlock, true
	case workflow.StepExtractPTE:
		return artifacts.KindPTEBlock, true
	default:
		return "", false
	}
}

// RunStep executes one control-bearing step of the active workflow and
// returns its resulting status.
//
// The returned error is non-nil only for dispatch problems — unknown step,
// checkpoint, unmet preconditions, busy runner, or spawn failure. Command
// failures are reported through the returned status, not the error: the
// step stays retryable and the workflow is never aborted.
func (c *Controller) RunStep(ctx context.Context, id workflow.StepID) (Status, error) {
	if c.wf == nil {
		return StatusReady, fmt.Errorf("no workflow selected")
	}
	step, ok := c.wf.Step(id)
	if !ok {
		return StatusReady, fmt.Errorf("%w: %s is not needed for %s", ErrStepNotInWorkflow, id, c.wf.Description())
	}
	if step.IsCheckpoint() {
		return StatusReady, fmt.Errorf("%w: %s", ErrCheckpoint, id)
	}

	switch id {
	case workflow.StepSetPermissions:
		return c.runPermissions(ctx, step)
	case workflow.StepEnterPwnedDFU, workflow.StepReenterDFUPTE, workflow.StepReenterDFURestore:
		return c.runEnterDFU(ctx, step)
	case workflow.StepExtractSHC:
		return c.runExtract(ctx, step, artifacts.KindSHCBlock)
	case workflow.StepExtractPTE:
		return c.runExtract(ctx, step, artifacts.KindPTEBlock)
	case workflow.StepRestoreDevice:
		return c.runRestore(ctx, step)
	case workflow.StepBootDevice:
		return c.runBoot(ctx, step)
	default:
		return StatusReady, fmt.Errorf("%w: unknown step %s", ErrStepNotInWorkflow, id)
	}
}

// runPermissions makes both tool binaries executable.
func (c *Controller) runPermissions(ctx context.Context, step workflow.Step) (Status, error) {
	c.begin(step)
	c.printer.System("===== Setting tool permissions =====")

	for _, spec := range workflow.PermissionSpecs(c.tools) {
		st, err := c.invoke(ctx, step, spec)
		if err != nil || st != StatusCompleted {
			if st == StatusFailed {
				c.printer.Error("Failed to set tool permissions. Please check that the tools exist and try again.")
			}
			return st, err
		}
	}

	c.printer.Info("Tool permissions set successfully")
	return c.setStatus(step, StatusCompleted), nil
}

// runEnterDFU handles the privileged-mode entry steps, including every
// re-entry. Untethered workflows pair the entry with the ticket's generator
// value, prompting for it once and reusing it on re-entries.
func (c *Controller) runEnterDFU(ctx context.Context, step workflow.Step) (Status, error) {
	if c.paths.Firmware == "" {
		return StatusReady, fmt.Errorf("%w: no firmware selected", ErrPrecondition)
	}
	if err := c.checkRequirements(step); err != nil {
		return StatusReady, err
	}

	c.begin(step)
	c.printer.System("===== %s =====", step.Description)

	prompt := "Please make sure your device is connected and in DFU mode.\nReady to continue?"
	if step.ID != workflow.StepEnterPwnedDFU {
		prompt = "Please put your device back in DFU mode after restart.\nReady to continue?"
	}
	if !c.confirm.Confirm(prompt) {
		c.printer.Warn("Operation declined by operator")
		return c.setStatus(step, StatusCanceled), nil
	}

	generator := ""
	if c.wf.Mode == workflow.ModeUntethered {
		if c.generator == "" {
			value, ok := c.confirm.Input("Enter the generator value from your SHSH blob:")
			if !ok || value == "" {
				return c.setStatus(step, StatusCanceled), nil
			}
			c.generator = value
		}
		generator = c.generator
		c.printer.System("Using generator: %s", generator)
	}

	st, err := c.invoke(ctx, step, workflow.EnterDFUSpec(c.tools, generator))
	switch st {
	case StatusCompleted:
		c.printer.Info("Successfully entered pwned DFU mode")
	case StatusFailed:
		c.printer.Error("Failed to enter pwned DFU mode. Please check your device connection and try again.")
	}
	return st, err
}

// runExtract runs a block extraction and then locates the produced
// artifact. A successful command with no discoverable artifact is Partial:
// the operator can still proceed by supplying the block manually.
func (c *Controller) runExtract(ctx context.Context, step workflow.Step, kind artifacts.Kind) (Status, error) {
	if c.paths.Firmware == "" {
		return StatusReady, fmt.Errorf("%w: no firmware selected", ErrPrecondition)
	}
	if err := c.checkRequirements(step); err != nil {
		return StatusReady, err
	}

	c.begin(step)
	c.printer.System("===== %s =====", step.Description)

	var spec session.Spec
	if kind == artifacts.KindSHCBlock {
		spec = workflow.ExtractSHCSpec(c.tools, c.paths.Firmware)
	} else {
		spec = workflow.ExtractPTESpec(c.tools, c.effectiveBlock(artifacts.KindSHCBlock), c.paths.Firmware)
	}

	st, err := c.invoke(ctx, step, spec)
	if err != nil || st != StatusCompleted {
		if st == StatusFailed {
			c.printer.Error("Failed to extract %s. Please try again after re-entering pwned DFU mode.", kind)
		}
		return st, err
	}

	found := artifacts.FindLatest(kind, c.workDir)
	if found != "" && !insideDir(found, c.workDir) {
		// The tool dropped the block next to itself; pull it into the work
		// dir so the whole session lives under one roof.
		if adopted, aerr := artifacts.AdoptLatest(kind, c.workDir); aerr == nil && adopted != "" {
			found = adopted
			c.printer.Info("Copied %s to working directory: %s", kind, filepath.Base(adopted))
		}
	}
	if found == "" {
		if manual := c.manualBlock(kind); manual != "" && nonEmptyFile(manual) {
			c.printer.Info("Using manually selected %s: %s", kind, filepath.Base(manual))
			return c.setStatus(step, StatusCompleted), nil
		}
		c.printer.Warn("No %s file found - you need to select one manually.", kind)
		return c.setStatus(step, StatusPartial), nil
	}

	c.recordBlock(kind, found)
	c.printer.Info("Successfully extracted %s: %s", kind, filepath.Base(found))
	if kind == artifacts.KindSHCBlock {
		c.printer.Info("Device will restart. Please put it back in DFU mode for the next step.")
	}
	return c.setStatus(step, StatusCompleted), nil
}

// runRestore builds and runs the class/mode-specific restore command.
func (c *Controller) runRestore(ctx context.Context, step workflow.Step) (Status, error) {
	if err := c.checkRequirements(step); err != nil {
		return StatusReady, err
	}

	spec, err := c.wf.RestoreSpec(c.tools, c.Paths())
	if err != nil {
		return StatusReady, fmt.Errorf("%w: %v", ErrPrecondition, err)
	}

	c.begin(step)
	c.printer.System("===== Restoring device =====")
	c.logRestoreInputs()

	st, rerr := c.invoke(ctx, step, spec)
	switch st {
	case StatusCompleted:
		c.printer.Info("Device restoration completed successfully")
	case StatusFailed:
		c.printer.Error("Device restoration failed. Please try again after re-entering pwned DFU mode.")
	}
	return st, rerr
}

// runBoot builds and runs the boot command for tethered workflows.
func (c *Controller) runBoot(ctx context.Context, step workflow.Step) (Status, error) {
	if err := c.checkRequirements(step); err != nil {
		return StatusReady, err
	}

	spec, err := c.wf.BootSpec(c.tools, c.Paths())
	if err != nil {
		c.printer.Error("%v", err)
		return c.setStatus(step, StatusFailed), nil
	}

	c.begin(step)
	c.printer.System("===== Booting device =====")

	st, rerr := c.invoke(ctx, step, spec)
	switch st {
	case StatusCompleted:
		c.printer.Info("Device has been successfully booted!")
		c.printer.Info("Your device should now be running the restored firmware version")
	case StatusFailed:
		c.printer.Error("Device boot failed. Please check device connection and try again.")
	}
	return st, rerr
}

// invoke runs one command through the runner and folds its result into a
// step status. Busy and spawn errors are returned to the caller with the
// step reverted to Ready so it can be retried cleanly.
func (c *Controller) invoke(ctx context.Context, step workflow.Step, spec session.Spec) (Status, error) {
	res, err := c.run.RunWait(ctx, spec, c.printer.Line)
	if err != nil {
		c.statuses[step.ControlIndex] = StatusReady
		if errors.Is(err, runner.ErrBusy) {
			c.printer.Warn("Another operation is currently running. Please wait for it to complete.")
		}
		return StatusReady, err
	}

	switch {
	case res.Canceled:
		c.printer.Warn("Command was terminated by user")
		c.printer.Warn("You can resume from: %s", step.Description)
		return c.setStatus(step, StatusCanceled), nil
	case res.TimedOut:
		c.printer.Error("Command timed out (%s)", spec.Timeout)
		return c.setStatus(step, StatusFailed), nil
	case res.Success:
		return c.setStatus(step, StatusCompleted), nil
	default:
		if spec.StallSensitive && res.Restarts >= session.MaxRestarts {
			c.printer.Error("DFU entry failed after %d automatic restarts", res.Restarts)
		}
		return c.setStatus(step, StatusFailed), nil
	}
}

// begin marks a step in progress and makes it current.
func (c *Controller) begin(step workflow.Step) {
	c.current = step.ID
	c.statuses[step.ControlIndex] = StatusInProgress
}

func (c *Controller) setStatus(step workflow.Step, st Status) Status {
	c.statuses[step.ControlIndex] = st
	return st
}

// checkRequirements verifies every required artifact of a step resolves to
// a non-empty file.
func (c *Controller) checkRequirements(step workflow.Step) error {
	for _, kind := range step.Requires {
		var path string
		switch kind {
		case workflow.RequireSHSH:
			path = c.effectiveSHSH()
			if path == "" {
				return fmt.Errorf("%w: no SHSH blob file selected", ErrPrecondition)
			}
		default:
			path = c.effectiveBlock(kind)
			if path == "" {
				return fmt.Errorf("%w: %s not found; extract it first or select a file manually", ErrPrecondition, kind)
			}
		}
		if !nonEmptyFile(path) {
			return fmt.Errorf("%w: %s file %s is missing or empty", ErrPrecondition, kind, path)
		}
	}
	return nil
}

// requirementsSatisfied is the checkpoint variant of checkRequirements:
// no error detail, just reachability.
func (c *Controller) requirementsSatisfied(step workflow.Step) bool {
	return c.checkRequirements(step) == nil
}

// manualBlock returns the operator-supplied override for a block kind, if
// any.
func (c *Controller) manualBlock(kind artifacts.Kind) string {
	switch kind {
	case artifacts.KindSHCBlock:
		return c.manual.SHCBlock
	case artifacts.KindPTEBlock:
		return c.manual.PTEBlock
	default:
		return ""
	}
}

// effectiveBlock resolves a block path: manual override, then the path
// recorded by a previous extraction, then fresh auto-discovery.
func (c *Controller) effectiveBlock(kind artifacts.Kind) string {
	if manual := c.manualBlock(kind); manual != "" {
		return manual
	}
	switch kind {
	case artifacts.KindSHCBlock:
		if c.paths.SHCBlock != "" {
			return c.paths.SHCBlock
		}
	case artifacts.KindPTEBlock:
		if c.paths.PTEBlock != "" {
			return c.paths.PTEBlock
		}
	}
	return artifacts.FindLatest(kind, c.workDir)
}

func (c *Controller) effectiveSHSH() string {
	if c.manual.SHSH != "" {
		return c.manual.SHSH
	}
	return c.paths.SHSH
}

func (c *Controller) recordBlock(kind artifacts.Kind, path string) {
	switch kind {
	case artifacts.KindSHCBlock:
		c.paths.SHCBlock = path
	case artifacts.KindPTEBlock:
		c.paths.PTEBlock = path
	}
}

func (c *Controller) logRestoreInputs() {
	p := c.Paths()
	if p.SHSH != "" && c.wf.Mode == workflow.ModeUntethered {
		c.printer.System("Using SHSH blob: %s", filepath.Base(p.SHSH))
	}
	if p.SHCBlock != "" && c.wf.Class == workflow.ClassA9 && c.wf.Mode == workflow.ModeUntethered {
		c.printer.System("Using SHC block: %s", filepath.Base(p.SHCBlock))
	}
	if p.PTEBlock != "" && c.wf.Class == workflow.ClassA9 && c.wf.Mode == workflow.ModeTethered {
		c.printer.System("Using PTE block: %s", filepath.Base(p.PTEBlock))
	}
}

// nonEmptyFile reports whether path names an existing file with content.
// An empty artifact is as useless as a missing one.
func nonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// insideDir reports whether path lies under dir, resolving both to absolute
// form first.
func insideDir(path, dir string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
