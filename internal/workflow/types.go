// Package workflow holds the fixed catalogue of downgrade procedures.
//
// Two device CPU generations times two downgrade modes yield exactly four
// workflows. Each workflow is a linear chain of steps expressed as plain
// data — required artifact kinds, the operator control that triggers the
// step, and the successor — rather than behavior, so every chain is
// individually inspectable and testable.
//
// Key types:
//   - [Workflow] - One device-class/mode procedure with its step chain
//   - [Step] - A single step with its metadata
//   - [StepID] - Step identifiers shared across all workflows
//
// Use [Get] to select a workflow and [Workflow.Chain] to walk its steps.
package workflow

import (
	"turdusctl/internal/artifacts"
)

// DeviceClass is the CPU generation of the target device.
type DeviceClass string

const (
	// ClassA9 devices need the two-stage block extraction before a
	// tethered restore.
	ClassA9 DeviceClass = "A9"

	// ClassA10 devices restore directly; no block extraction is involved
	// in the tethered path.
	ClassA10 DeviceClass = "A10"
)

// Mode is the downgrade mode.
type Mode string

const (
	// ModeTethered restores require a computer connection for every boot.
	ModeTethered Mode = "tethered"

	// ModeUntethered restores boot unattended but require a signed ticket
	// (SHSH blob) and its generator value.
	ModeUntethered Mode = "untethered"
)

// StepID identifies a step within a workflow chain.
type StepID string

const (
	StepSetPermissions    StepID = "set-permissions"
	StepEnterPwnedDFU     StepID = "enter-pwned-dfu"
	StepExtractSHC        StepID = "extract-shcblock"
	StepCheckSHC          StepID = "check-shcblock"
	StepReenterDFUPTE     StepID = "reenter-dfu-pte"
	StepExtractPTE        StepID = "extract-pteblock"
	StepCheckPTE          StepID = "check-pteblock"
	StepReenterDFURestore StepID = "reenter-dfu-restore"
	StepRestoreDevice     StepID = "restore-device"
	StepBootDevice        StepID = "boot-device"
)

// RequireSHSH marks steps that need the signed ticket file. It lives in the
// same requires list as block artifact kinds; the controller resolves it
// against the operator-selected ticket path instead of the block locator.
const RequireSHSH artifacts.Kind = "shsh"

// NoControl is the control index of a checkpoint step: one with no operator
// control that auto-advances once its required artifact is present.
const NoControl = -1

// Step is one entry in a workflow chain.
type Step struct {
	// ID identifies the step.
	ID StepID

	// ControlIndex is the operator control that triggers the step, or
	// [NoControl] for validation checkpoints.
	ControlIndex int

	// Description is the instruction text shown to the operator.
	Description string

	// Requires lists the artifact kinds whose files must be present and
	// non-empty before the step may run (or, for a checkpoint, before it
	// auto-advances).
	Requires []artifacts.Kind

	// Next is the successor step, or empty for the terminal step.
	Next StepID
}

// IsCheckpoint reports whether the step is a validation checkpoint with no
// operator control.
func (s Step) IsCheckpoint() bool {
	return s.ControlIndex == NoControl
}

// RequiresKind reports whether the step needs the given artifact kind.
func (s Step) RequiresKind(kind artifacts.Kind) bool {
	for _, k := range s.Requires {
		if k == kind {
			return true
		}
	}
	return false
}

// Workflow is one immutable downgrade procedure. The current-step pointer
// lives in the controller, never here.
type Workflow struct {
	// Class is the device CPU generation this workflow targets.
	Class DeviceClass

	// Mode is the downgrade mode.
	Mode Mode

	// Steps maps step identifiers to their metadata.
	Steps map[StepID]Step

	// First is the entry point of the chain.
	First StepID

	// Summary is a one-line description of what the workflow will do.
	Summary string

	// Warning is the caveat shown to the operator when the workflow is
	// selected.
	Warning string
}

// Key returns the registry key for the workflow, e.g. "a9_tethered".
func (w *Workflow) Key() string {
	return key(w.Class, w.Mode)
}

// Description returns a short human-readable label, e.g. "A9+tethered downgrade".
func (w *Workflow) Description() string {
	return string(w.Class) + "+" + string(w.Mode) + " downgrade"
}

// Step returns the step with the given ID and whether it exists in this
// workflow.
func (w *Workflow) Step(id StepID) (Step, bool) {
	s, ok := w.Steps[id]
	return s, ok
}

// Has reports whether the workflow contains the given step.
func (w *Workflow) Has(id StepID) bool {
	_, ok := w.Steps[id]
	return ok
}

// Chain returns the steps in execution order, from the first step through
// the terminal step.
func (w *Workflow) Chain() []Step {
	var chain []Step
	for id := w.First; id != ""; {
		step, ok := w.Steps[id]
		if !ok {
			break
		}
		chain = append(chain, step)
		id = step.Next
	}
	return chain
}

// ControlStep returns the step bound to the given operator control index.
func (w *Workflow) ControlStep(index int) (Step, bool) {
	for _, s := range w.Steps {
		if s.ControlIndex == index {
			return s, true
		}
	}
	return Step{}, false
}
