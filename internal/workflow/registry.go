package workflow

import (
	"fmt"
	"strings"

	"turdusctl/internal/artifacts"
)

// key builds the registry key for a class/mode pair.
func key(class DeviceClass, mode Mode) string {
	return strings.ToLower(string(class)) + "_" + string(mode)
}

// registry holds the four workflows, constructed once at init and immutable
// thereafter.
var registry = map[string]*Workflow{
	key(ClassA9, ModeTethered):    a9Tethered(),
	key(ClassA9, ModeUntethered):  a9Untethered(),
	key(ClassA10, ModeTethered):   a10Tethered(),
	key(ClassA10, ModeUntethered): a10Untethered(),
}

// Get returns the workflow for a device class and downgrade mode. The pair
// deterministically selects one of the four catalogued workflows; false is
// returned only for values outside the catalogue.
func Get(class DeviceClass, mode Mode) (*Workflow, bool) {
	w, ok := registry[key(class, mode)]
	return w, ok
}

// All returns every catalogued workflow. The result is for inspection and
// listing; the workflows themselves must not be mutated.
func All() []*Workflow {
	return []*Workflow{
		registry[key(ClassA9, ModeTethered)],
		registry[key(ClassA9, ModeUntethered)],
		registry[key(ClassA10, ModeTethered)],
		registry[key(ClassA10, ModeUntethered)],
	}
}

// ParseDeviceClass normalizes an operator-supplied device class string.
func ParseDeviceClass(s string) (DeviceClass, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A9":
		return ClassA9, nil
	case "A10":
		return ClassA10, nil
	default:
		return "", fmt.Errorf("unknown device class %q (want a9 or a10)", s)
	}
}

// ParseMode normalizes an operator-supplied downgrade mode string.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tethered":
		return ModeTethered, nil
	case "untethered":
		return ModeUntethered, nil
	default:
		return "", fmt.Errorf("unknown downgrade mode %q (want tethered or untethered)", s)
	}
}

// a9Tethered is the longest chain: both blocks must be extracted, with the
// device re-entering pwned DFU between each stage, and the final boot is
// driven from the PTE block.
func a9Tethered() *Workflow {
	w := &Workflow{
		Class:   ClassA9,
		Mode:    ModeTethered,
		First:   StepSetPermissions,
		Summary: "Will guide you to extract SHC, PTE blocks and perform a tethered downgrade",
		Warning: "This downgrade method requires a computer connection for each boot",
		Steps:   map[StepID]Step{},
	}
	desc := w.Description()

	w.add(Step{ID: StepSetPermissions, ControlIndex: 1,
		Description: desc + ": First set tool permissions",
		Next:        StepEnterPwnedDFU})
	w.add(Step{ID: StepEnterPwnedDFU, ControlIndex: 2,
		Description: desc + ": Enter pwned DFU mode",
		Next:        StepExtractSHC})
	w.add(Step{ID: StepExtractSHC, ControlIndex: 3,
		Description: desc + ": Extract SHC block",
		Next:        StepCheckSHC})
	w.add(Step{ID: StepCheckSHC, ControlIndex: NoControl,
		Description: desc + ": Please select an SHC block file to continue",
		Requires:    []artifacts.Kind{artifacts.KindSHCBlock},
		Next:        StepReenterDFUPTE})
	w.add(Step{ID: StepReenterDFUPTE, ControlIndex: 4,
		Description: desc + ": Re-enter pwned DFU mode to extract the PTE block",
		Next:        StepExtractPTE})
	w.add(Step{ID: StepExtractPTE, ControlIndex: 5,
		Description: desc + ": Extract PTE block",
		Requires:    []artifacts.Kind{artifacts.KindSHCBlock},
		Next:        StepCheckPTE})
	w.add(Step{ID: StepCheckPTE, ControlIndex: NoControl,
		Description: desc + ": Please select a PTE block file to continue",
		Requires:    []artifacts.Kind{artifacts.KindPTEBlock},
		Next:        StepReenterDFURestore})
	w.add(Step{ID: StepReenterDFURestore, ControlIndex: 6,
		Description: desc + ": Re-enter pwned DFU mode to prepare for device restore",
		Next:        StepRestoreDevice})
	w.add(Step{ID: StepRestoreDevice, ControlIndex: 7,
		Description: desc + ": Restore device to the selected firmware",
		Requires:    []artifacts.Kind{artifacts.KindPTEBlock},
		Next:        StepBootDevice})
	w.add(Step{ID: StepBootDevice, ControlIndex: 8,
		Description: desc + ": Boot the device",
		Requires:    []artifacts.Kind{artifacts.KindPTEBlock}})
	return w
}

// a10Tethered skips block extraction entirely: restore directly, then
// re-enter DFU and boot from the image4 files the restore leaves behind.
func a10Tethered() *Workflow {
	w := &Workflow{
		Class:   ClassA10,
		Mode:    ModeTethered,
		First:   StepSetPermissions,
		Summary: "Will directly perform firmware restore and boot operations",
		Warning: "This downgrade method requires a computer connection for each boot",
		Steps:   map[StepID]Step{},
	}
	desc := w.Description()

	w.add(Step{ID: StepSetPermissions, ControlIndex: 1,
		Description: desc + ": First set tool permissions",
		Next:        StepEnterPwnedDFU})
	w.add(Step{ID: StepEnterPwnedDFU, ControlIndex: 2,
		Description: desc + ": Enter pwned DFU mode",
		Next:        StepRestoreDevice})
	w.add(Step{ID: StepRestoreDevice, ControlIndex: 7,
		Description: desc + ": Restore device to the selected firmware",
		Next:        StepReenterDFUPTE})
	// Control 4 doubles as the post-restore DFU reentry on this chain.
	w.add(Step{ID: StepReenterDFUPTE, ControlIndex: 4,
		Description: desc + ": Re-enter pwned DFU mode to prepare for boot",
		Next:        StepBootDevice})
	w.add(Step{ID: StepBootDevice, ControlIndex: 8,
		Description: desc + ": Boot the device"})
	return w
}

// a9Untethered needs the signed ticket and generator up front, extracts only
// the SHC block, and has no boot step: the restored device boots unattended.
func a9Untethered() *Workflow {
	w := &Workflow{
		Class:   ClassA9,
		Mode:    ModeUntethered,
		First:   StepSetPermissions,
		Summary: "Will use the SHSH blob and SHC block for an untethered downgrade",
		Warning: "Please ensure you have selected a valid SHSH blob file",
		Steps:   map[StepID]Step{},
	}
	desc := w.Description()

	w.add(Step{ID: StepSetPermissions, ControlIndex: 1,
		Description: desc + ": First set tool permissions",
		Next:        StepEnterPwnedDFU})
	w.add(Step{ID: StepEnterPwnedDFU, ControlIndex: 2,
		Description: desc + ": Enter pwned DFU mode and input the generator",
		Requires:    []artifacts.Kind{RequireSHSH},
		Next:        StepExtractSHC})
	w.add(Step{ID: StepExtractSHC, ControlIndex: 3,
		Description: desc + ": Extract SHC block",
		Next:        StepCheckSHC})
	w.add(Step{ID: StepCheckSHC, ControlIndex: NoControl,
		Description: desc + ": Please select an SHC block file to continue",
		Requires:    []artifacts.Kind{artifacts.KindSHCBlock},
		Next:        StepReenterDFURestore})
	// Control 4 doubles as the pre-restore DFU reentry on this chain.
	w.add(Step{ID: StepReenterDFURestore, ControlIndex: 4,
		Description: desc + ": Re-enter pwned DFU mode to prepare for restore",
		Next:        StepRestoreDevice})
	w.add(Step{ID: StepRestoreDevice, ControlIndex: 7,
		Description: desc + ": Restore device using SHSH and SHC",
		Requires:    []artifacts.Kind{RequireSHSH, artifacts.KindSHCBlock}})
	return w
}

// a10Untethered is the shortest chain: ticket plus generator, then restore.
func a10Untethered() *Workflow {
	w := &Workflow{
		Class:   ClassA10,
		Mode:    ModeUntethered,
		First:   StepSetPermissions,
		Summary: "Will use the SHSH blob for an untethered downgrade",
		Warning: "Please ensure you have selected a valid SHSH blob file",
		Steps:   map[StepID]Step{},
	}
	desc := w.Description()

	w.add(Step{ID: StepSetPermissions, ControlIndex: 1,
		Description: desc + ": First set tool permissions",
		Next:        StepEnterPwnedDFU})
	w.add(Step{ID: StepEnterPwnedDFU, ControlIndex: 2,
		Description: desc + ": Enter pwned DFU mode and input the generator",
		Requires:    []artifacts.Kind{RequireSHSH},
		Next:        StepRestoreDevice})
	w.add(Step{ID: StepRestoreDevice, ControlIndex: 7,
		Description: desc + ": Restore device using SHSH",
		Requires:    []artifacts.Kind{RequireSHSH}})
	return w
}

func (w *Workflow) add(s Step) {
	w.Steps[s.ID] = s
}
