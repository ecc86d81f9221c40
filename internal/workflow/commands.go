package workflow

import (
	"fmt"
	"time"

	"turdusctl/internal/artifacts"
	"turdusctl/internal/session"
)

// Tools holds the paths to the two external binaries this program drives.
type Tools struct {
	// DFU is the path to the DFU/exploit tool (turdusra1n).
	DFU string

	// Restore is the path to the restore tool (turdus_merula).
	Restore string
}

// Paths holds the operator-selected and auto-discovered input files for the
// active session. A manually supplied path always wins over auto-discovery.
type Paths struct {
	// Firmware is the IPSW firmware image to downgrade to.
	Firmware string

	// SHSH is the signed ticket blob, required for untethered workflows.
	SHSH string

	// SHCBlock is the first extracted block artifact.
	SHCBlock string

	// PTEBlock is the second extracted block artifact.
	PTEBlock string
}

// permissionTimeout bounds the attribute-clear and chmod calls; they touch
// only local files and have no business running longer than this.
const permissionTimeout = 30 * time.Second

// PermissionSpecs returns the ordered invocations that make both tool
// binaries executable: clear the quarantine attribute on each, then set the
// execute bit on each. The shapes are fixed for compatibility with the
// upstream toolchain; each is a separate argv vector, never a shell chain.
func PermissionSpecs(t Tools) []session.Spec {
	return []session.Spec{
		{Name: "/usr/bin/xattr", Args: []string{"-c", t.DFU}, Timeout: permissionTimeout},
		{Name: "/usr/bin/xattr", Args: []string{"-c", t.Restore}, Timeout: permissionTimeout},
		{Name: "chmod", Args: []string{"+x", t.DFU}, Timeout: permissionTimeout},
		{Name: "chmod", Args: []string{"+x", t.Restore}, Timeout: permissionTimeout},
	}
}

// EnterDFUSpec returns the privileged-mode entry invocation. With an empty
// generator it is the tethered form (-ED); with a generator it is the
// untethered form (-EDb <generator>). Both are the one stall-sensitive
// invocation in the system: the handshake frequently freezes and is
// recovered by restart-in-place rather than surfaced as a failure.
func EnterDFUSpec(t Tools, generator string) session.Spec {
	spec := session.Spec{
		Name:           t.DFU,
		Args:           []string{"-ED"},
		StallSensitive: true,
	}
	if generator != "" {
		spec.Args = []string{"-EDb", generator}
	}
	return spec
}

// ExtractSHCSpec returns the first-stage block extraction invocation.
func ExtractSHCSpec(t Tools, firmware string) session.Spec {
	return session.Spec{
		Name: t.Restore,
		Args: []string{"--get-shcblock", firmware},
	}
}

// ExtractPTESpec returns the second-stage block extraction invocation,
// which feeds the first block back in.
func ExtractPTESpec(t Tools, shcblock, firmware string) session.Spec {
	return session.Spec{
		Name: t.Restore,
		Args: []string{"--get-pteblock", "--load-shcblock", shcblock, firmware},
	}
}

// RestoreSpec builds the restore invocation for this workflow from the
// current paths. The four workflows differ materially here:
//
//	A9+tethered    -o --load-pteblock <pte> <fw>
//	A10+tethered   -o <fw>
//	A9+untethered  -w --load-shsh <shsh> --load-shcblock <shc> <fw>
//	A10+untethered -w --load-shsh <shsh> <fw>
//
// Missing required paths are reported as errors so the controller can block
// the step instead of invoking the tool with a hole in its arguments.
func (w *Workflow) RestoreSpec(t Tools, p Paths) (session.Spec, error) {
	if p.Firmware == "" {
		return session.Spec{}, fmt.Errorf("no firmware selected")
	}

	switch {
	case w.Mode == ModeTethered && w.Class == ClassA9:
		if p.PTEBlock == "" {
			return session.Spec{}, fmt.Errorf("PTE block required for %s restore", w.Description())
		}
		return session.Spec{Name: t.Restore, Args: []string{"-o", "--load-pteblock", p.PTEBlock, p.Firmware}}, nil

	case w.Mode == ModeTethered && w.Class == ClassA10:
		return session.Spec{Name: t.Restore, Args: []string{"-o", p.Firmware}}, nil

	case w.Mode == ModeUntethered && w.Class == ClassA9:
		if p.SHSH == "" || p.SHCBlock == "" {
			return session.Spec{}, fmt.Errorf("SHSH blob and SHC block required for %s restore", w.Description())
		}
		return session.Spec{Name: t.Restore, Args: []string{"-w", "--load-shsh", p.SHSH, "--load-shcblock", p.SHCBlock, p.Firmware}}, nil

	default: // untethered A10
		if p.SHSH == "" {
			return session.Spec{}, fmt.Errorf("SHSH blob required for %s restore", w.Description())
		}
		return session.Spec{Name: t.Restore, Args: []string{"-w", "--load-shsh", p.SHSH, p.Firmware}}, nil
	}
}

// Image4Dir is where a generation-B tethered restore drops the boot images
// consumed by [Workflow.BootSpec].
const Image4Dir = "./image4"

// BootSpec builds the boot invocation for tethered workflows.
//
// A9 boots from the PTE block (-TP). A10 boots from the image4 triple left
// behind by the restore, discovered by globbing [Image4Dir]. Untethered
// workflows have no boot step — the restored device boots unattended — and
// asking for one is an error.
func (w *Workflow) BootSpec(t Tools, p Paths) (session.Spec, error) {
	if w.Mode == ModeUntethered {
		return session.Spec{}, fmt.Errorf("%s has no boot step; the device boots unattended", w.Description())
	}

	if w.Class == ClassA9 {
		if p.PTEBlock == "" {
			return session.Spec{}, fmt.Errorf("PTE block required to boot %s", w.Description())
		}
		return session.Spec{Name: t.DFU, Args: []string{"-TP", p.PTEBlock}}, nil
	}

	set, err := artifacts.FindImage4Set(Image4Dir)
	if err != nil {
		return session.Spec{}, err
	}
	return session.Spec{Name: t.DFU, Args: []string{"-t", set.IBoot, "-i", set.SignedSEP, "-p", set.TargetSEP}}, nil
}
