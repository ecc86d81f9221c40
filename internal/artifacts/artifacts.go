// Package artifacts locates and manages the binary block files produced by
// the restore tool during a downgrade session.
//
// Extraction steps cause the restore tool to drop block files (named
// {identifier}-{kind}.bin) either into the working directory's block folder
// or into a block folder next to the tool itself. The locator searches a
// fixed priority list of candidate directories and selects the most recently
// modified match, so re-running an extraction always yields the fresh block.
//
// Key functions:
//   - [FindLatest] - Locate the newest block file of a given [Kind]
//   - [AdoptLatest] - Copy a block found outside the work dir into it
//   - [EnsureLayout] - Create the working directory skeleton
//   - [FindImage4Set] - Locate the boot image triple produced by a restore
package artifacts

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Kind identifies a block artifact type produced by the restore tool.
type Kind string

const (
	// KindSHCBlock is the first-stage block extracted from firmware.
	KindSHCBlock Kind = "shcblock"

	// KindPTEBlock is the second-stage block, derived from the SHC block.
	KindPTEBlock Kind = "pteblock"
)

// String returns the kind as used in block filenames.
func (k Kind) String() string { return string(k) }

// Pattern returns the glob pattern matching block files of this kind.
func (k Kind) Pattern() string {
	return fmt.Sprintf("*-%s.bin", k)
}

// CandidateDirs returns the directories searched for block files, in
// priority order. The working directory's block folders are preferred over
// the tool-relative fallbacks.
func CandidateDirs(workDir string) []string {
	return []string{
		filepath.Join(workDir, "block"),
		filepath.Join(workDir, "blocks"),
		"./block",
		"./blocks",
	}
}

// FindLatest locates the most recently modified block file of the given kind.
//
// All candidate directories under workDir are searched (see [CandidateDirs]);
// among every match the one with the newest modification time wins. Returns
// an empty string when no block file exists anywhere.
func FindLatest(kind Kind, workDir string) string {
	var latest string
	var latestMod int64

	for _, dir := range CandidateDirs(workDir) {
		matches, err := filepath.Glob(filepath.Join(dir, kind.Pattern()))
		if err != nil {
			continue
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				continue
			}
			if mod := info.ModTime().UnixNano(); latest == "" || mod > latestMod {
				latest = m
				latestMod = mod
			}
		}
	}

	return latest
}

// AdoptLatest copies the newest block of the given kind found in the
// tool-relative fallback directories into the working directory's block
// folder, returning the destination path.
//
// The restore tool sometimes writes blocks next to its own binary rather
// than into the work dir. Adopting the block keeps every session artifact
// under one roof so resumability can be inferred from the work dir alone.
// Returns an empty string when no block exists to adopt.
func AdoptLatest(kind Kind, workDir string) (string, error) {
	var found string
	var foundMod int64

	for _, dir := range []string{"./block", "./blocks"} {
		matches, err := filepath.Glob(filepath.Join(dir, kind.Pattern()))
		if err != nil {
			continue
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				continue
			}
			if mod := info.ModTime().UnixNano(); found == "" || mod > foundMod {
				found = m
				foundMod = mod
			}
		}
	}

	if found == "" {
		return "", nil
	}

	dest := filepath.Join(workDir, "block", filepath.Base(found))
	if err := copyFile(found, dest); err != nil {
		return "", fmt.Errorf("failed to adopt %s: %w", kind, err)
	}
	return dest, nil
}

// EnsureLayout creates the working directory skeleton: ipsw/ for firmware
// copies, block/ for extracted artifacts, and logs/ for session transcripts.
func EnsureLayout(workDir string) error {
	for _, dir := range []string{
		workDir,
		filepath.Join(workDir, "ipsw"),
		filepath.Join(workDir, "block"),
		filepath.Join(workDir, "logs"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create working directory: %w", err)
		}
	}
	return nil
}

// CopyFirmware copies a firmware image into the working directory's ipsw
// folder and returns the destination path.
func CopyFirmware(srcPath, workDir string) (string, error) {
	destDir := filepath.Join(workDir, "ipsw")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create ipsw directory: %w", err)
	}

	dest := filepath.Join(destDir, filepath.Base(srcPath))
	if err := copyFile(srcPath, dest); err != nil {
		return "", fmt.Errorf("failed to copy firmware: %w", err)
	}
	return dest, nil
}

// Image4Set is the boot image triple a generation-B tethered restore leaves
// behind, required to assemble the boot command.
type Image4Set struct {
	IBoot     string // *iBoot*.img4
	SignedSEP string // *signed-SEP*.img4
	TargetSEP string // *target-SEP*.im4p
}

// FindImage4Set locates the boot image triple in the given directory.
//
// Returns an error if the directory is missing or any of the three files
// cannot be found, since a partial set cannot boot the device.
func FindImage4Set(dir string) (Image4Set, error) {
	if _, err := os.Stat(dir); err != nil {
		return Image4Set{}, fmt.Errorf("image4 directory not found: %w", err)
	}

	set := Image4Set{
		IBoot:     firstGlob(dir, "*iBoot*.img4"),
		SignedSEP: firstGlob(dir, "*signed-SEP*.img4"),
		TargetSEP: firstGlob(dir, "*target-SEP*.im4p"),
	}
	if set.IBoot == "" || set.SignedSEP == "" || set.TargetSEP == "" {
		return Image4Set{}, fmt.Errorf("required image4 files not found in %s", dir)
	}
	return set, nil
}

func firstGlob(dir, pattern string) string {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil || len(matches) == 0 {
		return ""
	}
	return matches[0]
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
