package controller

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"turdusctl/internal/workflow"
)

// notesFile is the advisory session-notes file inside the working
// directory. It records operator selections so a fresh invocation can offer
// to restore them; it is never consulted to decide step statuses.
const notesFile = "session.yaml"

// Notes captures the operator-supplied selections of one session.
type Notes struct {
	DeviceClass string `yaml:"device_class,omitempty"`
	Mode        string `yaml:"mode,omitempty"`
	Firmware    string `yaml:"firmware,omitempty"`
	SHSH        string `yaml:"shsh,omitempty"`
	SHCBlock    string `yaml:"shcblock,omitempty"`
	PTEBlock    string `yaml:"pteblock,omitempty"`
	Generator   string `yaml:"generator,omitempty"`
}

// SaveNotes writes the controller's current selections to the working
// directory.
func (c *Controller) SaveNotes() error {
	n := Notes{
		Firmware:  c.paths.Firmware,
		SHSH:      c.effectiveSHSH(),
		SHCBlock:  c.manual.SHCBlock,
		PTEBlock:  c.manual.PTEBlock,
		Generator: c.generator,
	}
	if c.wf != nil {
		n.DeviceClass = string(c.wf.Class)
		n.Mode = string(c.wf.Mode)
	}

	data, err := yaml.Marshal(&n)
	if err != nil {
		return fmt.Errorf("encoding session notes: %w", err)
	}
	if err := os.MkdirAll(c.workDir, 0o755); err != nil {
		return fmt.Errorf("creating working directory: %w", err)
	}
	path := filepath.Join(c.workDir, notesFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing session notes: %w", err)
	}
	return nil
}

// LoadNotes reads previously saved notes from a working directory. A
// missing file is not an error; it returns empty notes.
func LoadNotes(workDir string) (Notes, error) {
	data, err := os.ReadFile(filepath.Join(workDir, notesFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Notes{}, nil
		}
		return Notes{}, fmt.Errorf("reading session notes: %w", err)
	}
	var n Notes
	if err := yaml.Unmarshal(data, &n); err != nil {
		return Notes{}, fmt.Errorf("parsing session notes: %w", err)
	}
	return n, nil
}

// RestoreNotes applies saved selections to the controller. File-backed
// selections are only restored when the file still exists; the workflow is
// reselected last so its mode checks see the restored paths.
func (c *Controller) RestoreNotes(n Notes) error {
	if n.Firmware != "" && nonEmptyFile(n.Firmware) {
		c.paths.Firmware = n.Firmware
	}
	if n.SHSH != "" && nonEmptyFile(n.SHSH) {
		c.paths.SHSH = n.SHSH
	}
	if n.SHCBlock != "" && nonEmptyFile(n.SHCBlock) {
		c.manual.SHCBlock = n.SHCBlock
	}
	if n.PTEBlock != "" && nonEmptyFile(n.PTEBlock) {
		c.manual.PTEBlock = n.PTEBlock
	}
	if n.Generator != "" {
		c.generator = n.Generator
	}

	if n.DeviceClass != "" && n.Mode != "" {
		class, err := workflow.ParseDeviceClass(n.DeviceClass)
		if err != nil {
			return err
		}
		mode, err := workflow.ParseMode(n.Mode)
		if err != nil {
			return err
		}
		return c.SelectWorkflow(class, mode)
	}
	return nil
}
