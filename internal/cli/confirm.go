package cli

import (
	"bufio"
	"io"
	"os"
	"strings"

	"turdusctl/internal/output"
)

// StdinConfirmer answers controller prompts from standard input. Prompts
// are rendered through the printer so they land in the session transcript.
type StdinConfirmer struct {
	printer *output.Printer
	in      *bufio.Reader
}

// NewStdinConfirmer creates a confirmer reading from os.Stdin.
func NewStdinConfirmer(printer *output.Printer) *StdinConfirmer {
	return &StdinConfirmer{printer: printer, in: bufio.NewReader(os.Stdin)}
}

// NewReaderConfirmer creates a confirmer reading from r. Used by tests to
// script operator answers.
func NewReaderConfirmer(printer *output.Printer, r io.Reader) *StdinConfirmer {
	return &StdinConfirmer{printer: printer, in: bufio.NewReader(r)}
}

// Confirm prints the prompt and reads a yes/no answer. EOF and anything
// other than y/yes count as no.
func (c *StdinConfirmer) Confirm(prompt string) bool {
	c.printer.System("%s [y/N]", prompt)
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// Input prints the prompt and reads one line. An empty line or EOF declines.
func (c *StdinConfirmer) Input(prompt string) (string, bool) {
	c.printer.System("%s", prompt)
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return "", false
	}
	value := strings.TrimSpace(line)
	if value == "" {
		return "", false
	}
	return value, true
}

// AutoYes confirms every prompt without operator interaction. Free-form
// input still declines: there is no safe default for a generator value.
type AutoYes struct{}

// Confirm always reports yes.
func (AutoYes) Confirm(string) bool { return true }

// Input always declines.
func (AutoYes) Input(string) (string, bool) { return "", false }
