// Package output formats operator-facing terminal output and keeps the
// session transcript.
//
// Messages carry the same four levels the log has always used — Info, Warn,
// Error, System — rendered with lipgloss styles, plus plain passthrough for
// raw tool output lines. ANSI escape sequences produced by the external
// tools are stripped before display so their color codes do not fight the
// printer's own styling. Everything printed is also accumulated into an
// in-memory transcript that [Printer.SaveLog] can write to a timestamped
// file under the working directory.
package output

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Log level colors, carried over from the original operator console.
var (
	styleInfo   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00B300"))
	styleWarn   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500"))
	styleError  = lipgloss.NewStyle().Foreground(lipgloss.Color("#DC143C"))
	styleSystem = lipgloss.NewStyle().Foreground(lipgloss.Color("#0066CC"))
	styleMuted  = lipgloss.NewStyle().Foreground(lipgloss.Color("#707070"))
)

// ansiEscape matches the color and erase sequences the external tools emit.
var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[mK]`)

// Printer writes leveled, styled messages to a terminal and records a plain
// transcript of everything printed. Safe for concurrent use; output lines
// from a background session and coordinator messages interleave without
// tearing.
type Printer struct {
	mu         sync.Mutex
	w          io.Writer
	transcript bytes.Buffer
}

// NewPrinter creates a Printer writing to stdout.
func NewPrinter() *Printer {
	return NewPrinterWithWriter(os.Stdout)
}

// NewPrinterWithWriter creates a Printer writing to the given writer.
// Tests pass a buffer here.
func NewPrinterWithWriter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Info prints an informational message (green, [INFO]).
func (p *Printer) Info(format string, args ...any) {
	p.emit("[INFO] ", styleInfo, fmt.Sprintf(format, args...))
}

// Warn prints a warning (yellow, [WARN]).
func (p *Printer) Warn(format string, args ...any) {
	p.emit("[WARN] ", styleWarn, fmt.Sprintf(format, args...))
}

// Error prints an error message (red, [ERROR]).
func (p *Printer) Error(format string, args ...any) {
	p.emit("[ERROR] ", styleError, fmt.Sprintf(format, args...))
}

// System prints a coordinator message such as a phase banner (blue, [SYSTEM]).
func (p *Printer) System(format string, args ...any) {
	p.emit("[SYSTEM] ", styleSystem, fmt.Sprintf(format, args...))
}

// Muted prints low-importance bookkeeping output (grey).
func (p *Printer) Muted(format string, args ...any) {
	p.emit("[LOG] ", styleMuted, fmt.Sprintf(format, args...))
}

// Line prints one raw output line from an external tool, unstyled, with its
// ANSI escapes removed.
func (p *Printer) Line(line string) {
	clean := ansiEscape.ReplaceAllString(line, "")

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, clean)
	p.transcript.WriteString(clean)
	p.transcript.WriteByte('\n')
}

// Transcript returns a copy of everything printed so far, unstyled.
func (p *Printer) Transcript() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transcript.String()
}

// SaveLog writes the transcript to a timestamped file under the working
// directory's logs folder and returns the file path.
func (p *Printer) SaveLog(workDir string) (string, error) {
	logDir := filepath.Join(workDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}

	name := fmt.Sprintf("turdus_log_%s.txt", time.Now().Format("20060102_150405"))
	path := filepath.Join(logDir, name)
	if err := os.WriteFile(path, []byte(p.Transcript()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write log file: %w", err)
	}
	return path, nil
}

func (p *Printer) emit(prefix string, style lipgloss.Style, msg string) {
	stamp := time.Now().Format("2006-01-02 15:04:05")
	plain := fmt.Sprintf("[%s] %s%s", stamp, prefix, msg)

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, style.Render(plain))
	p.transcript.WriteString(plain)
	p.transcript.WriteByte('\n')
}
