// Package output formats CLI output: status lines and change events for a
// person at a terminal, or JSON lines for scripts.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/Aman-CERP/sharedwatch/internal/watcher"
)

const (
	ansiReset  = "\x1b[0m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
)

// Writer provides formatted output for CLI.
type Writer struct {
	mu       sync.Mutex
	out      io.Writer
	json     bool
	useColor bool
}

// New creates a Writer. Output is JSON lines unless out is a terminal, and
// colored only on a terminal without NO_COLOR.
func New(out io.Writer) *Writer {
	tty := IsTerminal(out)
	return &Writer{
		out:      out,
		json:     !tty,
		useColor: tty && !DetectNoColor(),
	}
}

// WithJSON forces JSON output on or off.
func (w *Writer) WithJSON(enabled bool) *Writer {
	w.json = enabled
	return w
}

// JSON reports whether the writer emits JSON lines.
func (w *Writer) JSON() bool {
	return w.json
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Code prints a block with indentation.
func (w *Writer) Code(content string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = fmt.Fprintln(w.out)
}

// batchLine is the JSON form of one delivered batch.
type batchLine struct {
	Time   time.Time           `json:"time"`
	Dir    string              `json:"dir"`
	Events []watcher.FileEvent `json:"events"`
}

// Batch prints one delivered batch: a JSON line, or one line per event.
func (w *Writer) Batch(dir string, events []watcher.FileEvent) error {
	if len(events) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.json {
		return json.NewEncoder(w.out).Encode(batchLine{Time: time.Now(), Dir: dir, Events: events})
	}
	for _, ev := range events {
		if _, err := fmt.Fprintln(w.out, w.eventLine(ev)); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) eventLine(ev watcher.FileEvent) string {
	symbol, color := "~", ansiYellow
	switch ev.Operation {
	case watcher.OpCreate:
		symbol, color = "+", ansiGreen
	case watcher.OpDelete:
		symbol, color = "-", ansiRed
	}

	path := ev.Path
	if ev.IsDir {
		path += "/"
	}
	line := fmt.Sprintf("%s %s %-6s %s", ev.Timestamp.Format("15:04:05.000"), symbol, ev.Operation, path)
	if w.useColor {
		return color + line + ansiReset
	}
	return line
}

// Value prints v as indented JSON.
func (w *Writer) Value(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
