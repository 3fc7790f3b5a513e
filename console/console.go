// Package console formats user-facing status lines, such as the tool report
// of `cargo pgo info` and the paths of produced binaries.
package console

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Printer writes colored status lines to a writer.
type Printer struct {
	w      io.Writer
	ok     *color.Color
	bad    *color.Color
	path   *color.Color
	accent *color.Color
}

// New returns a [Printer] for w. Colors are used when w is a terminal and
// NO_COLOR is unset.
func New(w io.Writer) *Printer {
	return NewWithColor(w, useColor(w))
}

// NewWithColor returns a [Printer] with colors forced on or off.
func NewWithColor(w io.Writer, enabled bool) *Printer {
	p := &Printer{
		w:      w,
		ok:     color.New(color.FgGreen, color.Bold),
		bad:    color.New(color.FgRed, color.Bold),
		path:   color.New(color.FgCyan),
		accent: color.New(color.FgYellow),
	}

	for _, c := range []*color.Color{p.ok, p.bad, p.path, p.accent} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	return p
}

func useColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}

	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}

	return term.IsTerminal(int(f.Fd())) //nolint:gosec // File descriptors fit in int.
}

// Path formats a file system path.
func (p *Printer) Path(path string) string {
	return p.path.Sprint(path)
}

// Accent formats a name, e.g. a target or a version.
func (p *Printer) Accent(s string) string {
	return p.accent.Sprint(s)
}

// Found reports a satisfied requirement.
func (p *Printer) Found(label, format string, a ...any) {
	p.line(p.ok, label, format, a...)
}

// Missing reports an unsatisfied requirement.
func (p *Printer) Missing(label, format string, a ...any) {
	p.line(p.bad, label, format, a...)
}

func (p *Printer) line(c *color.Color, label, format string, a ...any) {
	_, _ = fmt.Fprintf(p.w, "%s: %s\n", c.Sprintf("[%s]", label), fmt.Sprintf(format, a...))
}
