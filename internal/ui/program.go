package ui

import (
	"fmt"
	"io"
	"os"
)

// Printer writes decoration (headers, result boxes) to stderr so that
// stdout carries only the address table. A disabled printer drops
// everything, which is what scripts piping stderr want.
type Printer struct {
	out     io.Writer
	width   int
	enabled bool
}

// NewPrinter creates a Printer writing to w. If w is nil, os.Stderr is
// used and the printer is enabled only when stderr is a terminal.
func NewPrinter(w io.Writer) *Printer {
	enabled := true
	if w == nil {
		w = os.Stderr
		enabled = IsTerminal(os.Stderr)
	}
	return &Printer{
		out:     w,
		width:   GetTerminalWidth(),
		enabled: enabled,
	}
}

// Enabled reports whether output is written
func (p *Printer) Enabled() bool {
	return p.enabled
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	if !p.enabled {
		return
	}
	_, _ = fmt.Fprintln(p.out, content)
}

// PrintHeader prints a command header box
func (p *Printer) PrintHeader(h *Header) {
	p.Println(h.SetWidth(p.width).Render())
}

// PrintResult prints a result box
func (p *Printer) PrintResult(r *Result) {
	p.Println(r.SetWidth(p.width).Render())
}
