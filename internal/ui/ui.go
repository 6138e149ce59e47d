// Package ui prints user-facing CLI output, styled with lipgloss when the
// destination is a terminal.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#5C9CF5"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E22E"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FD971F"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F92672"))
	headingStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
)

// Printer writes status lines.
type Printer struct {
	w     io.Writer
	color bool
}

// New returns a printer for w. Styling is enabled only when w is a terminal.
func New(w io.Writer) *Printer {
	color := false
	if f, ok := w.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd())) //nolint:gosec // G115 - fd fits in int
	}
	return &Printer{w: w, color: color}
}

// Plain returns a printer that never styles.
func Plain(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Stdout returns a printer for os.Stdout.
func Stdout() *Printer {
	return New(os.Stdout)
}

// Writer returns the destination.
func (p *Printer) Writer() io.Writer {
	return p.w
}

func (p *Printer) render(style lipgloss.Style, s string) string {
	if !p.color {
		return s
	}
	return style.Render(s)
}

func (p *Printer) line(marker string, style lipgloss.Style, format string, args ...any) {
	_, _ = fmt.Fprintf(p.w, "%s %s\n", p.render(style, marker), fmt.Sprintf(format, args...))
}

func (p *Printer) Info(format string, args ...any)    { p.line("i", infoStyle, format, args...) }
func (p *Printer) Success(format string, args ...any) { p.line("✓", successStyle, format, args...) }
func (p *Printer) Warn(format string, args ...any)    { p.line("!", warningStyle, format, args...) }
func (p *Printer) Error(format string, args ...any)   { p.line("✗", errorStyle, format, args...) }

// Heading prints a bold line preceded by a blank line.
func (p *Printer) Heading(format string, args ...any) {
	_, _ = fmt.Fprintf(p.w, "\n%s\n", p.render(headingStyle, fmt.Sprintf(format, args...)))
}

// Dim prints a muted line.
func (p *Printer) Dim(format string, args ...any) {
	_, _ = fmt.Fprintln(p.w, p.render(mutedStyle, fmt.Sprintf(format, args...)))
}

// Println prints an unstyled line.
func (p *Printer) Println(s string) {
	_, _ = fmt.Fprintln(p.w, s)
}
