package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Printer writes UI components to a writer. Commands that don't need a
// Runner use it directly.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a Printer writing to w, or os.Stdout if w is nil.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{
		out:   w,
		width: GetTerminalWidth(),
	}
}

// Width returns the terminal width used by this printer
func (p *Printer) Width() int {
	return p.width
}

// SetWidth overrides the detected terminal width.
func (p *Printer) SetWidth(width int) *Printer {
	p.width = width
	return p
}

func (p *Printer) Print(content string) {
	_, _ = fmt.Fprint(p.out, content)
}

func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// PrintLines writes each line followed by a newline.
func (p *Printer) PrintLines(lines ...string) {
	for _, line := range lines {
		p.Println(line)
	}
}

func (p *Printer) Newline() {
	_, _ = fmt.Fprintln(p.out)
}

// PrintHeader prints a command header box
func (p *Printer) PrintHeader(title, command string, params Details) {
	p.Println(NewHeader(title, command, params).SetWidth(p.width).Render())
	p.Newline()
}

// PrintSuccess prints a success result box
func (p *Printer) PrintSuccess(title string, details Details) {
	p.Newline()
	p.Println(NewSuccessResult(title, details).SetWidth(p.width).Render())
}

// PrintFailure prints a failure box with troubleshooting tips
func (p *Printer) PrintFailure(title string, err error, troubleshooting []string) {
	p.Newline()
	p.Println(NewFailureResult(title, err, troubleshooting).SetWidth(p.width).Render())
}

// PrintWarning prints a warning box
func (p *Printer) PrintWarning(title string, details Details) {
	p.Newline()
	p.Println(NewWarningResult(title, details).SetWidth(p.width).Render())
}

// PrintOutput prints a raw gdb output box
func (p *Printer) PrintOutput(output string) {
	p.Newline()
	p.Println(NewOutput(output).SetWidth(p.width).Render())
}

// PrintPleaseWait prints a note for operations that take a while, e.g.
// PrintPleaseWait("Dumping target memory", "up to 2 minutes").
func (p *Printer) PrintPleaseWait(message, durationHint string) {
	style := lipgloss.NewStyle().
		Foreground(PrimaryColor).
		Bold(true).
		PaddingLeft(2)

	hintStyle := lipgloss.NewStyle().
		Foreground(MutedColor).
		Italic(true)

	line := style.Render("⏳ " + message)
	if durationHint != "" {
		line += " " + hintStyle.Render("("+durationHint+")")
	}
	line += style.Render("...")

	p.Println(line)
	p.Newline()
}

// PrintCommandHeader prints a header to stdout.
func PrintCommandHeader(title, command string, params Details) {
	NewPrinter(nil).PrintHeader(title, command, params)
}

// PrintSuccess prints a success box to stdout.
func PrintSuccess(title string, details Details) {
	NewPrinter(nil).PrintSuccess(title, details)
}

// PrintFailure prints a failure box to stdout.
func PrintFailure(title string, err error, troubleshooting []string) {
	NewPrinter(nil).PrintFailure(title, err, troubleshooting)
}

// PrintWarning prints a warning box to stdout.
func PrintWarning(title string, details Details) {
	NewPrinter(nil).PrintWarning(title, details)
}
