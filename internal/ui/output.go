package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Output is a box of raw gdb output, shown in verbose mode.
type Output struct {
	Title    string
	Lines    []string
	Width    int
	MaxLines int // 0 = unlimited
}

// NewOutput creates an output box for content.
func NewOutput(content string) *Output {
	return &Output{
		Title: "GDB Output",
		Lines: strings.Split(strings.TrimRight(content, "\n"), "\n"),
		Width: GetTerminalWidth(),
	}
}

func (o *Output) SetWidth(width int) *Output {
	o.Width = width
	return o
}

func (o *Output) SetTitle(title string) *Output {
	o.Title = title
	return o
}

func (o *Output) SetMaxLines(max int) *Output {
	o.MaxLines = max
	return o
}

// FilterPrefix keeps only the lines starting with one of prefixes, ignoring
// leading whitespace.
func (o *Output) FilterPrefix(prefixes ...string) *Output {
	var filtered []string
	for _, line := range o.Lines {
		trimmed := strings.TrimSpace(line)
		for _, prefix := range prefixes {
			if strings.HasPrefix(trimmed, prefix) {
				filtered = append(filtered, line)
				break
			}
		}
	}
	o.Lines = filtered
	return o
}

// Render returns the styled output box as a string
func (o *Output) Render() string {
	width := clampWidth(o.Width)

	lines := o.Lines
	if o.MaxLines > 0 && len(lines) > o.MaxLines {
		lines = append(lines[:o.MaxLines:o.MaxLines], "... (output truncated)")
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		OutputTitleStyle.Render(o.Title),
		OutputContentStyle.Render(strings.Join(lines, "\n")),
	)

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(MutedColor).
		Width(width-4).
		Padding(0, 1).
		Render(content)
}

// String implements fmt.Stringer
func (o *Output) String() string {
	return o.Render()
}
