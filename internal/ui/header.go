package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Detail is one key/value line of a header or result box.
type Detail struct {
	Key   string
	Value string
}

// Details keeps key/value lines in the order they were added.
type Details []Detail

// Add appends a line and returns the extended list.
func (d Details) Add(key, value string) Details {
	return append(d, Detail{Key: key, Value: value})
}

// Get returns the value of the first line with the given key.
func (d Details) Get(key string) (string, bool) {
	for _, line := range d {
		if line.Key == key {
			return line.Value, true
		}
	}
	return "", false
}

// Header is the banner printed before a command runs: its title, the command
// line and the connection parameters it was started with.
type Header struct {
	Title   string  // e.g., "INTERRUPT WATCH"
	Command string  // e.g., "taskscope watch-interrupts"
	Params  Details // e.g., Target, ELF, Profile
	Width   int
}

// NewHeader creates a new header with the given values
func NewHeader(title, command string, params Details) *Header {
	return &Header{
		Title:   title,
		Command: command,
		Params:  params,
		Width:   GetTerminalWidth(),
	}
}

// SetWidth sets the terminal width for responsive rendering
func (h *Header) SetWidth(width int) *Header {
	h.Width = width
	return h
}

// Render returns the styled header as a string
func (h *Header) Render() string {
	width := clampWidth(h.Width)

	titleLine := HeaderTitleStyle.Render(strings.ToUpper(h.Title))
	commandLine := HeaderCommandStyle.Render(h.Command)
	topSection := lipgloss.JoinVertical(lipgloss.Left, titleLine, commandLine)

	content := topSection
	if len(h.Params) > 0 {
		dividerWidth := width - 6
		if dividerWidth < 10 {
			dividerWidth = 10
		}
		divider := RenderHorizontalDivider(dividerWidth, "─")
		content = lipgloss.JoinVertical(lipgloss.Left, topSection, divider, renderParams(h.Params))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Width(width - 2).
		Render(content)
}

func renderParams(params Details) string {
	lines := make([]string, 0, len(params))
	for _, p := range params {
		lines = append(lines, HeaderParamKeyStyle.Render(p.Key+":")+" "+HeaderParamValueStyle.Render(p.Value))
	}
	return strings.Join(lines, "\n")
}

// String implements fmt.Stringer
func (h *Header) String() string {
	return h.Render()
}
