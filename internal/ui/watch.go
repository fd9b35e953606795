package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/taskscope/internal/inspect"
)

// DefaultWatchLines is how many events the watch view keeps on screen.
const DefaultWatchLines = 20

type eventMsg inspect.Event

type doneMsg struct {
	summary inspect.Summary
	err     error
}

type watchLine struct {
	rule string
	text string
}

// WatchModel is the live view of an inspection: a spinner with the halt
// count, followed by the most recent rule output.
type WatchModel struct {
	title    string
	spinner  spinner.Model
	lines    []watchLine
	partial  string
	maxLines int
	events   int
	width    int

	done        bool
	interrupted bool
	summary     inspect.Summary
	err         error
}

// NewWatchModel returns a model keeping the last maxLines events.
func NewWatchModel(title string, maxLines int) WatchModel {
	if maxLines <= 0 {
		maxLines = DefaultWatchLines
	}
	return WatchModel{
		title:    title,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(StepRunningStyle)),
		maxLines: maxLines,
		width:    GetTerminalWidth(),
	}
}

func (m WatchModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m.events++
		m.partial += msg.Text
		if !msg.Partial {
			m.lines = append(m.lines, watchLine{rule: msg.Rule, text: m.partial})
			m.partial = ""
			if len(m.lines) > m.maxLines {
				m.lines = m.lines[len(m.lines)-m.maxLines:]
			}
		}
		return m, nil

	case doneMsg:
		m.done = true
		m.summary = msg.summary
		m.err = msg.err
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.interrupted = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = clampWidth(msg.Width)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m WatchModel) View() string {
	var b strings.Builder

	status := fmt.Sprintf("%s %s  %d events", m.spinner.View(), m.title, m.events)
	switch {
	case m.err != nil:
		status = ErrorTitleStyle.Render(FailureMarker+" "+m.title) + "  " + ErrorMessageStyle.Render(m.err.Error())
	case m.done:
		status = SuccessTitleStyle.Render(SuccessMarker+" "+m.title) + fmt.Sprintf("  %d halts", m.summary.Halts)
	case m.interrupted:
		status = StepRunningStyle.Render(m.title + " interrupted")
	}
	b.WriteString(StatusBarStyle.Render(status))
	b.WriteString("\n\n")

	for _, line := range m.lines {
		b.WriteString("  ")
		b.WriteString(EventRuleStyle.Render(line.rule))
		b.WriteString(EventTextStyle.Render(line.text))
		b.WriteString("\n")
	}
	if m.partial != "" {
		b.WriteString("  ")
		b.WriteString(EventRuleStyle.Render(""))
		b.WriteString(EventTextStyle.Render(m.partial))
		b.WriteString("\n")
	}

	if !m.done && !m.interrupted {
		b.WriteString("\n")
		b.WriteString(StatusBarStyle.Render("q to stop"))
		b.WriteString("\n")
	}
	return b.String()
}

// Interrupted reports whether the user stopped the view.
func (m WatchModel) Interrupted() bool {
	return m.interrupted
}

// InspectFunc runs an inspection, reporting rule output to obs.
type InspectFunc func(ctx context.Context, obs inspect.Observer) (inspect.Summary, error)

// WatchConfig configures RunWatch.
type WatchConfig struct {
	Title    string
	MaxLines int
	Output   io.Writer
	Input    io.Reader
}

// RunWatch runs fn under a live WatchModel. Stopping the view cancels the
// context passed to fn, and RunWatch waits for fn to return.
func RunWatch(ctx context.Context, config WatchConfig, fn InspectFunc) (inspect.Summary, error) {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := []tea.ProgramOption{tea.WithOutput(config.Output)}
	if config.Input != nil {
		opts = append(opts, tea.WithInput(config.Input))
	}
	p := tea.NewProgram(NewWatchModel(config.Title, config.MaxLines), opts...)

	finished := make(chan doneMsg, 1)
	go func() {
		summary, err := fn(ctx, inspect.ObserverFunc(func(ev inspect.Event) {
			p.Send(eventMsg(ev))
		}))
		finished <- doneMsg{summary: summary, err: err}
		p.Send(doneMsg{summary: summary, err: err})
	}()

	_, runErr := p.Run()
	cancel()
	result := <-finished
	if result.err == nil && runErr != nil {
		return result.summary, fmt.Errorf("watch view failed: %w", runErr)
	}
	return result.summary, result.err
}
