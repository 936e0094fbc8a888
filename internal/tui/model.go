// Package tui renders a live view of the agent's trace catalog.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"tracewatch/internal/app"
	"tracewatch/internal/registry"
)

const refreshEvery = 3 * time.Second

// stateCycle is the order the f key walks through.
var stateCycle = []registry.State{"", registry.StateRunning, registry.StateFinished, registry.StateFailed}

// Controller defines the subset of app.App behaviour the TUI needs.
type Controller interface {
	Status() (app.AgentStatus, error)
	Traces(context.Context, app.TracesParams) ([]app.Trace, error)
}

// Model represents the Bubble Tea state.
type Model struct {
	controller Controller

	list   list.Model
	traces []app.Trace

	agentStatus app.AgentStatus
	statusMsg   string

	err     error
	loading bool

	width  int
	height int

	stateIdx    int
	lastUpdated time.Time
}

// New constructs a TUI model with default styles.
func New(ctrl Controller) *Model {
	delegate := list.NewDefaultDelegate()
	lst := list.New([]list.Item{}, delegate, 0, 0)
	lst.Title = "Traces"
	lst.SetShowHelp(false)
	lst.SetFilteringEnabled(false)
	lst.DisableQuitKeybindings()

	return &Model{
		controller: ctrl,
		list:       lst,
		statusMsg:  "Checking agent status…",
		loading:    true,
	}
}

// Run spins up the Bubble Tea program.
func Run(ctrl Controller) error {
	prog := tea.NewProgram(New(ctrl), tea.WithAltScreen())
	_, err := prog.Run()
	return err
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(checkStatusCmd(m.controller), m.reload(), tick())
}

func (m *Model) stateFilter() registry.State {
	return stateCycle[m.stateIdx%len(stateCycle)]
}

func (m *Model) reload() tea.Cmd {
	var filters app.TraceFilters
	if st := m.stateFilter(); st != "" {
		filters.States = []string{string(st)}
	}
	return loadTracesCmd(m.controller, filters)
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.height > 5 {
			m.list.SetSize(msg.Width, msg.Height-5)
		}

	case statusMsg:
		m.agentStatus = msg.status
		switch {
		case !msg.status.Running:
			m.statusMsg = "Agent is not running. Start one with `tracewatch strace <options>`."
			m.traces = nil
			m.list.SetItems(nil)
		case msg.status.PID > 0:
			m.statusMsg = fmt.Sprintf("Agent running (pid %d) on %s", msg.status.PID, msg.status.Socket)
		default:
			m.statusMsg = "Agent running on " + msg.status.Socket
		}

	case tracesLoadedMsg:
		m.loading = false
		m.err = nil
		m.traces = msg.traces
		items := make([]list.Item, 0, len(msg.traces))
		for _, t := range msg.traces {
			items = append(items, traceItem{t})
		}
		m.list.SetItems(items)
		m.lastUpdated = time.Now()

	case tickMsg:
		return m, tea.Batch(checkStatusCmd(m.controller), m.reload(), tick())

	case errMsg:
		m.loading = false
		m.err = msg.err

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			m.loading = true
			return m, tea.Batch(checkStatusCmd(m.controller), m.reload())
		case "f":
			m.stateIdx = (m.stateIdx + 1) % len(stateCycle)
			m.loading = true
			return m, m.reload()
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder

	statusStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	if !m.agentStatus.Running {
		statusStyle = statusStyle.Foreground(lipgloss.Color("203"))
	}
	b.WriteString(statusStyle.Render(m.statusMsg))
	b.WriteByte('\n')

	if m.loading {
		b.WriteString("Loading traces…\n")
	} else if m.err != nil {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
		b.WriteString(errStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteByte('\n')
	}

	if len(m.list.Items()) == 0 && !m.loading && m.err == nil && m.agentStatus.Running {
		b.WriteString("No traces yet.\n")
	} else {
		b.WriteString(m.list.View())
		b.WriteByte('\n')
	}

	if current := m.currentTrace(); current != nil {
		detail := fmt.Sprintf("id=%d pid=%d state=%s exit=%d\ncmd=%s\noutput=%s",
			current.ID, current.PID, current.State, current.ExitCode, current.Command, current.OutputPath)
		if current.Error != "" {
			detail += "\nerror=" + current.Error
		}
		detailStyle := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).MarginBottom(1)
		b.WriteString(detailStyle.Render(detail))
		b.WriteByte('\n')
	}

	filter := string(m.stateFilter())
	if filter == "" {
		filter = "all"
	}
	help := fmt.Sprintf("Commands: q quit • r reload • f state filter (%s)", filter)
	if !m.lastUpdated.IsZero() {
		help += " • updated " + humanize.Time(m.lastUpdated)
	}
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	b.WriteString(helpStyle.Render(help))

	return b.String()
}

func (m *Model) currentTrace() *app.Trace {
	idx := m.list.Index()
	if idx < 0 || idx >= len(m.traces) {
		return nil
	}
	return &m.traces[idx]
}

// traceItem adapts app.Trace to the bubbles list item interface.
type traceItem struct {
	app.Trace
}

func (t traceItem) Title() string {
	return fmt.Sprintf("[%s] pid=%d %s", t.State, t.PID, t.Command)
}

func (t traceItem) Description() string {
	desc := "started " + humanize.Time(t.StartedAt)
	if !t.FinishedAt.IsZero() {
		desc += fmt.Sprintf(", ran %s", t.FinishedAt.Sub(t.StartedAt).Round(time.Second))
	}
	return desc + " → " + t.OutputPath
}

func (t traceItem) FilterValue() string {
	return fmt.Sprintf("%d %s %s", t.PID, t.State, t.Command)
}

type statusMsg struct {
	status app.AgentStatus
}

type tracesLoadedMsg struct {
	traces []app.Trace
}

type tickMsg time.Time

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

func tick() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func checkStatusCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		status, err := ctrl.Status()
		if err != nil {
			return errMsg{err}
		}
		return statusMsg{status: status}
	}
}

func loadTracesCmd(ctrl Controller, filters app.TraceFilters) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
		defer cancel()
		traces, err := ctrl.Traces(ctx, app.TracesParams{
			Filters: filters,
			Timeout: 4 * time.Second,
		})
		if err != nil {
			return errMsg{err}
		}
		return tracesLoadedMsg{traces: traces}
	}
}
