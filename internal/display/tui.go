package display

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"metamac/internal/health"
	"metamac/internal/protocol"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#34D399")).
			Padding(0, 2).
			Bold(true)

	activeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#34D399")).
			Bold(true)

	weightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9CA3AF"))

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#4B5563")).
			Padding(0, 2)
)

// TUISink feeds Snapshots to a running TUI program without ever blocking
// the processor thread: a full channel just drops the tick, since the
// next one is a second away.
type TUISink struct {
	ch chan Snapshot
}

// NewTUISink creates a sink paired with a Program built by NewProgram.
func NewTUISink() *TUISink {
	return &TUISink{ch: make(chan Snapshot, 1)}
}

// Update implements processor.DisplaySink.
func (t *TUISink) Update(s *protocol.Suite, pcoll float64, h health.Snapshot) {
	select {
	case t.ch <- snapshot(s, pcoll, h):
	default:
	}
}

type tickMsg struct{}

type tuiModel struct {
	sink    *TUISink
	current Snapshot
	width   int
}

// NewProgram builds a bubbletea program rendering sink's snapshots, for
// the daemon's --verbose mode.
func NewProgram(sink *TUISink) *tea.Program {
	return tea.NewProgram(tuiModel{sink: sink, width: 80})
}

func (m tuiModel) Init() tea.Cmd {
	return pollTick()
}

func pollTick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
	case tickMsg:
		select {
		case snap := <-m.sink.ch:
			m.current = snap
		default:
		}
		return m, pollTick()
	}
	return m, nil
}

func (m tuiModel) View() string {
	header := headerStyle.Width(m.width).Render(" MetaMAC")
	if m.current.At.IsZero() {
		return header + "\n\n  waiting for first observation...\n"
	}

	body := fmt.Sprintf("  active protocol: %s\n  collision ratio: %.3f\n\n",
		activeStyle.Render(m.current.Active), m.current.PColl)
	for i, name := range m.current.Names {
		body += weightStyle.Render(fmt.Sprintf("  %-12s %.4f\n", name, m.current.Weights[i]))
	}

	footer := footerStyle.Width(m.width).Render(
		fmt.Sprintf("cpu %.1f%% | mem %d/%dMB | %s",
			m.current.Health.CPUPercent,
			m.current.Health.MemUsedBytes/1e6, m.current.Health.MemTotal/1e6,
			m.current.At.Format("15:04:05")))

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}
