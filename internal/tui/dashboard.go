// Package tui renders a live dashboard for a running chat server: who is
// connected, the event feed, and delivery counters. It observes the hub
// through a read-only tap and never mutates server state.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/parlorchat/parlor/internal/protocol"
	"github.com/parlorchat/parlor/internal/server"
)

const feedHistory = 200

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	statsStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	feedStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	helpStyle   = lipgloss.NewStyle().Faint(true)
)

type eventMsg server.Event

type tickMsg time.Time

type model struct {
	hub  *server.Hub
	tap  <-chan server.Event
	addr string

	viewport viewport.Model
	lines    []string
	ready    bool
	width    int
	height   int
	started  time.Time
}

// Run blocks displaying the dashboard until the user quits it.
func Run(hub *server.Hub, tap <-chan server.Event, addr string) error {
	m := model{
		hub:     hub,
		tap:     tap,
		addr:    addr,
		started: time.Now(),
	}
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.tap), tick())
}

func waitForEvent(tap <-chan server.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-tap)
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		feedHeight := msg.Height - 9
		if feedHeight < 3 {
			feedHeight = 3
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width-4, feedHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 4
			m.viewport.Height = feedHeight
		}
		m.viewport.SetContent(strings.Join(m.lines, "\n"))
		m.viewport.GotoBottom()

	case eventMsg:
		if line := formatEvent(server.Event(msg)); line != "" {
			m.lines = append(m.lines, line)
			if len(m.lines) > feedHistory {
				m.lines = m.lines[len(m.lines)-feedHistory:]
			}
			if m.ready {
				m.viewport.SetContent(strings.Join(m.lines, "\n"))
				m.viewport.GotoBottom()
			}
		}
		return m, waitForEvent(m.tap)

	case tickMsg:
		// Stats and user list re-render each second.
		return m, tick()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m model) View() string {
	if !m.ready {
		return "starting dashboard..."
	}

	stats := m.hub.Stats()
	header := titleStyle.Render("parlor server") + statsStyle.Render(
		fmt.Sprintf("  %s  up %s", m.addr, time.Since(m.started).Round(time.Second)))
	counters := statsStyle.Render(fmt.Sprintf(
		"clients: %d  delivered: %d  slow disconnects: %d",
		stats.Clients, stats.Delivered, stats.SlowDisconnects))

	names := m.hub.Registry().Names()
	users := "no users connected"
	if len(names) > 0 {
		users = strings.Join(names, ", ")
	}

	return strings.Join([]string{
		header,
		counters,
		userStyle.Render("online: ") + users,
		feedStyle.Render(m.viewport.View()),
		helpStyle.Render("q to quit"),
	}, "\n")
}

func formatEvent(ev server.Event) string {
	switch ev.Type {
	case protocol.EventMessage:
		return fmt.Sprintf("[%s] %s: %s", ev.Timestamp.Local().Format("15:04:05"), ev.Name, ev.Text)
	case protocol.EventJoin:
		return noticeStyle.Render(fmt.Sprintf("*** %s joined ***", ev.Name))
	case protocol.EventLeave:
		return noticeStyle.Render(fmt.Sprintf("*** %s left ***", ev.Name))
	default:
		return ""
	}
}
