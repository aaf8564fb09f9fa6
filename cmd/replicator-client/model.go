package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dd0wney/cluso-replicator/pkg/protocol"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF")).
			MarginLeft(2).
			MarginTop(1)

	statementStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1).
			MarginLeft(2)
)

type keyMap struct {
	Enter    key.Binding
	Quit     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Clear    key.Binding
}

var keys = keyMap{
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "send"),
	),
	Quit: key.NewBinding(
		key.WithKeys("esc", "ctrl+c"),
		key.WithHelp("esc", "quit"),
	),
	PageUp: key.NewBinding(
		key.WithKeys("pgup"),
		key.WithHelp("pgup", "scroll up"),
	),
	PageDown: key.NewBinding(
		key.WithKeys("pgdown"),
		key.WithHelp("pgdn", "scroll down"),
	),
	Clear: key.NewBinding(
		key.WithKeys("ctrl+l"),
		key.WithHelp("ctrl+l", "clear"),
	),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Enter, k.PageUp, k.PageDown, k.Clear, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Enter, k.Clear}, {k.PageUp, k.PageDown}, {k.Quit}}
}

// exchange is one statement and what the node answered
type exchange struct {
	statement string
	response  string
	err       error
	elapsed   time.Duration
}

type sender interface {
	Send(ctx context.Context, stmt string) (string, error)
}

type model struct {
	client  sender
	addr    string
	input   textinput.Model
	history viewport.Model
	spinner spinner.Model
	help    help.Model
	keys    keyMap
	log     []exchange
	pending bool
	width   int
	height  int
	ready   bool
}

type responseMsg exchange

func initialModel(c *client) model {
	return newModel(c, c.addr)
}

func newModel(s sender, addr string) model {
	ti := textinput.New()
	ti.Placeholder = "INSERT INTO users VALUES (1, 'alice')"
	ti.CharLimit = protocol.PayloadSize
	ti.Width = 80
	ti.Prompt = "sql> "
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return model{
		client:  s,
		addr:    addr,
		input:   ti,
		spinner: sp,
		help:    help.New(),
		keys:    keys,
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

// sendCmd runs the network round trip off the UI goroutine
func (m model) sendCmd(stmt string) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		resp, err := m.client.Send(context.Background(), stmt)
		return responseMsg{statement: stmt, response: resp, err: err, elapsed: time.Since(start)}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.input.Width = max(msg.Width-10, 10)
		historyHeight := max(msg.Height-8, 3)
		if !m.ready {
			m.history = viewport.New(msg.Width, historyHeight)
			m.ready = true
		} else {
			m.history.Width = msg.Width
			m.history.Height = historyHeight
		}
		m.refreshHistory()

	case responseMsg:
		m.pending = false
		m.log = append(m.log, exchange(msg))
		m.refreshHistory()
		return m, nil

	case spinner.TickMsg:
		if !m.pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Clear):
			m.log = nil
			m.refreshHistory()
			return m, nil

		case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
			var cmd tea.Cmd
			m.history, cmd = m.history.Update(msg)
			return m, cmd

		case key.Matches(msg, m.keys.Enter):
			stmt := strings.TrimSpace(m.input.Value())
			if stmt == "" || m.pending {
				return m, nil
			}
			m.input.Reset()
			m.pending = true
			return m, tea.Batch(m.sendCmd(stmt), m.spinner.Tick)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *model) refreshHistory() {
	if !m.ready {
		return
	}
	m.history.SetContent(renderLog(m.log))
	m.history.GotoBottom()
}

func renderLog(log []exchange) string {
	if len(log) == 0 {
		return mutedStyle.Render("No statements sent yet.")
	}

	var s strings.Builder
	for _, e := range log {
		s.WriteString(statementStyle.Render("> " + e.statement))
		s.WriteString(mutedStyle.Render(fmt.Sprintf("  (%s)", e.elapsed.Round(time.Millisecond))))
		s.WriteString("\n")

		switch {
		case e.err != nil:
			s.WriteString(errorStyle.Render("✗ " + e.err.Error()))
		case strings.HasPrefix(e.response, "ERROR"):
			s.WriteString(errorStyle.Render(e.response))
		case e.response == "":
			s.WriteString(mutedStyle.Render("(no response)"))
		default:
			s.WriteString(successStyle.Render(strings.TrimRight(e.response, "\n")))
		}
		s.WriteString("\n\n")
	}
	return s.String()
}

func (m model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("Replicator client: " + m.addr))
	s.WriteString("\n\n")
	s.WriteString(m.history.View())
	s.WriteString("\n")

	if m.pending {
		s.WriteString(m.spinner.View() + " waiting for node...\n")
	} else {
		s.WriteString("\n")
	}
	s.WriteString(m.input.View())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render(m.help.ShortHelpView(m.keys.ShortHelp())))

	return s.String()
}
