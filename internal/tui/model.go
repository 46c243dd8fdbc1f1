package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/regchat/cli/internal/answer"
	"github.com/regchat/cli/internal/session"
)

// ChatPort is the TUI-facing subset of the answer engine.
type ChatPort interface {
	Exchange(ctx context.Context, sessionID, message string, history []session.Turn) (*answer.Result, error)
}

type exchangeMsg struct {
	question string
	result   *answer.Result
	err      error
}

// Model is the Bubble Tea model for the interactive chat.
type Model struct {
	engine    ChatPort
	input     textinput.Model
	viewport  viewport.Model
	sessionID string
	modelName string
	lines     []string
	status    string
	waiting   bool
	ready     bool
}

// New creates a chat model. A blank sessionID starts a fresh session on
// the first question.
func New(engine ChatPort, modelName string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the regulations and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		engine:    engine,
		input:     ti,
		viewport:  vp,
		modelName: modelName,
		status:    "Ready. Ctrl+C to quit.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, ch := chatBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 1 + 1 + ih + 1 // header, status, input frame, spacer
		vh := msg.Height - reserved - ch
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = vh
		m.viewport.SetContent(m.transcript())
		return m, nil

	case exchangeMsg:
		m.waiting = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.sessionID = msg.result.SessionID
		m.lines = append(m.lines, questionStyle.Render("You: ")+msg.question)
		m.lines = append(m.lines, answerStyle.Render("Assistant: ")+msg.result.Response)
		if cited := formatSources(msg.result.Sources); cited != "" {
			m.lines = append(m.lines, sourceStyle.Render(cited))
		}
		m.lines = append(m.lines, "")
		m.status = fmt.Sprintf("Session %s", shortID(m.sessionID))
		m.viewport.SetContent(m.transcript())
		m.viewport.GotoBottom()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.String() == "enter" && !m.waiting {
			q := strings.TrimSpace(m.input.Value())
			if q != "" {
				m.input.Reset()
				m.waiting = true
				m.status = "Thinking..."
				return m, m.ask(q)
			}
		}
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("regchat") +
		lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render("  "+m.modelName)
	chat := chatBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	return header + "\n" + chat + "\n" + input + "\n" + status
}

func (m Model) ask(question string) tea.Cmd {
	engine, sessionID := m.engine, m.sessionID
	return func() tea.Msg {
		result, err := engine.Exchange(context.Background(), sessionID, question, nil)
		return exchangeMsg{question: question, result: result, err: err}
	}
}

func (m Model) transcript() string {
	if len(m.lines) == 0 {
		return "Ask a question to get started."
	}
	return strings.Join(m.lines, "\n")
}

func formatSources(sources []session.SourceRef) string {
	if len(sources) == 0 {
		return ""
	}
	parts := make([]string, 0, len(sources))
	seen := make(map[string]bool, len(sources))
	for _, s := range sources {
		ref := fmt.Sprintf("%s p.%d", s.Source, s.Page)
		if seen[ref] {
			continue
		}
		seen[ref] = true
		parts = append(parts, ref)
	}
	return "Sources: " + strings.Join(parts, ", ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

var (
	chatBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	answerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	sourceStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
