package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/victhorio/sage/rag"
)

const (
	minInputHeight = 2
	maxInputHeight = 6
	headerHeight   = 1
	footerHeight   = 2
)

var (
	titleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	labelUserStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	labelBotStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("34"))
	labelSrcStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	bodySrcStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("178"))
	hintStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dividerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	rawBodyStyle    = lipgloss.NewStyle()
)

type msgKind int

const (
	msgUser msgKind = iota
	msgAssistant
	msgSources
)

type chatMessage struct {
	kind msgKind
	text string
}

type answerMsg struct {
	text    string
	sources []rag.Source
}

type answerErrMsg struct{ err error }

// querier is the one System operation the TUI needs.
type querier interface {
	Query(ctx context.Context, query, sessionID string) (string, []rag.Source, error)
}

type TUIModel struct {
	sys       querier
	sessionID string

	textarea textarea.Model
	viewport viewport.Model
	renderer *glamour.TermRenderer

	messages   []chatMessage
	generating bool
	errMsg     string

	stickToBottom bool

	width  int
	height int
}

func newTUIModel(sys querier, sessionID string) TUIModel {
	ta := textarea.New()
	ta.Placeholder = "Ask about your courses..."
	ta.Focus()
	ta.CharLimit = 0
	ta.SetHeight(minInputHeight)
	ta.SetWidth(0)
	ta.ShowLineNumbers = false
	ta.Prompt = ""

	vp := viewport.New(0, 0)

	return TUIModel{
		sys:           sys,
		sessionID:     sessionID,
		textarea:      ta,
		viewport:      vp,
		messages:      []chatMessage{},
		stickToBottom: true,
	}
}

func runTUI(sys querier, sessionID string) error {
	p := tea.NewProgram(newTUIModel(sys, sessionID), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m TUIModel) Init() tea.Cmd {
	return textarea.Blink
}

func (m TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.syncSizes()
		m.updateViewport()
		return m, nil
	case tea.KeyMsg:
		return m.updateKey(msg)
	case answerMsg:
		m.generating = false
		m.errMsg = ""
		m.messages = append(m.messages, chatMessage{kind: msgAssistant, text: msg.text})
		if len(msg.sources) > 0 {
			m.messages = append(m.messages, chatMessage{kind: msgSources, text: formatSources(msg.sources)})
		}
		m.updateViewport()
		return m, nil
	case answerErrMsg:
		m.generating = false
		m.errMsg = msg.err.Error()
		m.updateViewport()
		return m, nil
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	m.syncInputHeight()
	m.updateViewport()
	return m, cmd
}

func (m TUIModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("sage • course assistant"))
	b.WriteString("\n\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(renderDivider(m.width))
	b.WriteString("\n")
	b.WriteString(m.textarea.View())
	b.WriteString("\n")

	hint := "Enter to send • Alt+Enter for newline • :q to quit • Ctrl+C"
	if m.generating {
		hint = "Assistant is thinking..."
	}
	if m.errMsg != "" {
		hint = errorStyle.Render(fmt.Sprintf("Error: %s", m.errMsg))
	}
	b.WriteString(hintStyle.Render(hint))

	return b.String()
}

func (m TUIModel) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyPgUp:
		m.viewport.PageUp()
		m.updateStickiness()
		return m, nil
	case tea.KeyPgDown:
		m.viewport.PageDown()
		m.updateStickiness()
		return m, nil
	case tea.KeyCtrlU:
		m.viewport.HalfPageUp()
		m.updateStickiness()
		return m, nil
	case tea.KeyCtrlD:
		m.viewport.HalfPageDown()
		m.updateStickiness()
		return m, nil
	case tea.KeyShiftUp:
		m.viewport.LineUp(1)
		m.updateStickiness()
		return m, nil
	case tea.KeyShiftDown:
		m.viewport.LineDown(1)
		m.updateStickiness()
		return m, nil
	case tea.KeyEnter:
		if msg.Alt {
			m.textarea.InsertString("\n")
			m.syncInputHeight()
			m.updateViewport()
			return m, nil
		}
		return m.submitInput()
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	m.syncInputHeight()
	m.updateViewport()
	return m, cmd
}

func (m TUIModel) submitInput() (tea.Model, tea.Cmd) {
	if m.generating {
		return m, nil
	}

	input := strings.TrimSpace(m.textarea.Value())
	if input == "" {
		return m, nil
	}

	switch input {
	case ":q", "quit", "exit":
		return m, tea.Quit
	}

	m.messages = append(m.messages, chatMessage{kind: msgUser, text: input})
	m.textarea.Reset()
	m.generating = true
	m.errMsg = ""
	m.stickToBottom = true
	m.syncInputHeight()
	m.updateViewport()

	return m, m.startQuery(input)
}

func (m TUIModel) startQuery(input string) tea.Cmd {
	sys, sessionID := m.sys, m.sessionID
	return func() tea.Msg {
		answer, sources, err := sys.Query(context.Background(), input, sessionID)
		if err != nil {
			return answerErrMsg{err: err}
		}
		return answerMsg{text: answer, sources: sources}
	}
}

func (m *TUIModel) syncSizes() {
	m.textarea.SetWidth(m.width)
	m.syncInputHeight()

	chatHeight := m.height - headerHeight - footerHeight - m.textarea.Height()
	if chatHeight < 3 {
		chatHeight = 3
	}
	m.viewport.Width = m.width
	m.viewport.Height = chatHeight

	// Markdown rendering follows the chat width; a failed renderer just
	// means answers show as plain text.
	if m.width > 0 {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(m.width),
		)
		if err == nil {
			m.renderer = renderer
		}
	}
}

func (m *TUIModel) syncInputHeight() {
	height := clamp(m.textarea.LineCount(), minInputHeight, maxInputHeight)
	m.textarea.SetHeight(height)

	if m.width > 0 && m.height > 0 {
		chatHeight := m.height - headerHeight - footerHeight - height
		if chatHeight < 3 {
			chatHeight = 3
		}
		m.viewport.Height = chatHeight
		m.viewport.Width = m.width
	}
}

func (m *TUIModel) updateViewport() {
	var b strings.Builder

	for _, msg := range m.messages {
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n\n")
	}

	content := strings.TrimRight(b.String(), "\n")
	if m.viewport.Width > 0 {
		content = wrapContent(content, m.viewport.Width)
	}
	m.viewport.SetContent(content)
	if m.stickToBottom {
		m.viewport.GotoBottom()
	}
}

func (m *TUIModel) renderMessage(msg chatMessage) string {
	switch msg.kind {
	case msgUser:
		return fmt.Sprintf("%s: %s", labelUserStyle.Render("You"), msg.text)
	case msgAssistant:
		body := rawBodyStyle.Render(msg.text)
		if m.renderer != nil {
			if rendered, err := m.renderer.Render(msg.text); err == nil {
				body = strings.TrimRight(rendered, "\n")
			}
		}
		return fmt.Sprintf("%s:\n%s", labelBotStyle.Render("Assistant"), body)
	case msgSources:
		return fmt.Sprintf("%s: %s", labelSrcStyle.Render("Sources"), bodySrcStyle.Render(msg.text))
	}
	return msg.text
}

func formatSources(sources []rag.Source) string {
	parts := make([]string, 0, len(sources))
	for _, src := range sources {
		if src.Link != nil {
			parts = append(parts, fmt.Sprintf("%s (%s)", src.Text, *src.Link))
		} else {
			parts = append(parts, src.Text)
		}
	}
	return strings.Join(parts, " • ")
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func renderDivider(width int) string {
	w := width
	if w < 10 {
		w = 10
	}
	return dividerStyle.Render(strings.Repeat("─", w))
}

func wrapContent(s string, width int) string {
	if width <= 0 {
		return s
	}
	return wordwrap.String(s, width)
}

func (m *TUIModel) updateStickiness() {
	m.stickToBottom = m.viewport.AtBottom()
}
