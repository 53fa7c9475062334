package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"

	"github.com/victhorio/arkchat/agg"
	"github.com/victhorio/arkchat/agg/core"
)

const (
	minInputHeight = 2
	maxInputHeight = 6
	headerHeight   = 1
	footerHeight   = 2

	maxReasoningWidth = 600
)

var (
	titleStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	labelUserStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	labelBotStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("34"))
	labelInfoStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	labelReasonStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("244"))
	bodyInfoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("178"))
	bodyReasonStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	hintStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dividerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

type msgKind int

const (
	msgUser msgKind = iota
	msgAssistant
	msgInfo
	msgReasoning
)

type chatMessage struct {
	kind msgKind
	text string
}

type botDeltaMsg struct{ text string }
type botDoneMsg struct {
	text      string
	reasoning string
}
type botErrorMsg struct{ err error }
type streamClosedMsg struct{}

// TUIModel is the full screen front end. The transcript it shows is its own, the session
// underneath only keeps the newest turns.
type TUIModel struct {
	app *app
	ctx context.Context

	modelUserInput   textarea.Model
	modelChatHistory viewport.Model

	messages        []chatMessage
	partialResponse string
	generating      bool
	errMsg          string

	streamCh <-chan core.Event
	cancel   context.CancelFunc

	stickToBottom bool

	// finished messages are rendered once and reused until one is added or the width changes
	renderedHistory string
	cachedMsgCount  int
	cachedWidth     int

	width  int
	height int
}

func newTUIModel(ctx context.Context, a *app) TUIModel {
	ta := textarea.New()
	ta.Placeholder = "Ask anything..."
	ta.Focus()
	ta.CharLimit = 0
	ta.SetHeight(minInputHeight)
	ta.SetWidth(0)
	ta.ShowLineNumbers = false
	ta.Prompt = ""

	vp := viewport.New(0, 0)

	return TUIModel{
		app:              a,
		ctx:              ctx,
		modelUserInput:   ta,
		modelChatHistory: vp,
		messages:         []chatMessage{},
		stickToBottom:    true,
	}
}

func runTUI(ctx context.Context, a *app) error {
	p := tea.NewProgram(newTUIModel(ctx, a), tea.WithAltScreen(), tea.WithContext(ctx))
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
	case botDeltaMsg:
		m.partialResponse += msg.text
		m.updateViewport()
		return m, m.waitForStream()
	case botDoneMsg:
		m.generating = false
		m.errMsg = ""
		if msg.reasoning != "" {
			m.messages = append(m.messages, chatMessage{kind: msgReasoning, text: msg.reasoning})
		}
		if msg.text != "" {
			m.messages = append(m.messages, chatMessage{kind: msgAssistant, text: msg.text})
		}
		m.partialResponse = ""
		m.stopStream()
		m.updateViewport()
		return m, nil
	case botErrorMsg:
		m.generating = false
		m.errMsg = errorHint(msg.err)
		m.partialResponse = ""
		m.stopStream()
		m.updateViewport()
		return m, nil
	case streamClosedMsg:
		m.generating = false
		m.stopStream()
		return m, nil
	}

	var cmd tea.Cmd
	m.modelUserInput, cmd = m.modelUserInput.Update(msg)
	m.syncInputHeight()
	m.updateViewport()
	return m, cmd
}

func (m TUIModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("arkchat • " + m.app.client.Config().Model))
	b.WriteString("\n\n")
	b.WriteString(m.modelChatHistory.View())
	b.WriteString("\n")
	b.WriteString(renderDivider(m.width))
	b.WriteString("\n")
	b.WriteString(m.modelUserInput.View())
	b.WriteString("\n")

	hint := "Enter to send • Alt+Enter for newline • /help • :q to quit"
	if m.generating {
		hint = "Assistant is responding... Esc to stop"
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
		m.stopStream()
		return m, tea.Quit
	case tea.KeyEsc:
		// the stream reports the cancellation itself, which ends the turn
		if m.generating && m.cancel != nil {
			m.cancel()
		}
		return m, nil
	case tea.KeyPgUp:
		m.modelChatHistory.ViewUp()
		m.updateStickiness()
		return m, nil
	case tea.KeyPgDown:
		m.modelChatHistory.ViewDown()
		m.updateStickiness()
		return m, nil
	case tea.KeyCtrlU:
		m.modelChatHistory.HalfViewUp()
		m.updateStickiness()
		return m, nil
	case tea.KeyCtrlD:
		m.modelChatHistory.HalfViewDown()
		m.updateStickiness()
		return m, nil
	case tea.KeyShiftUp:
		m.modelChatHistory.LineUp(1)
		m.updateStickiness()
		return m, nil
	case tea.KeyShiftDown:
		m.modelChatHistory.LineDown(1)
		m.updateStickiness()
		return m, nil
	case tea.KeyEnter:
		if msg.Alt {
			m.modelUserInput.InsertString("\n")
			m.syncInputHeight()
			m.updateViewport()
			return m, nil
		}
		return m.submitInput()
	}

	var cmd tea.Cmd
	m.modelUserInput, cmd = m.modelUserInput.Update(msg)
	m.syncInputHeight()
	m.updateViewport()
	return m, cmd
}

func (m TUIModel) submitInput() (tea.Model, tea.Cmd) {
	if m.generating {
		return m, nil
	}

	input := strings.TrimSpace(m.modelUserInput.Value())
	if input == "" {
		return m, nil
	}

	if out, quit, ok := m.app.command(m.ctx, input); ok {
		if quit {
			m.stopStream()
			return m, tea.Quit
		}
		if input == "/clear" {
			m.messages = []chatMessage{}
			m.invalidateCache()
		}
		m.modelUserInput.Reset()
		m.errMsg = ""
		if out != "" {
			m.messages = append(m.messages, chatMessage{kind: msgInfo, text: out})
		}
		m.syncInputHeight()
		m.updateViewport()
		return m, nil
	}

	m.messages = append(m.messages, chatMessage{kind: msgUser, text: input})
	m.modelUserInput.Reset()
	m.partialResponse = ""
	m.generating = true
	m.errMsg = ""
	m.syncInputHeight()
	m.updateViewport()

	return m, m.startTurn(input)
}

// startTurn streams the reply, or asks for a whole response when streaming is turned off.
func (m *TUIModel) startTurn(input string) tea.Cmd {
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.stickToBottom = true

	if m.app.stream {
		m.streamCh = m.app.client.Stream(ctx, m.app.session, input)
		return m.waitForStream()
	}

	a := m.app
	reply := make(chan tea.Msg, 1)
	go func() {
		res, err := agg.SendWithRetry(ctx, a.client, a.session, input, agg.DefaultRetryPolicy())
		if err != nil {
			reply <- botErrorMsg{err: err}
			return
		}
		reply <- botDoneMsg{text: res.Content, reasoning: res.Reasoning}
	}()

	return func() tea.Msg {
		return <-reply
	}
}

func (m TUIModel) waitForStream() tea.Cmd {
	if m.streamCh == nil {
		return nil
	}

	ch := m.streamCh
	return func() tea.Msg {
		for ev := range ch {
			switch ev.Type {
			case core.EvDelta:
				return botDeltaMsg{text: ev.Delta}
			case core.EvDone:
				return botDoneMsg{text: ev.Delta}
			case core.EvError:
				return botErrorMsg{err: ev.Err}
			}
		}
		return streamClosedMsg{}
	}
}

func (m *TUIModel) stopStream() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.streamCh != nil {
		// the stream still delivers its final event after a cancel and must be drained
		go func(ch <-chan core.Event) {
			for range ch {
			}
		}(m.streamCh)
		m.streamCh = nil
	}
}

func (m *TUIModel) syncSizes() {
	m.modelUserInput.SetWidth(m.width)
	m.syncInputHeight()

	chatHeight := m.height - headerHeight - footerHeight - m.modelUserInput.Height()
	if chatHeight < 3 {
		chatHeight = 3
	}
	m.modelChatHistory.Width = m.width
	m.modelChatHistory.Height = chatHeight
}

func (m *TUIModel) syncInputHeight() {
	height := clamp(m.modelUserInput.LineCount(), minInputHeight, maxInputHeight)
	m.modelUserInput.SetHeight(height)

	if m.width > 0 && m.height > 0 {
		chatHeight := m.height - headerHeight - footerHeight - height
		if chatHeight < 3 {
			chatHeight = 3
		}
		m.modelChatHistory.Height = chatHeight
		m.modelChatHistory.Width = m.width
	}
}

func (m *TUIModel) invalidateCache() {
	m.renderedHistory = ""
	m.cachedMsgCount = -1
}

func (m *TUIModel) updateViewport() {
	width := m.modelChatHistory.Width

	if len(m.messages) != m.cachedMsgCount || width != m.cachedWidth {
		var b strings.Builder
		for _, msg := range m.messages {
			b.WriteString(m.renderMessage(msg))
			b.WriteString("\n\n")
		}
		m.renderedHistory = b.String()
		m.cachedMsgCount = len(m.messages)
		m.cachedWidth = width
	}

	content := m.renderedHistory
	if m.partialResponse != "" {
		partial := fmt.Sprintf("%s: %s", labelBotStyle.Render("Assistant"), m.partialResponse)
		content += wrapContent(partial, width)
	}

	m.modelChatHistory.SetContent(strings.TrimRight(content, "\n"))
	if m.stickToBottom {
		m.modelChatHistory.GotoBottom()
	}
}

func (m *TUIModel) renderMessage(msg chatMessage) string {
	width := m.modelChatHistory.Width

	switch msg.kind {
	case msgAssistant:
		body := strings.Trim(renderMarkdown(msg.text, width), "\n")
		return labelBotStyle.Render("Assistant") + ":\n" + body
	case msgInfo:
		return wrapContent(labelInfoStyle.Render("arkchat")+": "+bodyInfoStyle.Render(msg.text), width)
	case msgReasoning:
		body := maybeTruncate(strings.TrimSpace(msg.text), maxReasoningWidth)
		return wrapContent(labelReasonStyle.Render("Reasoning")+": "+bodyReasonStyle.Render(body), width)
	default:
		return wrapContent(labelUserStyle.Render("You")+": "+msg.text, width)
	}
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

// maybeTruncate cuts s to max terminal cells. CJK text takes two cells per rune.
func maybeTruncate(s string, max int) string {
	return runewidth.Truncate(s, max, "…")
}

func (m *TUIModel) updateStickiness() {
	m.stickToBottom = m.modelChatHistory.AtBottom()
}

func wrapContent(s string, width int) string {
	if width <= 0 {
		return s
	}
	return wordwrap.String(s, width)
}
