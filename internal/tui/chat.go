package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/cloudwego/eino/schema"

	"github.com/wwwzy/BookAgent/internal/agent"
	"github.com/wwwzy/BookAgent/internal/trace"
	"github.com/wwwzy/BookAgent/internal/ui"
)

type ChatUI struct{}

func (u *ChatUI) Run(ctx context.Context, backend ui.ChatBackend, opts ui.ChatOptions) error {
	convID := opts.ConversationIDOrNew()
	var history []*schema.Message
	if st, err := backend.Snapshot(ctx, convID); err == nil {
		history = st.Messages
	} else if !errors.Is(err, agent.ErrStateNotFound) {
		return fmt.Errorf("加载会话失败: %w", err)
	}

	m := newChatModel(ctx, backend, convID, history)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

type turnResultMsg struct {
	reply string
	err   error
}

type resetResultMsg struct {
	err error
}

type streamTickMsg struct{}
type cancelMsg struct{}

type chatModel struct {
	ctx     context.Context
	backend ui.ChatBackend
	convID  string

	// 本地展示用的对话记录；权威状态在编排器里
	messages []*schema.Message

	width  int
	height int

	viewport   viewport.Model
	input      textinput.Model
	spinner    spinner.Model
	thinking   bool
	followTail bool

	// 助手提出 Yes/No 问题时显示快捷确认
	confirmVisible bool
	confirmIndex   int

	streaming  bool
	streamIdx  int
	streamPos  int
	streamFull string

	renderer *glamour.TermRenderer
}

func newChatModel(ctx context.Context, backend ui.ChatBackend, convID string, history []*schema.Message) chatModel {
	s := spinner.New()
	s.Spinner = spinner.MiniDot

	ti := textinput.New()
	ti.Placeholder = "输入消息，回车发送"
	ti.Prompt = ""
	ti.Focus()

	vp := viewport.New(0, 0)
	vp.SetContent("")

	return chatModel{
		ctx:        ctx,
		backend:    backend,
		convID:     convID,
		messages:   append([]*schema.Message(nil), history...),
		viewport:   vp,
		input:      ti,
		spinner:    s,
		followTail: true,
		streamIdx:  -1,
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitCancel(m.ctx))
}

func waitCancel(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		<-ctx.Done()
		return cancelMsg{}
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case cancelMsg:
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		inputHeight := 3
		headerHeight := 1
		footerHeight := 1
		chatHeight := m.height - inputHeight - headerHeight - footerHeight
		if chatHeight < 1 {
			chatHeight = 1
		}

		m.viewport.Width = m.width
		m.viewport.Height = chatHeight

		m.input.Width = max(10, m.width-4)

		m.resetMarkdownRenderer()
		m.updateViewportContent(m.renderChat())
		return m, nil

	case spinner.TickMsg:
		if m.thinking {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case turnResultMsg:
		m.thinking = false
		content := msg.reply
		if msg.err != nil {
			content = fmt.Sprintf("发生错误：%v", msg.err)
		}
		m.messages = append(m.messages, schema.AssistantMessage(content, nil))
		m.followTail = true

		if msg.err == nil && asksYesNo(content) {
			m.confirmVisible = true
			m.confirmIndex = 0
		}

		m.startStreaming(len(m.messages) - 1)
		m.updateViewportContent(m.renderChat())
		if m.streaming {
			return m, streamTick()
		}
		return m, nil

	case resetResultMsg:
		m.thinking = false
		m.confirmVisible = false
		m.streaming = false
		if msg.err != nil {
			m.messages = append(m.messages, schema.AssistantMessage(fmt.Sprintf("重置失败：%v", msg.err), nil))
		} else {
			m.messages = nil
		}
		m.followTail = true
		m.updateViewportContent(m.renderChat())
		return m, nil

	case streamTickMsg:
		if !m.streaming {
			return m, nil
		}
		m.streamPos = min(len(m.streamFull), m.streamPos+32)
		if m.streamPos >= len(m.streamFull) {
			m.streaming = false
		}
		m.updateViewportContent(m.renderChat())
		if m.streaming {
			return m, streamTick()
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		}

		if m.thinking {
			return m, nil
		}

		if m.confirmVisible {
			switch msg.String() {
			case "left", "right", "tab", "shift+tab":
				m.confirmIndex = (m.confirmIndex + 1) % 2
				return m, nil
			case "esc":
				// 收起快捷确认，改为自由输入
				m.confirmVisible = false
				return m, nil
			case "enter":
				answer := "yes"
				if m.confirmIndex == 1 {
					answer = "no"
				}
				m.confirmVisible = false
				sendCmd := m.send(answer)
				return m, sendCmd
			default:
				return m, nil
			}
		}

		switch msg.String() {
		case "pgup", "pageup":
			m.viewport.PageUp()
			m.followTail = false
			return m, nil
		case "pgdown", "pagedown":
			m.viewport.PageDown()
			if m.viewport.AtBottom() {
				m.followTail = true
			}
			return m, nil
		}

		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)

		if msg.String() == "enter" {
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, cmd
			}
			m.input.SetValue("")
			if ui.IsExit(text) {
				return m, tea.Quit
			}
			if text == ui.ResetCommand {
				m.thinking = true
				return m, tea.Batch(cmd, resetConversation(m.ctx, m.backend, m.convID))
			}
			sendCmd := m.send(text)
			return m, tea.Batch(cmd, sendCmd)
		}

		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// send 追加用户消息并异步调用编排器；调用方负责把返回的 Cmd 交给 bubbletea
func (m *chatModel) send(text string) tea.Cmd {
	m.messages = append(m.messages, schema.UserMessage(text))
	m.followTail = true
	m.streaming = false
	m.thinking = true
	m.updateViewportContent(m.renderChat())
	return handleTurn(m.ctx, m.backend, m.convID, text)
}

func handleTurn(ctx context.Context, backend ui.ChatBackend, convID, text string) tea.Cmd {
	return func() tea.Msg {
		turnCtx := trace.WithTraceID(ctx, trace.NewTraceID())
		turnCtx = trace.WithConversationID(turnCtx, convID)
		reply, err := backend.HandleTurn(turnCtx, convID, text)
		return turnResultMsg{reply: reply, err: err}
	}
}

func resetConversation(ctx context.Context, backend ui.ChatBackend, convID string) tea.Cmd {
	return func() tea.Msg {
		return resetResultMsg{err: backend.Reset(ctx, convID)}
	}
}

func asksYesNo(reply string) bool {
	lower := strings.ToLower(strings.TrimSpace(reply))
	return strings.HasSuffix(lower, "(yes/no)") || strings.HasSuffix(lower, "(yes/no)?")
}

func (m chatModel) View() string {
	header := lipgloss.NewStyle().Bold(true).Render("BookAgent") +
		lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Render("  会话 "+m.convID)

	chat := m.viewport.View()

	var inputLine string
	if m.confirmVisible {
		inputLine = m.confirmView()
	} else {
		inputLine = m.inputView()
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, chat, inputLine, m.footerView())
}

func (m chatModel) footerView() string {
	left := "Enter 发送 | " + ui.ResetCommand + " 重新开始 | PgUp/PgDn 滚动 | Ctrl+C 退出"
	right := ""
	if m.confirmVisible {
		right = "Tab/←/→ 切换  Enter 确认  Esc 自由输入"
	} else if m.thinking {
		right = m.spinner.View() + " Thinking..."
	}
	gap := lipgloss.NewStyle().Width(max(0, m.width-lipgloss.Width(left)-lipgloss.Width(right)-2)).Render("")
	style := lipgloss.NewStyle().Width(m.width).Padding(0, 1)
	return style.Render(lipgloss.JoinHorizontal(lipgloss.Left, left, gap, right))
}

func (m chatModel) inputView() string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1).
		Width(max(1, m.input.Width+2)).
		Render(m.input.View())
}

func (m chatModel) confirmView() string {
	active := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("205")).
		Padding(0, 2).
		Bold(true)
	inactive := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 2)

	yes, no := inactive.Render("Yes"), inactive.Render("No")
	if m.confirmIndex == 0 {
		yes = active.Render("Yes")
	} else {
		no = active.Render("No")
	}
	return lipgloss.JoinHorizontal(lipgloss.Left, yes, " ", no)
}

func (m *chatModel) updateViewportContent(content string) {
	oldYOffset := m.viewport.YOffset
	m.viewport.SetContent(content)
	if m.followTail {
		m.viewport.GotoBottom()
		return
	}
	m.viewport.SetYOffset(oldYOffset)
}

func streamTick() tea.Cmd {
	return tea.Tick(45*time.Millisecond, func(time.Time) tea.Msg { return streamTickMsg{} })
}

// startStreaming 逐段展示第 idx 条消息，模拟流式输出
func (m *chatModel) startStreaming(idx int) {
	m.streaming = false
	m.streamIdx = -1
	if idx < 0 || idx >= len(m.messages) {
		return
	}
	full := m.messages[idx].Content
	if strings.TrimSpace(full) == "" {
		return
	}
	m.streaming = true
	m.streamIdx = idx
	m.streamFull = full
	m.streamPos = min(len(full), 32)
}

func (m *chatModel) resetMarkdownRenderer() {
	if m.width <= 0 {
		return
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(m.bubbleMaxContentWidth()),
	)
	if err == nil {
		m.renderer = r
	}
}

func (m chatModel) renderChat() string {
	if m.width <= 0 {
		m.width = 80
	}

	var b strings.Builder
	for i, msg := range m.messages {
		if msg == nil || msg.Role == schema.System {
			continue
		}

		content := msg.Content
		if m.streaming && m.streamIdx == i {
			content = m.streamFull[:m.streamPos]
			if strings.TrimSpace(content) == "" {
				content = "…"
			}
		}
		content = strings.TrimRight(content, "\n")
		if strings.TrimSpace(content) == "" {
			continue
		}

		var line string
		if msg.Role == schema.User {
			line = m.renderUser(content)
		} else {
			line = m.renderAssistant(content)
		}
		b.WriteString(line)
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m chatModel) bubbleMaxContentWidth() int {
	if m.width <= 0 {
		return 72
	}
	return max(20, m.width-8)
}

func (m chatModel) desiredContentWidth(s string) int {
	w := max(10, maxLineWidth(s))
	return min(m.bubbleMaxContentWidth(), w)
}

func (m chatModel) wrapToWidth(s string, width int) string {
	if width <= 0 {
		return s
	}
	return lipgloss.NewStyle().Width(width).Render(s)
}

func maxLineWidth(s string) int {
	s = strings.TrimRight(s, "\n")
	if strings.TrimSpace(s) == "" {
		return 0
	}
	maxW := 0
	for _, line := range strings.Split(s, "\n") {
		if w := lipgloss.Width(strings.TrimRight(line, " ")); w > maxW {
			maxW = w
		}
	}
	return maxW
}

func (m chatModel) renderAssistant(content string) string {
	md := content
	if m.renderer != nil {
		if rendered, err := m.renderer.Render(md); err == nil {
			md = strings.TrimRight(rendered, "\n")
		}
	}
	md = m.wrapToWidth(md, m.desiredContentWidth(md))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("63")).
		Padding(0, 1).
		MaxWidth(max(20, m.width-4)).
		Render(md)
}

func (m chatModel) renderUser(content string) string {
	content = m.wrapToWidth(content, m.desiredContentWidth(content))
	bubble := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("205")).
		Padding(0, 1).
		MaxWidth(max(20, m.width-4)).
		Render(content)
	return lipgloss.NewStyle().Width(m.width).Align(lipgloss.Right).Render(bubble)
}
