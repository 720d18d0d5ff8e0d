package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"voxchat/internal/chat"
)

// RefreshMsg asks the model to redraw the transcript. The controller's
// change callback delivers it through Program.Send.
type RefreshMsg struct{}

type statusMsg struct {
	text string
	err  bool
}

type Options struct {
	SpeechModels   []string
	LanguageModels []string
	MarkdownStyle  string
}

type Model struct {
	ctx  context.Context
	ctrl *chat.Controller
	opt  Options

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	bubbles  *bubbles
	picker   *picker

	width  int
	height int
	status statusMsg
}

func NewModel(ctx context.Context, ctrl *chat.Controller, opt Options) Model {
	in := textinput.New()
	in.Placeholder = "Write a message..."
	in.CharLimit = 4000
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		ctx:      ctx,
		ctrl:     ctrl,
		opt:      opt,
		viewport: viewport.New(80, 20),
		input:    in,
		spinner:  sp,
		bubbles:  newBubbles(opt.MarkdownStyle),
		width:    80,
		height:   24,
	}
	m.layout()

	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ctrl.Resize(msg.Width)
		m.layout()
		m.refresh()
		return m, nil

	case RefreshMsg:
		m.refresh()
		return m, nil

	case statusMsg:
		m.status = msg
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.picker != nil {
			return m.updatePicker(msg)
		}
		return m.updateChat(msg)
	}

	return m, nil
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "enter":
		text := m.input.Value()
		m.input.Reset()
		return m, m.send(text)

	case "ctrl+r":
		return m, m.toggleRecording()

	case "ctrl+l":
		m.ctrl.Clear()
		m.status = statusMsg{}
		m.refresh()
		return m, nil

	case "ctrl+s":
		m.picker = newPicker(pickSpeech, "Select your STT model", m.opt.SpeechModels, m.ctrl.Session().SpeechModel())
		return m, nil

	case "ctrl+o":
		m.picker = newPicker(pickLanguage, "Select your LLM", m.opt.LanguageModels, m.ctrl.Session().LanguageModel())
		return m, nil

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updatePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+c":
		m.picker = nil
	case "up", "k":
		m.picker.move(-1)
	case "down", "j":
		m.picker.move(1)
	case "enter":
		p := m.picker
		m.picker = nil
		return m, m.selectModel(p.kind, p.selected())
	}
	return m, nil
}

// Controller calls block on whisper and the completion API, so they run
// as commands off the event loop.

func (m Model) send(text string) tea.Cmd {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		ctrl.SendText(ctx, text)
		return RefreshMsg{}
	}
}

func (m Model) toggleRecording() tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		ctrl.ToggleRecording(ctx)
		return RefreshMsg{}
	}
}

func (m Model) selectModel(kind pickerKind, name string) tea.Cmd {
	if name == "" {
		return nil
	}
	ctrl := m.ctrl
	return func() tea.Msg {
		switch kind {
		case pickSpeech:
			if err := ctrl.SelectSpeechModel(name); err != nil {
				return statusMsg{text: err.Error(), err: true}
			}
			return statusMsg{text: "Speech model: " + name}
		default:
			ctrl.SelectLanguageModel(name)
			return statusMsg{text: "Language model: " + name}
		}
	}
}

func (m *Model) layout() {
	m.viewport.Width = m.width
	m.viewport.Height = max(1, m.height-4)
	m.input.Width = max(10, m.width-4)
}

func (m *Model) refresh() {
	entries := m.ctrl.Transcript().Entries()

	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, m.bubbles.render(e))
	}

	m.viewport.SetContent(strings.Join(parts, "\n\n"))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	var b strings.Builder

	sess := m.ctrl.Session()
	b.WriteString(titleStyle.Render("AI Assistant"))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  stt: %s  llm: %s", sess.SpeechModel(), sess.LanguageModel())))
	b.WriteString("\n")

	if m.picker != nil {
		b.WriteString(m.picker.view(m.viewport.Height))
	} else {
		b.WriteString(m.viewport.View())
	}
	b.WriteString("\n")

	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("  Enter: send  Ctrl+R: record  Ctrl+L: clear  Ctrl+S: STT model  Ctrl+O: LLM  Ctrl+C: quit"))

	return b.String()
}

func (m Model) statusLine() string {
	var parts []string

	if m.ctrl.State() == chat.StateRecording {
		parts = append(parts, recordingStyle.Render("● "+m.ctrl.RecordLabel()))
	} else {
		parts = append(parts, statusBarStyle.Render(m.ctrl.RecordLabel()))
	}

	if m.ctrl.Busy() {
		parts = append(parts, m.spinner.View()+" thinking")
	}

	if m.status.text != "" {
		if m.status.err {
			parts = append(parts, errorStyle.Render(m.status.text))
		} else {
			parts = append(parts, dimStyle.Render(m.status.text))
		}
	}

	return strings.Join(parts, " ")
}
