package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	orchestration "github.com/koscakluka/lumira-core/core"
	"github.com/koscakluka/lumira-core/core/events"
	"github.com/koscakluka/lumira-core/core/knowledge"
	"github.com/muesli/reflow/wordwrap"
)

type assistant interface {
	Send(ctx context.Context, text string) (*orchestration.Exchange, error)
	SetDraft(text string)
	Listen(ctx context.Context) error
	StopListening()
	RecognitionState() orchestration.RecognitionState
	Cancel()
	StopSpeaking()
	Mute()
	Unmute()
	IsMuted() bool
	SetActiveFile(name string)
	ActiveFile() string
	Conversation() []orchestration.Message
}

type knowledgeBase interface {
	Upload(ctx context.Context, name string, content io.Reader) (string, error)
	List(ctx context.Context) ([]knowledge.File, error)
	Delete(ctx context.Context, name string) (string, error)
}

type entryKind int

const (
	entryUser entryKind = iota
	entryAssistant
	entrySystem
)

type entry struct {
	id   string
	kind entryKind
	text string
}

type noteMsg string

type errMsg struct{ err error }

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	systemStyle    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("214"))
)

const helpText = "enter send • ctrl+r mic • ctrl+s stop speaking • esc cancel • ctrl+t mute • /help • ctrl+c quit"

type model struct {
	ctx       context.Context
	assistant assistant
	knowledge knowledgeBase
	bridge    *eventBridge

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	entries     []entry
	streamingID string
	// draftShown is set while the input holds a recognized draft.
	draftShown bool
	listening  bool
	speaking   bool
	width      int
}

func newModel(ctx context.Context, assistant assistant, knowledge knowledgeBase, bridge *eventBridge) model {
	input := textinput.New()
	input.Placeholder = "Ask about the products on display..."
	input.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot

	m := model{
		ctx:       ctx,
		assistant: assistant,
		knowledge: knowledge,
		bridge:    bridge,
		viewport:  viewport.New(80, 20),
		input:     input,
		spinner:   s,
		width:     80,
	}
	for _, message := range assistant.Conversation() {
		m.upsert(string(message.ID), roleKind(message.Role), message.Text)
	}
	m.refresh()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.bridge.wait())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-5, 3)
		m.input.Width = max(msg.Width-4, 10)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventsMsg:
		for _, event := range msg {
			m.apply(event)
		}
		m.refresh()
		return m, m.bridge.wait()

	case noteMsg:
		m.addSystem(string(msg))
		m.refresh()
		return m, nil

	case errMsg:
		m.addSystem("Error: " + msg.err.Error())
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit

	case tea.KeyEnter:
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.SetValue("")
		consumesDraft := m.draftShown
		m.draftShown = false
		if strings.HasPrefix(text, "/") {
			return m, m.runCommand(text)
		}
		return m, m.send(text, consumesDraft)

	case tea.KeyCtrlR:
		return m, m.toggleListening()

	case tea.KeyCtrlS:
		m.assistant.StopSpeaking()
		return m, nil

	case tea.KeyEsc:
		m.assistant.Cancel()
		return m, nil

	case tea.KeyCtrlT:
		if m.assistant.IsMuted() {
			m.assistant.Unmute()
			m.addSystem("Narration on.")
		} else {
			m.assistant.Mute()
			m.addSystem("Narration muted.")
		}
		m.refresh()
		return m, nil

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// send sends exactly the text that was in the input. A recognized draft that
// was shown in the input is cleared once sent.
func (m model) send(text string, consumesDraft bool) tea.Cmd {
	return func() tea.Msg {
		_, err := m.assistant.Send(m.ctx, text)
		if consumesDraft {
			m.assistant.SetDraft("")
		}
		if err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func (m model) toggleListening() tea.Cmd {
	if m.assistant.RecognitionState() == orchestration.RecognitionListening {
		m.assistant.StopListening()
		return nil
	}
	return func() tea.Msg {
		if err := m.assistant.Listen(m.ctx); err != nil {
			if errors.Is(err, orchestration.ErrCapabilityUnavailable) {
				return noteMsg("Voice input is not available.")
			}
			return errMsg{err}
		}
		return nil
	}
}

func (m *model) apply(event events.Event) {
	switch event := event.(type) {
	case events.MessageAppended:
		m.upsert(event.MessageID, roleKind(orchestration.Role(event.Role)), event.Text)
	case events.MessageUpdated:
		m.upsert(event.MessageID, entryAssistant, event.Text)
	case events.ExchangeStarted:
		m.streamingID = event.MessageID
	case events.ExchangeCompleted:
		m.endStreaming(event.MessageID)
	case events.ExchangeFailed:
		m.endStreaming(event.MessageID)
	case events.ExchangeCancelled:
		m.endStreaming(event.MessageID)
	case events.UtteranceStarted:
		m.speaking = true
	case events.UtteranceEnded:
		m.speaking = false
	case events.NarrationCancelled:
		m.speaking = false
	case events.RecognitionStateChanged:
		m.listening = event.State == string(orchestration.RecognitionListening)
	case events.DraftUpdated:
		// The input is cleared locally on Enter, an emptied draft must not
		// wipe what was typed since.
		if event.Text == "" {
			return
		}
		m.input.SetValue(event.Text)
		m.input.CursorEnd()
		m.draftShown = true
	case events.Notice:
		m.addSystem(event.Message)
	}
}

func (m *model) endStreaming(messageID string) {
	if m.streamingID == messageID {
		m.streamingID = ""
	}
}

func (m *model) upsert(id string, kind entryKind, text string) {
	for i := range m.entries {
		if m.entries[i].id == id {
			m.entries[i].text = text
			return
		}
	}
	m.entries = append(m.entries, entry{id: id, kind: kind, text: text})
}

func (m *model) addSystem(text string) {
	m.entries = append(m.entries, entry{kind: entrySystem, text: text})
}

// thinking reports whether a reply is requested but nothing has arrived yet.
func (m model) thinking() bool {
	if m.streamingID == "" {
		return false
	}
	for _, e := range m.entries {
		if e.id == m.streamingID {
			return e.text == ""
		}
	}
	return true
}

func (m *model) refresh() {
	width := max(m.width-2, 20)

	var b strings.Builder
	for _, e := range m.entries {
		if e.text == "" {
			continue
		}
		switch e.kind {
		case entryUser:
			b.WriteString(userStyle.Render("You"))
		case entryAssistant:
			b.WriteString(assistantStyle.Render("Lumira"))
		case entrySystem:
			b.WriteString(systemStyle.Render(wordwrap.String(e.text, width)))
			b.WriteString("\n\n")
			continue
		}
		b.WriteString("\n")
		b.WriteString(wordwrap.String(e.text, width))
		b.WriteString("\n\n")
	}

	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m model) View() string {
	var status []string
	if m.listening {
		status = append(status, "🎤 listening")
	}
	if m.speaking {
		status = append(status, "🔊 speaking")
	}
	if m.assistant.IsMuted() {
		status = append(status, "muted")
	}
	if file := m.assistant.ActiveFile(); file != "" {
		status = append(status, "file: "+file)
	}

	header := titleStyle.Render("Lumira") + "  " + statusStyle.Render(strings.Join(status, " • "))
	indicator := ""
	if m.thinking() {
		indicator = m.spinner.View() + " Thinking..."
	}

	return fmt.Sprintf("%s\n%s\n%s\n%s\n%s",
		header,
		m.viewport.View(),
		indicator,
		m.input.View(),
		statusStyle.Render(helpText),
	)
}

func roleKind(role orchestration.Role) entryKind {
	if role == orchestration.RoleUser {
		return entryUser
	}
	return entryAssistant
}
