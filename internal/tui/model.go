package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pdfqa/internal/apperrors"
	"pdfqa/internal/dispatch"
)

// Dispatcher is the TUI-facing side of the background question runner.
type Dispatcher interface {
	Submit(turnID, question string) error
	Results() <-chan dispatch.Result
}

type resultMsg dispatch.Result

type focus int

const (
	focusInput focus = iota
	focusSend
)

// Model is the Bubble Tea model of the chat window.
type Model struct {
	dispatcher Dispatcher
	conv       *dispatch.Conversation
	input      textinput.Model
	viewport   viewport.Model
	spinner    spinner.Model
	summary    string
	status     string
	focus      focus
	ready      bool
}

// New creates a chat model. Answers are produced by d off the UI loop.
func New(d Dispatcher, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Digite sua pergunta e pressione Enter"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	return Model{
		dispatcher: d,
		conv:       dispatch.NewConversation(),
		input:      ti,
		viewport:   viewport.New(0, 0),
		spinner:    sp,
		summary:    summary,
		status:     "Ready. Tab switches to [Send], Ctrl+C quits.",
	}
}

// Init starts the cursor blink, the spinner and the result listener.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForResult(m.dispatcher.Results()))
}

// waitForResult delivers the next finished turn as a message. It is re-armed
// after every result.
func waitForResult(results <-chan dispatch.Result) tea.Cmd {
	return func() tea.Msg {
		r, ok := <-results
		if !ok {
			return nil
		}
		return resultMsg(r)
	}
}

// Update handles key, window, spinner and result events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := chatBoxStyle.GetFrameSize()
		_, qh := inputBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header + summary, status, input box, spacer
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.input.Width = max(10, msg.Width-20)
		m.refresh()
		return m, nil

	case resultMsg:
		if !m.conv.Finalize(dispatch.Result(msg)) {
			return m, waitForResult(m.dispatcher.Results())
		}
		if msg.Err != nil {
			m.status = "A question failed; see the conversation."
		} else {
			m.status = m.pendingStatus()
		}
		m.refresh()
		return m, waitForResult(m.dispatcher.Results())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.conv.Pending() > 0 {
			m.refresh()
		}
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d", "esc":
			return m, tea.Quit
		case "tab", "shift+tab":
			if m.focus == focusInput {
				m.focus = focusSend
				m.input.Blur()
				return m, nil
			}
			m.focus = focusInput
			return m, m.input.Focus()
		case "enter":
			m.submit()
			return m, nil
		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		if m.focus == focusSend {
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit clears the input, adds a pending turn and hands the question to the
// dispatcher. It never waits for the answer.
func (m *Model) submit() {
	q := strings.TrimSpace(m.input.Value())
	m.input.SetValue("")
	if q == "" {
		m.status = apperrors.UserMessage(apperrors.ErrEmptyQuestion)
		return
	}
	turn := m.conv.Begin(q)
	if err := m.dispatcher.Submit(turn.ID, q); err != nil {
		m.conv.Finalize(dispatch.Result{TurnID: turn.ID, Err: err})
	}
	m.status = m.pendingStatus()
	m.refresh()
	m.viewport.GotoBottom()
}

func (m Model) pendingStatus() string {
	if n := m.conv.Pending(); n > 0 {
		return fmt.Sprintf("Waiting for %d answer(s)...", n)
	}
	return "Ready."
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTurns())
}

// View renders the header, conversation, input row and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("Marvel Chat")
	summary := summaryStyle.Render(m.summary)
	send := buttonStyle.Render("[Send]")
	if m.focus == focusSend {
		send = focusedButtonStyle.Render("[Send]")
	}
	row := lipgloss.JoinHorizontal(lipgloss.Center, inputBoxStyle.Render(m.input.View()), " ", send)
	status := statusStyle.Render(m.status)
	return header + "\n" + summary + "\n" + chatBoxStyle.Render(m.viewport.View()) + "\n" + row + "\n" + status
}

func (m Model) renderTurns() string {
	turns := m.conv.Turns()
	if len(turns) == 0 {
		return "Ask anything about the document."
	}
	width := max(10, m.viewport.Width-2)
	wrap := lipgloss.NewStyle().Width(width)
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(wrap.Render(userStyle.Render("You: ") + t.Question))
		b.WriteString("\n")
		switch {
		case t.State == dispatch.Pending:
			b.WriteString(m.spinner.View() + " " + pendingStyle.Render("thinking..."))
		case t.Err != nil:
			b.WriteString(wrap.Render(errorStyle.Render("Error: ") + apperrors.UserMessage(t.Err)))
		case t.Answer == "":
			b.WriteString(botStyle.Render("Bot: ") + pendingStyle.Render("(no answer)"))
		default:
			b.WriteString(wrap.Render(botStyle.Render("Bot: ") + t.Answer))
		}
	}
	return b.String()
}

var (
	headerStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	summaryStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	chatBoxStyle       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	buttonStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	focusedButtonStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("9"))
	userStyle          = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	botStyle           = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	errorStyle         = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	pendingStyle       = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("8"))
)
