// Package tui renders the question wizard in the terminal for the intake and
// respond commands.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tapline/internal/domain"
	"tapline/internal/questions"
	"tapline/internal/wizard"
)

// SubmitFunc sends the collected answers and returns a line to show on success.
type SubmitFunc func(ctx context.Context, answers domain.Answers) (string, error)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle    = lipgloss.NewStyle().Bold(true)
	probeStyle    = lipgloss.NewStyle().Faint(true).Italic(true)
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	progressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type submittedMsg struct {
	result string
	err    error
}

// Model is a bubbletea model wrapping a wizard.Wizard.
type Model struct {
	title   string
	wiz     *wizard.Wizard
	submit  SubmitFunc
	timeout time.Duration

	input  textinput.Model
	cursor int
	err    error
	result string
	width  int
}

// New builds a model for a wizard. Answers are sent through submit once every
// question is answered and the user confirms.
func New(title string, wiz *wizard.Wizard, submit SubmitFunc) Model {
	in := textinput.New()
	in.Prompt = "> "
	in.CharLimit = 4000
	in.Width = 80
	m := Model{title: title, wiz: wiz, submit: submit, timeout: 3 * time.Minute, input: in}
	m.load()
	return m
}

// Result is the success line, empty until the submission went through.
func (m Model) Result() string { return m.result }

// Done reports whether the answers were accepted.
func (m Model) Done() bool { return m.wiz.State() == wizard.StateDone }

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// load prepares the input widgets for the current question.
func (m *Model) load() {
	m.cursor = 0
	q, ok := m.wiz.Current()
	if !ok {
		m.input.Blur()
		return
	}
	if q.Kind == questions.KindSelect {
		m.input.Blur()
		if prev := m.wiz.Answers()[q.ID]; prev != "" {
			for i, o := range q.Options {
				if o == prev {
					m.cursor = i
				}
			}
		}
		return
	}
	m.input.SetValue(m.wiz.Draft())
	m.input.CursorEnd()
	m.input.Placeholder = ""
	if q.Optional {
		m.input.Placeholder = "optional, tab to skip"
	}
	m.input.Focus()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		if msg.Width > 10 {
			m.input.Width = msg.Width - 4
		}
		return m, nil

	case submittedMsg:
		if msg.err != nil {
			m.wiz.SubmitFailed(msg.err)
			m.load()
			return m, nil
		}
		m.wiz.SubmitSucceeded()
		m.result = msg.result
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.wiz.State() {
		case wizard.StateDone:
			return m, tea.Quit
		case wizard.StateSubmitting:
			return m, nil
		case wizard.StateReady:
			return m.updateReady(msg)
		default:
			return m.updateAsking(msg)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateReady(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		answers, ok := m.wiz.BeginSubmit()
		if !ok {
			return m, nil
		}
		return m, m.submitCmd(answers)
	case "esc", "shift+tab":
		if m.wiz.Back() {
			m.load()
		}
	case "q":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateAsking(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	q, _ := m.wiz.Current()
	switch msg.String() {
	case "esc", "shift+tab":
		if m.wiz.Back() {
			m.err = nil
			m.load()
		}
		return m, nil
	case "tab":
		if err := m.wiz.Skip(); err != nil {
			m.err = err
			return m, nil
		}
		m.err = nil
		m.load()
		return m, nil
	case "enter":
		value := m.input.Value()
		if q.Kind == questions.KindSelect && m.cursor < len(q.Options) {
			value = q.Options[m.cursor]
		}
		if err := m.wiz.Answer(value); err != nil {
			m.err = err
			return m, nil
		}
		m.err = nil
		m.load()
		return m, nil
	}

	if q.Kind == questions.KindSelect {
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(q.Options)-1 {
				m.cursor++
			}
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submitCmd(answers domain.Answers) tea.Cmd {
	submit, timeout := m.submit, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		result, err := submit(ctx, answers)
		return submittedMsg{result: result, err: err}
	}
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	switch m.wiz.State() {
	case wizard.StateDone:
		b.WriteString(successStyle.Render("Submitted. " + m.result))
		b.WriteString("\n\nPress any key to exit.\n")
		return b.String()
	case wizard.StateSubmitting:
		b.WriteString("Submitting...\n")
		return b.String()
	case wizard.StateReady:
		fmt.Fprintf(&b, "All %d questions answered.\n\n", m.wiz.Len())
		b.WriteString("enter submit · esc go back · q quit\n")
		m.writeErr(&b)
		return b.String()
	}

	q, ok := m.wiz.Current()
	if !ok {
		return b.String()
	}
	b.WriteString(progressStyle.Render(fmt.Sprintf("Question %d of %d", m.wiz.Index()+1, m.wiz.Len())))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render(q.Label))
	b.WriteString("\n")
	if q.Probe != "" {
		b.WriteString(probeStyle.Render(q.Probe))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	if q.Kind == questions.KindSelect {
		for i, o := range q.Options {
			if i == m.cursor {
				b.WriteString(cursorStyle.Render("> " + o))
			} else {
				b.WriteString("  " + o)
			}
			b.WriteString("\n")
		}
	} else {
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
	m.writeErr(&b)
	b.WriteString("\n")
	b.WriteString(progressStyle.Render("enter next · esc back · ctrl+c quit"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) writeErr(b *strings.Builder) {
	err := m.err
	if err == nil {
		err = m.wiz.Err()
	}
	if err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("Error: " + err.Error()))
		b.WriteString("\n")
	}
}

// Run starts the program on the terminal and returns the final model.
func Run(m Model, opts ...tea.ProgramOption) (Model, error) {
	final, err := tea.NewProgram(m, opts...).Run()
	if err != nil {
		return m, err
	}
	out, ok := final.(Model)
	if !ok {
		return m, fmt.Errorf("unexpected model %T", final)
	}
	return out, nil
}
