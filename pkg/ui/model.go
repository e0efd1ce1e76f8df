// Package ui is the terminal front end of the tutor. It mirrors the runner's
// message list from timeline events and turns key presses into runner calls.
package ui

import (
	"context"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	bspinner "github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/socratic/pkg/events"
	"github.com/go-go-golems/socratic/pkg/timeline"
	"github.com/go-go-golems/socratic/pkg/tutor"
)

const (
	inputHeight = 3
	// header, status and help lines around the viewport and input
	chromeHeight = 5
)

type Option func(*Model)

// WithClipboard replaces the system clipboard writer.
func WithClipboard(write func(string) error) Option {
	return func(m *Model) { m.clipboard = write }
}

type Model struct {
	ctx       context.Context
	backend   Backend
	clipboard func(string) error

	view    timeline.View
	loading bool

	spinner  bspinner.Model
	viewport viewport.Model
	input    textarea.Model

	attachment *tutor.Attachment
	attachName string
	status     string
	warning    string

	confirm   *huh.Form
	confirmed *bool

	width  int
	height int
}

func NewModel(ctx context.Context, backend Backend, opts ...Option) Model {
	sp := bspinner.New()
	sp.Spinner = bspinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)

	ta := textarea.New()
	ta.Placeholder = "Type your math problem here..."
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(inputHeight)
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter", "ctrl+j"))
	ta.Focus()

	vp := viewport.New(80, 20)
	vp.Style = lipgloss.NewStyle()

	m := Model{
		ctx:       ctx,
		backend:   backend,
		clipboard: clipboard.WriteAll,
		spinner:   sp,
		viewport:  vp,
		input:     ta,
		width:     80,
	}
	for _, o := range opts {
		o(&m)
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch ev := msg.(type) {
	case EventMsg:
		m.applyEvent(ev.Event)
		return m, nil
	case tea.WindowSizeMsg:
		m.resize(ev.Width, ev.Height)
	case bspinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(ev)
		if m.loading {
			m.refresh(false)
		}
		return m, cmd
	case submitDoneMsg:
		if ev.err != nil {
			m.loading = false
			m.warning = ev.err.Error()
		}
		return m, nil
	case resetDoneMsg:
		if ev.err != nil {
			m.warning = "Could not start a new session: " + ev.err.Error()
		} else {
			m.warning = ""
		}
		return m, nil
	case attachedMsg:
		if ev.err != nil {
			m.warning = ev.err.Error()
			return m, nil
		}
		m.attachment, m.attachName, m.warning = ev.att, ev.name, ""
		return m, nil
	case copiedMsg:
		if ev.err != nil {
			m.warning = "Could not copy: " + ev.err.Error()
		} else {
			m.status = "Copied the last reply to the clipboard."
		}
		return m, nil
	}

	if m.confirm != nil {
		return m.updateConfirm(msg)
	}

	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "ctrl+r":
			return m.openConfirm()
		case "ctrl+y":
			return m.copyLastReply()
		case "enter":
			return m.submit()
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) applyEvent(e events.Event) {
	applied := false
	switch e.Type {
	case events.TypeSnapshot:
		if s, ok := e.Snapshot(); ok {
			applied = m.view.ApplySnapshot(s)
		}
	case events.TypeUpsert:
		if u, ok := e.Upsert(); ok {
			applied = m.view.Apply(u)
		}
	case events.TypeStatus:
		applied = e.Version >= m.view.Version
	}
	if !applied {
		log.Trace().Str("type", string(e.Type)).Uint64("version", e.Version).Msg("ignoring stale event")
		return
	}
	m.loading = e.Loading
	if e.Type == events.TypeSnapshot {
		m.status = ""
	}
	m.refresh(true)
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.loading {
		return m, nil
	}
	text := strings.TrimSpace(m.input.Value())
	if strings.HasPrefix(text, "/") {
		return m.command(text)
	}
	if err := tutor.Validate(text, m.attachment); err != nil {
		if !errors.Is(err, tutor.ErrEmptyMessage) {
			m.warning = err.Error()
		}
		return m, nil
	}

	att := m.attachment
	m.attachment, m.attachName = nil, ""
	m.warning, m.status = "", ""
	m.input.Reset()
	m.loading = true
	return m, submitCmd(m.ctx, m.backend, text, att)
}

// command handles the slash commands typed into the input.
func (m Model) command(text string) (tea.Model, tea.Cmd) {
	name, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)
	m.input.Reset()
	switch name {
	case "/attach":
		if arg == "" {
			m.warning = "usage: /attach <path to image>"
			return m, nil
		}
		return m, attachCmd(arg)
	case "/detach":
		m.attachment, m.attachName = nil, ""
		return m, nil
	case "/reset":
		return m.openConfirm()
	case "/copy":
		return m.copyLastReply()
	default:
		m.warning = "unknown command " + name
		return m, nil
	}
}

func (m Model) openConfirm() (tea.Model, tea.Cmd) {
	confirmed := true
	m.confirmed = &confirmed
	m.confirm = huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Start a new session?").
			Description("Current history will be cleared.").
			Affirmative("Yes").
			Negative("No").
			Value(m.confirmed),
	)).WithShowHelp(false)
	return m, m.confirm.Init()
}

// updateConfirm routes input to the reset form. The form's own completion
// command is dropped, it would quit the program.
func (m Model) updateConfirm(msg tea.Msg) (tea.Model, tea.Cmd) {
	fm, cmd := m.confirm.Update(msg)
	if f, ok := fm.(*huh.Form); ok {
		m.confirm = f
	}
	switch m.confirm.State {
	case huh.StateCompleted:
		yes := *m.confirmed
		m.confirm, m.confirmed = nil, nil
		if yes {
			m.attachment, m.attachName = nil, ""
			m.input.Reset()
			return m, resetCmd(m.ctx, m.backend)
		}
		return m, nil
	case huh.StateAborted:
		m.confirm, m.confirmed = nil, nil
		return m, nil
	}
	return m, cmd
}

func (m Model) copyLastReply() (tea.Model, tea.Cmd) {
	text, ok := m.backend.LastReply()
	if !ok {
		m.warning = "No reply to copy yet."
		return m, nil
	}
	return m, copyCmd(m.clipboard, text)
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.input.SetWidth(width)
	m.viewport.Width = width
	m.viewport.Height = max(3, height-inputHeight-chromeHeight)
	m.refresh(true)
}

// refresh re-renders the message list into the viewport.
func (m *Model) refresh(follow bool) {
	m.viewport.SetContent(m.renderMessages())
	if follow {
		m.viewport.GotoBottom()
	}
}
