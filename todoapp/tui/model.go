package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/ichigozero/taskhaven/todoapp"
	"github.com/ichigozero/taskhaven/todosvc"
)

const noticeTTL = 3 * time.Second

// Session is the part of todoapp.Session the program drives.
type Session interface {
	SignIn(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, email, password string) error
	SignOut(ctx context.Context) error
	UserID() uint64
}

// Todos is the part of todoapp.Controller the program drives.
type Todos interface {
	Initialize(ctx context.Context, userID uint64) error
	Add(ctx context.Context, text string, priority todosvc.Priority) error
	Toggle(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	ChangePriority(ctx context.Context, id string, next todosvc.Priority) error
	SortedView() []todosvc.Todo
	Empty() bool
}

type (
	identityMsg    struct{ userID uint64 }
	refreshMsg     struct{}
	clearNoticeMsg struct{ seq int }
	authDoneMsg    struct {
		signUp bool
		err    error
	}
	noticeMsg struct {
		text     string
		severity todoapp.Severity
	}
)

type screen int

const (
	screenAuth screen = iota
	screenList
)

type focus int

const (
	focusText focus = iota
	focusPriority
	focusList
)

type Model struct {
	ctx     context.Context
	session Session
	todos   Todos
	events  Events

	screen screen

	email      textinput.Model
	password   textinput.Model
	onPassword bool
	signUp     bool
	submitting bool
	spinner    spinner.Model

	input    textinput.Model
	priority todosvc.Priority
	focus    focus
	cursor   int

	notice    noticeMsg
	noticeSeq int
}

func New(ctx context.Context, session Session, todos Todos, events Events) Model {
	email := textinput.New()
	email.Placeholder = "Email"
	email.CharLimit = 255
	email.Width = 40

	password := textinput.New()
	password.Placeholder = "Password"
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'
	password.Width = 40

	input := textinput.New()
	input.Placeholder = "Add a new todo..."
	input.CharLimit = 200
	input.Width = 40

	m := Model{
		ctx:      ctx,
		session:  session,
		todos:    todos,
		events:   events,
		email:    email,
		password: password,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		input:    input,
		priority: todosvc.PriorityLow,
	}

	if session.UserID() != 0 {
		m.screen = screenList
		m.input.Focus()
	} else {
		m.email.Focus()
	}
	return m
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.events.wait(), textinput.Blink}
	if userID := m.session.UserID(); userID != 0 {
		cmds = append(cmds, m.initialize(userID))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.screen == screenAuth {
			return m.updateAuth(msg)
		}
		return m.updateList(msg)

	case identityMsg:
		m.cursor = 0
		if msg.userID == 0 {
			m.screen = screenAuth
			m.focus = focusText
			m.input.Blur()
			m.password.SetValue("")
			m.onPassword = false
			m.password.Blur()
			m.email.Focus()
		} else {
			m.screen = screenList
			m.focus = focusText
			m.email.Blur()
			m.password.Blur()
			m.input.Focus()
		}
		return m, tea.Batch(m.events.wait(), m.initialize(msg.userID))

	case refreshMsg:
		m.clampCursor()
		return m, m.events.wait()

	case noticeMsg:
		var cmd tea.Cmd
		m, cmd = m.showNotice(msg)
		return m, tea.Batch(m.events.wait(), cmd)

	case clearNoticeMsg:
		if msg.seq == m.noticeSeq {
			m.notice = noticeMsg{}
		}
		return m, nil

	case authDoneMsg:
		m.submitting = false
		if msg.err != nil {
			return m.showNotice(noticeMsg{text: todoapp.Message(msg.err), severity: todoapp.SeverityDestructive})
		}
		m.email.SetValue("")
		m.password.SetValue("")
		text := "Successfully logged in!"
		if msg.signUp {
			text = "Account created successfully!"
		}
		return m.showNotice(noticeMsg{text: text, severity: todoapp.SeverityDefault})

	case spinner.TickMsg:
		if !m.submitting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) showNotice(n noticeMsg) (Model, tea.Cmd) {
	m.noticeSeq++
	m.notice = n
	seq := m.noticeSeq
	return m, tea.Tick(noticeTTL, func(time.Time) tea.Msg {
		return clearNoticeMsg{seq: seq}
	})
}

func (m Model) initialize(userID uint64) tea.Cmd {
	ctx, todos := m.ctx, m.todos
	return func() tea.Msg {
		todos.Initialize(ctx, userID)
		return nil
	}
}

func (m Model) updateAuth(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "tab", "shift+tab", "up", "down":
		m.onPassword = !m.onPassword
		var cmd tea.Cmd
		if m.onPassword {
			m.email.Blur()
			cmd = m.password.Focus()
		} else {
			m.password.Blur()
			cmd = m.email.Focus()
		}
		return m, cmd

	case "ctrl+t":
		if !m.submitting {
			m.signUp = !m.signUp
		}
		return m, nil

	case "enter":
		if m.submitting {
			return m, nil
		}
		m.submitting = true
		return m, tea.Batch(m.spinner.Tick, m.submit())
	}

	var cmd tea.Cmd
	if m.onPassword {
		m.password, cmd = m.password.Update(msg)
	} else {
		m.email, cmd = m.email.Update(msg)
	}
	return m, cmd
}

func (m Model) submit() tea.Cmd {
	ctx, session := m.ctx, m.session
	email, password, signUp := m.email.Value(), m.password.Value(), m.signUp
	return func() tea.Msg {
		var err error
		if signUp {
			err = session.SignUp(ctx, email, password)
		} else {
			err = session.SignIn(ctx, email, password)
		}
		return authDoneMsg{signUp: signUp, err: err}
	}
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+o":
		return m, m.signOut()

	case "tab":
		m.focus = (m.focus + 1) % 3
		cmd := m.syncFocus()
		return m, cmd

	case "shift+tab":
		m.focus = (m.focus + 2) % 3
		cmd := m.syncFocus()
		return m, cmd
	}

	switch m.focus {
	case focusText:
		if msg.String() == "enter" {
			return m.add()
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case focusPriority:
		switch msg.String() {
		case "enter":
			return m.add()
		case "p", " ", "space", "right", "l":
			m.priority = m.priority.Next()
		case "left", "h":
			m.priority = m.priority.Next().Next()
		}
		return m, nil
	}

	view := m.todos.SortedView()
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(view)-1 {
			m.cursor++
		}
	case " ", "space", "x":
		if todo, ok := m.selected(view); ok {
			return m, m.run(func(ctx context.Context, todos Todos) { todos.Toggle(ctx, todo.ID) })
		}
	case "p":
		if todo, ok := m.selected(view); ok {
			next := todo.Priority.Next()
			return m, m.run(func(ctx context.Context, todos Todos) { todos.ChangePriority(ctx, todo.ID, next) })
		}
	case "d":
		if todo, ok := m.selected(view); ok {
			return m, m.run(func(ctx context.Context, todos Todos) { todos.Delete(ctx, todo.ID) })
		}
	}
	return m, nil
}

func (m *Model) syncFocus() tea.Cmd {
	if m.focus == focusText {
		return m.input.Focus()
	}
	m.input.Blur()
	return nil
}

func (m Model) add() (tea.Model, tea.Cmd) {
	text, priority := m.input.Value(), m.priority
	if strings.TrimSpace(text) == "" {
		return m, nil
	}
	m.input.SetValue("")
	return m, m.run(func(ctx context.Context, todos Todos) { todos.Add(ctx, text, priority) })
}

// run executes fn off the update loop. Outcomes arrive as notices and
// refreshes through Events.
func (m Model) run(fn func(ctx context.Context, todos Todos)) tea.Cmd {
	ctx, todos := m.ctx, m.todos
	return func() tea.Msg {
		fn(ctx, todos)
		return nil
	}
}

func (m Model) signOut() tea.Cmd {
	ctx, session := m.ctx, m.session
	return func() tea.Msg {
		if err := session.SignOut(ctx); err != nil {
			return noticeMsg{text: todoapp.Message(err), severity: todoapp.SeverityDestructive}
		}
		return noticeMsg{text: "Signed out successfully!", severity: todoapp.SeverityDefault}
	}
}

func (m Model) selected(view []todosvc.Todo) (todosvc.Todo, bool) {
	if m.cursor < 0 || m.cursor >= len(view) {
		return todosvc.Todo{}, false
	}
	return view[m.cursor], true
}

func (m *Model) clampCursor() {
	n := len(m.todos.SortedView())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("taskhaven"))
	b.WriteString("\n\n")

	if m.screen == screenAuth {
		b.WriteString(m.viewAuth())
	} else {
		b.WriteString(m.viewList())
	}

	if n := renderNotice(m.notice); n != "" {
		b.WriteString("\n")
		b.WriteString(n)
	}
	b.WriteString("\n")
	return b.String()
}

func (m Model) viewAuth() string {
	var b strings.Builder

	heading, other := "Sign in", "sign up"
	if m.signUp {
		heading, other = "Sign up", "sign in"
	}
	b.WriteString(labelStyle.Render(heading))
	b.WriteString("\n\n")
	b.WriteString(m.email.View())
	b.WriteString("\n")
	b.WriteString(m.password.View())
	b.WriteString("\n\n")

	if m.submitting {
		b.WriteString(m.spinner.View())
		b.WriteString(" Loading...\n")
	}

	b.WriteString(helpStyle.Render("tab next field • enter submit • ctrl+t " + other + " • ctrl+c quit"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) viewList() string {
	var b strings.Builder

	b.WriteString(renderAddForm(m.input.View(), m.priority, m.focus == focusPriority))
	b.WriteString("\n\n")

	if m.todos.Empty() {
		b.WriteString(emptyStyle.Render(todoapp.EmptyMessage))
		b.WriteString("\n")
	} else {
		for i, todo := range m.todos.SortedView() {
			b.WriteString(renderTodo(todo, m.focus == focusList && i == m.cursor))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("tab focus • enter add • space/x toggle • p priority • d delete • ctrl+o sign out • ctrl+c quit"))
	b.WriteString("\n")
	return b.String()
}

// Run starts the program on the alternate screen until ctx is done or the
// user quits.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
