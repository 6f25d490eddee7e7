package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/ichigozero/taskhaven/todoapp"
	"github.com/ichigozero/taskhaven/todosvc"
)

var (
	titleStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	cursorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	doneStyle        = lipgloss.NewStyle().Strikethrough(true).Faint(true)
	helpStyle        = lipgloss.NewStyle().Faint(true)
	emptyStyle       = lipgloss.NewStyle().Faint(true).Italic(true)
	labelStyle       = lipgloss.NewStyle().Bold(true)
	focusedStyle     = lipgloss.NewStyle().Underline(true)
	successStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	destructiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))

	badgeStyle   = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("0"))
	badgeColours = map[todosvc.Priority]lipgloss.Color{
		todosvc.PriorityHigh:   lipgloss.Color("203"),
		todosvc.PriorityMedium: lipgloss.Color("220"),
		todosvc.PriorityLow:    lipgloss.Color("248"),
	}
)

func renderBadge(p todosvc.Priority) string {
	colour, ok := badgeColours[p]
	if !ok {
		colour = badgeColours[todosvc.PriorityLow]
	}
	return badgeStyle.Background(colour).Render(string(p))
}

// renderTodo draws one row: cursor, checkbox, text and priority badge.
func renderTodo(todo todosvc.Todo, selected bool) string {
	var b strings.Builder

	if selected {
		b.WriteString(cursorStyle.Render("> "))
	} else {
		b.WriteString("  ")
	}

	if todo.Completed {
		b.WriteString("[x] ")
		b.WriteString(doneStyle.Render(todo.Text))
	} else {
		b.WriteString("[ ] ")
		b.WriteString(todo.Text)
	}

	b.WriteString(" ")
	b.WriteString(renderBadge(todo.Priority))
	return b.String()
}

// renderAddForm draws the text input next to the priority selector.
func renderAddForm(input string, priority todosvc.Priority, priorityFocused bool) string {
	selector := "priority: " + renderBadge(priority)
	if priorityFocused {
		selector = focusedStyle.Render("priority:") + " " + renderBadge(priority) + helpStyle.Render(" (p to change)")
	}
	return input + "  " + selector
}

func renderNotice(n noticeMsg) string {
	if n.text == "" {
		return ""
	}
	if n.severity == todoapp.SeverityDestructive {
		return destructiveStyle.Render(n.text)
	}
	return successStyle.Render(n.text)
}
