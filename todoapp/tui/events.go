package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/ichigozero/taskhaven/todoapp"
)

// Events carries notifications, refreshes and identity changes from the
// controller and the session into the program.
type Events chan tea.Msg

func NewEvents() Events {
	return make(Events, 64)
}

// Notify implements todoapp.Notifier.
func (e Events) Notify(message string, severity todoapp.Severity) {
	e <- noticeMsg{text: message, severity: severity}
}

// Refresh is meant for todoapp.WithRefreshHook. Refreshes coalesce when
// the program is behind.
func (e Events) Refresh() {
	select {
	case e <- refreshMsg{}:
	default:
	}
}

// Identity is meant for todoapp.Session.Watch.
func (e Events) Identity(userID uint64) {
	e <- identityMsg{userID: userID}
}

func (e Events) wait() tea.Cmd {
	return func() tea.Msg {
		return <-e
	}
}
