package todoapp

import (
	"sort"

	"github.com/ichigozero/taskhaven/todosvc"
)

// SortTodos returns a copy of todos with incomplete todos first and, within
// each group, high before medium before low. Equal todos keep their order.
func SortTodos(todos []todosvc.Todo) []todosvc.Todo {
	sorted := make([]todosvc.Todo, len(todos))
	copy(sorted, todos)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Completed != b.Completed {
			return !a.Completed
		}
		return a.Priority.Rank() < b.Priority.Rank()
	})

	return sorted
}
