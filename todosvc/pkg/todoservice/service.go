package todoservice

import (
	"context"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/ichigozero/taskhaven/todosvc"
	"github.com/ichigozero/taskhaven/todosvc/changefeed"
)

type Service interface {
	CreateTodo(ctx context.Context, a todosvc.Auth, todo todosvc.Todo) (todosvc.Todo, error)
	Todos(ctx context.Context, a todosvc.Auth) ([]todosvc.Todo, error)
	Todo(ctx context.Context, a todosvc.Auth, todoID string) (todosvc.Todo, error)
	UpdateTodo(ctx context.Context, a todosvc.Auth, todoID string, patch todosvc.Patch) (todosvc.Todo, error)
	DeleteTodo(ctx context.Context, a todosvc.Auth, todoID string) (bool, error)
}

func New(t todosvc.TodoRepository, feed changefeed.Feed, logger log.Logger) Service {
	var svc Service
	{
		svc = NewBasicService(t)
		svc = NotifyingMiddleware(feed, logger)(svc)
		svc = LoggingMiddleware(logger)(svc)
	}
	return svc
}

type basicService struct {
	todos todosvc.TodoRepository
}

func NewBasicService(t todosvc.TodoRepository) Service {
	return basicService{todos: t}
}

// CreateTodo stores todo for the authenticated user. The owner is always
// taken from a, whatever the caller put in todo.UserID.
func (s basicService) CreateTodo(_ context.Context, a todosvc.Auth, todo todosvc.Todo) (todosvc.Todo, error) {
	todo.Text = strings.TrimSpace(todo.Text)
	if a.UserID == 0 || todo.ID == "" || todo.Text == "" {
		return todosvc.Todo{}, todosvc.ErrInvalidArgument
	}
	if todo.Priority == "" {
		todo.Priority = todosvc.PriorityLow
	}
	if !todo.Priority.Valid() {
		return todosvc.Todo{}, todosvc.ErrInvalidPriority
	}

	todo.UserID = a.UserID
	todo.Completed = false
	return s.todos.Create(todo)
}

func (s basicService) Todos(_ context.Context, a todosvc.Auth) ([]todosvc.Todo, error) {
	if a.UserID == 0 {
		return nil, todosvc.ErrInvalidArgument
	}
	return s.todos.FindAll(a.UserID)
}

func (s basicService) Todo(_ context.Context, a todosvc.Auth, todoID string) (todosvc.Todo, error) {
	if a.UserID == 0 || todoID == "" {
		return todosvc.Todo{}, todosvc.ErrInvalidArgument
	}
	return s.todos.Find(a.UserID, todoID)
}

func (s basicService) UpdateTodo(_ context.Context, a todosvc.Auth, todoID string, patch todosvc.Patch) (todosvc.Todo, error) {
	if a.UserID == 0 || todoID == "" || patch.Empty() {
		return todosvc.Todo{}, todosvc.ErrInvalidArgument
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		return todosvc.Todo{}, todosvc.ErrInvalidPriority
	}
	return s.todos.Update(a.UserID, todoID, patch)
}

func (s basicService) DeleteTodo(_ context.Context, a todosvc.Auth, todoID string) (bool, error) {
	if a.UserID == 0 || todoID == "" {
		return false, todosvc.ErrInvalidArgument
	}
	return s.todos.Delete(a.UserID, todoID)
}
