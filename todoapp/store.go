package todoapp

import (
	"context"

	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/log"
	"github.com/ichigozero/taskhaven/todosvc"
	"github.com/ichigozero/taskhaven/todosvc/pkg/todoservice"
	"github.com/ichigozero/taskhaven/todosvc/pkg/todotransport"
	"github.com/pkg/errors"
)

// Filter scopes a select or a subscription to the todos of one owner.
type Filter struct {
	Owner uint64
}

// Subscription is a live change subscription. Done is closed once no more
// notifications will arrive, whether after Unsubscribe or because the
// stream broke.
type Subscription interface {
	Unsubscribe() error
	Done() <-chan struct{}
}

// Store is the remote data access facade the Controller works against.
// onChange fires without payload on every change matching the filter,
// including changes made by this client.
type Store interface {
	Select(ctx context.Context, f Filter) ([]todosvc.Todo, error)
	Insert(ctx context.Context, todo todosvc.Todo) error
	Update(ctx context.Context, id string, patch todosvc.Patch) error
	Delete(ctx context.Context, id string) error
	Subscribe(ctx context.Context, f Filter, onChange func()) (Subscription, error)
}

// TokenSource hands out a currently valid access token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// RemoteStore talks to the todo API, usually through the gateway at
// <gateway>/todo/v1.
type RemoteStore struct {
	instance string
	todos    todoservice.Service
	tokens   TokenSource
}

func NewRemoteStore(instance string, tokens TokenSource, logger log.Logger) (*RemoteStore, error) {
	todos, err := todotransport.NewHTTPClient(instance, logger)
	if err != nil {
		return nil, err
	}

	return &RemoteStore{
		instance: instance,
		todos:    todos,
		tokens:   tokens,
	}, nil
}

func (s *RemoteStore) authorize(ctx context.Context) (context.Context, error) {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	return context.WithValue(ctx, kitjwt.JWTContextKey, token), nil
}

func (s *RemoteStore) Select(ctx context.Context, f Filter) ([]todosvc.Todo, error) {
	ctx, err := s.authorize(ctx)
	if err != nil {
		return nil, err
	}

	todos, err := s.todos.Todos(ctx, todosvc.Auth{UserID: f.Owner})
	if err != nil {
		return nil, errors.Wrap(err, "select todos")
	}
	return todos, nil
}

func (s *RemoteStore) Insert(ctx context.Context, todo todosvc.Todo) error {
	ctx, err := s.authorize(ctx)
	if err != nil {
		return err
	}

	_, err = s.todos.CreateTodo(ctx, todosvc.Auth{UserID: todo.UserID}, todo)
	return errors.Wrap(err, "insert todo")
}

func (s *RemoteStore) Update(ctx context.Context, id string, patch todosvc.Patch) error {
	ctx, err := s.authorize(ctx)
	if err != nil {
		return err
	}

	_, err = s.todos.UpdateTodo(ctx, todosvc.Auth{}, id, patch)
	return errors.Wrap(err, "update todo")
}

func (s *RemoteStore) Delete(ctx context.Context, id string) error {
	ctx, err := s.authorize(ctx)
	if err != nil {
		return err
	}

	_, err = s.todos.DeleteTodo(ctx, todosvc.Auth{}, id)
	return errors.Wrap(err, "delete todo")
}

func (s *RemoteStore) Subscribe(ctx context.Context, f Filter, onChange func()) (Subscription, error) {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	sub, err := todotransport.SubscribeChanges(ctx, s.instance, token, f.Owner, onChange)
	if err != nil {
		return nil, errors.Wrap(err, "subscribe to changes")
	}
	return sub, nil
}
