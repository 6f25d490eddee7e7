package todoendpoint

import (
	"context"
	"fmt"
	"strconv"

	stdjwt "github.com/dgrijalva/jwt-go"
	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/ichigozero/taskhaven/todosvc"
	"github.com/ichigozero/taskhaven/todosvc/pkg/todoservice"
)

type Set struct {
	CreateTodoEndpoint endpoint.Endpoint
	TodosEndpoint      endpoint.Endpoint
	TodoEndpoint       endpoint.Endpoint
	UpdateTodoEndpoint endpoint.Endpoint
	DeleteTodoEndpoint endpoint.Endpoint
}

func New(svc todoservice.Service, logger log.Logger) Set {
	var createTodoEndpoint endpoint.Endpoint
	{
		createTodoEndpoint = MakeCreateTodoEndpoint(svc)
		createTodoEndpoint = LoggingMiddleware(log.With(logger, "method", "CreateTodo"))(createTodoEndpoint)
	}

	var todosEndpoint endpoint.Endpoint
	{
		todosEndpoint = MakeTodosEndpoint(svc)
		todosEndpoint = LoggingMiddleware(log.With(logger, "method", "Todos"))(todosEndpoint)
	}

	var todoEndpoint endpoint.Endpoint
	{
		todoEndpoint = MakeTodoEndpoint(svc)
		todoEndpoint = LoggingMiddleware(log.With(logger, "method", "Todo"))(todoEndpoint)
	}

	var updateTodoEndpoint endpoint.Endpoint
	{
		updateTodoEndpoint = MakeUpdateTodoEndpoint(svc)
		updateTodoEndpoint = LoggingMiddleware(log.With(logger, "method", "UpdateTodo"))(updateTodoEndpoint)
	}

	var deleteTodoEndpoint endpoint.Endpoint
	{
		deleteTodoEndpoint = MakeDeleteTodoEndpoint(svc)
		deleteTodoEndpoint = LoggingMiddleware(log.With(logger, "method", "DeleteTodo"))(deleteTodoEndpoint)
	}

	return Set{
		CreateTodoEndpoint: createTodoEndpoint,
		TodosEndpoint:      todosEndpoint,
		TodoEndpoint:       todoEndpoint,
		UpdateTodoEndpoint: updateTodoEndpoint,
		DeleteTodoEndpoint: deleteTodoEndpoint,
	}
}

// The Set methods implement todoservice.Service on the client side. The
// Auth argument is ignored there: identity travels as the JWT in ctx.

func (s Set) CreateTodo(ctx context.Context, a todosvc.Auth, todo todosvc.Todo) (todosvc.Todo, error) {
	resp, err := s.CreateTodoEndpoint(ctx, CreateTodoRequest{
		ID:       todo.ID,
		Text:     todo.Text,
		Priority: todo.Priority,
	})
	if err != nil {
		return todosvc.Todo{}, err
	}
	response := resp.(CreateTodoResponse)
	return response.Todo, response.Err
}

func (s Set) Todos(ctx context.Context, a todosvc.Auth) ([]todosvc.Todo, error) {
	resp, err := s.TodosEndpoint(ctx, TodosRequest{Owner: a.UserID})
	if err != nil {
		return nil, err
	}
	response := resp.(TodosResponse)
	return response.Todos, response.Err
}

func (s Set) Todo(ctx context.Context, a todosvc.Auth, todoID string) (todosvc.Todo, error) {
	resp, err := s.TodoEndpoint(ctx, TodoRequest{TodoID: todoID})
	if err != nil {
		return todosvc.Todo{}, err
	}
	response := resp.(TodoResponse)
	return response.Todo, response.Err
}

func (s Set) UpdateTodo(ctx context.Context, a todosvc.Auth, todoID string, patch todosvc.Patch) (todosvc.Todo, error) {
	resp, err := s.UpdateTodoEndpoint(ctx, UpdateTodoRequest{
		TodoID:    todoID,
		Completed: patch.Completed,
		Priority:  patch.Priority,
	})
	if err != nil {
		return todosvc.Todo{}, err
	}
	response := resp.(UpdateTodoResponse)
	return response.Todo, response.Err
}

func (s Set) DeleteTodo(ctx context.Context, a todosvc.Auth, todoID string) (bool, error) {
	resp, err := s.DeleteTodoEndpoint(ctx, DeleteTodoRequest{TodoID: todoID})
	if err != nil {
		return false, err
	}
	response := resp.(DeleteTodoResponse)
	return response.Result, response.Err
}

func MakeCreateTodoEndpoint(s todoservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := Claims(ctx)
		if err != nil {
			return CreateTodoResponse{Err: err}, nil
		}

		req := request.(CreateTodoRequest)
		t, err := s.CreateTodo(ctx, auth, todosvc.Todo{
			ID:       req.ID,
			Text:     req.Text,
			Priority: req.Priority,
		})
		return CreateTodoResponse{Todo: t, Err: err}, nil
	}
}

func MakeTodosEndpoint(s todoservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := Claims(ctx)
		if err != nil {
			return TodosResponse{Err: err}, nil
		}

		req := request.(TodosRequest)
		if req.Owner != 0 && req.Owner != auth.UserID {
			return TodosResponse{Err: todosvc.ErrForbidden}, nil
		}

		t, err := s.Todos(ctx, auth)
		return TodosResponse{Todos: t, Err: err}, nil
	}
}

func MakeTodoEndpoint(s todoservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := Claims(ctx)
		if err != nil {
			return TodoResponse{Err: err}, nil
		}

		req := request.(TodoRequest)
		t, err := s.Todo(ctx, auth, req.TodoID)
		return TodoResponse{Todo: t, Err: err}, nil
	}
}

func MakeUpdateTodoEndpoint(s todoservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := Claims(ctx)
		if err != nil {
			return UpdateTodoResponse{Err: err}, nil
		}

		req := request.(UpdateTodoRequest)
		t, err := s.UpdateTodo(ctx, auth, req.TodoID, todosvc.Patch{
			Completed: req.Completed,
			Priority:  req.Priority,
		})
		return UpdateTodoResponse{Todo: t, Err: err}, nil
	}
}

func MakeDeleteTodoEndpoint(s todoservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := Claims(ctx)
		if err != nil {
			return DeleteTodoResponse{Err: err}, nil
		}

		req := request.(DeleteTodoRequest)
		r, err := s.DeleteTodo(ctx, auth, req.TodoID)
		return DeleteTodoResponse{Result: r, Err: err}, nil
	}
}

// Claims extracts the caller's identity from the JWT claims that
// kitjwt.NewParser stored in ctx.
func Claims(ctx context.Context) (todosvc.Auth, error) {
	claims, ok := ctx.Value(kitjwt.JWTClaimsContextKey).(stdjwt.MapClaims)
	if !ok {
		return todosvc.Auth{}, todosvc.ErrClaimsMissing
	}

	uuid, ok := claims["uuid"].(string)
	if !ok {
		return todosvc.Auth{}, todosvc.ErrClaimsInvalid
	}

	userID, err := strconv.ParseUint(fmt.Sprintf("%.f", claims["user_id"]), 10, 64)
	if err != nil || userID == 0 {
		return todosvc.Auth{}, todosvc.ErrClaimsInvalid
	}

	return todosvc.Auth{AccessUUID: uuid, UserID: userID}, nil
}

var (
	_ endpoint.Failer = CreateTodoResponse{}
	_ endpoint.Failer = TodosResponse{}
	_ endpoint.Failer = TodoResponse{}
	_ endpoint.Failer = UpdateTodoResponse{}
	_ endpoint.Failer = DeleteTodoResponse{}
)

type CreateTodoRequest struct {
	ID       string           `json:"id"`
	Text     string           `json:"text"`
	Priority todosvc.Priority `json:"priority"`
}

type CreateTodoResponse struct {
	Todo todosvc.Todo `json:"todo"`
	Err  error        `json:"-"`
}

func (r CreateTodoResponse) Failed() error { return r.Err }

type TodosRequest struct {
	Owner uint64 `json:"-"`
}

type TodosResponse struct {
	Todos []todosvc.Todo `json:"todos"`
	Err   error          `json:"-"`
}

func (r TodosResponse) Failed() error { return r.Err }

type TodoRequest struct {
	TodoID string
}

type TodoResponse struct {
	Todo todosvc.Todo `json:"todo"`
	Err  error        `json:"-"`
}

func (r TodoResponse) Failed() error { return r.Err }

type UpdateTodoRequest struct {
	TodoID    string            `json:"-"`
	Completed *bool             `json:"completed,omitempty"`
	Priority  *todosvc.Priority `json:"priority,omitempty"`
}

type UpdateTodoResponse struct {
	Todo todosvc.Todo `json:"todo"`
	Err  error        `json:"-"`
}

func (r UpdateTodoResponse) Failed() error { return r.Err }

type DeleteTodoRequest struct {
	TodoID string
}

type DeleteTodoResponse struct {
	Result bool  `json:"result"`
	Err    error `json:"-"`
}

func (r DeleteTodoResponse) Failed() error { return r.Err }
