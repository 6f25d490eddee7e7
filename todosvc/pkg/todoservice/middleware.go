package todoservice

import (
	"context"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics"
	"github.com/ichigozero/taskhaven/authsvc/pkg/authendpoint"
	"github.com/ichigozero/taskhaven/todosvc"
	"github.com/ichigozero/taskhaven/todosvc/changefeed"
	"github.com/ichigozero/taskhaven/usersvc/pkg/userendpoint"
)

type Middleware func(Service) Service

func LoggingMiddleware(logger log.Logger) Middleware {
	return func(next Service) Service {
		return loggingMiddleware{logger, next}
	}
}

type loggingMiddleware struct {
	logger log.Logger
	next   Service
}

func (mw loggingMiddleware) CreateTodo(ctx context.Context, a todosvc.Auth, todo todosvc.Todo) (t todosvc.Todo, err error) {
	defer func() {
		mw.logger.Log(
			"method", "CreateTodo",
			"access_uuid", a.AccessUUID,
			"user_id", a.UserID,
			"todo_id", todo.ID,
			"priority", todo.Priority,
			"err", err,
		)
	}()
	return mw.next.CreateTodo(ctx, a, todo)
}

func (mw loggingMiddleware) Todos(ctx context.Context, a todosvc.Auth) (t []todosvc.Todo, err error) {
	defer func() {
		mw.logger.Log(
			"method", "Todos",
			"access_uuid", a.AccessUUID,
			"user_id", a.UserID,
			"count", len(t),
			"err", err,
		)
	}()
	return mw.next.Todos(ctx, a)
}

func (mw loggingMiddleware) Todo(ctx context.Context, a todosvc.Auth, todoID string) (t todosvc.Todo, err error) {
	defer func() {
		mw.logger.Log(
			"method", "Todo",
			"access_uuid", a.AccessUUID,
			"user_id", a.UserID,
			"todo_id", todoID,
			"err", err,
		)
	}()
	return mw.next.Todo(ctx, a, todoID)
}

func (mw loggingMiddleware) UpdateTodo(ctx context.Context, a todosvc.Auth, todoID string, patch todosvc.Patch) (t todosvc.Todo, err error) {
	defer func() {
		kv := []interface{}{
			"method", "UpdateTodo",
			"access_uuid", a.AccessUUID,
			"user_id", a.UserID,
			"todo_id", todoID,
		}
		if patch.Completed != nil {
			kv = append(kv, "completed", *patch.Completed)
		}
		if patch.Priority != nil {
			kv = append(kv, "priority", *patch.Priority)
		}
		mw.logger.Log(append(kv, "err", err)...)
	}()
	return mw.next.UpdateTodo(ctx, a, todoID, patch)
}

func (mw loggingMiddleware) DeleteTodo(ctx context.Context, a todosvc.Auth, todoID string) (result bool, err error) {
	defer func() {
		mw.logger.Log(
			"method", "DeleteTodo",
			"access_uuid", a.AccessUUID,
			"user_id", a.UserID,
			"todo_id", todoID,
			"result", result,
			"err", err,
		)
	}()
	return mw.next.DeleteTodo(ctx, a, todoID)
}

func InstrumentingMiddleware(counter metrics.Counter, latency metrics.Histogram) Middleware {
	return func(next Service) Service {
		return instrumentingMiddleware{counter, latency, next}
	}
}

type instrumentingMiddleware struct {
	requestCount   metrics.Counter
	requestLatency metrics.Histogram
	next           Service
}

func (mw instrumentingMiddleware) observe(method string, begin time.Time) {
	mw.requestCount.With("method", method).Add(1)
	mw.requestLatency.With("method", method).Observe(time.Since(begin).Seconds())
}

func (mw instrumentingMiddleware) CreateTodo(ctx context.Context, a todosvc.Auth, todo todosvc.Todo) (todosvc.Todo, error) {
	defer mw.observe("create_todo", time.Now())
	return mw.next.CreateTodo(ctx, a, todo)
}

func (mw instrumentingMiddleware) Todos(ctx context.Context, a todosvc.Auth) ([]todosvc.Todo, error) {
	defer mw.observe("todos", time.Now())
	return mw.next.Todos(ctx, a)
}

func (mw instrumentingMiddleware) Todo(ctx context.Context, a todosvc.Auth, todoID string) (todosvc.Todo, error) {
	defer mw.observe("todo", time.Now())
	return mw.next.Todo(ctx, a, todoID)
}

func (mw instrumentingMiddleware) UpdateTodo(ctx context.Context, a todosvc.Auth, todoID string, patch todosvc.Patch) (todosvc.Todo, error) {
	defer mw.observe("update_todo", time.Now())
	return mw.next.UpdateTodo(ctx, a, todoID, patch)
}

func (mw instrumentingMiddleware) DeleteTodo(ctx context.Context, a todosvc.Auth, todoID string) (bool, error) {
	defer mw.observe("delete_todo", time.Now())
	return mw.next.DeleteTodo(ctx, a, todoID)
}

// NotifyingMiddleware publishes a change signal for the owner after every
// successful mutation. A failed publish is logged and never fails the
// mutation itself.
func NotifyingMiddleware(feed changefeed.Feed, logger log.Logger) Middleware {
	return func(next Service) Service {
		return notifyingMiddleware{feed, logger, next}
	}
}

type notifyingMiddleware struct {
	feed   changefeed.Feed
	logger log.Logger
	next   Service
}

func (mw notifyingMiddleware) publish(ctx context.Context, owner uint64) {
	if err := mw.feed.Publish(ctx, owner); err != nil {
		mw.logger.Log("during", "Publish", "user_id", owner, "err", err)
	}
}

func (mw notifyingMiddleware) CreateTodo(ctx context.Context, a todosvc.Auth, todo todosvc.Todo) (todosvc.Todo, error) {
	t, err := mw.next.CreateTodo(ctx, a, todo)
	if err == nil {
		mw.publish(ctx, a.UserID)
	}
	return t, err
}

func (mw notifyingMiddleware) Todos(ctx context.Context, a todosvc.Auth) ([]todosvc.Todo, error) {
	return mw.next.Todos(ctx, a)
}

func (mw notifyingMiddleware) Todo(ctx context.Context, a todosvc.Auth, todoID string) (todosvc.Todo, error) {
	return mw.next.Todo(ctx, a, todoID)
}

func (mw notifyingMiddleware) UpdateTodo(ctx context.Context, a todosvc.Auth, todoID string, patch todosvc.Patch) (todosvc.Todo, error) {
	t, err := mw.next.UpdateTodo(ctx, a, todoID, patch)
	if err == nil {
		mw.publish(ctx, a.UserID)
	}
	return t, err
}

func (mw notifyingMiddleware) DeleteTodo(ctx context.Context, a todosvc.Auth, todoID string) (bool, error) {
	r, err := mw.next.DeleteTodo(ctx, a, todoID)
	if err == nil {
		mw.publish(ctx, a.UserID)
	}
	return r, err
}

func ProxingMiddleware(ctx context.Context, validateUUID, isUserExists endpoint.Endpoint) Middleware {
	return func(next Service) Service {
		return proxingMiddleware{next, validateUUID, isUserExists}
	}
}

type proxingMiddleware struct {
	next         Service
	validateUUID endpoint.Endpoint
	isUserExists endpoint.Endpoint
}

func (mw proxingMiddleware) CreateTodo(ctx context.Context, a todosvc.Auth, todo todosvc.Todo) (todosvc.Todo, error) {
	err := mw.validate(ctx, a)
	if err != nil {
		return todosvc.Todo{}, err
	}

	return mw.next.CreateTodo(ctx, a, todo)
}

func (mw proxingMiddleware) Todos(ctx context.Context, a todosvc.Auth) ([]todosvc.Todo, error) {
	err := mw.validate(ctx, a)
	if err != nil {
		return nil, err
	}

	return mw.next.Todos(ctx, a)
}

func (mw proxingMiddleware) Todo(ctx context.Context, a todosvc.Auth, todoID string) (todosvc.Todo, error) {
	err := mw.validate(ctx, a)
	if err != nil {
		return todosvc.Todo{}, err
	}

	return mw.next.Todo(ctx, a, todoID)
}

func (mw proxingMiddleware) UpdateTodo(ctx context.Context, a todosvc.Auth, todoID string, patch todosvc.Patch) (todosvc.Todo, error) {
	err := mw.validate(ctx, a)
	if err != nil {
		return todosvc.Todo{}, err
	}

	return mw.next.UpdateTodo(ctx, a, todoID, patch)
}

func (mw proxingMiddleware) DeleteTodo(ctx context.Context, a todosvc.Auth, todoID string) (bool, error) {
	err := mw.validate(ctx, a)
	if err != nil {
		return false, err
	}

	return mw.next.DeleteTodo(ctx, a, todoID)
}

func (mw proxingMiddleware) validate(ctx context.Context, a todosvc.Auth) error {
	{
		response, err := mw.validateUUID(ctx, authendpoint.ValidateRequest{AccessUUID: a.AccessUUID})
		if err != nil {
			return err
		}

		resp := response.(authendpoint.ValidateResponse)
		if resp.Err != nil {
			return resp.Err
		}
		if !resp.V {
			return todosvc.ErrClaimsInvalid
		}
	}
	{
		response, err := mw.isUserExists(ctx, userendpoint.IsExistsRequest{ID: a.UserID})
		if err != nil {
			return err
		}

		resp := response.(userendpoint.IsExistsResponse)
		if resp.Err != nil {
			return resp.Err
		}
	}
	return nil
}
