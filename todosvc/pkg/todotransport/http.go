package todotransport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	stdjwt "github.com/dgrijalva/jwt-go"
	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/circuitbreaker"
	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/ratelimit"
	"github.com/go-kit/kit/transport"
	httptransport "github.com/go-kit/kit/transport/http"
	"github.com/gorilla/mux"
	"github.com/ichigozero/taskhaven/authsvc"
	"github.com/ichigozero/taskhaven/authsvc/inmem"
	"github.com/ichigozero/taskhaven/todosvc"
	"github.com/ichigozero/taskhaven/todosvc/pkg/todoendpoint"
	"github.com/ichigozero/taskhaven/todosvc/pkg/todoservice"
	"github.com/ichigozero/taskhaven/usersvc"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

func keyFunc(token *stdjwt.Token) (interface{}, error) {
	return []byte(authsvc.AccessSecret), nil
}

func jwtParser() endpoint.Middleware {
	return kitjwt.NewParser(keyFunc, stdjwt.SigningMethodHS256, kitjwt.MapClaimsFactory)
}

// NewHTTPHandler mounts the todo endpoints. changes may be nil when this
// process does not serve the change stream.
func NewHTTPHandler(endpoints todoendpoint.Set, changes http.Handler, logger log.Logger) http.Handler {
	options := []httptransport.ServerOption{
		httptransport.ServerErrorEncoder(errorEncoder),
		httptransport.ServerErrorHandler(transport.NewLogErrorHandler(logger)),
		httptransport.ServerBefore(kitjwt.HTTPToContext()),
	}

	createTodoHandler := httptransport.NewServer(
		jwtParser()(endpoints.CreateTodoEndpoint),
		decodeHTTPCreateTodoRequest,
		encodeHTTPGenericResponse,
		options...,
	)

	todosHandler := httptransport.NewServer(
		jwtParser()(endpoints.TodosEndpoint),
		decodeHTTPTodosRequest,
		encodeHTTPGenericResponse,
		options...,
	)

	todoHandler := httptransport.NewServer(
		jwtParser()(endpoints.TodoEndpoint),
		decodeHTTPTodoRequest,
		encodeHTTPGenericResponse,
		options...,
	)

	updateTodoHandler := httptransport.NewServer(
		jwtParser()(endpoints.UpdateTodoEndpoint),
		decodeHTTPUpdateTodoRequest,
		encodeHTTPGenericResponse,
		options...,
	)

	deleteTodoHandler := httptransport.NewServer(
		jwtParser()(endpoints.DeleteTodoEndpoint),
		decodeHTTPDeleteTodoRequest,
		encodeHTTPGenericResponse,
		options...,
	)

	r := mux.NewRouter()

	r.Methods("GET").Path("/todos").Handler(todosHandler)
	r.Methods("POST").Path("/todos").Handler(createTodoHandler)
	r.Methods("GET").Path("/todos/{todo_id}").Handler(todoHandler)
	r.Methods("PATCH").Path("/todos/{todo_id}").Handler(updateTodoHandler)
	r.Methods("DELETE").Path("/todos/{todo_id}").Handler(deleteTodoHandler)
	if changes != nil {
		r.Methods("GET").Path("/changes").Handler(changes)
	}
	r.Methods("GET").Path("/metrics").Handler(promhttp.Handler())

	return r
}

// NewHTTPClient returns a todoservice.Service backed by the HTTP API at
// instance. The caller's access token must be in ctx under
// kitjwt.JWTContextKey.
func NewHTTPClient(instance string, logger log.Logger) (todoservice.Service, error) {
	u, err := parseInstance(instance)
	if err != nil {
		return nil, err
	}

	// Bound the client-side request rate so that a runaway caller cannot
	// flood the service; the breaker sheds load when the service is down.
	limiter := ratelimit.NewErroringLimiter(rate.NewLimiter(rate.Every(time.Second/50), 100))
	breaker := func(name string) endpoint.Middleware {
		return circuitbreaker.Gobreaker(gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: 30 * time.Second,
		}))
	}

	options := []httptransport.ClientOption{
		httptransport.ClientBefore(kitjwt.ContextToHTTP()),
	}

	var createTodoEndpoint endpoint.Endpoint
	{
		createTodoEndpoint = httptransport.NewClient(
			"POST",
			copyURL(u, "/todos"),
			encodeHTTPGenericRequest,
			decodeHTTPCreateTodoResponse,
			options...,
		).Endpoint()
		createTodoEndpoint = limiter(createTodoEndpoint)
		createTodoEndpoint = breaker("CreateTodo")(createTodoEndpoint)
	}

	var todosEndpoint endpoint.Endpoint
	{
		todosEndpoint = httptransport.NewClient(
			"GET",
			copyURL(u, "/todos"),
			encodeHTTPTodosRequest,
			decodeHTTPTodosResponse,
			options...,
		).Endpoint()
		todosEndpoint = limiter(todosEndpoint)
		todosEndpoint = breaker("Todos")(todosEndpoint)
	}

	var todoEndpoint endpoint.Endpoint
	{
		todoEndpoint = httptransport.NewClient(
			"GET",
			copyURL(u, "/todos"),
			encodeHTTPTodoPathRequest,
			decodeHTTPTodoResponse,
			options...,
		).Endpoint()
		todoEndpoint = limiter(todoEndpoint)
		todoEndpoint = breaker("Todo")(todoEndpoint)
	}

	var updateTodoEndpoint endpoint.Endpoint
	{
		updateTodoEndpoint = httptransport.NewClient(
			"PATCH",
			copyURL(u, "/todos"),
			encodeHTTPUpdateTodoRequest,
			decodeHTTPUpdateTodoResponse,
			options...,
		).Endpoint()
		updateTodoEndpoint = limiter(updateTodoEndpoint)
		updateTodoEndpoint = breaker("UpdateTodo")(updateTodoEndpoint)
	}

	var deleteTodoEndpoint endpoint.Endpoint
	{
		deleteTodoEndpoint = httptransport.NewClient(
			"DELETE",
			copyURL(u, "/todos"),
			encodeHTTPTodoPathRequest,
			decodeHTTPDeleteTodoResponse,
			options...,
		).Endpoint()
		deleteTodoEndpoint = limiter(deleteTodoEndpoint)
		deleteTodoEndpoint = breaker("DeleteTodo")(deleteTodoEndpoint)
	}

	return todoendpoint.Set{
		CreateTodoEndpoint: createTodoEndpoint,
		TodosEndpoint:      todosEndpoint,
		TodoEndpoint:       todoEndpoint,
		UpdateTodoEndpoint: updateTodoEndpoint,
		DeleteTodoEndpoint: deleteTodoEndpoint,
	}, nil
}

func parseInstance(instance string) (*url.URL, error) {
	// Quickly sanitize the instance string.
	if !strings.HasPrefix(instance, "http") {
		instance = "http://" + instance
	}
	return url.Parse(instance)
}

// copyURL appends path to the base path of the instance, so that clients
// work both against a bare todosvc and behind the gateway prefix.
func copyURL(base *url.URL, path string) *url.URL {
	next := *base
	next.Path = strings.TrimSuffix(base.Path, "/") + path
	return &next
}

func errorEncoder(_ context.Context, err error, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(err2code(err))
	json.NewEncoder(w).Encode(errorWrapper{Error: err.Error()})
}

type errorWrapper struct {
	Error string `json:"error"`
}

func err2code(err error) int {
	switch errors.Cause(err) {
	case kitjwt.ErrTokenContextMissing, kitjwt.ErrTokenExpired, kitjwt.ErrTokenInvalid,
		kitjwt.ErrTokenMalformed, kitjwt.ErrTokenNotActive, kitjwt.ErrUnexpectedSigningMethod,
		stdjwt.ErrSignatureInvalid,
		todosvc.ErrClaimsMissing, todosvc.ErrClaimsInvalid,
		usersvc.ErrUserNotFound, authsvc.ErrUserIDContextMissing, inmem.ErrKeyNotFound:
		return http.StatusUnauthorized
	case todosvc.ErrForbidden:
		return http.StatusForbidden
	case todosvc.ErrTodoNotFound:
		return http.StatusNotFound
	case todosvc.ErrTodoExists:
		return http.StatusConflict
	case ErrNoInstance:
		return http.StatusServiceUnavailable
	case usersvc.ErrInvalidArgument, authsvc.ErrInvalidArgument,
		todosvc.ErrInvalidArgument, todosvc.ErrInvalidPriority:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// decodeError turns a non-2xx response back into an error carrying the
// server's message. Well-known messages map back to their sentinels.
func decodeError(r *http.Response) error {
	var w errorWrapper
	if err := json.NewDecoder(r.Body).Decode(&w); err != nil || w.Error == "" {
		return errors.New(r.Status)
	}
	for _, known := range []error{
		todosvc.ErrTodoNotFound,
		todosvc.ErrTodoExists,
		todosvc.ErrForbidden,
		todosvc.ErrInvalidArgument,
		todosvc.ErrInvalidPriority,
		todosvc.ErrClaimsMissing,
		todosvc.ErrClaimsInvalid,
		usersvc.ErrUserNotFound,
		kitjwt.ErrTokenExpired,
		kitjwt.ErrTokenContextMissing,
		ErrNoInstance,
	} {
		if w.Error == known.Error() {
			return known
		}
	}
	return errors.New(w.Error)
}

func decodeHTTPCreateTodoRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var req todoendpoint.CreateTodoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, todosvc.ErrInvalidArgument
	}
	return req, nil
}

func decodeHTTPTodosRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var req todoendpoint.TodosRequest
	if owner := r.URL.Query().Get("owner"); owner != "" {
		id, err := strconv.ParseUint(owner, 10, 64)
		if err != nil {
			return nil, todosvc.ErrInvalidArgument
		}
		req.Owner = id
	}
	return req, nil
}

func decodeHTTPTodoRequest(_ context.Context, r *http.Request) (interface{}, error) {
	todoID, err := todoIDVar(r)
	if err != nil {
		return nil, err
	}
	return todoendpoint.TodoRequest{TodoID: todoID}, nil
}

func decodeHTTPUpdateTodoRequest(_ context.Context, r *http.Request) (interface{}, error) {
	todoID, err := todoIDVar(r)
	if err != nil {
		return nil, err
	}

	var req todoendpoint.UpdateTodoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, todosvc.ErrInvalidArgument
	}
	req.TodoID = todoID

	return req, nil
}

func decodeHTTPDeleteTodoRequest(_ context.Context, r *http.Request) (interface{}, error) {
	todoID, err := todoIDVar(r)
	if err != nil {
		return nil, err
	}
	return todoendpoint.DeleteTodoRequest{TodoID: todoID}, nil
}

func todoIDVar(r *http.Request) (string, error) {
	todoID, ok := mux.Vars(r)["todo_id"]
	if !ok || todoID == "" {
		return "", ErrBadRouting
	}
	return todoID, nil
}

// ErrBadRouting is returned when an expected path variable is missing.
// It always indicates programmer error.
var ErrBadRouting = errors.New("inconsistent mapping between route and handler (programmer error)")

func decodeHTTPCreateTodoResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusOK {
		return todoendpoint.CreateTodoResponse{Err: decodeError(r)}, nil
	}
	var resp todoendpoint.CreateTodoResponse
	err := json.NewDecoder(r.Body).Decode(&resp)
	return resp, err
}

func decodeHTTPTodosResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusOK {
		return todoendpoint.TodosResponse{Err: decodeError(r)}, nil
	}
	var resp todoendpoint.TodosResponse
	err := json.NewDecoder(r.Body).Decode(&resp)
	return resp, err
}

func decodeHTTPTodoResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusOK {
		return todoendpoint.TodoResponse{Err: decodeError(r)}, nil
	}
	var resp todoendpoint.TodoResponse
	err := json.NewDecoder(r.Body).Decode(&resp)
	return resp, err
}

func decodeHTTPUpdateTodoResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusOK {
		return todoendpoint.UpdateTodoResponse{Err: decodeError(r)}, nil
	}
	var resp todoendpoint.UpdateTodoResponse
	err := json.NewDecoder(r.Body).Decode(&resp)
	return resp, err
}

func decodeHTTPDeleteTodoResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusOK {
		return todoendpoint.DeleteTodoResponse{Err: decodeError(r)}, nil
	}
	var resp todoendpoint.DeleteTodoResponse
	err := json.NewDecoder(r.Body).Decode(&resp)
	return resp, err
}

func encodeHTTPTodosRequest(_ context.Context, r *http.Request, request interface{}) error {
	req := request.(todoendpoint.TodosRequest)
	if req.Owner != 0 {
		q := r.URL.Query()
		q.Set("owner", strconv.FormatUint(req.Owner, 10))
		r.URL.RawQuery = q.Encode()
	}
	return nil
}

// encodeHTTPTodoPathRequest appends the todo id of a Todo or DeleteTodo
// request to the URL path.
func encodeHTTPTodoPathRequest(_ context.Context, r *http.Request, request interface{}) error {
	var todoID string
	switch req := request.(type) {
	case todoendpoint.TodoRequest:
		todoID = req.TodoID
	case todoendpoint.DeleteTodoRequest:
		todoID = req.TodoID
	}
	r.URL.Path += "/" + todoID
	return nil
}

func encodeHTTPUpdateTodoRequest(ctx context.Context, r *http.Request, request interface{}) error {
	req := request.(todoendpoint.UpdateTodoRequest)
	r.URL.Path += "/" + req.TodoID
	return encodeHTTPGenericRequest(ctx, r, request)
}

// encodeHTTPGenericRequest is a transport/http.EncodeRequestFunc that
// JSON-encodes any request to the request body. Primarily useful in a client.
func encodeHTTPGenericRequest(_ context.Context, r *http.Request, request interface{}) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(request); err != nil {
		return err
	}
	r.Header.Set("Content-Type", "application/json; charset=utf-8")
	r.ContentLength = int64(buf.Len())
	r.Body = io.NopCloser(&buf)
	return nil
}

// encodeHTTPGenericResponse is a transport/http.EncodeResponseFunc that encodes
// the response as JSON to the response writer. Primarily useful in a server.
func encodeHTTPGenericResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	if f, ok := response.(endpoint.Failer); ok && f.Failed() != nil {
		errorEncoder(ctx, f.Failed(), w)
		return nil
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	return json.NewEncoder(w).Encode(response)
}
