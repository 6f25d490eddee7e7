package usertransport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/transport"
	httptransport "github.com/go-kit/kit/transport/http"
	"github.com/gorilla/mux"
	"github.com/ichigozero/taskhaven/usersvc"
	"github.com/ichigozero/taskhaven/usersvc/pkg/userendpoint"
	"github.com/ichigozero/taskhaven/usersvc/pkg/userservice"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewHTTPHandler serves the user endpoints. The service is internal: only
// authsvc and todosvc call it, never the gateway.
func NewHTTPHandler(endpoints userendpoint.Set, logger log.Logger) http.Handler {
	options := []httptransport.ServerOption{
		httptransport.ServerErrorEncoder(errorEncoder),
		httptransport.ServerErrorHandler(transport.NewLogErrorHandler(logger)),
	}

	r := mux.NewRouter()

	r.Methods("POST").Path("/users").Handler(httptransport.NewServer(
		endpoints.CreateUserEndpoint,
		decodeHTTPCreateUserRequest,
		encodeHTTPGenericResponse,
		options...,
	))
	r.Methods("POST").Path("/users/lookup").Handler(httptransport.NewServer(
		endpoints.UserIDEndpoint,
		decodeHTTPUserIDRequest,
		encodeHTTPGenericResponse,
		options...,
	))
	r.Methods("GET").Path("/users/{id}").Handler(httptransport.NewServer(
		endpoints.IsExistsEndpoint,
		decodeHTTPIsExistsRequest,
		encodeHTTPGenericResponse,
		options...,
	))
	r.Methods("GET").Path("/metrics").Handler(promhttp.Handler())

	return r
}

func NewHTTPClient(instance string, logger log.Logger) (userservice.Service, error) {
	// Quickly sanitize the instance string.
	if !strings.HasPrefix(instance, "http") {
		instance = "http://" + instance
	}
	u, err := url.Parse(instance)
	if err != nil {
		return nil, err
	}

	var createUserEndpoint endpoint.Endpoint
	{
		createUserEndpoint = httptransport.NewClient(
			"POST",
			copyURL(u, "/users"),
			encodeHTTPGenericRequest,
			decodeHTTPCreateUserResponse,
		).Endpoint()
	}

	var userIDEndpoint endpoint.Endpoint
	{
		userIDEndpoint = httptransport.NewClient(
			"POST",
			copyURL(u, "/users/lookup"),
			encodeHTTPGenericRequest,
			decodeHTTPUserIDResponse,
		).Endpoint()
	}

	var isExistsEndpoint endpoint.Endpoint
	{
		isExistsEndpoint = httptransport.NewClient(
			"GET",
			copyURL(u, "/users"),
			encodeHTTPIsExistsRequest,
			decodeHTTPIsExistsResponse,
		).Endpoint()
	}

	return userendpoint.Set{
		CreateUserEndpoint: createUserEndpoint,
		UserIDEndpoint:     userIDEndpoint,
		IsExistsEndpoint:   isExistsEndpoint,
	}, nil
}

func copyURL(base *url.URL, path string) *url.URL {
	next := *base
	next.Path = path
	return &next
}

func errorEncoder(_ context.Context, err error, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(err2code(err))
	json.NewEncoder(w).Encode(errorWrapper{Error: err.Error()})
}

func err2code(err error) int {
	switch errors.Cause(err) {
	case usersvc.ErrInvalidArgument, usersvc.ErrInvalidEmail, usersvc.ErrPasswordTooShort:
		return http.StatusBadRequest
	case usersvc.ErrUserNotFound:
		return http.StatusNotFound
	case usersvc.ErrEmailTaken:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

type errorWrapper struct {
	Error string `json:"error"`
}

// decodeError restores the usersvc sentinel named by the server, so callers
// can keep comparing against it across the wire.
func decodeError(r *http.Response) error {
	var w errorWrapper
	if err := json.NewDecoder(r.Body).Decode(&w); err != nil || w.Error == "" {
		return errors.New(r.Status)
	}
	for _, known := range []error{
		usersvc.ErrInvalidArgument,
		usersvc.ErrInvalidEmail,
		usersvc.ErrPasswordTooShort,
		usersvc.ErrEmailTaken,
		usersvc.ErrUserNotFound,
	} {
		if w.Error == known.Error() {
			return known
		}
	}
	return errors.New(w.Error)
}

func decodeHTTPCreateUserRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var req userendpoint.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, usersvc.ErrInvalidArgument
	}
	return req, nil
}

func decodeHTTPUserIDRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var req userendpoint.UserIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, usersvc.ErrInvalidArgument
	}
	return req, nil
}

func decodeHTTPIsExistsRequest(_ context.Context, r *http.Request) (interface{}, error) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return nil, usersvc.ErrInvalidArgument
	}
	return userendpoint.IsExistsRequest{ID: id}, nil
}

func decodeHTTPCreateUserResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusOK {
		return userendpoint.CreateUserResponse{Err: decodeError(r)}, nil
	}
	var resp userendpoint.CreateUserResponse
	err := json.NewDecoder(r.Body).Decode(&resp)
	return resp, err
}

func decodeHTTPUserIDResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusOK {
		return userendpoint.UserIDResponse{Err: decodeError(r)}, nil
	}
	var resp userendpoint.UserIDResponse
	err := json.NewDecoder(r.Body).Decode(&resp)
	return resp, err
}

func decodeHTTPIsExistsResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusOK {
		return userendpoint.IsExistsResponse{Err: decodeError(r)}, nil
	}
	var resp userendpoint.IsExistsResponse
	err := json.NewDecoder(r.Body).Decode(&resp)
	return resp, err
}

func encodeHTTPIsExistsRequest(_ context.Context, r *http.Request, request interface{}) error {
	req := request.(userendpoint.IsExistsRequest)
	r.URL.Path += "/" + strconv.FormatUint(req.ID, 10)
	return nil
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
