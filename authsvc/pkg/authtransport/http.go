package authtransport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	stdjwt "github.com/dgrijalva/jwt-go"
	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/transport"
	httptransport "github.com/go-kit/kit/transport/http"
	"github.com/gorilla/mux"
	"github.com/ichigozero/taskhaven/authsvc"
	"github.com/ichigozero/taskhaven/authsvc/inmem"
	"github.com/ichigozero/taskhaven/authsvc/pkg/authendpoint"
	"github.com/ichigozero/taskhaven/authsvc/pkg/authservice"
	"github.com/ichigozero/taskhaven/usersvc"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewHTTPHandler serves every auth route, including the internal /validate
// used by the other services. It is what authsvc itself listens with.
func NewHTTPHandler(endpoints authendpoint.Set, client inmem.Client, logger log.Logger) http.Handler {
	return newRouter(endpoints, client, logger, true)
}

// NewPublicHTTPHandler serves the routes clients may reach through the
// gateway: sign-in, sign-up, sign-out and refresh.
func NewPublicHTTPHandler(endpoints authendpoint.Set, client inmem.Client, logger log.Logger) http.Handler {
	return newRouter(endpoints, client, logger, false)
}

func newRouter(endpoints authendpoint.Set, client inmem.Client, logger log.Logger, internal bool) *mux.Router {
	options := []httptransport.ServerOption{
		httptransport.ServerErrorEncoder(errorEncoder),
		httptransport.ServerErrorHandler(transport.NewLogErrorHandler(logger)),
	}

	signInHandler := httptransport.NewServer(
		endpoints.SignInEndpoint,
		decodeHTTPSignInRequest,
		encodeHTTPGenericResponse,
		options...,
	)

	signUpHandler := httptransport.NewServer(
		endpoints.SignUpEndpoint,
		decodeHTTPSignUpRequest,
		encodeHTTPGenericResponse,
		options...,
	)

	var signOutEndpoint endpoint.Endpoint
	{
		kf := func(token *stdjwt.Token) (interface{}, error) {
			return []byte(authsvc.AccessSecret), nil
		}

		signOutEndpoint = endpoints.SignOutEndpoint
		signOutEndpoint = NewAuthenticater(client)(signOutEndpoint)
		signOutEndpoint = kitjwt.NewParser(
			kf,
			stdjwt.SigningMethodHS256,
			kitjwt.MapClaimsFactory,
		)(signOutEndpoint)
	}

	signOutHandler := httptransport.NewServer(
		signOutEndpoint,
		decodeHTTPSignOutRequest,
		encodeHTTPGenericResponse,
		append(options, httptransport.ServerBefore(kitjwt.HTTPToContext()))...,
	)

	var refreshEndpoint endpoint.Endpoint
	{
		kf := func(token *stdjwt.Token) (interface{}, error) {
			return []byte(authsvc.RefreshSecret), nil
		}

		refreshEndpoint = endpoints.RefreshEndpoint
		refreshEndpoint = kitjwt.NewParser(
			kf,
			stdjwt.SigningMethodHS256,
			kitjwt.MapClaimsFactory,
		)(refreshEndpoint)
	}

	refreshHandler := httptransport.NewServer(
		refreshEndpoint,
		decodeHTTPRefreshRequest,
		encodeHTTPGenericResponse,
		append(options, httptransport.ServerBefore(kitjwt.HTTPToContext()))...,
	)

	r := mux.NewRouter()

	r.Methods("POST").Path("/signin").Handler(signInHandler)
	r.Methods("POST").Path("/signup").Handler(signUpHandler)
	r.Methods("POST").Path("/signout").Handler(signOutHandler)
	r.Methods("POST").Path("/refresh").Handler(refreshHandler)

	if internal {
		validateHandler := httptransport.NewServer(
			endpoints.ValidateEndpoint,
			decodeHTTPValidateRequest,
			encodeHTTPGenericResponse,
			options...,
		)
		r.Methods("POST").Path("/validate").Handler(validateHandler)
		r.Methods("GET").Path("/metrics").Handler(promhttp.Handler())
	}

	return r
}

// NewHTTPClient returns an authservice.Service backed by the HTTP API at
// instance. SignOut needs the access token and Refresh the refresh token in
// ctx under kitjwt.JWTContextKey.
func NewHTTPClient(instance string, logger log.Logger) (authservice.Service, error) {
	// Quickly sanitize the instance string.
	if !strings.HasPrefix(instance, "http") {
		instance = "http://" + instance
	}
	u, err := url.Parse(instance)
	if err != nil {
		return nil, err
	}

	var options []httptransport.ClientOption

	var signInEndpoint endpoint.Endpoint
	{
		signInEndpoint = httptransport.NewClient(
			"POST",
			copyURL(u, "/signin"),
			encodeHTTPGenericRequest,
			decodeHTTPSignInResponse,
			options...,
		).Endpoint()
	}

	var signUpEndpoint endpoint.Endpoint
	{
		signUpEndpoint = httptransport.NewClient(
			"POST",
			copyURL(u, "/signup"),
			encodeHTTPGenericRequest,
			decodeHTTPSignUpResponse,
			options...,
		).Endpoint()
	}

	var signOutEndpoint endpoint.Endpoint
	{
		signOutEndpoint = httptransport.NewClient(
			"POST",
			copyURL(u, "/signout"),
			encodeHTTPGenericRequest,
			decodeHTTPSignOutResponse,
			append(options, httptransport.ClientBefore(kitjwt.ContextToHTTP()))...,
		).Endpoint()
	}

	var refreshEndpoint endpoint.Endpoint
	{
		refreshEndpoint = httptransport.NewClient(
			"POST",
			copyURL(u, "/refresh"),
			encodeHTTPGenericRequest,
			decodeHTTPRefreshResponse,
			append(options, httptransport.ClientBefore(kitjwt.ContextToHTTP()))...,
		).Endpoint()
	}

	var validateEndpoint endpoint.Endpoint
	{
		validateEndpoint = httptransport.NewClient(
			"POST",
			copyURL(u, "/validate"),
			encodeHTTPGenericRequest,
			decodeHTTPValidateResponse,
			options...,
		).Endpoint()
	}

	return authendpoint.Set{
		SignInEndpoint:   signInEndpoint,
		SignUpEndpoint:   signUpEndpoint,
		SignOutEndpoint:  signOutEndpoint,
		RefreshEndpoint:  refreshEndpoint,
		ValidateEndpoint: validateEndpoint,
	}, nil
}

// copyURL appends path to the base path of the instance, so that clients
// work both against a bare authsvc and behind the gateway prefix.
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

func err2code(err error) int {
	switch errors.Cause(err) {
	case usersvc.ErrInvalidArgument, usersvc.ErrInvalidEmail, usersvc.ErrPasswordTooShort,
		authsvc.ErrInvalidArgument:
		return http.StatusBadRequest
	case usersvc.ErrUserNotFound, authsvc.ErrUserIDContextMissing, authsvc.ErrTokenRevoked,
		authsvc.ErrClaimsMissing, authsvc.ErrClaimsInvalid, authsvc.ErrUUIDMissing,
		inmem.ErrKeyNotFound,
		kitjwt.ErrTokenContextMissing, kitjwt.ErrTokenExpired, kitjwt.ErrTokenInvalid,
		kitjwt.ErrTokenMalformed, kitjwt.ErrTokenNotActive, kitjwt.ErrUnexpectedSigningMethod,
		stdjwt.ErrSignatureInvalid:
		return http.StatusUnauthorized
	case usersvc.ErrEmailTaken:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

type errorWrapper struct {
	Error string `json:"error"`
}

// KnownErrors lists the errors a client can receive back by identity.
var KnownErrors = []error{
	usersvc.ErrInvalidArgument,
	usersvc.ErrInvalidEmail,
	usersvc.ErrPasswordTooShort,
	usersvc.ErrUserNotFound,
	usersvc.ErrEmailTaken,
	authsvc.ErrInvalidArgument,
	authsvc.ErrTokenRevoked,
	inmem.ErrKeyNotFound,
	kitjwt.ErrTokenExpired,
}

func decodeError(r *http.Response) error {
	var w errorWrapper
	if err := json.NewDecoder(r.Body).Decode(&w); err != nil || w.Error == "" {
		return errors.New(r.Status)
	}
	for _, known := range KnownErrors {
		if w.Error == known.Error() {
			return known
		}
	}
	return errors.New(w.Error)
}

func decodeHTTPSignInRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var req authendpoint.SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, authsvc.ErrInvalidArgument
	}
	return req, nil
}

func decodeHTTPSignUpRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var req authendpoint.SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, authsvc.ErrInvalidArgument
	}
	return req, nil
}

func decodeHTTPSignOutRequest(_ context.Context, r *http.Request) (interface{}, error) {
	return authendpoint.SignOutRequest{}, nil
}

func decodeHTTPRefreshRequest(_ context.Context, r *http.Request) (interface{}, error) {
	return authendpoint.RefreshRequest{}, nil
}

func decodeHTTPValidateRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var req authendpoint.ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, authsvc.ErrInvalidArgument
	}
	return req, nil
}

func decodeHTTPSignInResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusOK {
		return authendpoint.SignInResponse{Err: decodeError(r)}, nil
	}
	var resp authendpoint.SignInResponse
	err := json.NewDecoder(r.Body).Decode(&resp)
	return resp, err
}

func decodeHTTPSignUpResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusOK {
		return authendpoint.SignUpResponse{Err: decodeError(r)}, nil
	}
	var resp authendpoint.SignUpResponse
	err := json.NewDecoder(r.Body).Decode(&resp)
	return resp, err
}

func decodeHTTPSignOutResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusOK {
		return authendpoint.SignOutResponse{Err: decodeError(r)}, nil
	}
	var resp authendpoint.SignOutResponse
	err := json.NewDecoder(r.Body).Decode(&resp)
	return resp, err
}

func decodeHTTPRefreshResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusOK {
		return authendpoint.RefreshResponse{Err: decodeError(r)}, nil
	}
	var resp authendpoint.RefreshResponse
	err := json.NewDecoder(r.Body).Decode(&resp)
	return resp, err
}

func decodeHTTPValidateResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusOK {
		return authendpoint.ValidateResponse{Err: decodeError(r)}, nil
	}
	var resp authendpoint.ValidateResponse
	err := json.NewDecoder(r.Body).Decode(&resp)
	return resp, err
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
