package authendpoint

import (
	"context"
	"fmt"
	"strconv"

	stdjwt "github.com/dgrijalva/jwt-go"
	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/ichigozero/taskhaven/authsvc"
	"github.com/ichigozero/taskhaven/authsvc/pkg/authservice"
)

type Set struct {
	SignInEndpoint   endpoint.Endpoint
	SignUpEndpoint   endpoint.Endpoint
	SignOutEndpoint  endpoint.Endpoint
	RefreshEndpoint  endpoint.Endpoint
	ValidateEndpoint endpoint.Endpoint
}

func New(svc authservice.Service, logger log.Logger) Set {
	var signInEndpoint endpoint.Endpoint
	{
		signInEndpoint = MakeSignInEndpoint(svc)
		signInEndpoint = LoggingMiddleware(log.With(logger, "method", "SignIn"))(signInEndpoint)
	}

	var signUpEndpoint endpoint.Endpoint
	{
		signUpEndpoint = MakeSignUpEndpoint(svc)
		signUpEndpoint = LoggingMiddleware(log.With(logger, "method", "SignUp"))(signUpEndpoint)
	}

	var signOutEndpoint endpoint.Endpoint
	{
		signOutEndpoint = MakeSignOutEndpoint(svc)
		signOutEndpoint = LoggingMiddleware(log.With(logger, "method", "SignOut"))(signOutEndpoint)
	}

	var refreshEndpoint endpoint.Endpoint
	{
		refreshEndpoint = MakeRefreshEndpoint(svc)
		refreshEndpoint = LoggingMiddleware(log.With(logger, "method", "Refresh"))(refreshEndpoint)
	}

	var validateEndpoint endpoint.Endpoint
	{
		validateEndpoint = MakeValidateEndpoint(svc)
		validateEndpoint = LoggingMiddleware(log.With(logger, "method", "Validate"))(validateEndpoint)
	}

	return Set{
		SignInEndpoint:   signInEndpoint,
		SignUpEndpoint:   signUpEndpoint,
		SignOutEndpoint:  signOutEndpoint,
		RefreshEndpoint:  refreshEndpoint,
		ValidateEndpoint: validateEndpoint,
	}
}

func (s Set) SignIn(ctx context.Context, email, password string) (map[string]string, error) {
	response, err := s.SignInEndpoint(ctx, SignInRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}

	resp := response.(SignInResponse)
	return resp.Tokens, resp.Err
}

func (s Set) SignUp(ctx context.Context, email, password string) (uint64, error) {
	response, err := s.SignUpEndpoint(ctx, SignUpRequest{Email: email, Password: password})
	if err != nil {
		return 0, err
	}

	resp := response.(SignUpResponse)
	return resp.ID, resp.Err
}

// SignOut, like Refresh, identifies the session by the JWT carried in ctx;
// the explicit arguments are only used server side.
func (s Set) SignOut(ctx context.Context, accessUUID string) (bool, error) {
	response, err := s.SignOutEndpoint(ctx, SignOutRequest{})
	if err != nil {
		return false, err
	}

	resp := response.(SignOutResponse)
	return resp.Success, resp.Err
}

func (s Set) Refresh(ctx context.Context, accessUUID, refreshUUID string, userID uint64) (map[string]string, error) {
	response, err := s.RefreshEndpoint(ctx, RefreshRequest{})
	if err != nil {
		return nil, err
	}

	resp := response.(RefreshResponse)
	return resp.Tokens, resp.Err
}

func (s Set) Validate(ctx context.Context, accessUUID string) (bool, error) {
	response, err := s.ValidateEndpoint(ctx, ValidateRequest{AccessUUID: accessUUID})
	if err != nil {
		return false, err
	}

	resp := response.(ValidateResponse)
	return resp.V, resp.Err
}

func MakeSignInEndpoint(s authservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(SignInRequest)
		t, err := s.SignIn(ctx, req.Email, req.Password)

		return SignInResponse{Tokens: t, Err: err}, nil
	}
}

func MakeSignUpEndpoint(s authservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(SignUpRequest)
		id, err := s.SignUp(ctx, req.Email, req.Password)

		return SignUpResponse{ID: id, Err: err}, nil
	}
}

func MakeSignOutEndpoint(s authservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		_ = request.(SignOutRequest)

		uuid, ok := authsvc.AccessUUID(ctx)
		if !ok {
			claims, ok := ctx.Value(kitjwt.JWTClaimsContextKey).(stdjwt.MapClaims)
			if !ok {
				return SignOutResponse{Err: authsvc.ErrClaimsMissing}, nil
			}
			if uuid, ok = claims["uuid"].(string); !ok {
				return SignOutResponse{Err: authsvc.ErrClaimsInvalid}, nil
			}
		}
		v, err := s.SignOut(ctx, uuid)

		return SignOutResponse{Success: v, Err: err}, nil
	}
}

func MakeRefreshEndpoint(s authservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		claims, ok := ctx.Value(kitjwt.JWTClaimsContextKey).(stdjwt.MapClaims)
		if !ok {
			return RefreshResponse{Err: authsvc.ErrClaimsMissing}, nil
		}

		accessUUID, ok := claims["access_uuid"].(string)
		if !ok {
			return RefreshResponse{Err: authsvc.ErrClaimsInvalid}, nil
		}

		refreshUUID, ok := claims["refresh_uuid"].(string)
		if !ok {
			return RefreshResponse{Err: authsvc.ErrClaimsInvalid}, nil
		}

		userID, err := strconv.ParseUint(fmt.Sprintf("%.f", claims["user_id"]), 10, 64)
		if err != nil {
			return RefreshResponse{Err: authsvc.ErrClaimsInvalid}, nil
		}

		_ = request.(RefreshRequest)
		t, err := s.Refresh(ctx, accessUUID, refreshUUID, userID)

		return RefreshResponse{Tokens: t, Err: err}, nil
	}
}

func MakeValidateEndpoint(s authservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(ValidateRequest)
		v, err := s.Validate(ctx, req.AccessUUID)

		return ValidateResponse{V: v, Err: err}, nil
	}
}

var (
	_ endpoint.Failer = SignInResponse{}
	_ endpoint.Failer = SignUpResponse{}
	_ endpoint.Failer = SignOutResponse{}
	_ endpoint.Failer = RefreshResponse{}
	_ endpoint.Failer = ValidateResponse{}
)

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignInResponse struct {
	Tokens map[string]string `json:"tokens"`
	Err    error             `json:"-"`
}

func (r SignInResponse) Failed() error { return r.Err }

type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignUpResponse struct {
	ID  uint64 `json:"id"`
	Err error  `json:"-"`
}

func (r SignUpResponse) Failed() error { return r.Err }

type SignOutRequest struct{}

type SignOutResponse struct {
	Success bool  `json:"success"`
	Err     error `json:"-"`
}

func (r SignOutResponse) Failed() error { return r.Err }

type RefreshRequest struct{}

type RefreshResponse struct {
	Tokens map[string]string `json:"tokens"`
	Err    error             `json:"-"`
}

func (r RefreshResponse) Failed() error { return r.Err }

type ValidateRequest struct {
	AccessUUID string `json:"access_uuid"`
}

type ValidateResponse struct {
	V   bool  `json:"v"`
	Err error `json:"-"`
}

func (r ValidateResponse) Failed() error { return r.Err }
