package userendpoint

import (
	"context"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/ichigozero/taskhaven/usersvc/pkg/userservice"
)

type Set struct {
	CreateUserEndpoint endpoint.Endpoint
	UserIDEndpoint     endpoint.Endpoint
	IsExistsEndpoint   endpoint.Endpoint
}

func New(svc userservice.Service, logger log.Logger) Set {
	var createUserEndpoint endpoint.Endpoint
	{
		createUserEndpoint = MakeCreateUserEndpoint(svc)
		createUserEndpoint = LoggingMiddleware(log.With(logger, "method", "CreateUser"))(createUserEndpoint)
	}

	var userIDEndpoint endpoint.Endpoint
	{
		userIDEndpoint = MakeUserIDEndpoint(svc)
		userIDEndpoint = LoggingMiddleware(log.With(logger, "method", "UserID"))(userIDEndpoint)
	}

	var isExistsEndpoint endpoint.Endpoint
	{
		isExistsEndpoint = MakeIsExistsEndpoint(svc)
		isExistsEndpoint = LoggingMiddleware(log.With(logger, "method", "IsExists"))(isExistsEndpoint)
	}

	return Set{
		CreateUserEndpoint: createUserEndpoint,
		UserIDEndpoint:     userIDEndpoint,
		IsExistsEndpoint:   isExistsEndpoint,
	}
}

func (s Set) CreateUser(ctx context.Context, email, password string) (uint64, error) {
	resp, err := s.CreateUserEndpoint(ctx, CreateUserRequest{Email: email, Password: password})
	if err != nil {
		return 0, err
	}
	response := resp.(CreateUserResponse)
	return response.ID, response.Err
}

func (s Set) UserID(ctx context.Context, email, password string) (uint64, error) {
	resp, err := s.UserIDEndpoint(ctx, UserIDRequest{Email: email, Password: password})
	if err != nil {
		return 0, err
	}
	response := resp.(UserIDResponse)
	return response.ID, response.Err
}

func (s Set) IsExists(ctx context.Context, id uint64) (bool, error) {
	resp, err := s.IsExistsEndpoint(ctx, IsExistsRequest{ID: id})
	if err != nil {
		return false, err
	}
	response := resp.(IsExistsResponse)
	return response.V, response.Err
}

func MakeCreateUserEndpoint(s userservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(CreateUserRequest)
		id, err := s.CreateUser(ctx, req.Email, req.Password)
		return CreateUserResponse{ID: id, Err: err}, nil
	}
}

func MakeUserIDEndpoint(s userservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(UserIDRequest)
		id, err := s.UserID(ctx, req.Email, req.Password)
		return UserIDResponse{ID: id, Err: err}, nil
	}
}

func MakeIsExistsEndpoint(s userservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(IsExistsRequest)
		v, err := s.IsExists(ctx, req.ID)
		return IsExistsResponse{V: v, Err: err}, nil
	}
}

var (
	_ endpoint.Failer = CreateUserResponse{}
	_ endpoint.Failer = UserIDResponse{}
	_ endpoint.Failer = IsExistsResponse{}
)

type CreateUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateUserResponse struct {
	ID  uint64 `json:"id"`
	Err error  `json:"-"`
}

func (r CreateUserResponse) Failed() error { return r.Err }

type UserIDRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserIDResponse struct {
	ID  uint64 `json:"id"`
	Err error  `json:"-"`
}

func (r UserIDResponse) Failed() error { return r.Err }

type IsExistsRequest struct {
	ID uint64 `json:"id"`
}

type IsExistsResponse struct {
	V   bool  `json:"v"`
	Err error `json:"-"`
}

func (r IsExistsResponse) Failed() error { return r.Err }
