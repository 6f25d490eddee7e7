package authservice

import (
	"context"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics"
	"github.com/ichigozero/taskhaven/authsvc"
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

func (mw loggingMiddleware) SignIn(ctx context.Context, email, password string) (tokens map[string]string, err error) {
	defer func() {
		mw.logger.Log("method", "SignIn", "email", email, "err", err)
	}()
	return mw.next.SignIn(ctx, email, password)
}

func (mw loggingMiddleware) SignUp(ctx context.Context, email, password string) (id uint64, err error) {
	defer func() {
		mw.logger.Log("method", "SignUp", "email", email, "id", id, "err", err)
	}()
	return mw.next.SignUp(ctx, email, password)
}

func (mw loggingMiddleware) SignOut(ctx context.Context, accessUUID string) (v bool, err error) {
	defer func() {
		mw.logger.Log("method", "SignOut", "access_uuid", accessUUID, "v", v, "err", err)
	}()
	return mw.next.SignOut(ctx, accessUUID)
}

func (mw loggingMiddleware) Refresh(ctx context.Context, accessUUID, refreshUUID string, userID uint64) (tokens map[string]string, err error) {
	defer func() {
		mw.logger.Log("method", "Refresh", "access_uuid", accessUUID, "user_id", userID, "err", err)
	}()
	return mw.next.Refresh(ctx, accessUUID, refreshUUID, userID)
}

func (mw loggingMiddleware) Validate(ctx context.Context, accessUUID string) (v bool, err error) {
	defer func() {
		mw.logger.Log("method", "Validate", "access_uuid", accessUUID, "v", v, "err", err)
	}()
	return mw.next.Validate(ctx, accessUUID)
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

func (mw instrumentingMiddleware) SignIn(ctx context.Context, email, password string) (map[string]string, error) {
	defer mw.observe("sign_in", time.Now())
	return mw.next.SignIn(ctx, email, password)
}

func (mw instrumentingMiddleware) SignUp(ctx context.Context, email, password string) (uint64, error) {
	defer mw.observe("sign_up", time.Now())
	return mw.next.SignUp(ctx, email, password)
}

func (mw instrumentingMiddleware) SignOut(ctx context.Context, accessUUID string) (bool, error) {
	defer mw.observe("sign_out", time.Now())
	return mw.next.SignOut(ctx, accessUUID)
}

func (mw instrumentingMiddleware) Refresh(ctx context.Context, accessUUID, refreshUUID string, userID uint64) (map[string]string, error) {
	defer mw.observe("refresh", time.Now())
	return mw.next.Refresh(ctx, accessUUID, refreshUUID, userID)
}

func (mw instrumentingMiddleware) Validate(ctx context.Context, accessUUID string) (bool, error) {
	defer mw.observe("validate", time.Now())
	return mw.next.Validate(ctx, accessUUID)
}

// ProxingMiddleware resolves accounts through usersvc before SignIn and
// SignUp reach the wrapped service.
func ProxingMiddleware(ctx context.Context, userIDEndpoint, createUserEndpoint endpoint.Endpoint) Middleware {
	return func(next Service) Service {
		return proxingMiddleware{next, userIDEndpoint, createUserEndpoint}
	}
}

type proxingMiddleware struct {
	next       Service
	userID     endpoint.Endpoint
	createUser endpoint.Endpoint
}

func (mw proxingMiddleware) SignIn(ctx context.Context, email, password string) (map[string]string, error) {
	response, err := mw.userID(ctx, userendpoint.UserIDRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}

	resp := response.(userendpoint.UserIDResponse)
	if resp.Err != nil {
		return nil, resp.Err
	}

	ctx = context.WithValue(ctx, authsvc.UserIDContextKey, resp.ID)

	return mw.next.SignIn(ctx, email, password)
}

func (mw proxingMiddleware) SignUp(ctx context.Context, email, password string) (uint64, error) {
	response, err := mw.createUser(ctx, userendpoint.CreateUserRequest{Email: email, Password: password})
	if err != nil {
		return 0, err
	}

	resp := response.(userendpoint.CreateUserResponse)
	if resp.Err != nil {
		return 0, resp.Err
	}

	ctx = context.WithValue(ctx, authsvc.UserIDContextKey, resp.ID)

	return mw.next.SignUp(ctx, email, password)
}

func (mw proxingMiddleware) SignOut(ctx context.Context, accessUUID string) (bool, error) {
	return mw.next.SignOut(ctx, accessUUID)
}

func (mw proxingMiddleware) Refresh(ctx context.Context, accessUUID, refreshUUID string, userID uint64) (map[string]string, error) {
	return mw.next.Refresh(ctx, accessUUID, refreshUUID, userID)
}

func (mw proxingMiddleware) Validate(ctx context.Context, accessUUID string) (bool, error) {
	return mw.next.Validate(ctx, accessUUID)
}
