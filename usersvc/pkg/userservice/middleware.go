package userservice

import (
	"context"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/go-kit/kit/metrics"
)

type Middleware func(Service) Service

// LoggingMiddleware logs every call at info, or at error when it fails.
// Passwords are never logged.
func LoggingMiddleware(logger log.Logger) Middleware {
	return func(next Service) Service {
		return loggingMiddleware{logger, next}
	}
}

type loggingMiddleware struct {
	logger log.Logger
	next   Service
}

func (mw loggingMiddleware) log(err error, keyvals ...interface{}) {
	l := level.Info(mw.logger)
	if err != nil {
		l = level.Error(mw.logger)
	}
	l.Log(append(keyvals, "err", err)...)
}

func (mw loggingMiddleware) CreateUser(ctx context.Context, email, password string) (id uint64, err error) {
	defer func() { mw.log(err, "method", "CreateUser", "email", email, "id", id) }()
	return mw.next.CreateUser(ctx, email, password)
}

func (mw loggingMiddleware) UserID(ctx context.Context, email, password string) (id uint64, err error) {
	defer func() { mw.log(err, "method", "UserID", "email", email, "id", id) }()
	return mw.next.UserID(ctx, email, password)
}

func (mw loggingMiddleware) IsExists(ctx context.Context, id uint64) (v bool, err error) {
	defer func() { mw.log(err, "method", "IsExists", "id", id, "v", v) }()
	return mw.next.IsExists(ctx, id)
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

func (mw instrumentingMiddleware) CreateUser(ctx context.Context, email, password string) (uint64, error) {
	defer mw.observe("create_user", time.Now())
	return mw.next.CreateUser(ctx, email, password)
}

func (mw instrumentingMiddleware) UserID(ctx context.Context, email, password string) (uint64, error) {
	defer mw.observe("user_id", time.Now())
	return mw.next.UserID(ctx, email, password)
}

func (mw instrumentingMiddleware) IsExists(ctx context.Context, id uint64) (bool, error) {
	defer mw.observe("is_exists", time.Now())
	return mw.next.IsExists(ctx, id)
}
