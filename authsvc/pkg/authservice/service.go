package authservice

import (
	"context"
	"strconv"

	"github.com/go-kit/kit/log"
	"github.com/ichigozero/taskhaven/authsvc"
	"github.com/ichigozero/taskhaven/authsvc/inmem"
	"github.com/pkg/errors"
)

// Service issues and revokes sessions. SignIn and SignUp expect the user ID
// resolved by ProxingMiddleware under authsvc.UserIDContextKey.
type Service interface {
	SignIn(ctx context.Context, email, password string) (map[string]string, error)
	SignUp(ctx context.Context, email, password string) (uint64, error)
	SignOut(ctx context.Context, accessUUID string) (bool, error)
	Refresh(ctx context.Context, accessUUID, refreshUUID string, userID uint64) (map[string]string, error)
	Validate(ctx context.Context, accessUUID string) (bool, error)
}

func New(t Tokenizer, c inmem.Client, logger log.Logger) Service {
	var svc Service
	{
		svc = NewBasicService(t, c)
		svc = LoggingMiddleware(logger)(svc)
	}
	return svc
}

type basicService struct {
	tokenizer Tokenizer
	client    inmem.Client
}

func NewBasicService(t Tokenizer, c inmem.Client) Service {
	return &basicService{tokenizer: t, client: c}
}

func (s *basicService) SignIn(ctx context.Context, _, _ string) (map[string]string, error) {
	userID, ok := ctx.Value(authsvc.UserIDContextKey).(uint64)
	if !ok {
		return nil, authsvc.ErrUserIDContextMissing
	}

	return s.issue(ctx, userID)
}

func (s *basicService) SignUp(ctx context.Context, _, _ string) (uint64, error) {
	userID, ok := ctx.Value(authsvc.UserIDContextKey).(uint64)
	if !ok {
		return 0, authsvc.ErrUserIDContextMissing
	}

	return userID, nil
}

func (s *basicService) SignOut(ctx context.Context, accessUUID string) (bool, error) {
	if accessUUID == "" {
		return false, authsvc.ErrInvalidArgument
	}

	if err := s.revoke(ctx, accessUUID, refreshUUIDFor(accessUUID)); err != nil {
		return false, err
	}

	return true, nil
}

func (s *basicService) Refresh(ctx context.Context, accessUUID, refreshUUID string, userID uint64) (map[string]string, error) {
	if accessUUID == "" || refreshUUID == "" || userID == 0 {
		return nil, authsvc.ErrInvalidArgument
	}

	err := s.client.Get(ctx, refreshUUID)
	if err == inmem.ErrKeyNotFound {
		return nil, authsvc.ErrTokenRevoked
	}
	if err != nil {
		return nil, errors.Wrap(err, "look up refresh token")
	}

	if err := s.revoke(ctx, accessUUID, refreshUUID); err != nil {
		return nil, err
	}

	return s.issue(ctx, userID)
}

func (s *basicService) Validate(ctx context.Context, accessUUID string) (bool, error) {
	if accessUUID == "" {
		return false, authsvc.ErrInvalidArgument
	}

	err := s.client.Get(ctx, accessUUID)
	if err == inmem.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "look up access token")
	}

	return true, nil
}

func (s *basicService) issue(ctx context.Context, userID uint64) (map[string]string, error) {
	pair, err := s.tokenizer.Issue(userID)
	if err != nil {
		return nil, errors.Wrap(err, "issue tokens")
	}

	// The stored value is the owner; only presence matters for validation.
	value := []byte(strconv.FormatUint(userID, 10))
	if err := s.client.Put(ctx, pair.AccessUUID, value, pair.AccessTTL); err != nil {
		return nil, errors.Wrap(err, "store access token")
	}
	if err := s.client.Put(ctx, pair.RefreshUUID, value, pair.RefreshTTL); err != nil {
		return nil, errors.Wrap(err, "store refresh token")
	}

	return pair.Map(), nil
}

func (s *basicService) revoke(ctx context.Context, accessUUID, refreshUUID string) error {
	if err := s.client.Delete(ctx, accessUUID); err != nil {
		return errors.Wrap(err, "revoke access token")
	}
	if err := s.client.Delete(ctx, refreshUUID); err != nil {
		return errors.Wrap(err, "revoke refresh token")
	}
	return nil
}
