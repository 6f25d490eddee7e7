package userservice

import (
	"context"

	"github.com/go-kit/kit/log"
	"github.com/ichigozero/taskhaven/usersvc"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

type Service interface {
	CreateUser(ctx context.Context, email, password string) (uint64, error)
	UserID(ctx context.Context, email, password string) (uint64, error)
	IsExists(ctx context.Context, id uint64) (bool, error)
}

func New(u usersvc.UserRepository, logger log.Logger) Service {
	var svc Service
	{
		svc = NewBasicService(u)
		svc = LoggingMiddleware(logger)(svc)
	}
	return svc
}

func NewBasicService(u usersvc.UserRepository) Service {
	return basicService{users: u, cost: bcrypt.DefaultCost}
}

type basicService struct {
	users usersvc.UserRepository
	cost  int
}

func (s basicService) CreateUser(_ context.Context, email, password string) (uint64, error) {
	email = usersvc.NormalizeEmail(email)
	if err := usersvc.ValidateCredentials(email, password); err != nil {
		return 0, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return 0, errors.Wrap(err, "hash password")
	}

	user, err := s.users.Create(usersvc.User{Email: email, PasswordHash: string(hash)})
	if err != nil {
		return 0, err
	}

	return user.ID, nil
}

func (s basicService) UserID(_ context.Context, email, password string) (uint64, error) {
	email = usersvc.NormalizeEmail(email)
	if email == "" || password == "" {
		return 0, usersvc.ErrInvalidArgument
	}

	user, err := s.users.FindByEmail(email)
	if err != nil {
		return 0, err
	}

	// A wrong password is indistinguishable from an unknown email.
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return 0, usersvc.ErrUserNotFound
	}

	return user.ID, nil
}

func (s basicService) IsExists(_ context.Context, id uint64) (bool, error) {
	if id == 0 {
		return false, usersvc.ErrInvalidArgument
	}
	return s.users.IsExists(id)
}
