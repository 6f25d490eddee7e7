package usersvc

import (
	"errors"
	"strings"
	"time"
)

// MinPasswordLength is the shortest password an account may be created with.
const MinPasswordLength = 6

type User struct {
	ID           uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	Email        string    `json:"email" gorm:"size:255;uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`
}

type UserRepository interface {
	Create(user User) (User, error)
	FindByEmail(email string) (User, error)
	IsExists(id uint64) (bool, error)
}

// NormalizeEmail is applied to every email before it is stored or looked up.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateCredentials checks the shape of a sign-up request.
func ValidateCredentials(email, password string) error {
	if email == "" || password == "" {
		return ErrInvalidArgument
	}
	if !strings.Contains(email, "@") {
		return ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrPasswordTooShort = errors.New("password too short")
	ErrEmailTaken       = errors.New("email already registered")
	ErrUserNotFound     = errors.New("user not found")
)
