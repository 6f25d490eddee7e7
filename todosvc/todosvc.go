package todosvc

import (
	"errors"
	"strings"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", ErrInvalidPriority
	}
	return p, nil
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Next advances p along the cycle low -> medium -> high -> low.
func (p Priority) Next() Priority {
	switch p {
	case PriorityLow:
		return PriorityMedium
	case PriorityMedium:
		return PriorityHigh
	}
	return PriorityLow
}

// Rank orders priorities for display, high first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	}
	return 2
}

type Todo struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Text      string    `json:"text" gorm:"not null"`
	Completed bool      `json:"completed" gorm:"not null;default:false"`
	Priority  Priority  `json:"priority" gorm:"size:8;not null;default:'low'"`
	UserID    uint64    `json:"user_id" gorm:"index;not null"`
	CreatedAt time.Time `json:"created_at"`
}

// Patch carries the mutable fields of a Todo. Nil fields are left untouched.
type Patch struct {
	Completed *bool     `json:"completed,omitempty"`
	Priority  *Priority `json:"priority,omitempty"`
}

func (p Patch) Empty() bool {
	return p.Completed == nil && p.Priority == nil
}

type TodoRepository interface {
	Create(todo Todo) (Todo, error)
	FindAll(userID uint64) ([]Todo, error)
	Find(userID uint64, todoID string) (Todo, error)
	Update(userID uint64, todoID string, patch Patch) (Todo, error)
	Delete(userID uint64, todoID string) (bool, error)
}

type Auth struct {
	AccessUUID string
	UserID     uint64
}

var (
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrInvalidPriority      = errors.New("priority must be one of low, medium, high")
	ErrTodoNotFound         = errors.New("todo not found")
	ErrTodoExists           = errors.New("todo already exists")
	ErrForbidden            = errors.New("owner does not match the authenticated user")
	ErrUserIDContextMissing = errors.New("user ID was not passed through the context")
	ErrClaimsMissing        = errors.New("JWT claims was not passed through the context")
	ErrClaimsInvalid        = errors.New("JWT claims was invalid")
)
