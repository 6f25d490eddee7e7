package gorm

import (
	"github.com/ichigozero/taskhaven/todosvc"
	"github.com/pkg/errors"
	stdgorm "gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type todoRepository struct {
	db *stdgorm.DB
}

func NewTodoRepository(db *stdgorm.DB) todosvc.TodoRepository {
	return &todoRepository{db}
}

// priorityOrder sorts high before medium before low.
var priorityOrder = clause.OrderBy{
	Expression: clause.Expr{
		SQL: "CASE priority WHEN ? THEN 3 WHEN ? THEN 2 ELSE 1 END DESC, created_at, id",
		Vars: []interface{}{
			string(todosvc.PriorityHigh),
			string(todosvc.PriorityMedium),
		},
	},
}

func (t todoRepository) Create(todo todosvc.Todo) (todosvc.Todo, error) {
	result := t.db.Create(&todo)
	if errors.Is(result.Error, stdgorm.ErrDuplicatedKey) {
		return todosvc.Todo{}, todosvc.ErrTodoExists
	}
	if result.Error != nil {
		return todosvc.Todo{}, errors.Wrap(result.Error, "create todo")
	}

	return todo, nil
}

func (t todoRepository) FindAll(userID uint64) ([]todosvc.Todo, error) {
	todos := []todosvc.Todo{}
	result := t.db.Where("user_id = ?", userID).Clauses(priorityOrder).Find(&todos)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "find todos")
	}

	return todos, nil
}

func (t todoRepository) Find(userID uint64, todoID string) (todosvc.Todo, error) {
	var todo todosvc.Todo
	result := t.db.Where("id = ? AND user_id = ?", todoID, userID).First(&todo)
	if errors.Is(result.Error, stdgorm.ErrRecordNotFound) {
		return todosvc.Todo{}, todosvc.ErrTodoNotFound
	}
	if result.Error != nil {
		return todosvc.Todo{}, errors.Wrap(result.Error, "find todo")
	}

	return todo, nil
}

func (t todoRepository) Update(userID uint64, todoID string, patch todosvc.Patch) (todosvc.Todo, error) {
	fields := map[string]interface{}{}
	if patch.Completed != nil {
		fields["completed"] = *patch.Completed
	}
	if patch.Priority != nil {
		fields["priority"] = string(*patch.Priority)
	}

	result := t.db.Model(&todosvc.Todo{}).
		Where("id = ? AND user_id = ?", todoID, userID).
		Updates(fields)
	if result.Error != nil {
		return todosvc.Todo{}, errors.Wrap(result.Error, "update todo")
	}

	// RowsAffected is not trusted here: mysql reports changed rather than
	// matched rows, so a no-op update of an owned row would look missing.
	return t.Find(userID, todoID)
}

func (t todoRepository) Delete(userID uint64, todoID string) (bool, error) {
	result := t.db.Where("id = ? AND user_id = ?", todoID, userID).Delete(&todosvc.Todo{})
	if result.Error != nil {
		return false, errors.Wrap(result.Error, "delete todo")
	}
	if result.RowsAffected == 0 {
		return false, todosvc.ErrTodoNotFound
	}

	return true, nil
}
