package gorm

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ichigozero/taskhaven/todosvc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	stdgorm "gorm.io/gorm"
)

func newTestDB(t *testing.T) *stdgorm.DB {
	t.Helper()

	db, err := stdgorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &stdgorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&todosvc.Todo{}))
	return db
}

func seed(t *testing.T, repo todosvc.TodoRepository, todos ...todosvc.Todo) {
	t.Helper()
	for i, todo := range todos {
		todo.CreatedAt = time.Date(2024, 1, 1, 0, 0, i, 0, time.UTC)
		_, err := repo.Create(todo)
		require.NoError(t, err)
	}
}

func TestFindAllScopesByOwnerAndOrdersByPriority(t *testing.T) {
	repo := NewTodoRepository(newTestDB(t))
	seed(t, repo,
		todosvc.Todo{ID: "a", Text: "low one", Priority: todosvc.PriorityLow, UserID: 1},
		todosvc.Todo{ID: "b", Text: "high one", Priority: todosvc.PriorityHigh, UserID: 1},
		todosvc.Todo{ID: "c", Text: "someone else", Priority: todosvc.PriorityHigh, UserID: 2},
		todosvc.Todo{ID: "d", Text: "medium one", Priority: todosvc.PriorityMedium, UserID: 1},
	)

	todos, err := repo.FindAll(1)
	require.NoError(t, err)

	ids := make([]string, 0, len(todos))
	for _, todo := range todos {
		assert.Equal(t, uint64(1), todo.UserID)
		ids = append(ids, todo.ID)
	}
	assert.Equal(t, []string{"b", "d", "a"}, ids)
}

func TestFindAllEmpty(t *testing.T) {
	repo := NewTodoRepository(newTestDB(t))

	todos, err := repo.FindAll(42)
	require.NoError(t, err)
	assert.NotNil(t, todos)
	assert.Empty(t, todos)
}

func TestUpdateAppliesOnlyPatchedFields(t *testing.T) {
	repo := NewTodoRepository(newTestDB(t))
	seed(t, repo, todosvc.Todo{ID: "a", Text: "Buy milk", Priority: todosvc.PriorityLow, UserID: 1})

	done := true
	todo, err := repo.Update(1, "a", todosvc.Patch{Completed: &done})
	require.NoError(t, err)
	assert.True(t, todo.Completed)
	assert.Equal(t, todosvc.PriorityLow, todo.Priority)
	assert.Equal(t, "Buy milk", todo.Text)

	high := todosvc.PriorityHigh
	todo, err = repo.Update(1, "a", todosvc.Patch{Priority: &high})
	require.NoError(t, err)
	assert.True(t, todo.Completed)
	assert.Equal(t, todosvc.PriorityHigh, todo.Priority)
}

func TestUpdateOtherOwnersTodoIsNotFound(t *testing.T) {
	repo := NewTodoRepository(newTestDB(t))
	seed(t, repo, todosvc.Todo{ID: "a", Text: "mine", Priority: todosvc.PriorityLow, UserID: 1})

	done := true
	_, err := repo.Update(2, "a", todosvc.Patch{Completed: &done})
	assert.Equal(t, todosvc.ErrTodoNotFound, err)

	todo, err := repo.Find(1, "a")
	require.NoError(t, err)
	assert.False(t, todo.Completed)
}

func TestDelete(t *testing.T) {
	repo := NewTodoRepository(newTestDB(t))
	seed(t, repo, todosvc.Todo{ID: "a", Text: "mine", Priority: todosvc.PriorityLow, UserID: 1})

	ok, err := repo.Delete(2, "a")
	assert.False(t, ok)
	assert.Equal(t, todosvc.ErrTodoNotFound, err)

	ok, err = repo.Delete(1, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = repo.Find(1, "a")
	assert.Equal(t, todosvc.ErrTodoNotFound, err)
}
