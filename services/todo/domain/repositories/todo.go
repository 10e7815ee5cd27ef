package repositories

import (
	"context"

	"github.com/ghuser/todos/services/todo/domain/models"
)

// TodoRepository is the persistence interface for todos.
// The domain layer owns this interface; infrastructure implements it.
type TodoRepository interface {
	// Insert stores value and returns the row with its assigned ID and timestamp.
	Insert(ctx context.Context, value models.TodoValue) (*models.Todo, error)

	// ListAll returns every todo in ascending ID order.
	// An empty table yields an empty, non-nil slice.
	ListAll(ctx context.Context) ([]*models.Todo, error)
}
