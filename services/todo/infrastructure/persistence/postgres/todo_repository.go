package postgres

import (
	"context"
	"fmt"

	"github.com/ghuser/todos/pkg/database"
	"github.com/ghuser/todos/services/todo/domain/models"
)

const (
	insertTodoSQL = `INSERT INTO todos(value) VALUES($1) RETURNING id, value, created_at`
	listTodosSQL  = `SELECT id, value, created_at FROM todos ORDER BY id`
)

// TodoRepository implements repositories.TodoRepository against PostgreSQL.
// Values are always sent as bound parameters.
type TodoRepository struct {
	db *database.Database
}

// NewTodoRepository returns a TodoRepository backed by the given connection pool.
func NewTodoRepository(db *database.Database) *TodoRepository {
	return &TodoRepository{db: db}
}

// Insert persists value and returns the stored row.
func (r *TodoRepository) Insert(ctx context.Context, value models.TodoValue) (*models.Todo, error) {
	var (
		todo   models.Todo
		stored string
	)
	err := r.db.DB().QueryRowContext(ctx, insertTodoSQL, value.String()).
		Scan(&todo.ID, &stored, &todo.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert todo: %w", err)
	}
	todo.Value = models.TodoValue(stored)
	return &todo, nil
}

// ListAll returns every todo ordered by ascending ID.
func (r *TodoRepository) ListAll(ctx context.Context) ([]*models.Todo, error) {
	rows, err := r.db.DB().QueryContext(ctx, listTodosSQL)
	if err != nil {
		return nil, fmt.Errorf("query todos: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	todos := make([]*models.Todo, 0)
	for rows.Next() {
		var (
			todo   models.Todo
			stored string
		)
		if err := rows.Scan(&todo.ID, &stored, &todo.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}
		todo.Value = models.TodoValue(stored)
		todos = append(todos, &todo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate todos: %w", err)
	}
	return todos, nil
}
