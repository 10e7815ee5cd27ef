package handlers

import (
	"time"

	"github.com/ghuser/todos/services/todo/domain/models"
)

// TodoResponse is the JSON shape of a todo in every response.
type TodoResponse struct {
	ID        int64     `json:"id"         example:"1"`
	Value     string    `json:"value"      example:"Buy milk"`
	CreatedAt time.Time `json:"created_at" example:"2024-01-15T10:30:00Z"`
} // @name TodoResponse

// ErrorResponse is returned on all error responses.
type ErrorResponse struct {
	Error   string `json:"error"             example:"invalid value"`
	Details string `json:"details,omitempty" example:"value must be a non-empty string"`
} // @name ErrorResponse

func toTodoResponse(t *models.Todo) TodoResponse {
	return TodoResponse{
		ID:        t.ID,
		Value:     t.Value.String(),
		CreatedAt: t.CreatedAt,
	}
}
