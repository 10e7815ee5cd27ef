package handlers

import (
	"net/http"

	"github.com/ghuser/todos/pkg/errhttp"
	"github.com/ghuser/todos/pkg/httpx"
	appsvcs "github.com/ghuser/todos/services/todo/application/services"
)

// ListTodosHandler handles GET /todos requests.
type ListTodosHandler struct {
	svc  *appsvcs.Services
	errs *errhttp.Responder
}

// NewListTodosHandler returns a ListTodosHandler backed by the given services.
func NewListTodosHandler(svc *appsvcs.Services, errs *errhttp.Responder) *ListTodosHandler {
	return &ListTodosHandler{svc: svc, errs: errs}
}

// Execute lists every todo.
//
//	@Summary		List todos
//	@Description	Returns all todos in ascending id order; an empty array when none exist
//	@Tags			todos
//	@Produce		json
//	@Success		200	{array}		TodoResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/todos [get]
func (h *ListTodosHandler) Execute(w http.ResponseWriter, r *http.Request) {
	todos, err := h.svc.Todo.List(r.Context())
	if err != nil {
		h.errs.WriteError(w, r, err)
		return
	}

	resp := make([]TodoResponse, 0, len(todos))
	for _, t := range todos {
		resp = append(resp, toTodoResponse(t))
	}
	httpx.JSON(w, http.StatusOK, resp)
}
