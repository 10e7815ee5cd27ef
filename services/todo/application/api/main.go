package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/ghuser/todos/pkg/app"
	"github.com/ghuser/todos/pkg/httpx"
	"github.com/ghuser/todos/services/todo/application/handlers"
	appsvcs "github.com/ghuser/todos/services/todo/application/services"
)

// TodoRoutes registers the public endpoints on the provided chi router:
// POST /todos, GET /todos, GET / and GET /healthz.
func TodoRoutes(r chi.Router, a *app.Application) {
	Routes(r, appsvcs.New(a), a)
}

// Routes registers the endpoints against an already-wired service container.
func Routes(r chi.Router, svcs *appsvcs.Services, a *app.Application) {
	r.Get("/", handlers.NewHomeHandler(a.Version, a.Errors).Execute)
	r.Get("/healthz", httpx.LivenessHandler())

	r.Post("/todos", handlers.NewPostTodoHandler(svcs, a.Errors, a.Logger).Execute)
	r.Get("/todos", handlers.NewListTodosHandler(svcs, a.Errors).Execute)
}
