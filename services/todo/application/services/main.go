package services

import (
	"context"

	"github.com/ghuser/todos/pkg/app"
	"github.com/ghuser/todos/pkg/cache"
	"github.com/ghuser/todos/services/todo/infrastructure/persistence/postgres"
)

// IdempotencyScope namespaces POST /todos replay entries in Redis.
const IdempotencyScope = "todos"

// IdempotencyStore is satisfied by *cache.IdempotencyStore. Claim returns
// (nil, nil) when the caller owns the key, a stored response to replay, or
// cache.ErrIdempotencyInFlight / cache.ErrIdempotencyMismatch.
type IdempotencyStore interface {
	Claim(ctx context.Context, key, fingerprint string) (*cache.StoredResponse, error)
	Complete(ctx context.Context, key string, resp *cache.StoredResponse) error
	Release(ctx context.Context, key string) error
}

// Services is the application-layer service container for this bounded context.
// It wires domain services with their infrastructure implementations.
type Services struct {
	Todo *TodoService

	// Idempotency is nil when Redis is not configured.
	Idempotency IdempotencyStore
}

// New wires all todo application services with infrastructure from the Application container.
func New(a *app.Application) *Services {
	repo := postgres.NewTodoRepository(a.Db)

	var publisher EventPublisher
	if a.EventBus != nil {
		publisher = a.EventBus
	}

	svcs := &Services{
		Todo: NewTodoService(repo, publisher, a.Logger),
	}
	if a.Redis != nil {
		svcs.Idempotency = cache.NewIdempotencyStore(a.Redis, IdempotencyScope)
	}
	return svcs
}
