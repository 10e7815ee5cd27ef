package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	pkgevents "github.com/ghuser/todos/pkg/events"
	"github.com/ghuser/todos/pkg/logger"
	tododomain "github.com/ghuser/todos/services/todo/domain"
	todoevents "github.com/ghuser/todos/services/todo/domain/events"
	"github.com/ghuser/todos/services/todo/domain/models"
	"github.com/ghuser/todos/services/todo/domain/repositories"
)

const meterName = "github.com/ghuser/todos/services/todo"

// EventPublisher is the subset of *events.EventBus the service needs.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, msgs ...*message.Message) error
}

// TodoService orchestrates creation and listing of todos.
//
// A todo.created event is published after each successful insert. Publishing
// is best-effort: a failure is logged and never changes the Create result.
type TodoService struct {
	repo      repositories.TodoRepository
	publisher EventPublisher
	log       logger.Logger
	created   metric.Int64Counter
	now       func() time.Time
}

// NewTodoService returns a TodoService. publisher may be nil, in which case
// no events are emitted.
func NewTodoService(repo repositories.TodoRepository, publisher EventPublisher, log logger.Logger) *TodoService {
	created, err := otel.Meter(meterName).Int64Counter("todos.created",
		metric.WithDescription("Todos persisted"),
	)
	if err != nil {
		created, _ = noop.NewMeterProvider().Meter(meterName).Int64Counter("todos.created")
	}
	return &TodoService{
		repo:      repo,
		publisher: publisher,
		log:       log,
		created:   created,
		now:       time.Now,
	}
}

// Create trims and validates raw, persists it, and returns the stored todo.
//
// Validation failures wrap ErrInvalidTodoValue together with the reason
// (ErrEmptyTodoValue or ErrTodoValueTooLong). Store failures wrap
// ErrPersistence; the driver error stays in the chain for logs only.
func (s *TodoService) Create(ctx context.Context, raw string) (*models.Todo, error) {
	value, err := models.NewTodoValue(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", tododomain.ErrInvalidTodoValue, err)
	}

	todo, err := s.repo.Insert(ctx, value)
	if err != nil {
		return nil, fmt.Errorf("%w: save todo: %w", tododomain.ErrPersistence, err)
	}

	s.created.Add(ctx, 1)
	s.publishCreated(ctx, todo)
	return todo, nil
}

// List returns every todo in ascending ID order, or an empty slice.
func (s *TodoService) List(ctx context.Context) ([]*models.Todo, error) {
	todos, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list todos: %w", tododomain.ErrPersistence, err)
	}
	return todos, nil
}

func (s *TodoService) publishCreated(ctx context.Context, todo *models.Todo) {
	if s.publisher == nil {
		return
	}

	evt := todoevents.TodoCreatedEvent{
		EventID:    uuid.New(),
		Version:    1,
		TodoID:     todo.ID,
		Value:      todo.Value.String(),
		OccurredAt: s.now().UTC(),
	}
	msg, err := pkgevents.NewJSONMessage(evt, map[string]string{
		"event_type": todoevents.TopicTodoCreated,
		"event_id":   evt.EventID.String(),
	})
	if err == nil {
		err = s.publisher.Publish(ctx, todoevents.TopicTodoCreated, msg)
	}
	if err != nil {
		s.log.WarnContext(ctx, "publish todo.created failed",
			"todo_id", todo.ID,
			"error", err,
		)
	}
}
