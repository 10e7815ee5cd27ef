package events

import (
	_ "embed"
	"time"

	"github.com/google/uuid"
)

// TopicTodoCreated is the Watermill topic published when a todo is created.
const TopicTodoCreated = "todo.created"

// TodoCreatedSchemaURL identifies TodoCreatedSchema when compiled.
const TodoCreatedSchemaURL = "https://github.com/ghuser/todos/events/todo_created.schema.json"

// TodoCreatedSchema is the JSON Schema for TodoCreatedEvent version 1 payloads.
//
//go:embed todo_created.schema.json
var TodoCreatedSchema []byte

// TodoCreatedEvent is published after a new todo is persisted.
// Consumers subscribe via EventBus.Subscribe(ctx, events.TopicTodoCreated).
type TodoCreatedEvent struct {
	EventID    uuid.UUID `json:"event_id"` // Unique publish-time identifier for deduplication
	Version    int       `json:"version"`  // Schema version; increment on breaking changes
	TodoID     int64     `json:"todo_id"`
	Value      string    `json:"value"`
	OccurredAt time.Time `json:"occurred_at"`
}
