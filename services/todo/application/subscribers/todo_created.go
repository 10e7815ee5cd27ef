// Package subscribers holds the event handlers run by cmd/worker.
package subscribers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ghuser/todos/pkg/events"
	"github.com/ghuser/todos/pkg/logger"
	todoevents "github.com/ghuser/todos/services/todo/domain/events"
	"github.com/ghuser/todos/services/todo/domain/models"
)

const meterName = "github.com/ghuser/todos/services/todo/subscribers"

var todoCreatedSchema = compileSchema(todoevents.TodoCreatedSchemaURL, todoevents.TodoCreatedSchema)

func compileSchema(url string, raw []byte) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.AssertFormat = true
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", url, err))
	}
	return c.MustCompile(url)
}

// decodeTodoCreated validates payload against the todo.created schema and
// decodes it. The value must also pass the same rules as a new todo.
func decodeTodoCreated(payload []byte) (*todoevents.TodoCreatedEvent, error) {
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if err := todoCreatedSchema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return nil, fmt.Errorf("payload violates schema at %q: %s", ve.InstanceLocation, ve.Message)
		}
		return nil, fmt.Errorf("validate payload: %w", err)
	}

	var evt todoevents.TodoCreatedEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	// The schema's maxLength counts code points; stored values are bounded
	// in UTF-16 units and already trimmed.
	v, err := models.NewTodoValue(evt.Value)
	if err != nil {
		return nil, fmt.Errorf("payload value: %w", err)
	}
	if v.String() != evt.Value {
		return nil, errors.New("payload value is not trimmed")
	}
	return &evt, nil
}

// Subscriber is the subset of *events.EventBus used to register handlers.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, h events.Handler) (<-chan error, error)
}

// Register subscribes every todo event handler on bus and drains the
// returned error channels into log.
func Register(ctx context.Context, bus Subscriber, log logger.Logger) error {
	handler, err := NewTodoCreatedHandler(log)
	if err != nil {
		return err
	}

	errCh, err := bus.Subscribe(ctx, todoevents.TopicTodoCreated, handler)
	if err != nil {
		return err
	}

	// Drain subscriber errors in background so the channel never blocks.
	go func() {
		for err := range errCh {
			log.ErrorContext(ctx, "subscriber error",
				"topic", todoevents.TopicTodoCreated,
				"error", err,
			)
		}
	}()

	log.Info("event subscribers registered", "topics", []string{todoevents.TopicTodoCreated})
	return nil
}

// NewTodoCreatedHandler returns the todo.created handler: it writes an
// audit log line and increments todos.events.consumed.
//
// A payload that fails to decode or violates the schema is logged and
// returned as a permanent error, so the bus acks it without retrying.
func NewTodoCreatedHandler(log logger.Logger) (events.Handler, error) {
	consumed, err := otel.Meter(meterName).Int64Counter("todos.events.consumed",
		metric.WithDescription("Todo events handled by the worker"),
	)
	if err != nil {
		return nil, fmt.Errorf("create consumed counter: %w", err)
	}

	return func(ctx context.Context, msg *message.Message) error {
		evt, err := decodeTodoCreated(msg.Payload)
		if err != nil {
			log.ErrorContext(ctx, "discarding invalid todo.created message",
				"message_uuid", msg.UUID,
				"error", err,
			)
			consumed.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "discarded")))
			return events.Permanent(err)
		}

		log.InfoContext(ctx, "todo created",
			"event_id", evt.EventID,
			"todo_id", evt.TodoID,
			"value_length", models.ValueLength(evt.Value),
			"occurred_at", evt.OccurredAt,
		)
		consumed.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "processed")))
		return nil
	}, nil
}
