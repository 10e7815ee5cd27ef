package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// NewJSONMessage encodes payload as JSON under a fresh message UUID.
func NewJSONMessage(payload any, metadata map[string]string) (*message.Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("events: marshal payload: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	for k, v := range metadata {
		msg.Metadata.Set(k, v)
	}
	return msg, nil
}

// injectTrace writes the W3C trace headers of ctx into msg metadata.
func injectTrace(ctx context.Context, msg *message.Message) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(msg.Metadata))
}

// extractTrace returns parent carrying the trace recorded in msg metadata.
func extractTrace(parent context.Context, msg *message.Message) context.Context {
	return otel.GetTextMapPropagator().Extract(parent, propagation.MapCarrier(msg.Metadata))
}
