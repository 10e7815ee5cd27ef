// Package events is the Postgres-backed message bus used to fan out domain
// events from the API to the worker. It sits on Watermill's SQL transport,
// which claims rows with FOR UPDATE SKIP LOCKED, so every worker sharing a
// consumer group sees each message once.
package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	watermillsql "github.com/ThreeDotsLabs/watermill-sql/v3/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/message"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ghuser/todos/pkg/config"
	"github.com/ghuser/todos/pkg/logger"
)

const (
	drainTimeout     = 30 * time.Second
	defaultErrBuffer = 100
)

// Handler processes one message. Returning nil acks it; returning an error
// retries per the bus RetryPolicy unless the error is Permanent.
type Handler func(ctx context.Context, msg *message.Message) error

// Options configures NewEventBus.
type Options struct {
	// ConsumerGroup names the offset cursor shared by cooperating workers.
	ConsumerGroup string
	Retry         RetryPolicy
	// ErrBuffer sizes the channel returned by Subscribe. Zero means 100.
	ErrBuffer int
}

// OptionsFromConfig derives bus options from the process config.
func OptionsFromConfig(cfg *config.Config) Options {
	retry := DefaultRetryPolicy
	retry.Attempts = cfg.EventRetryAttempts
	return Options{ConsumerGroup: cfg.ConsumerGroup(), Retry: retry}
}

// EventBus publishes and consumes messages stored in Postgres tables that
// Watermill creates on first use.
type EventBus struct {
	db     *sql.DB
	pub    message.Publisher
	sub    message.Subscriber
	retry  RetryPolicy
	errBuf int
	log    logger.Logger

	handlers sync.WaitGroup
}

// NewEventBus opens a dedicated pool on dsn. Nothing is dialled here, so
// the bus can be built while the database is still starting.
func NewEventBus(dsn string, opts Options, log logger.Logger) (*EventBus, error) {
	if opts.ConsumerGroup == "" {
		return nil, errors.New("events: consumer group is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("events: open db: %w", err)
	}

	wlog := watermillLogger{log: log.With("component", "watermill")}

	pub, err := watermillsql.NewPublisher(db, publisherConfig(), wlog)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("events: new publisher: %w", err)
	}
	sub, err := watermillsql.NewSubscriber(db, subscriberConfig(opts.ConsumerGroup), wlog)
	if err != nil {
		_ = pub.Close()
		_ = db.Close()
		return nil, fmt.Errorf("events: new subscriber: %w", err)
	}

	errBuf := opts.ErrBuffer
	if errBuf <= 0 {
		errBuf = defaultErrBuffer
	}
	return &EventBus{
		db:     db,
		pub:    pub,
		sub:    sub,
		retry:  opts.Retry.withDefaults(),
		errBuf: errBuf,
		log:    log,
	}, nil
}

func publisherConfig() watermillsql.PublisherConfig {
	return watermillsql.PublisherConfig{
		SchemaAdapter:        watermillsql.DefaultPostgreSQLSchema{},
		AutoInitializeSchema: true,
	}
}

func subscriberConfig(group string) watermillsql.SubscriberConfig {
	return watermillsql.SubscriberConfig{
		SchemaAdapter:    watermillsql.DefaultPostgreSQLSchema{},
		OffsetsAdapter:   watermillsql.DefaultPostgreSQLOffsetsAdapter{},
		InitializeSchema: true,
		ConsumerGroup:    group,
	}
}

// Publish writes msgs to topic, stamping each with the trace context of ctx.
func (b *EventBus) Publish(ctx context.Context, topic string, msgs ...*message.Message) error {
	for _, m := range msgs {
		injectTrace(ctx, m)
	}
	if err := b.pub.Publish(topic, msgs...); err != nil { //nolint:contextcheck
		return fmt.Errorf("events: publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe starts a goroutine feeding topic's messages to h one at a time.
// h runs under the publisher's restored trace context.
//
// A message is acked when h succeeds or fails permanently, and nacked once
// the retry policy gives up. Every failure that ends a message's processing
// is sent on the returned channel, which closes when the bus does. Callers
// must drain it; overflow is logged and dropped.
func (b *EventBus) Subscribe(ctx context.Context, topic string, h Handler) (<-chan error, error) {
	msgs, err := b.sub.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("events: subscribe to %s: %w", topic, err)
	}

	errs := make(chan error, b.errBuf)
	b.handlers.Add(1)
	go func() {
		defer b.handlers.Done()
		defer close(errs)
		for msg := range msgs {
			if err := b.dispatch(ctx, topic, msg, h); err != nil {
				select {
				case errs <- err:
				default:
					b.log.ErrorContext(ctx, "events: error channel full, dropping error",
						"topic", topic, "error", err)
				}
			}
		}
	}()
	return errs, nil
}

// dispatch runs h for one message and settles it.
func (b *EventBus) dispatch(ctx context.Context, topic string, msg *message.Message, h Handler) error {
	msgCtx := extractTrace(ctx, msg)
	err := b.retry.Run(msgCtx, b.log, func(c context.Context) error { return h(c, msg) })
	switch {
	case err == nil:
		msg.Ack()
		return nil
	case IsPermanent(err):
		b.log.WarnContext(msgCtx, "events: message rejected, not retrying",
			"topic", topic, "message_uuid", msg.UUID, "error", err)
		msg.Ack()
	default:
		msg.Nack()
	}
	return fmt.Errorf("events: %s message %s: %w", topic, msg.UUID, err)
}

// Ping reports whether the bus database answers.
func (b *EventBus) Ping(ctx context.Context) error {
	if err := b.db.PingContext(ctx); err != nil {
		return fmt.Errorf("events: ping db: %w", err)
	}
	return nil
}

// Close stops consuming, waits up to 30s for running handlers, then
// releases the publisher and the pool. Every step runs even when an earlier
// one fails; the failures are joined.
func (b *EventBus) Close() error {
	subErr := b.sub.Close()
	if subErr != nil {
		subErr = fmt.Errorf("events: close subscriber: %w", subErr)
	}

	done := make(chan struct{})
	go func() {
		b.handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainTimeout):
		b.log.Error("events: in-flight handlers still running after drain timeout")
	}

	pubErr := b.pub.Close()
	if pubErr != nil {
		pubErr = fmt.Errorf("events: close publisher: %w", pubErr)
	}
	dbErr := b.db.Close()
	if dbErr != nil {
		dbErr = fmt.Errorf("events: close db: %w", dbErr)
	}
	return errors.Join(subErr, pubErr, dbErr)
}
