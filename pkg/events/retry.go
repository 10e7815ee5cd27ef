package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ghuser/todos/pkg/logger"
)

// RetryPolicy bounds how hard the bus tries a failing handler.
type RetryPolicy struct {
	// Attempts counts the first call. Zero means 3.
	Attempts int
	// BaseDelay doubles after each failure up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy makes three attempts waiting 1s then 2s.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultRetryPolicy.Attempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultRetryPolicy.BaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = max(DefaultRetryPolicy.MaxDelay, p.BaseDelay)
	}
	return p
}

// delay is the wait after the given failed attempt (1-based).
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt && d < p.MaxDelay; i++ {
		d *= 2
	}
	return min(d, p.MaxDelay)
}

// Run calls fn until it succeeds, returns a Permanent error, the attempts
// run out, or ctx ends.
func (p RetryPolicy) Run(ctx context.Context, log logger.Logger, fn func(context.Context) error) error {
	p = p.withDefaults()
	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err = fn(ctx); err == nil || IsPermanent(err) {
			return err
		}
		if attempt == p.Attempts {
			break
		}
		wait := p.delay(attempt)
		log.WarnContext(ctx, "events: handler failed, retrying",
			"attempt", attempt,
			"attempts", p.Attempts,
			"next_delay", wait,
			"error", err,
		)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return fmt.Errorf("handler failed after %d attempts: %w", p.Attempts, err)
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. The bus acks the message.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was wrapped by Permanent.
func IsPermanent(err error) bool {
	var pe permanentError
	return errors.As(err, &pe)
}
