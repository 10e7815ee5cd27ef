package domain

import "errors"

// Sentinel errors for the todo domain. Use errors.Is() to check these.
var (
	// ErrInvalidTodoValue indicates the submitted value failed type, emptiness, or length checks.
	// It is always joined with one of the reason errors below.
	ErrInvalidTodoValue = errors.New("invalid value")

	// ErrEmptyTodoValue is the reason for a missing, non-string, or blank value.
	ErrEmptyTodoValue = errors.New("value must be a non-empty string")

	// ErrTodoValueTooLong is the reason for a trimmed value over the length limit.
	ErrTodoValueTooLong = errors.New("value must be at most 500 characters")

	// ErrPersistence indicates the database could not be reached or rejected the statement.
	// The wrapped cause is for server logs only.
	ErrPersistence = errors.New("database error")
)

// ValidationDetails returns the client-facing reason carried by an
// ErrInvalidTodoValue chain, or "" when err is not a validation failure.
func ValidationDetails(err error) string {
	switch {
	case !errors.Is(err, ErrInvalidTodoValue):
		return ""
	case errors.Is(err, ErrTodoValueTooLong):
		return ErrTodoValueTooLong.Error()
	default:
		return ErrEmptyTodoValue.Error()
	}
}
