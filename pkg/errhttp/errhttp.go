// Package errhttp is the single place where failures become HTTP responses.
//
// Classify maps domain sentinel errors to a status code and a client-safe
// message; Negotiate picks the JSON or HTML formatter for the request.
// Add a case to Classify for each new domain sentinel error.
package errhttp

import (
	"errors"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"

	"github.com/ghuser/todos/pkg/logger"
	tododomain "github.com/ghuser/todos/services/todo/domain"
)

// APIPathPrefix marks routes whose callers always receive JSON errors.
const APIPathPrefix = "/todos"

var (
	// ErrNotFound is reported for unmatched routes.
	ErrNotFound = errors.New("not found")

	// ErrMethodNotAllowed is reported when the path exists under another method.
	ErrMethodNotAllowed = errors.New("method not allowed")
)

// StatusError carries an explicit status and client-safe message for
// failures detected at the HTTP boundary (malformed JSON, oversized body).
type StatusError struct {
	Status  int
	Message string
	Err     error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *StatusError) Unwrap() error { return e.Err }

// NewStatusError returns a StatusError. err may be nil.
func NewStatusError(status int, message string, err error) *StatusError {
	return &StatusError{Status: status, Message: message, Err: err}
}

// Problem is a classified failure ready to be formatted.
// Message and Details are safe to show to any client; Err is for logs and
// development-mode HTML only.
type Problem struct {
	Status  int
	Message string
	Details string
	Err     error
}

// Classify maps err to a Problem using errors.Is/As, so wrapped sentinel
// errors are matched correctly. Unrecognized errors become a generic 500.
func Classify(err error) Problem {
	var se *StatusError
	switch {
	case errors.Is(err, tododomain.ErrInvalidTodoValue):
		return Problem{
			Status:  http.StatusUnprocessableEntity, // 422
			Message: tododomain.ErrInvalidTodoValue.Error(),
			Details: tododomain.ValidationDetails(err),
			Err:     err,
		}
	case errors.Is(err, ErrNotFound):
		return Problem{Status: http.StatusNotFound, Message: ErrNotFound.Error(), Err: err}
	case errors.Is(err, ErrMethodNotAllowed):
		return Problem{Status: http.StatusMethodNotAllowed, Message: ErrMethodNotAllowed.Error(), Err: err}
	case errors.As(err, &se):
		return Problem{Status: se.Status, Message: se.Message, Err: err}
	case errors.Is(err, tododomain.ErrPersistence):
		return Problem{Status: http.StatusInternalServerError, Message: tododomain.ErrPersistence.Error(), Err: err}
	default:
		return Problem{Status: http.StatusInternalServerError, Message: "internal server error", Err: err}
	}
}

// WantsJSON reports whether the caller expects a machine-readable error:
// an XHR request, an Accept header naming application/json, or any path
// under APIPathPrefix.
func WantsJSON(r *http.Request) bool {
	if strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest") {
		return true
	}
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	return r.URL.Path == APIPathPrefix || strings.HasPrefix(r.URL.Path, APIPathPrefix+"/")
}

// Responder writes classified errors in the format the caller negotiated.
type Responder struct {
	json Formatter
	html Formatter
	log  logger.Logger
}

// NewResponder returns a Responder. development enables full error detail
// on HTML pages; JSON bodies never carry it.
func NewResponder(log logger.Logger, development bool) *Responder {
	return &Responder{
		json: JSONFormatter{},
		html: NewHTMLFormatter(development),
		log:  log,
	}
}

// Negotiate selects the formatter for r.
func (rs *Responder) Negotiate(r *http.Request) Formatter {
	if WantsJSON(r) {
		return rs.json
	}
	return rs.html
}

// WriteError classifies err, logs it, reports 5xx to Sentry, and writes the
// negotiated response.
func (rs *Responder) WriteError(w http.ResponseWriter, r *http.Request, err error) {
	p := Classify(err)

	if p.Status >= http.StatusInternalServerError {
		rs.log.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", p.Status,
			"error", err,
		)
		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.CaptureException(err)
		}
	} else {
		rs.log.DebugContext(r.Context(), "request rejected",
			"method", r.Method,
			"path", r.URL.Path,
			"status", p.Status,
			"error", err,
		)
	}

	rs.Negotiate(r).Format(w, p)
}

// NotFound is the router's handler for unmatched routes.
func (rs *Responder) NotFound(w http.ResponseWriter, r *http.Request) {
	rs.WriteError(w, r, ErrNotFound)
}

// MethodNotAllowed is the router's handler for a known path with the wrong method.
func (rs *Responder) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	rs.WriteError(w, r, ErrMethodNotAllowed)
}
