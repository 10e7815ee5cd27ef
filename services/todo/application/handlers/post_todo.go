package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ghuser/todos/pkg/cache"
	"github.com/ghuser/todos/pkg/errhttp"
	"github.com/ghuser/todos/pkg/httpx"
	"github.com/ghuser/todos/pkg/logger"
	pkgvalidator "github.com/ghuser/todos/pkg/validator"
	appsvcs "github.com/ghuser/todos/services/todo/application/services"
	tododomain "github.com/ghuser/todos/services/todo/domain"
	"github.com/ghuser/todos/services/todo/domain/models"
)

// IdempotencyKeyHeader lets a client retry POST /todos without creating a duplicate.
const IdempotencyKeyHeader = "Idempotency-Key"

// CreateTodoRequest is the request body for POST /todos.
// The utf16max tag mirrors models.MaxTodoValueLength.
type CreateTodoRequest struct {
	Value string `json:"value" validate:"required,utf16max=500" maxLength:"500" example:"Buy milk"`
} // @name CreateTodoRequest

// PostTodoHandler handles POST /todos requests.
type PostTodoHandler struct {
	svc  *appsvcs.Services
	idem appsvcs.IdempotencyStore
	errs *errhttp.Responder
	log  logger.Logger
}

// NewPostTodoHandler returns a PostTodoHandler backed by the given services.
// Idempotency keys are honoured only when svc.Idempotency is set.
func NewPostTodoHandler(svc *appsvcs.Services, errs *errhttp.Responder, log logger.Logger) *PostTodoHandler {
	return &PostTodoHandler{svc: svc, idem: svc.Idempotency, errs: errs, log: log}
}

// Execute creates a new todo.
//
//	@Summary		Create todo
//	@Description	Trims and stores a todo value. An Idempotency-Key header replays the first 201 response for the same value.
//	@Tags			todos
//	@Accept			json
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			Idempotency-Key	header		string				false	"Client-chosen retry key"
//	@Param			request			body		CreateTodoRequest	true	"Todo creation request"
//	@Success		201				{object}	TodoResponse
//	@Failure		400				{object}	ErrorResponse
//	@Failure		409				{object}	ErrorResponse	"Same key still in progress"
//	@Failure		413				{object}	ErrorResponse
//	@Failure		422				{object}	ErrorResponse	"Invalid value, or key reused with another value"
//	@Failure		500				{object}	ErrorResponse
//	@Router			/todos [post]
func (h *PostTodoHandler) Execute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	key, err := h.idempotencyKey(r)
	if err != nil {
		h.errs.WriteError(w, r, err)
		return
	}

	req, err := decodeCreateTodoRequest(r)
	if err != nil {
		h.errs.WriteError(w, r, err)
		return
	}

	if key != "" {
		stored, err := h.idem.Claim(ctx, key, fingerprint(req.Value))
		switch {
		case err == nil && stored != nil:
			w.Header().Set("Idempotent-Replayed", "true")
			httpx.RawJSON(w, stored.Status, stored.Body)
			return
		case errors.Is(err, cache.ErrIdempotencyInFlight):
			h.errs.WriteError(w, r, errhttp.NewStatusError(http.StatusConflict,
				"a request with this Idempotency-Key is still in progress", err))
			return
		case errors.Is(err, cache.ErrIdempotencyMismatch):
			h.errs.WriteError(w, r, errhttp.NewStatusError(http.StatusUnprocessableEntity,
				"Idempotency-Key was already used with a different value", err))
			return
		case err != nil:
			h.log.WarnContext(ctx, "idempotency claim failed, processing request", "error", err)
			key = ""
		}
	}

	todo, err := h.svc.Todo.Create(ctx, req.Value)
	if err != nil {
		h.release(ctx, key)
		h.errs.WriteError(w, r, err)
		return
	}

	body, err := json.Marshal(toTodoResponse(todo))
	if err != nil {
		h.release(ctx, key)
		h.errs.WriteError(w, r, fmt.Errorf("encode todo: %w", err))
		return
	}

	if key != "" {
		resp := &cache.StoredResponse{Status: http.StatusCreated, Body: body}
		if err := h.idem.Complete(context.WithoutCancel(ctx), key, resp); err != nil {
			h.log.WarnContext(ctx, "idempotency store failed", "todo_id", todo.ID, "error", err)
		}
	}

	httpx.RawJSON(w, http.StatusCreated, body)
}

// release frees a claimed key after a failed create so the client can retry.
func (h *PostTodoHandler) release(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := h.idem.Release(context.WithoutCancel(ctx), key); err != nil {
		h.log.WarnContext(ctx, "idempotency release failed", "error", err)
	}
}

// fingerprint identifies the request a key was first used for.
func fingerprint(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// idempotencyKey returns the trimmed header value, or "" when the header is
// absent or no store is configured.
func (h *PostTodoHandler) idempotencyKey(r *http.Request) (string, error) {
	if h.idem == nil {
		return "", nil
	}
	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if len(key) > cache.MaxIdempotencyKeyLength {
		return "", errhttp.NewStatusError(http.StatusBadRequest,
			fmt.Sprintf("%s must be at most %d bytes", IdempotencyKeyHeader, cache.MaxIdempotencyKeyLength), nil)
	}
	return key, nil
}

// decodeCreateTodoRequest parses the body into a CreateTodoRequest holding
// the trimmed value.
//
// Malformed JSON and oversized bodies come back as *errhttp.StatusError.
// A non-object body or a missing, null, or non-string value is an
// ErrInvalidTodoValue with reason ErrEmptyTodoValue.
func decodeCreateTodoRequest(r *http.Request) (*CreateTodoRequest, error) {
	obj, err := pkgvalidator.DecodeObject(r)
	if errors.Is(err, pkgvalidator.ErrNotObject) {
		return nil, invalidValue(tododomain.ErrEmptyTodoValue)
	}
	if err != nil {
		return nil, err
	}

	raw, ok := pkgvalidator.StringField(obj, "value")
	if !ok {
		return nil, invalidValue(tododomain.ErrEmptyTodoValue)
	}

	req := &CreateTodoRequest{Value: models.TrimValue(raw)}
	if err := pkgvalidator.Validate(req); err != nil {
		if pkgvalidator.FailedOn(err, "value", "utf16max") {
			return nil, invalidValue(tododomain.ErrTodoValueTooLong)
		}
		return nil, invalidValue(tododomain.ErrEmptyTodoValue)
	}
	return req, nil
}

func invalidValue(reason error) error {
	return fmt.Errorf("%w: %w", tododomain.ErrInvalidTodoValue, reason)
}
