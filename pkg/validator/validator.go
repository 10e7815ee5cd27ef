package validator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/go-playground/validator/v10"

	"github.com/ghuser/todos/pkg/errhttp"
)

// ErrNotObject is returned by DecodeObject when the body is well-formed JSON
// but not a JSON object (an array, a string, null, ...).
var ErrNotObject = errors.New("request body is not a JSON object")

var validate = newValidate()

// newValidate reports field errors under their JSON names, so FailedOn
// callers match on "value" rather than "Value".
func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	if err := v.RegisterValidation("utf16max", utf16Max); err != nil {
		panic(fmt.Sprintf("validator: register utf16max: %v", err))
	}
	return v
}

// utf16Max backs the utf16max=N tag: a string field may hold at most N
// UTF-16 code units.
func utf16Max(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		panic(fmt.Sprintf("validator: bad utf16max param %q", fl.Param()))
	}
	n := 0
	for _, r := range fl.Field().String() {
		n += utf16.RuneLen(r)
	}
	return n <= limit
}

// Validate checks s against its validate tags. String min and max count
// runes, not bytes; utf16max counts UTF-16 code units.
func Validate(s any) error {
	return validate.Struct(s)
}

// FailedOn reports whether err contains a failure of tag on the named field.
func FailedOn(err error, field, tag string) bool {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return false
	}
	for _, e := range ve {
		if e.Field() == field && e.Tag() == tag {
			return true
		}
	}
	return false
}

// DecodeObject reads the request body as a JSON object.
//
// An empty or whitespace-only body decodes as {}. A body over the
// RequestBodyLimit yields a 413 StatusError and malformed JSON a 400
// StatusError. Well-formed JSON that is not an object returns ErrNotObject
// so the caller can treat it as a validation failure.
//
// An application/x-www-form-urlencoded body is accepted too: each field
// becomes a JSON string, or an array of strings when it repeats.
func DecodeObject(r *http.Request) (map[string]json.RawMessage, error) {
	if isForm(r) {
		return decodeForm(r)
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, readError(err)
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return map[string]json.RawMessage{}, nil
	}
	if !json.Valid(raw) {
		return nil, errhttp.NewStatusError(http.StatusBadRequest, "malformed JSON", nil)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, ErrNotObject
	}
	return obj, nil
}

func readError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return errhttp.NewStatusError(http.StatusRequestEntityTooLarge, "request body too large", err)
	}
	return errhttp.NewStatusError(http.StatusBadRequest, "could not read request body", err)
}

func isForm(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(ct)
	return err == nil && mt == "application/x-www-form-urlencoded"
}

func decodeForm(r *http.Request) (map[string]json.RawMessage, error) {
	if err := r.ParseForm(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, readError(err)
		}
		return nil, errhttp.NewStatusError(http.StatusBadRequest, "malformed form body", err)
	}

	obj := make(map[string]json.RawMessage, len(r.PostForm))
	for k, vals := range r.PostForm {
		var v any = vals
		if len(vals) == 1 {
			v = vals[0]
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("validator: encode form field %s: %w", k, err)
		}
		obj[k] = raw
	}
	return obj, nil
}

// StringField extracts key from obj as a string. ok is false when the key
// is missing, null, or holds a non-string value.
func StringField(obj map[string]json.RawMessage, key string) (s string, ok bool) {
	raw, present := obj[key]
	if !present {
		return "", false
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	// json.Unmarshal leaves s untouched for null.
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", false
	}
	return s, true
}
