package models

import (
	"strings"
	"unicode"
	"unicode/utf16"

	tododomain "github.com/ghuser/todos/services/todo/domain"
)

// MaxTodoValueLength is the limit on a trimmed value, counted in UTF-16
// code units. Characters outside the Basic Multilingual Plane count twice.
const MaxTodoValueLength = 500

// TodoValue is a value object holding trimmed, non-empty todo text.
type TodoValue string

// NewTodoValue trims surrounding whitespace from s and checks the result
// is non-empty and at most MaxTodoValueLength code units long.
func NewTodoValue(s string) (TodoValue, error) {
	trimmed := TrimValue(s)
	if trimmed == "" {
		return "", tododomain.ErrEmptyTodoValue
	}
	if ValueLength(trimmed) > MaxTodoValueLength {
		return "", tododomain.ErrTodoValueTooLong
	}
	return TodoValue(trimmed), nil
}

// TrimValue strips leading and trailing whitespace as NewTodoValue does.
func TrimValue(s string) string {
	return strings.TrimFunc(s, isTrimSpace)
}

// ValueLength counts s in UTF-16 code units.
func ValueLength(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// isTrimSpace covers the space separators, \t through \r, the line and
// paragraph separators and the byte order mark. NEL (U+0085) is kept.
func isTrimSpace(r rune) bool {
	switch r {
	case '\t', '\n', '\v', '\f', '\r', '\u2028', '\u2029', '\ufeff':
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

// String returns the underlying string value.
func (v TodoValue) String() string {
	return string(v)
}
