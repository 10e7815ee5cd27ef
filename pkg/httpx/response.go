package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"
)

const contentTypeJSON = "application/json; charset=utf-8"

// ErrorBody is the JSON shape of every error response. Details is only
// present on validation failures.
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// JSON encodes v and writes it with status. A value that cannot be encoded
// becomes a 500 with an ErrorBody rather than a truncated body.
func JSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		body, _ = json.Marshal(ErrorBody{Error: "internal server error"})
		status = http.StatusInternalServerError
	}
	RawJSON(w, status, body)
}

// RawJSON writes an already-encoded JSON body, such as a replayed response.
func RawJSON(w http.ResponseWriter, status int, body []byte) {
	h := w.Header()
	h.Set("Content-Type", contentTypeJSON)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
