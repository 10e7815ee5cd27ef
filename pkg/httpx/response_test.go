package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/ghuser/todos/pkg/httpx"
)

func TestJSON(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		value      any
		wantStatus int
		wantBody   string
	}{
		{"list", http.StatusOK, []map[string]int{{"id": 1}}, http.StatusOK, `[{"id":1}]`},
		{"empty list stays an array", http.StatusOK, []int{}, http.StatusOK, `[]`},
		{"validation error", http.StatusUnprocessableEntity,
			httpx.ErrorBody{Error: "invalid value", Details: "value must be a non-empty string"},
			http.StatusUnprocessableEntity, `{"error":"invalid value","details":"value must be a non-empty string"}`},
		{"details omitted", http.StatusInternalServerError, httpx.ErrorBody{Error: "database error"},
			http.StatusInternalServerError, `{"error":"database error"}`},
		{"unencodable value", http.StatusOK, map[string]any{"c": make(chan int)},
			http.StatusInternalServerError, `{"error":"internal server error"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			httpx.JSON(w, tt.status, tt.value)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Body.String(); got != tt.wantBody {
				t.Errorf("body = %s, want %s", got, tt.wantBody)
			}
		})
	}
}

func TestRawJSON_Headers(t *testing.T) {
	body := []byte(`{"id":1,"value":"milk"}`)
	w := httptest.NewRecorder()
	httpx.RawJSON(w, http.StatusCreated, body)

	want := map[string]string{
		"Content-Type":           "application/json; charset=utf-8",
		"Content-Length":         strconv.Itoa(len(body)),
		"X-Content-Type-Options": "nosniff",
	}
	for k, v := range want {
		if got := w.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
	if w.Code != http.StatusCreated || w.Body.String() != string(body) {
		t.Errorf("got %d %s", w.Code, w.Body.String())
	}
}
