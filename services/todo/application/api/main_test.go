package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghuser/todos/pkg/app"
	"github.com/ghuser/todos/pkg/cache"
	"github.com/ghuser/todos/pkg/errhttp"
	"github.com/ghuser/todos/pkg/httpx"
	"github.com/ghuser/todos/pkg/logger"
	"github.com/ghuser/todos/services/todo/application/api"
	appsvcs "github.com/ghuser/todos/services/todo/application/services"
	"github.com/ghuser/todos/services/todo/domain/models"
)

type memRepo struct {
	mu        sync.Mutex
	todos     []*models.Todo
	nextID    int64
	calls     int
	insertErr error
	listErr   error
	// insertDelay holds each Insert open to widen race windows.
	insertDelay time.Duration
}

func (m *memRepo) Insert(_ context.Context, v models.TodoValue) (*models.Todo, error) {
	time.Sleep(m.insertDelay)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	m.nextID++
	t := &models.Todo{ID: m.nextID, Value: v, CreatedAt: time.Now().UTC()}
	m.todos = append(m.todos, t)
	return t, nil
}

func (m *memRepo) ListAll(context.Context) ([]*models.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]*models.Todo, len(m.todos))
	copy(out, m.todos)
	return out, nil
}

type memEntry struct {
	fingerprint string
	resp        *cache.StoredResponse
}

// memIdempotency follows the claim rules of cache.IdempotencyStore.
type memIdempotency struct {
	mu       sync.Mutex
	entries  map[string]*memEntry
	claimErr error
	released int
}

func (m *memIdempotency) Claim(_ context.Context, key, fingerprint string) (*cache.StoredResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	if m.entries == nil {
		m.entries = make(map[string]*memEntry)
	}
	e, ok := m.entries[key]
	switch {
	case !ok:
		m.entries[key] = &memEntry{fingerprint: fingerprint}
		return nil, nil
	case e.fingerprint != fingerprint:
		return nil, cache.ErrIdempotencyMismatch
	case e.resp == nil:
		return nil, cache.ErrIdempotencyInFlight
	}
	return e.resp, nil
}

func (m *memIdempotency) Complete(_ context.Context, key string, resp *cache.StoredResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key].resp = resp
	return nil
}

func (m *memIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	m.released++
	return nil
}

type todoJSON struct {
	ID        int64     `json:"id"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

func testApp() *app.Application {
	log := logger.NewWithWriter(io.Discard, "error")
	return &app.Application{
		Logger:  log,
		Errors:  errhttp.NewResponder(log, false),
		Version: "test",
	}
}

func newRouter(repo *memRepo, idem appsvcs.IdempotencyStore) *chi.Mux {
	a := testApp()
	svcs := &appsvcs.Services{
		Todo:        appsvcs.NewTodoService(repo, nil, a.Logger),
		Idempotency: idem,
	}
	r := chi.NewRouter()
	r.NotFound(a.Errors.NotFound)
	r.MethodNotAllowed(a.Errors.MethodNotAllowed)
	api.Routes(r, svcs, a)
	return r
}

func do(h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), "body: %s", w.Body.String())
	return body
}

func TestPostTodos_Created(t *testing.T) {
	repo := &memRepo{}
	w := do(newRouter(repo, nil), http.MethodPost, "/todos", `{"value":"  buy milk  "}`)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "application/json"))

	var got todoJSON
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, "buy milk", got.Value)
	assert.False(t, got.CreatedAt.IsZero())

	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Len(t, raw, 3)
}

func TestPostTodos_InvalidInput(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantStatus  int
		wantDetails string
	}{
		{"empty body", "", http.StatusUnprocessableEntity, "value must be a non-empty string"},
		{"empty object", `{}`, http.StatusUnprocessableEntity, "value must be a non-empty string"},
		{"whitespace value", `{"value":"   "}`, http.StatusUnprocessableEntity, "value must be a non-empty string"},
		{"null value", `{"value":null}`, http.StatusUnprocessableEntity, "value must be a non-empty string"},
		{"number value", `{"value":42}`, http.StatusUnprocessableEntity, "value must be a non-empty string"},
		{"array value", `{"value":["a"]}`, http.StatusUnprocessableEntity, "value must be a non-empty string"},
		{"array body", `["a"]`, http.StatusUnprocessableEntity, "value must be a non-empty string"},
		{"string body", `"a"`, http.StatusUnprocessableEntity, "value must be a non-empty string"},
		{"too long", `{"value":"` + strings.Repeat("x", 501) + `"}`, http.StatusUnprocessableEntity, "value must be at most 500 characters"},
		{"malformed", `{"value":`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &memRepo{}
			w := do(newRouter(repo, nil), http.MethodPost, "/todos", tt.body)

			require.Equal(t, tt.wantStatus, w.Code, "body: %s", w.Body.String())
			body := decodeError(t, w)
			if tt.wantStatus == http.StatusUnprocessableEntity {
				assert.Equal(t, "invalid value", body["error"])
			}
			assert.Equal(t, tt.wantDetails, body["details"])
			assert.Zero(t, repo.calls, "store must not be touched")
		})
	}
}

func TestPostTodos_LengthCountsCharacters(t *testing.T) {
	repo := &memRepo{}
	value := strings.Repeat("日", 500)
	w := do(newRouter(repo, nil), http.MethodPost, "/todos", `{"value":"`+value+`"}`)

	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
	var got todoJSON
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, value, got.Value)
}

func TestPostTodos_LengthCountsUTF16Units(t *testing.T) {
	repo := &memRepo{}
	h := newRouter(repo, nil)

	w := do(h, http.MethodPost, "/todos", `{"value":"`+strings.Repeat("😀", 250)+`"}`)
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())

	w = do(h, http.MethodPost, "/todos", `{"value":"`+strings.Repeat("😀", 250)+`a"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "value must be at most 500 characters", decodeError(t, w)["details"])
	assert.Len(t, repo.todos, 1)
}

func TestPostTodos_UnicodeWhitespace(t *testing.T) {
	repo := &memRepo{}
	h := newRouter(repo, nil)

	w := do(h, http.MethodPost, "/todos", `{"value":"\ufeff"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "value must be a non-empty string", decodeError(t, w)["details"])

	w = do(h, http.MethodPost, "/todos", `{"value":"\u3000buy milk\u00a0"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var got todoJSON
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "buy milk", got.Value)

	w = do(h, http.MethodPost, "/todos", `{"value":"\u0085"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "\u0085", got.Value)
}

func TestPostTodos_FormEncoded(t *testing.T) {
	repo := &memRepo{}
	h := newRouter(repo, nil)

	w := do(h, http.MethodPost, "/todos", "value=+buy+milk+",
		"Content-Type", "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
	var got todoJSON
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "buy milk", got.Value)

	w = do(h, http.MethodPost, "/todos", "other=x",
		"Content-Type", "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Len(t, repo.todos, 1)
}

func TestPostTodos_StoresInjectionLiterally(t *testing.T) {
	repo := &memRepo{}
	h := newRouter(repo, nil)
	payload := `x'); DROP TABLE todos; --`

	body, err := json.Marshal(map[string]string{"value": payload})
	require.NoError(t, err)
	w := do(h, http.MethodPost, "/todos", string(body))
	require.Equal(t, http.StatusCreated, w.Code)

	var got todoJSON
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, payload, got.Value)
}

func TestPostTodos_PersistenceFailureIsRedacted(t *testing.T) {
	repo := &memRepo{insertErr: errors.New(`pq: password authentication failed for user "postgres"`)}
	w := do(newRouter(repo, nil), http.MethodPost, "/todos", `{"value":"x"}`)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, map[string]string{"error": "database error"}, decodeError(t, w))
	assert.NotContains(t, w.Body.String(), "password")
}

func TestGetTodos_EmptyIsArray(t *testing.T) {
	w := do(newRouter(&memRepo{}, nil), http.MethodGet, "/todos", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestGetTodos_AscendingOrder(t *testing.T) {
	h := newRouter(&memRepo{}, nil)
	for _, v := range []string{"first", "second", "third"} {
		require.Equal(t, http.StatusCreated, do(h, http.MethodPost, "/todos", `{"value":"`+v+`"}`).Code)
	}

	w := do(h, http.MethodGet, "/todos", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got []todoJSON
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{got[0].Value, got[1].Value, got[2].Value})
	assert.Less(t, got[0].ID, got[1].ID)
	assert.Less(t, got[1].ID, got[2].ID)
}

func TestGetTodos_PersistenceFailure(t *testing.T) {
	repo := &memRepo{listErr: errors.New(`relation "todos" does not exist`)}
	w := do(newRouter(repo, nil), http.MethodGet, "/todos", "")

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "database error", decodeError(t, w)["error"])
	assert.NotContains(t, w.Body.String(), "relation")
}

func TestHealthz_NeverTouchesStore(t *testing.T) {
	repo := &memRepo{insertErr: errors.New("down"), listErr: errors.New("down")}
	w := do(newRouter(repo, nil), http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Zero(t, repo.calls)
}

func TestHome_RendersHTML(t *testing.T) {
	w := do(newRouter(&memRepo{}, nil), http.MethodGet, "/", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/html"))
	assert.Contains(t, w.Body.String(), "<title>Todos</title>")
}

func TestUnmatchedRoutes(t *testing.T) {
	h := newRouter(&memRepo{}, nil)

	t.Run("api path is JSON", func(t *testing.T) {
		w := do(h, http.MethodGet, "/todos/1", "")
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "not found", decodeError(t, w)["error"])
	})

	t.Run("browser path is HTML", func(t *testing.T) {
		w := do(h, http.MethodGet, "/missing", "", "Accept", "text/html")
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/html"))
	})

	t.Run("xhr is JSON", func(t *testing.T) {
		w := do(h, http.MethodGet, "/missing", "", "X-Requested-With", "XMLHttpRequest")
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "not found", decodeError(t, w)["error"])
	})

	t.Run("wrong method", func(t *testing.T) {
		w := do(h, http.MethodDelete, "/todos", "")
		require.Equal(t, http.StatusMethodNotAllowed, w.Code)
		assert.Equal(t, "method not allowed", decodeError(t, w)["error"])
	})
}

func TestPostTodos_IdempotentReplay(t *testing.T) {
	repo := &memRepo{}
	h := newRouter(repo, &memIdempotency{})

	first := do(h, http.MethodPost, "/todos", `{"value":"once"}`, "Idempotency-Key", "abc")
	require.Equal(t, http.StatusCreated, first.Code)

	second := do(h, http.MethodPost, "/todos", `{"value":"once"}`, "Idempotency-Key", "abc")
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Len(t, repo.todos, 1)

	third := do(h, http.MethodPost, "/todos", `{"value":"once"}`, "Idempotency-Key", "other")
	require.Equal(t, http.StatusCreated, third.Code)
	assert.Len(t, repo.todos, 2)
}

func TestPostTodos_IdempotencyDoesNotStoreFailures(t *testing.T) {
	repo := &memRepo{}
	idem := &memIdempotency{}
	h := newRouter(repo, idem)

	w := do(h, http.MethodPost, "/todos", `{"value":""}`, "Idempotency-Key", "k")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Empty(t, idem.entries)
}

func TestPostTodos_IdempotencyReleasesKeyOnStoreFailure(t *testing.T) {
	repo := &memRepo{insertErr: errors.New("connection reset")}
	idem := &memIdempotency{}
	h := newRouter(repo, idem)

	w := do(h, http.MethodPost, "/todos", `{"value":"retry me"}`, "Idempotency-Key", "k")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 1, idem.released)
	assert.Empty(t, idem.entries)

	repo.insertErr = nil
	w = do(h, http.MethodPost, "/todos", `{"value":"retry me"}`, "Idempotency-Key", "k")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, w.Header().Get("Idempotent-Replayed"))
	assert.Len(t, repo.todos, 1)
}

func TestPostTodos_IdempotencyKeyReusedWithOtherValue(t *testing.T) {
	repo := &memRepo{}
	h := newRouter(repo, &memIdempotency{})

	require.Equal(t, http.StatusCreated,
		do(h, http.MethodPost, "/todos", `{"value":"first"}`, "Idempotency-Key", "k").Code)

	w := do(h, http.MethodPost, "/todos", `{"value":"second"}`, "Idempotency-Key", "k")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, "body: %s", w.Body.String())
	assert.Contains(t, decodeError(t, w)["error"], "different value")
	assert.Len(t, repo.todos, 1)

	// Trimming happens before the comparison.
	w = do(h, http.MethodPost, "/todos", `{"value":"  first "}`, "Idempotency-Key", "k")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "true", w.Header().Get("Idempotent-Replayed"))
}

func TestPostTodos_IdempotencyConcurrentSameKey(t *testing.T) {
	repo := &memRepo{insertDelay: 50 * time.Millisecond}
	h := newRouter(repo, &memIdempotency{})

	const n = 5
	codes := make([]int, n)
	replayed := make([]bool, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := do(h, http.MethodPost, "/todos", `{"value":"once"}`, "Idempotency-Key", "same")
			codes[i] = w.Code
			replayed[i] = w.Header().Get("Idempotent-Replayed") == "true"
		}()
	}
	wg.Wait()

	require.Len(t, repo.todos, 1, "exactly one insert for one key")
	fresh := 0
	for i, code := range codes {
		require.Contains(t, []int{http.StatusCreated, http.StatusConflict}, code)
		if code == http.StatusCreated && !replayed[i] {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
}

func TestPostTodos_IdempotencyLookupErrorDegrades(t *testing.T) {
	repo := &memRepo{}
	h := newRouter(repo, &memIdempotency{claimErr: errors.New("redis: connection refused")})

	w := do(h, http.MethodPost, "/todos", `{"value":"x"}`, "Idempotency-Key", "k")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, repo.todos, 1)
}

func TestPostTodos_IdempotencyKeyTooLong(t *testing.T) {
	repo := &memRepo{}
	h := newRouter(repo, &memIdempotency{})

	w := do(h, http.MethodPost, "/todos", `{"value":"x"}`, "Idempotency-Key", strings.Repeat("k", cache.MaxIdempotencyKeyLength+1))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, repo.calls)
}

func TestFullStack_CORSAndBodyLimit(t *testing.T) {
	a := testApp()
	passthrough := func(next http.Handler) http.Handler { return next }
	r := httpx.NewRouter(
		httpx.ServerConfig{ServiceName: "todos", IsDevelopment: true, CORSAllowedOrigins: "*"},
		passthrough, passthrough, passthrough, passthrough,
	)
	r.NotFound(a.Errors.NotFound)
	r.MethodNotAllowed(a.Errors.MethodNotAllowed)
	svcs := &appsvcs.Services{Todo: appsvcs.NewTodoService(&memRepo{}, nil, a.Logger)}
	api.Routes(r, svcs, a)

	w := do(r, http.MethodGet, "/todos", "", "Origin", "http://localhost:8080")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))

	huge := `{"value":"` + strings.Repeat("x", 2<<20) + `"}`
	w = do(r, http.MethodPost, "/todos", huge)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "request body too large", decodeError(t, w)["error"])
}
