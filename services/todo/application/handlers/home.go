package handlers

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/ghuser/todos/pkg/errhttp"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexPage = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// HomeHandler renders the landing page for GET /.
type HomeHandler struct {
	page []byte
	errs *errhttp.Responder
	err  error
}

// NewHomeHandler pre-renders the landing page; it has no per-request data.
func NewHomeHandler(version string, errs *errhttp.Responder) *HomeHandler {
	var buf bytes.Buffer
	err := indexPage.Execute(&buf, struct {
		Title   string
		Version string
	}{Title: "Todos", Version: version})
	if err != nil {
		err = fmt.Errorf("render landing page: %w", err)
	}
	return &HomeHandler{page: buf.Bytes(), errs: errs, err: err}
}

// Execute writes the landing page.
func (h *HomeHandler) Execute(w http.ResponseWriter, r *http.Request) {
	if h.err != nil {
		h.errs.WriteError(w, r, h.err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.page)
}
