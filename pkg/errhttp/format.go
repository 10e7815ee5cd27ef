package errhttp

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/ghuser/todos/pkg/httpx"
)

//go:embed templates/error.html
var templateFS embed.FS

var errorPage = template.Must(template.ParseFS(templateFS, "templates/error.html"))

// Formatter renders a Problem onto the response.
type Formatter interface {
	Format(w http.ResponseWriter, p Problem)
}

// JSONFormatter writes {"error": message} plus "details" for validation failures.
type JSONFormatter struct{}

// Format implements Formatter.
func (JSONFormatter) Format(w http.ResponseWriter, p Problem) {
	httpx.JSON(w, p.Status, httpx.ErrorBody{Error: p.Message, Details: p.Details})
}

// HTMLFormatter renders the error page. ShowDetail adds the full error chain.
type HTMLFormatter struct {
	ShowDetail bool
	tmpl       *template.Template
}

// NewHTMLFormatter returns an HTMLFormatter using the embedded error page.
func NewHTMLFormatter(showDetail bool) HTMLFormatter {
	return HTMLFormatter{ShowDetail: showDetail, tmpl: errorPage}
}

type errorPageData struct {
	Status     int
	StatusText string
	Message    string
	Detail     string
}

// Format implements Formatter.
func (f HTMLFormatter) Format(w http.ResponseWriter, p Problem) {
	data := errorPageData{
		Status:     p.Status,
		StatusText: http.StatusText(p.Status),
		Message:    p.Message,
	}
	if p.Details != "" {
		data.Message = p.Message + ": " + p.Details
	}
	if f.ShowDetail && p.Err != nil {
		data.Detail = p.Err.Error()
	}

	var buf bytes.Buffer
	if err := f.tmpl.Execute(&buf, data); err != nil {
		http.Error(w, data.Message, p.Status)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(p.Status)
	_, _ = w.Write(buf.Bytes())
}
