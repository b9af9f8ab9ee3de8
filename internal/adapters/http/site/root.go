// Package site serves the landing page at the root of the server.
package site

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"net/http"
	"strings"

	service "github.com/okian/survcast/internal/app"
	"github.com/okian/survcast/pkg/logger"
)

//go:embed templates/index.html
var templatesFS embed.FS

var index = template.Must(template.New("index.html").
	Funcs(template.FuncMap{"join": strings.Join}).
	ParseFS(templatesFS, "templates/index.html"))

// ModelLister reports the loaded models.
type ModelLister interface {
	Models() []service.ModelInfo
}

// RootHandler renders the landing page.
type RootHandler struct {
	models ModelLister
}

// NewRootHandler creates a new root handler.
func NewRootHandler(models ModelLister) *RootHandler {
	return &RootHandler{models: models}
}

// Register attaches the landing page to mux. Only the exact root matches;
// other unknown paths still 404.
func Register(_ context.Context, mux *http.ServeMux, models ModelLister) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.HandleFunc("GET /{$}", NewRootHandler(models).HandleRoot)
}

// HandleRoot handles GET /.
func (h *RootHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	err := index.Execute(&buf, struct{ Models []service.ModelInfo }{h.models.Models()})
	if err != nil {
		logger.Get().Named("site").Error(r.Context(), "render landing page", logger.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
