package page

import (
	"embed"
	"html/template"
	"net/http"

	"shopfront/internal/logger"
	"shopfront/internal/middleware"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var homeTmpl = template.Must(template.New("home.tmpl").ParseFS(templateFS, "templates/home.tmpl"))

type Handler struct {
	assembler *Assembler
}

func NewHandler(a *Assembler) *Handler {
	return &Handler{assembler: a}
}

func (h *Handler) assemble(r *http.Request) *Page {
	ctx := r.Context()
	return h.assembler.Assemble(ctx, middleware.GetRequestID(ctx), middleware.GetClientIP(ctx))
}

// Home renders the HTML page. It answers 200 even when inventory failed.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	page := h.assemble(r)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := homeTmpl.Execute(w, page); err != nil {
		logger.LogHTTPError(r, http.StatusInternalServerError, err)
	}
}

// PageJSON returns the same view model in the API envelope.
func (h *Handler) PageJSON(w http.ResponseWriter, r *http.Request) {
	middleware.WriteAPISuccess(w, r, h.assemble(r))
}
