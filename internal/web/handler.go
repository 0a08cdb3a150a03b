// Package web serves the pricing and post-checkout pages.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/bissquit/toplane-coaching/internal/domain"
	"github.com/bissquit/toplane-coaching/internal/pkg/ctxlog"
	"github.com/bissquit/toplane-coaching/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

//go:embed templates/*.html
var templatesFS embed.FS

const defaultAPIBase = "/api/v1"

// Config configures page rendering.
type Config struct {
	// APIBase is the path prefix of the JSON API.
	APIBase string
	// SupportContact is shown when the channel could not be found in time.
	SupportContact string
	Poll           PollPolicy
}

// Handler renders HTML pages.
type Handler struct {
	config    Config
	templates map[string]*template.Template
}

var funcMap = template.FuncMap{
	"price": formatPrice,
	"lower": strings.ToLower,
}

// NewHandler parses the embedded page templates.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")

	h := &Handler{
		config:    cfg,
		templates: make(map[string]*template.Template),
	}

	for _, name := range []string{"pricing", "success"} {
		filename := fmt.Sprintf("templates/%s.html", name)
		tmpl, err := template.New(name+".html").Funcs(funcMap).ParseFS(templatesFS, "templates/layout.html", filename)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", filename, err)
		}
		h.templates[name] = tmpl
	}
	return h, nil
}

// RegisterRoutes registers page routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Pricing)
	r.Get("/success", h.Success)
}

type pricingPage struct {
	Plans       []domain.Plan
	CheckoutURL string
}

// Pricing handles GET /.
func (h *Handler) Pricing(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pricing", pricingPage{
		Plans:       domain.Plans(),
		CheckoutURL: h.config.APIBase + "/checkout",
	})
}

type successPage struct {
	SessionID      string
	Plan           *domain.Plan
	Polling        bool
	Schedule       []int64
	LookupURL      string
	ProvisionURL   string
	SupportContact string
}

// Success handles GET /success?session_id=&plan=. Without a session id the
// page is a static thank-you note.
func (h *Handler) Success(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	sessionID := strings.TrimSpace(query.Get("session_id"))

	page := successPage{
		SessionID:      sessionID,
		Polling:        sessionID != "",
		SupportContact: h.config.SupportContact,
		LookupURL:      h.config.APIBase + "/channels/lookup",
		ProvisionURL:   h.config.APIBase + "/channels/provision",
	}
	if plan, ok := domain.LookupPlan(domain.PlanID(query.Get("plan"))); ok {
		page.Plan = &plan
	}
	if page.Polling {
		page.Schedule = h.config.Poll.scheduleMillis()
	}

	h.render(w, r, "success", page)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	var buf bytes.Buffer
	if err := h.templates[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		ctxlog.FromContext(r.Context()).Error("failed to render page", "page", name, "error", err)
		httputil.Text(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func formatPrice(cents int64) string {
	if cents%100 == 0 {
		return fmt.Sprintf("€%d", cents/100)
	}
	return fmt.Sprintf("€%.2f", float64(cents)/100)
}
