package channels

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bissquit/toplane-coaching/internal/domain"
	"github.com/bissquit/toplane-coaching/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrSessionRequired, Status: http.StatusBadRequest, Message: "session parameter is required"},
	{Error: ErrNotFound, Status: http.StatusNotFound, Message: "channel record not found"},
}

// Handler serves channel lookup and record management endpoints.
type Handler struct {
	correlator *Correlator
	validator  *validator.Validate
}

// NewHandler creates a new channels handler.
func NewHandler(correlator *Correlator) *Handler {
	return &Handler{
		correlator: correlator,
		validator:  validator.New(),
	}
}

// RegisterRoutes registers public routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/channels/lookup", h.Lookup)
}

// RegisterAdminRoutes registers operational routes.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/channels", h.List)
	r.Post("/channels", h.Sync)
	r.Delete("/channels/{sessionID}", h.Expire)
}

// LookupResponse is the success page polling payload.
type LookupResponse struct {
	Found      bool          `json:"found"`
	Message    string        `json:"message,omitempty"`
	ChannelURL string        `json:"channelUrl,omitempty"`
	PlanType   domain.PlanID `json:"planType,omitempty"`
	CreatedAt  *time.Time    `json:"createdAt,omitempty"`
}

// Lookup handles GET /channels/lookup?session=.
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		httputil.HandleError(r.Context(), w, ErrSessionRequired, errorMappings)
		return
	}

	record, ok := h.correlator.Get(r.Context(), sessionID)
	if !ok {
		httputil.JSON(w, http.StatusOK, LookupResponse{
			Found:   false,
			Message: "channel not created yet",
		})
		return
	}

	createdAt := record.CreatedAt
	httputil.JSON(w, http.StatusOK, LookupResponse{
		Found:      true,
		ChannelURL: record.ChannelURL,
		PlanType:   record.PlanType,
		CreatedAt:  &createdAt,
	})
}

// List handles GET /admin/channels.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.correlator.List(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	if records == nil {
		records = []domain.ChannelRecord{}
	}

	httputil.Success(w, http.StatusOK, records)
}

// SyncRequest represents a manually registered channel record.
type SyncRequest struct {
	SessionID     string `json:"sessionId" validate:"required"`
	ChannelID     string `json:"channelId"`
	ChannelURL    string `json:"channelUrl" validate:"required,url"`
	PlanType      string `json:"planType" validate:"required,oneof=simple medium premium premium-plus"`
	CustomerEmail string `json:"customerEmail" validate:"required,email"`
	CustomerName  string `json:"customerName"`
}

// Sync handles POST /admin/channels. It overwrites any existing record for the session.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	record := h.correlator.NewRecord(domain.ChannelRecord{
		SessionID:     req.SessionID,
		ChannelID:     req.ChannelID,
		ChannelURL:    req.ChannelURL,
		PlanType:      domain.PlanID(req.PlanType),
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
	})
	h.correlator.Store(r.Context(), record)

	httputil.Success(w, http.StatusCreated, record)
}

// Expire handles DELETE /admin/channels/{sessionID}.
func (h *Handler) Expire(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.correlator.Expire(r.Context(), sessionID); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
