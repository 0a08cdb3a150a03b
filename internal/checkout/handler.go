package checkout

import (
	"encoding/json"
	"net/http"

	"github.com/bissquit/toplane-coaching/internal/domain"
	"github.com/bissquit/toplane-coaching/internal/payments"
	"github.com/bissquit/toplane-coaching/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for checkout.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new checkout handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers checkout routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/checkout", h.CreateSession)
}

// CreateSessionRequest represents the request body for starting a checkout.
type CreateSessionRequest struct {
	PlanID        string `json:"planId" validate:"required"`
	CustomerEmail string `json:"customerEmail" validate:"omitempty,email"`
	HasBooking    bool   `json:"hasBooking"`
}

// CreateSessionResponse carries the hosted checkout URL.
type CreateSessionResponse struct {
	URL string `json:"url"`
}

// CreateSession handles POST /checkout.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	sess, err := h.service.CreateSession(r.Context(), CreateInput{
		PlanID:        domain.PlanID(req.PlanID),
		CustomerEmail: req.CustomerEmail,
		HasBooking:    req.HasBooking,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: domain.ErrUnknownPlan, Status: http.StatusBadRequest, Message: "invalid plan selected"},
			{Error: payments.ErrNotConfigured, Status: http.StatusServiceUnavailable, Message: "payments are not configured"},
		})
		return
	}

	httputil.JSON(w, http.StatusOK, CreateSessionResponse{URL: sess.URL})
}
