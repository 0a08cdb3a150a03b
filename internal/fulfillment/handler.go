package fulfillment

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bissquit/toplane-coaching/internal/discord"
	"github.com/bissquit/toplane-coaching/internal/domain"
	"github.com/bissquit/toplane-coaching/internal/payments"
	"github.com/bissquit/toplane-coaching/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for on-demand provisioning and diagnostics.
type Handler struct {
	service   *Service
	notifier  Notifier
	validator *validator.Validate
}

// NewHandler creates a new fulfillment handler.
func NewHandler(service *Service, notifier Notifier) *Handler {
	return &Handler{
		service:   service,
		notifier:  notifier,
		validator: validator.New(),
	}
}

// RegisterRoutes registers public routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/channels/provision", h.ProvisionOnDemand)
}

// RegisterAdminRoutes registers diagnostic routes.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/discord/test", h.TestDiscord)
	r.Post("/test/end-to-end", h.EndToEnd)
}

// ProvisionResponse is returned when a channel exists for the session.
type ProvisionResponse struct {
	Success       bool          `json:"success"`
	ChannelURL    string        `json:"channelUrl"`
	PlanType      domain.PlanID `json:"planType"`
	CustomerEmail string        `json:"customerEmail"`
	SessionID     string        `json:"sessionId"`
	CreatedAt     time.Time     `json:"createdAt"`
	// Existing is true when the channel had already been provisioned.
	Existing bool `json:"existing"`
}

// ProvisionOnDemand handles POST /channels/provision?session=.
func (h *Handler) ProvisionOnDemand(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		httputil.Error(w, http.StatusBadRequest, "session parameter is required")
		return
	}

	outcome, err := h.service.ProvisionSession(r.Context(), sessionID, SourceOnDemand)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: payments.ErrSessionNotFound, Status: http.StatusNotFound, Message: "session not found"},
			{Error: ErrSessionNotPaid, Status: http.StatusNotFound, Message: "session not found or not paid"},
			{Error: ErrMissingEmail, Status: http.StatusBadRequest, Message: "no customer email found in session"},
			{Error: payments.ErrNotConfigured, Status: http.StatusServiceUnavailable, Message: "payments are not configured"},
		})
		return
	}

	switch outcome.Status {
	case StatusProvisioned, StatusDuplicate:
		rec := outcome.Record
		httputil.JSON(w, http.StatusOK, ProvisionResponse{
			Success:       true,
			ChannelURL:    rec.ChannelURL,
			PlanType:      rec.PlanType,
			CustomerEmail: rec.CustomerEmail,
			SessionID:     rec.SessionID,
			CreatedAt:     rec.CreatedAt,
			Existing:      outcome.Status == StatusDuplicate,
		})
	case StatusInProgress:
		httputil.Error(w, http.StatusConflict, "channel creation already in progress")
	case StatusSkipped:
		httputil.Error(w, http.StatusBadRequest, outcome.Err.Error())
	default:
		httputil.Error(w, http.StatusInternalServerError, "failed to create Discord channel")
	}
}

// TestDiscord handles POST /discord/test.
func (h *Handler) TestDiscord(w http.ResponseWriter, r *http.Request) {
	err := h.notifier.Notify(r.Context(), "🧪 **Test message!** Discord integration is working! ✅")
	if err != nil {
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: discord.ErrDisabled, Status: http.StatusServiceUnavailable, Message: "discord is not configured"},
			{Error: discord.ErrChannelNotFound, Status: http.StatusNotFound},
		})
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Discord integration working!",
	})
}

// EndToEndRequest optionally overrides the simulated customer.
type EndToEndRequest struct {
	PlanType      string `json:"planType" validate:"omitempty,oneof=simple medium premium premium-plus"`
	CustomerEmail string `json:"customerEmail" validate:"omitempty,email"`
	CustomerName  string `json:"customerName" validate:"max=100"`
}

// EndToEnd handles POST /test/end-to-end.
func (h *Handler) EndToEnd(w http.ResponseWriter, r *http.Request) {
	var req EndToEndRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	report := h.service.Simulate(r.Context(), SimulateInput{
		PlanID:        domain.PlanID(req.PlanType),
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
	})

	status := http.StatusOK
	if !report.Success {
		status = http.StatusInternalServerError
	}
	httputil.JSON(w, status, report)
}
