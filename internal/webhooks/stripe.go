// Package webhooks receives payment and booking provider callbacks.
package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/bissquit/toplane-coaching/internal/fulfillment"
	"github.com/bissquit/toplane-coaching/internal/payments"
	"github.com/bissquit/toplane-coaching/internal/pkg/ctxlog"
	"github.com/bissquit/toplane-coaching/internal/pkg/httputil"
	"github.com/bissquit/toplane-coaching/internal/pkg/metrics"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

// Fulfiller fulfills paid orders.
type Fulfiller interface {
	Fulfill(ctx context.Context, order fulfillment.Order) fulfillment.Outcome
}

// StripeHandler receives Stripe webhook deliveries.
type StripeHandler struct {
	verifier  payments.EventVerifier
	fulfiller Fulfiller
}

// NewStripeHandler creates a Stripe webhook handler.
func NewStripeHandler(verifier payments.EventVerifier, fulfiller Fulfiller) *StripeHandler {
	return &StripeHandler{
		verifier:  verifier,
		fulfiller: fulfiller,
	}
}

// RegisterRoutes registers the webhook route.
func (h *StripeHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Receive)
}

// Receive handles POST /webhooks/stripe. Every verified delivery is
// acknowledged so Stripe does not retry orders we already alerted on.
func (h *StripeHandler) Receive(w http.ResponseWriter, r *http.Request) {
	log := ctxlog.FromContext(r.Context())

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.Error(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		httputil.Error(w, http.StatusBadRequest, "failed to read body")
		return
	}

	event, err := h.verifier.VerifyEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("stripe", "unknown", "rejected").Inc()
		log.Warn("stripe webhook verification failed", "error", err)
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: payments.ErrNotConfigured, Status: http.StatusServiceUnavailable, Message: "webhooks are not configured"},
			{Error: payments.ErrInvalidSignature, Status: http.StatusBadRequest, Message: "webhook signature verification failed"},
		})
		return
	}

	log = log.With("event_id", event.ID, "event_type", event.Type)
	result := "ignored"

	switch event.Type {
	case payments.EventCheckoutCompleted, payments.EventCheckoutAsyncSucceeded:
		result = h.handleCheckout(r.Context(), event)
	default:
		log.Info("unhandled stripe event")
	}

	metrics.WebhookEvents.WithLabelValues("stripe", event.Type, result).Inc()
	httputil.JSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *StripeHandler) handleCheckout(ctx context.Context, event payments.Event) string {
	log := ctxlog.FromContext(ctx).With("event_id", event.ID, "event_type", event.Type)

	if event.Session == nil {
		log.Warn("checkout event without session")
		return string(fulfillment.StatusSkipped)
	}
	if !event.Session.Paid() {
		log.Info("checkout completed without payment, waiting for async result",
			"session_id", event.Session.ID,
			"payment_status", event.Session.PaymentStatus,
		)
		return "pending_payment"
	}

	outcome := h.fulfiller.Fulfill(ctx, fulfillment.OrderFromSession(*event.Session, fulfillment.SourceWebhook))
	return string(outcome.Status)
}
