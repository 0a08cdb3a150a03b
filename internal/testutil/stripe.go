package testutil

import (
	"testing"
	"time"

	"github.com/stripe/stripe-go/v80/webhook"
)

// SignStripePayload returns a Stripe-Signature header value for payload.
func SignStripePayload(t *testing.T, payload []byte, secret string) string {
	t.Helper()

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

// CheckoutCompletedEvent builds a checkout.session.completed event body.
func CheckoutCompletedEvent(sessionID, planID, email, name string) []byte {
	return []byte(`{
  "id": "evt_` + sessionID + `",
  "object": "event",
  "api_version": "2024-06-20",
  "type": "checkout.session.completed",
  "data": {
    "object": {
      "id": "` + sessionID + `",
      "object": "checkout.session",
      "payment_status": "paid",
      "amount_total": 4000,
      "currency": "eur",
      "customer_email": "` + email + `",
      "customer_details": {"email": "` + email + `", "name": "` + name + `"},
      "metadata": {"plan_id": "` + planID + `", "plan_name": "Plan", "has_booking": "false"}
    }
  }
}`)
}
