package webhooks

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bissquit/toplane-coaching/internal/domain"
	"github.com/bissquit/toplane-coaching/internal/fulfillment"
	paystripe "github.com/bissquit/toplane-coaching/internal/payments/stripe"
	"github.com/bissquit/toplane-coaching/internal/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test_secret"

type recordingFulfiller struct {
	mu     sync.Mutex
	orders []fulfillment.Order
	status fulfillment.Status
}

func (f *recordingFulfiller) Fulfill(_ context.Context, order fulfillment.Order) fulfillment.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, order)
	status := f.status
	if status == "" {
		status = fulfillment.StatusProvisioned
	}
	return fulfillment.Outcome{Status: status, SessionID: order.SessionID}
}

func (f *recordingFulfiller) Orders() []fulfillment.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fulfillment.Order(nil), f.orders...)
}

func newStripeRouter(secret string, fulfiller Fulfiller) http.Handler {
	r := chi.NewRouter()
	NewStripeHandler(paystripe.New(paystripe.Config{WebhookSecret: secret}), fulfiller).RegisterRoutes(r)
	return r
}

func postStripe(t *testing.T, h http.Handler, payload []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStripeWebhook_CheckoutCompleted(t *testing.T) {
	fulfiller := &recordingFulfiller{}
	h := newStripeRouter(testWebhookSecret, fulfiller)

	payload := testutil.CheckoutCompletedEvent("cs_test_abc", "premium", "garen@example.com", "Garen")
	rec := postStripe(t, h, payload, testutil.SignStripePayload(t, payload, testWebhookSecret))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())

	orders := fulfiller.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, "cs_test_abc", orders[0].SessionID)
	assert.Equal(t, domain.PlanPremium, orders[0].PlanID)
	assert.Equal(t, "garen@example.com", orders[0].CustomerEmail)
	assert.Equal(t, "Garen", orders[0].CustomerName)
	assert.Equal(t, fulfillment.SourceWebhook, orders[0].Source)
}

func TestStripeWebhook_AcknowledgesFailedFulfillment(t *testing.T) {
	fulfiller := &recordingFulfiller{status: fulfillment.StatusFailed}
	h := newStripeRouter(testWebhookSecret, fulfiller)

	payload := testutil.CheckoutCompletedEvent("cs_test_fail", "simple", "a@example.com", "A")
	rec := postStripe(t, h, payload, testutil.SignStripePayload(t, payload, testWebhookSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, fulfiller.Orders(), 1)
}

func TestStripeWebhook_UnpaidSessionWaits(t *testing.T) {
	fulfiller := &recordingFulfiller{}
	h := newStripeRouter(testWebhookSecret, fulfiller)

	payload := testutil.CheckoutCompletedEvent("cs_test_unpaid", "simple", "a@example.com", "A")
	payload = []byte(strings.Replace(string(payload), `"payment_status": "paid"`, `"payment_status": "unpaid"`, 1))
	rec := postStripe(t, h, payload, testutil.SignStripePayload(t, payload, testWebhookSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, fulfiller.Orders())
}

func TestStripeWebhook_AsyncPaymentSucceeded(t *testing.T) {
	fulfiller := &recordingFulfiller{}
	h := newStripeRouter(testWebhookSecret, fulfiller)

	payload := testutil.CheckoutCompletedEvent("cs_test_async", "medium", "a@example.com", "A")
	payload = []byte(strings.Replace(string(payload), "checkout.session.completed", "checkout.session.async_payment_succeeded", 1))
	rec := postStripe(t, h, payload, testutil.SignStripePayload(t, payload, testWebhookSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, fulfiller.Orders(), 1)
	assert.Equal(t, domain.PlanMedium, fulfiller.Orders()[0].PlanID)
}

func TestStripeWebhook_IgnoresOtherEvents(t *testing.T) {
	fulfiller := &recordingFulfiller{}
	h := newStripeRouter(testWebhookSecret, fulfiller)

	payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.created","data":{"object":{"id":"pi_1","object":"payment_intent"}}}`)
	rec := postStripe(t, h, payload, testutil.SignStripePayload(t, payload, testWebhookSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, fulfiller.Orders())
}

func TestStripeWebhook_Rejections(t *testing.T) {
	payload := testutil.CheckoutCompletedEvent("cs_test_x", "simple", "a@example.com", "A")

	tests := []struct {
		name       string
		secret     string
		signature  func(t *testing.T) string
		wantStatus int
	}{
		{
			name:       "missing signature",
			secret:     testWebhookSecret,
			signature:  func(*testing.T) string { return "" },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:   "wrong secret",
			secret: testWebhookSecret,
			signature: func(t *testing.T) string {
				return testutil.SignStripePayload(t, payload, "whsec_other")
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:   "webhooks not configured",
			secret: "",
			signature: func(t *testing.T) string {
				return testutil.SignStripePayload(t, payload, testWebhookSecret)
			},
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fulfiller := &recordingFulfiller{}
			h := newStripeRouter(tt.secret, fulfiller)

			rec := postStripe(t, h, payload, tt.signature(t))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Empty(t, fulfiller.Orders())
		})
	}
}

func TestStripeWebhook_PayloadTooLarge(t *testing.T) {
	h := newStripeRouter(testWebhookSecret, &recordingFulfiller{})

	rec := postStripe(t, h, bytes.Repeat([]byte("a"), maxBodyBytes+1), "t=1,v1=x")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestStripeWebhook_UndecodableSessionAcknowledged(t *testing.T) {
	fulfiller := &recordingFulfiller{}
	h := newStripeRouter(testWebhookSecret, fulfiller)

	payload := []byte(`{
  "id": "evt_bad_amount",
  "object": "event",
  "type": "checkout.session.completed",
  "data": {"object": {"id": "cs_bad", "object": "checkout.session", "payment_status": "paid", "amount_total": "not-a-number"}}
}`)
	rec := postStripe(t, h, payload, testutil.SignStripePayload(t, payload, testWebhookSecret))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())
	assert.Empty(t, fulfiller.Orders())
}
