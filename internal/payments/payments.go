// Package payments defines the payment provider boundary used by checkout and fulfillment.
package payments

import (
	"context"
	"errors"

	"github.com/bissquit/toplane-coaching/internal/domain"
)

// Payment errors.
var (
	ErrNotConfigured    = errors.New("payment provider is not configured")
	ErrSessionNotFound  = errors.New("checkout session not found")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// PaymentStatusPaid is the payment status of a settled session.
const PaymentStatusPaid = "paid"

// Checkout event types.
const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"
)

// PaymentStatusNoPaymentRequired is set on fully discounted sessions.
const PaymentStatusNoPaymentRequired = "no_payment_required"

// CheckoutRequest describes a hosted checkout to create.
type CheckoutRequest struct {
	Plan          domain.Plan
	CustomerEmail string
	HasBooking    bool
	SuccessURL    string
	CancelURL     string
}

// Session is the provider-neutral view of a checkout session.
type Session struct {
	ID            string
	URL           string
	PaymentStatus string
	CustomerEmail string
	CustomerName  string
	AmountTotal   int64
	Currency      string
	Metadata      domain.CheckoutMetadata
}

// Paid reports whether the session has been paid or needs no payment.
func (s Session) Paid() bool {
	return s.PaymentStatus == PaymentStatusPaid || s.PaymentStatus == PaymentStatusNoPaymentRequired
}

// Event is a verified webhook event. Session is set for checkout events.
type Event struct {
	ID      string
	Type    string
	Session *Session
}

// Provider creates and reads hosted checkout sessions.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (Session, error)
	GetCheckoutSession(ctx context.Context, id string) (Session, error)
}

// EventVerifier authenticates and decodes webhook deliveries.
type EventVerifier interface {
	VerifyEvent(payload []byte, signature string) (Event, error)
}
