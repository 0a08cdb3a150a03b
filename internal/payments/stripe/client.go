// Package stripe implements the payment provider on top of the Stripe API.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bissquit/toplane-coaching/internal/domain"
	"github.com/bissquit/toplane-coaching/internal/payments"
	stripeapi "github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"
	"github.com/stripe/stripe-go/v80/webhook"
)

const defaultCurrency = "eur"

// Config holds Stripe client configuration.
type Config struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	// APIURL overrides the API base URL.
	APIURL            string
	MaxNetworkRetries int64
}

// Client is a Stripe-backed payments.Provider and payments.EventVerifier.
type Client struct {
	api           *client.API
	secretKey     string
	webhookSecret string
	currency      string
}

// New creates a Stripe client. The secret key is never stored in the
// package-level stripe.Key so several clients can coexist in tests.
func New(cfg Config) *Client {
	if cfg.Currency == "" {
		cfg.Currency = defaultCurrency
	}

	var backends *stripeapi.Backends
	if cfg.APIURL != "" || cfg.MaxNetworkRetries > 0 {
		backendCfg := &stripeapi.BackendConfig{
			MaxNetworkRetries: stripeapi.Int64(cfg.MaxNetworkRetries),
		}
		if cfg.APIURL != "" {
			backendCfg.URL = stripeapi.String(cfg.APIURL)
		}
		backend := stripeapi.GetBackendWithConfig(stripeapi.APIBackend, backendCfg)
		backends = &stripeapi.Backends{API: backend, Connect: backend, Uploads: backend}
	}

	slog.Info("stripe client configured",
		"enabled", cfg.SecretKey != "",
		"webhooks", cfg.WebhookSecret != "",
		"currency", cfg.Currency,
	)

	return &Client{
		api:           client.New(cfg.SecretKey, backends),
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		currency:      cfg.Currency,
	}
}

// CreateCheckoutSession creates a one-time payment session for a plan.
func (c *Client) CreateCheckoutSession(ctx context.Context, req payments.CheckoutRequest) (payments.Session, error) {
	if c.secretKey == "" {
		return payments.Session{}, payments.ErrNotConfigured
	}

	params := &stripeapi.CheckoutSessionParams{
		Mode:               stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripeapi.StringSlice([]string{"card"}),
		LineItems: []*stripeapi.CheckoutSessionLineItemParams{
			{
				PriceData: &stripeapi.CheckoutSessionLineItemPriceDataParams{
					Currency: stripeapi.String(c.currency),
					ProductData: &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripeapi.String(req.Plan.Name),
						Description: stripeapi.String(req.Plan.Description),
					},
					UnitAmount: stripeapi.Int64(req.Plan.PriceCents),
				},
				Quantity: stripeapi.Int64(1),
			},
		},
		SuccessURL: stripeapi.String(req.SuccessURL),
		CancelURL:  stripeapi.String(req.CancelURL),
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripeapi.String(req.CustomerEmail)
	}
	metadata := domain.CheckoutMetadata{
		PlanID:     req.Plan.ID,
		PlanName:   req.Plan.Name,
		HasBooking: req.HasBooking,
	}
	for k, v := range metadata.Map() {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return payments.Session{}, fmt.Errorf("create checkout session: %w", err)
	}
	return toSession(sess), nil
}

// GetCheckoutSession retrieves a session by id.
func (c *Client) GetCheckoutSession(ctx context.Context, id string) (payments.Session, error) {
	if c.secretKey == "" {
		return payments.Session{}, payments.ErrNotConfigured
	}

	params := &stripeapi.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := c.api.CheckoutSessions.Get(id, params)
	if err != nil {
		var stripeErr *stripeapi.Error
		if errors.As(err, &stripeErr) &&
			(stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripeapi.ErrorCodeResourceMissing) {
			return payments.Session{}, payments.ErrSessionNotFound
		}
		return payments.Session{}, fmt.Errorf("get checkout session: %w", err)
	}
	return toSession(sess), nil
}

// VerifyEvent checks the Stripe-Signature header and decodes the event.
func (c *Client) VerifyEvent(payload []byte, signature string) (payments.Event, error) {
	if c.webhookSecret == "" {
		return payments.Event{}, payments.ErrNotConfigured
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return payments.Event{}, fmt.Errorf("%w: %v", payments.ErrInvalidSignature, err)
	}

	result := payments.Event{ID: event.ID, Type: string(event.Type)}
	if !strings.HasPrefix(string(event.Type), "checkout.session.") || event.Data == nil {
		return result, nil
	}

	// An undecodable session still yields the verified event, without Session.
	var sess stripeapi.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		slog.Warn("decode checkout session from stripe event",
			"event_id", event.ID,
			"event_type", string(event.Type),
			"error", err,
		)
		return result, nil
	}
	converted := toSession(&sess)
	result.Session = &converted
	return result, nil
}

func toSession(s *stripeapi.CheckoutSession) payments.Session {
	sess := payments.Session{
		ID:            s.ID,
		URL:           s.URL,
		PaymentStatus: string(s.PaymentStatus),
		CustomerEmail: s.CustomerEmail,
		AmountTotal:   s.AmountTotal,
		Currency:      string(s.Currency),
		Metadata:      domain.ParseCheckoutMetadata(s.Metadata),
	}
	if s.CustomerDetails != nil {
		if s.CustomerDetails.Email != "" {
			sess.CustomerEmail = s.CustomerDetails.Email
		}
		sess.CustomerName = s.CustomerDetails.Name
	}
	return sess
}
