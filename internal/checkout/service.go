// Package checkout creates hosted payment sessions for coaching plans.
package checkout

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/bissquit/toplane-coaching/internal/domain"
	"github.com/bissquit/toplane-coaching/internal/payments"
	"github.com/bissquit/toplane-coaching/internal/pkg/ctxlog"
)

// sessionPlaceholder is replaced by the provider with the real session id.
const sessionPlaceholder = "{CHECKOUT_SESSION_ID}"

// CreateInput is a checkout request for one plan.
type CreateInput struct {
	PlanID        domain.PlanID
	CustomerEmail string
	HasBooking    bool
}

// Service creates checkout sessions.
type Service struct {
	provider payments.Provider
	baseURL  string
}

// NewService creates a checkout service redirecting back to baseURL.
func NewService(provider payments.Provider, baseURL string) *Service {
	return &Service{
		provider: provider,
		baseURL:  NormalizeBaseURL(baseURL),
	}
}

// CreateSession validates the plan and opens a hosted checkout for it.
func (s *Service) CreateSession(ctx context.Context, in CreateInput) (payments.Session, error) {
	plan, ok := domain.LookupPlan(in.PlanID)
	if !ok {
		return payments.Session{}, fmt.Errorf("%w: %q", domain.ErrUnknownPlan, in.PlanID)
	}

	sess, err := s.provider.CreateCheckoutSession(ctx, payments.CheckoutRequest{
		Plan:          plan,
		CustomerEmail: strings.TrimSpace(in.CustomerEmail),
		HasBooking:    in.HasBooking,
		SuccessURL:    s.SuccessURL(plan.ID),
		CancelURL:     s.baseURL,
	})
	if err != nil {
		return payments.Session{}, err
	}

	ctxlog.FromContext(ctx).Info("checkout session created",
		"session_id", sess.ID,
		"plan", plan.ID,
		"has_booking", in.HasBooking,
	)
	return sess, nil
}

// SuccessURL is where the provider sends the buyer after paying for plan.
func (s *Service) SuccessURL(plan domain.PlanID) string {
	return s.baseURL + "/success?session_id=" + sessionPlaceholder + "&plan=" + url.QueryEscape(string(plan))
}

// NormalizeBaseURL adds a scheme when missing and drops trailing slashes.
func NormalizeBaseURL(base string) string {
	base = strings.TrimSpace(base)
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	return strings.TrimRight(base, "/")
}
