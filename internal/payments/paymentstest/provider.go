// Package paymentstest provides an in-memory payments.Provider for tests.
package paymentstest

import (
	"context"
	"fmt"
	"sync"

	"github.com/bissquit/toplane-coaching/internal/payments"
)

// Provider records created sessions and serves configured ones.
type Provider struct {
	mu       sync.Mutex
	sessions map[string]payments.Session
	created  []payments.CheckoutRequest

	// Err, when set, is returned from every call.
	Err error
}

// NewProvider creates an empty fake provider.
func NewProvider() *Provider {
	return &Provider{sessions: make(map[string]payments.Session)}
}

// AddSession makes a session retrievable by id.
func (p *Provider) AddSession(s payments.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[s.ID] = s
}

// Created returns the checkout requests seen so far.
func (p *Provider) Created() []payments.CheckoutRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]payments.CheckoutRequest(nil), p.created...)
}

// CreateCheckoutSession implements payments.Provider.
func (p *Provider) CreateCheckoutSession(_ context.Context, req payments.CheckoutRequest) (payments.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Err != nil {
		return payments.Session{}, p.Err
	}

	p.created = append(p.created, req)
	id := fmt.Sprintf("cs_test_fake_%d", len(p.created))
	sess := payments.Session{
		ID:            id,
		URL:           "https://checkout.stripe.com/c/pay/" + id,
		CustomerEmail: req.CustomerEmail,
		AmountTotal:   req.Plan.PriceCents,
		Currency:      "eur",
	}
	sess.Metadata.PlanID = req.Plan.ID
	sess.Metadata.PlanName = req.Plan.Name
	sess.Metadata.HasBooking = req.HasBooking
	p.sessions[id] = sess
	return sess, nil
}

// GetCheckoutSession implements payments.Provider.
func (p *Provider) GetCheckoutSession(_ context.Context, id string) (payments.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Err != nil {
		return payments.Session{}, p.Err
	}
	sess, ok := p.sessions[id]
	if !ok {
		return payments.Session{}, payments.ErrSessionNotFound
	}
	return sess, nil
}
