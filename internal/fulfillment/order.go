// Package fulfillment turns paid orders into provisioned customer channels.
package fulfillment

import (
	"time"

	"github.com/bissquit/toplane-coaching/internal/domain"
	"github.com/bissquit/toplane-coaching/internal/payments"
)

// Source identifies what triggered a fulfillment.
type Source string

// Order sources.
const (
	SourceWebhook  Source = "webhook"
	SourceOnDemand Source = "on_demand"
	SourceCLI      Source = "cli"
	SourceE2E      Source = "e2e"
)

// Order is a paid checkout ready to be fulfilled.
type Order struct {
	SessionID     string
	PlanID        domain.PlanID
	CustomerEmail string
	CustomerName  string
	AmountTotal   int64
	Currency      string
	HasBooking    bool
	Source        Source
}

// OrderFromSession builds an order from a payment session.
func OrderFromSession(s payments.Session, source Source) Order {
	return Order{
		SessionID:     s.ID,
		PlanID:        s.Metadata.PlanID,
		CustomerEmail: s.CustomerEmail,
		CustomerName:  s.CustomerName,
		AmountTotal:   s.AmountTotal,
		Currency:      s.Currency,
		HasBooking:    s.Metadata.HasBooking,
		Source:        source,
	}
}

// Status is the result class of a fulfillment attempt.
type Status string

// Outcome statuses.
const (
	StatusProvisioned Status = "provisioned"
	StatusDuplicate   Status = "duplicate"
	StatusInProgress  Status = "in_progress"
	StatusSkipped     Status = "skipped"
	StatusFailed      Status = "failed"
)

// Outcome reports what happened to an order.
type Outcome struct {
	Status    Status
	SessionID string
	// Record is set for provisioned and duplicate outcomes.
	Record   *domain.ChannelRecord
	Err      error
	Duration time.Duration
}

// OK reports whether the customer has a channel after this outcome.
func (o Outcome) OK() bool {
	return o.Record != nil
}
