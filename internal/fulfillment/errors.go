package fulfillment

import "errors"

// Order validation errors. They produce a skipped outcome.
var (
	ErrMissingSession = errors.New("order has no session id")
	ErrMissingPlan    = errors.New("order has no plan")
	ErrMissingEmail   = errors.New("order has no customer email")
)

// ErrSessionNotPaid is returned when an on-demand request names an unpaid session.
var ErrSessionNotPaid = errors.New("checkout session is not paid")
