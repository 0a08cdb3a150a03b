// Package domain contains core business entities.
package domain

import (
	"errors"
	"time"
)

// ErrUnknownPlan is returned for plan identifiers outside the catalogue.
var ErrUnknownPlan = errors.New("unknown plan")

// PlanID identifies a coaching plan.
type PlanID string

// Available plans.
const (
	PlanSimple      PlanID = "simple"
	PlanMedium      PlanID = "medium"
	PlanPremium     PlanID = "premium"
	PlanPremiumPlus PlanID = "premium-plus"
)

// Plan describes a purchasable coaching offer.
type Plan struct {
	ID          PlanID `json:"id"`
	Name        string `json:"name"`
	PriceCents  int64  `json:"price_cents"`
	Description string `json:"description"`
	// HasLiveSession marks plans that include a scheduled call.
	HasLiveSession bool `json:"has_live_session"`
	// ChannelLifetime is how long the private channel is kept after purchase.
	ChannelLifetime time.Duration `json:"-"`
}

const (
	shortChannelLifetime = 7 * 24 * time.Hour
	longChannelLifetime  = 14 * 24 * time.Hour
)

var plans = []Plan{
	{
		ID:              PlanSimple,
		Name:            "Simple Plan",
		PriceCents:      1500,
		Description:     "One game review with detailed feedback",
		ChannelLifetime: shortChannelLifetime,
	},
	{
		ID:              PlanMedium,
		Name:            "Medium Plan",
		PriceCents:      2500,
		Description:     "OP.GG review + two game reviews + champion pool advice",
		ChannelLifetime: shortChannelLifetime,
	},
	{
		ID:              PlanPremium,
		Name:            "Premium Plan",
		PriceCents:      4000,
		Description:     "1 hour Discord coaching session",
		HasLiveSession:  true,
		ChannelLifetime: longChannelLifetime,
	},
	{
		ID:              PlanPremiumPlus,
		Name:            "Premium+ Plan",
		PriceCents:      6000,
		Description:     "1.5 hour Discord coaching session + live game review",
		HasLiveSession:  true,
		ChannelLifetime: longChannelLifetime,
	},
}

// IsValid checks if plan id is one of the known plans.
func (p PlanID) IsValid() bool {
	_, ok := LookupPlan(p)
	return ok
}

// LookupPlan returns the plan for the given id.
func LookupPlan(id PlanID) (Plan, bool) {
	for _, p := range plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// Plans returns all plans in display order.
func Plans() []Plan {
	out := make([]Plan, len(plans))
	copy(out, plans)
	return out
}

// PriceEuros returns the price in euros.
func (p Plan) PriceEuros() float64 {
	return float64(p.PriceCents) / 100
}
