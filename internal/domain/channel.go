package domain

import (
	"strconv"
	"time"
)

// ChannelRecord links a completed checkout session to the private channel created for it.
type ChannelRecord struct {
	SessionID     string     `json:"sessionId"`
	ChannelID     string     `json:"channelId,omitempty"`
	ChannelURL    string     `json:"channelUrl"`
	PlanType      PlanID     `json:"planType"`
	CustomerEmail string     `json:"customerEmail"`
	CustomerName  string     `json:"customerName,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the record is past its expiry at the given instant.
func (r ChannelRecord) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// TTL returns the remaining lifetime, or zero when the record never expires.
func (r ChannelRecord) TTL(now time.Time) time.Duration {
	if r.ExpiresAt == nil {
		return 0
	}
	return r.ExpiresAt.Sub(now)
}

// Checkout metadata keys attached to payment sessions.
const (
	MetadataPlanID     = "plan_id"
	MetadataPlanName   = "plan_name"
	MetadataHasBooking = "has_booking"
)

// CheckoutMetadata is the metadata attached at session creation and read back on completion.
type CheckoutMetadata struct {
	PlanID     PlanID
	PlanName   string
	HasBooking bool
}

// Map encodes metadata as provider key/value pairs.
func (m CheckoutMetadata) Map() map[string]string {
	return map[string]string{
		MetadataPlanID:     string(m.PlanID),
		MetadataPlanName:   m.PlanName,
		MetadataHasBooking: strconv.FormatBool(m.HasBooking),
	}
}

// ParseCheckoutMetadata decodes provider metadata. Missing keys leave zero values.
func ParseCheckoutMetadata(md map[string]string) CheckoutMetadata {
	hasBooking, _ := strconv.ParseBool(md[MetadataHasBooking])
	return CheckoutMetadata{
		PlanID:     PlanID(md[MetadataPlanID]),
		PlanName:   md[MetadataPlanName],
		HasBooking: hasBooking,
	}
}
