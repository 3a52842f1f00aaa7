package dto

import "time"

// PaymentEvent is the normalized payment-completed notification handed to the
// membership activation path after the processor's signature check passed.
type PaymentEvent struct {
	EventID        string
	SessionID      string
	ExternalUserID string
	PlanID         string
	Amount         float64
	Currency       string
	DurationDays   int
}

// MembershipStatus answers "does this user currently have an active
// entitlement, and what is it".
type MembershipStatus struct {
	Active        bool           `json:"active"`
	PlanID        string         `json:"plan_id,omitempty"`
	PlanName      string         `json:"plan_name,omitempty"`
	Status        string         `json:"status,omitempty"`
	StartDate     *time.Time     `json:"start_date,omitempty"`
	EndDate       *time.Time     `json:"end_date,omitempty"`
	RemainingDays int            `json:"remaining_days"`
	Usage         []FeatureUsage `json:"usage,omitempty"`
}

type FeatureUsage struct {
	Feature   string `json:"feature"`
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
}

type CheckoutRequest struct {
	PlanID string `json:"plan_id" binding:"required" validate:"required,uuid4"`
}

type CheckoutResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
	PaymentID   string `json:"payment_id"`
}
