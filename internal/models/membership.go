package models

import (
	"time"

	"gorm.io/datatypes"
)

type MembershipPlan struct {
	BaseModel
	Name         string         `gorm:"uniqueIndex;not null" json:"name"`
	Price        float64        `gorm:"not null" json:"price"`
	Currency     string         `gorm:"type:varchar(3);default:'USD'" json:"currency"`
	DurationDays int            `gorm:"not null" json:"duration_days"`
	Features     datatypes.JSON `gorm:"type:jsonb" json:"features"` // {"priority_support": true, ...}
	Limits       datatypes.JSON `gorm:"type:jsonb" json:"limits"`   // {"generations": 500, "exports": 20}
	IsActive     bool           `gorm:"default:true" json:"is_active"`
}

// UserMembership is a time-bounded entitlement linking a user to a plan.
// One row per user is conceptually current; superseded rows stay around
// as history with status cancelled or expired.
type UserMembership struct {
	BaseModel
	UserID    string           `gorm:"not null;index" json:"user_id"`
	PlanID    string           `gorm:"not null;index" json:"plan_id"`
	Status    MembershipStatus `gorm:"type:varchar(20);default:'active';index" json:"status"`
	StartDate time.Time        `gorm:"not null" json:"start_date"`
	EndDate   time.Time        `gorm:"not null;index" json:"end_date"`

	// Relations
	Plan MembershipPlan `gorm:"foreignKey:PlanID" json:"plan"`
}

// PaymentRecord tracks one checkout with the payment processor. Status moves
// pending -> paid|failed and never reverses; the paid check is what makes
// redelivered webhooks a no-op.
type PaymentRecord struct {
	BaseModel
	UserID            string         `gorm:"not null;index" json:"user_id"`
	PlanID            string         `gorm:"not null;index" json:"plan_id"`
	ProviderSessionID string         `gorm:"uniqueIndex;not null" json:"provider_session_id"`
	ProviderEventID   string         `gorm:"index" json:"provider_event_id"`
	Amount            float64        `json:"amount"`
	Currency          string         `gorm:"type:varchar(3)" json:"currency"`
	Status            PaymentStatus  `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	Metadata          datatypes.JSON `gorm:"type:jsonb" json:"metadata"`
	PaidAt            *time.Time     `json:"paid_at,omitempty"`
}
