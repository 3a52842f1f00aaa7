package models

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEvent stores every verified payment-processor delivery keyed by the
// provider's event id. The unique index is the transport-level dedup for
// at-least-once delivery; the PaymentRecord status check is the second line.
type WebhookEvent struct {
	BaseModel
	Provider        string         `gorm:"type:varchar(20);not null;uniqueIndex:ux_webhook_provider_event,priority:1" json:"provider"`
	ProviderEventID string         `gorm:"not null;uniqueIndex:ux_webhook_provider_event,priority:2" json:"provider_event_id"`
	EventType       string         `gorm:"type:varchar(100);not null;index" json:"event_type"`
	Payload         datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	ProcessedAt     *time.Time     `json:"processed_at,omitempty"`
	ProcessingError string         `gorm:"type:text" json:"processing_error,omitempty"`
}
