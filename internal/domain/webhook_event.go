package domain

import "time"

// WebhookEvent stores processor webhook payloads keyed by provider event id
// so a delivery that was already applied is not applied again.
type WebhookEvent struct {
	ID              int64      `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;uniqueIndex:ux_webhook_events_provider_event,priority:1" json:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_webhook_events_provider_event,priority:2" json:"provider_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	Payload         string     `gorm:"type:text;not null" json:"payload"`
	Attempts        int        `gorm:"not null;default:0" json:"attempts"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error,omitempty"`
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }

// Applied reports whether the event was processed without error.
func (e *WebhookEvent) Applied() bool {
	return e.ProcessedAt != nil && e.ProcessingError == ""
}

// Models lists every table the service owns, in migration order.
func Models() []interface{} {
	return []interface{}{
		&Service{},
		&ServiceVariable{},
		&SubscriptionPlan{},
		&PendingBookingDraft{},
		&Booking{},
		&BookingServiceLine{},
		&Subscription{},
		&WebhookEvent{},
	}
}
