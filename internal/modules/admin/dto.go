package admin

import (
	"time"

	"cleanhub/internal/domain"
)

type ListWebhookEventsQuery struct {
	Failed bool `form:"failed"`
	Limit  int  `form:"limit" binding:"omitempty,min=1,max=200"`
}

// WebhookEventView omits the raw payload, which can be large.
type WebhookEventView struct {
	ID              int64      `json:"id"`
	ProviderEventID string     `json:"provider_event_id"`
	EventType       string     `json:"event_type"`
	Attempts        int        `json:"attempts"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	ProcessingError string     `json:"processing_error,omitempty"`
	Failed          bool       `json:"failed"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toWebhookEventView(e domain.WebhookEvent) WebhookEventView {
	return WebhookEventView{
		ID:              e.ID,
		ProviderEventID: e.ProviderEventID,
		EventType:       e.EventType,
		Attempts:        e.Attempts,
		ProcessedAt:     e.ProcessedAt,
		ProcessingError: e.ProcessingError,
		Failed:          !e.Applied(),
		CreatedAt:       e.CreatedAt,
	}
}
