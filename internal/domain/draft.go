package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PendingBookingDraft holds checkout input until payment succeeds. It is
// consumed exactly once, in the same transaction that creates the Booking.
type PendingBookingDraft struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	ReferenceID string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"reference_id"`
	Payload     string    `gorm:"type:text;not null" json:"payload"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

func (PendingBookingDraft) TableName() string { return "pending_booking_drafts" }

type DraftCustomer struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone"`
}

type DraftAddress struct {
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postal_code"`
}

type DraftService struct {
	ServiceID  int64 `json:"service_id" validate:"required,gt=0"`
	VariableID int64 `json:"variable_id" validate:"required,gt=0"`
	Quantity   int   `json:"quantity" validate:"gte=0"`
}

type DraftTimeWindow struct {
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
}

// DraftPayload is the serialized booking input stored in a draft.
type DraftPayload struct {
	UserID     *int64          `json:"user_id,omitempty"`
	Customer   DraftCustomer   `json:"customer" validate:"required"`
	Address    DraftAddress    `json:"address" validate:"required"`
	Services   []DraftService  `json:"services" validate:"dive"`
	Date       string          `json:"date" validate:"required"`
	TimeWindow DraftTimeWindow `json:"time_window" validate:"required"`
	Frequency  Frequency       `json:"frequency"`
	Price      decimal.Decimal `json:"price"`
	Notes      string          `json:"notes"`
}

// Decode parses the stored payload.
func (d *PendingBookingDraft) Decode() (*DraftPayload, error) {
	var p DraftPayload
	if err := json.Unmarshal([]byte(d.Payload), &p); err != nil {
		return nil, fmt.Errorf("decode draft %s: %w", d.ReferenceID, err)
	}
	if p.Frequency == "" {
		p.Frequency = FrequencyOnce
	}
	return &p, nil
}

// ScheduledDate parses the draft date (YYYY-MM-DD) as UTC midnight.
func (p *DraftPayload) ScheduledDate() (time.Time, error) {
	return time.Parse("2006-01-02", p.Date)
}
