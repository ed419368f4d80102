package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

type Frequency string

const (
	FrequencyOnce     Frequency = "once"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

// Booking is a confirmed cleaning appointment. ReferenceID is the draft
// reference it was created from and is unique, so a draft can only ever
// produce one booking.
type Booking struct {
	ID          int64  `gorm:"primaryKey" json:"id"`
	ReferenceID string `gorm:"type:varchar(64);uniqueIndex;not null" json:"reference_id"`
	UserID      *int64 `gorm:"index" json:"user_id,omitempty"`

	CustomerName  string `gorm:"type:varchar(200);not null" json:"customer_name"`
	CustomerEmail string `gorm:"type:varchar(200);not null;index" json:"customer_email"`
	CustomerPhone string `gorm:"type:varchar(50)" json:"customer_phone"`

	AddressLine1 string `gorm:"type:varchar(255)" json:"address_line1"`
	AddressLine2 string `gorm:"type:varchar(255)" json:"address_line2,omitempty"`
	City         string `gorm:"type:varchar(120)" json:"city"`
	PostalCode   string `gorm:"type:varchar(20)" json:"postal_code"`

	Date      time.Time `gorm:"index" json:"date"`
	TimeStart string    `gorm:"type:varchar(5)" json:"time_start"`
	TimeEnd   string    `gorm:"type:varchar(5)" json:"time_end"`
	Frequency Frequency `gorm:"type:varchar(20);default:'once'" json:"frequency"`

	TotalPrice decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_price"`
	Notes      string          `gorm:"type:text" json:"notes,omitempty"`

	Status        BookingStatus `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	PaymentStatus PaymentStatus `gorm:"type:varchar(20);default:'unpaid'" json:"payment_status"`

	CheckoutSessionID string `gorm:"type:varchar(255);uniqueIndex" json:"checkout_session_id"`
	PaymentIntentID   string `gorm:"type:varchar(255)" json:"payment_intent_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Lines []BookingServiceLine `gorm:"foreignKey:BookingID" json:"lines,omitempty"`
}

func (Booking) TableName() string { return "bookings" }

// BookingServiceLine is one priced service+variable selection. Names and
// prices are copied from the catalog at confirmation time.
type BookingServiceLine struct {
	ID           int64           `gorm:"primaryKey" json:"id"`
	BookingID    int64           `gorm:"index;not null" json:"booking_id"`
	ServiceID    int64           `gorm:"not null" json:"service_id"`
	VariableID   int64           `gorm:"not null" json:"variable_id"`
	ServiceName  string          `gorm:"type:varchar(200)" json:"service_name"`
	VariableName string          `gorm:"type:varchar(200)" json:"variable_name"`
	Quantity     int             `gorm:"not null;default:1" json:"quantity"`
	UnitPrice    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	LinePrice    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"line_price"`
}

func (BookingServiceLine) TableName() string { return "booking_service_lines" }
