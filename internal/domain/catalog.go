package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Service is a bookable offering, e.g. "Deep cleaning".
type Service struct {
	ID          int64             `gorm:"primaryKey" json:"id"`
	Name        string            `gorm:"type:varchar(200);not null" json:"name"`
	Description string            `gorm:"type:text" json:"description,omitempty"`
	IsActive    bool              `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Variables   []ServiceVariable `gorm:"foreignKey:ServiceID" json:"variables,omitempty"`
}

func (Service) TableName() string { return "services" }

// ServiceVariable is a priced sub-option of a Service, e.g. "Bedroom" at a
// per-unit price.
type ServiceVariable struct {
	ID        int64           `gorm:"primaryKey" json:"id"`
	ServiceID int64           `gorm:"index;not null" json:"service_id"`
	Name      string          `gorm:"type:varchar(200);not null" json:"name"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	IsActive  bool            `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (ServiceVariable) TableName() string { return "service_variables" }

// CatalogItem is a resolved service+variable pair at its current price.
type CatalogItem struct {
	ServiceID    int64
	VariableID   int64
	ServiceName  string
	VariableName string
	UnitPrice    decimal.Decimal
}
