package repository

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"cleanhub/internal/domain"
)

type CatalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// Resolve returns the current name and price of a service+variable pair.
// Inactive entries, or a variable that belongs to another service, count as
// missing: nil, nil.
func (r *CatalogRepository) Resolve(ctx context.Context, serviceID, variableID int64) (*domain.CatalogItem, error) {
	var row struct {
		ServiceName  string
		VariableName string
		UnitPrice    decimal.Decimal
	}
	res := r.db.WithContext(ctx).
		Table("service_variables AS v").
		Select("s.name AS service_name, v.name AS variable_name, v.unit_price AS unit_price").
		Joins("JOIN services AS s ON s.id = v.service_id").
		Where("v.id = ? AND s.id = ? AND v.is_active = ? AND s.is_active = ?", variableID, serviceID, true, true).
		Limit(1).
		Scan(&row)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &domain.CatalogItem{
		ServiceID:    serviceID,
		VariableID:   variableID,
		ServiceName:  row.ServiceName,
		VariableName: row.VariableName,
		UnitPrice:    row.UnitPrice,
	}, nil
}

func (r *CatalogRepository) CreateService(ctx context.Context, s *domain.Service) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *CatalogRepository) DeactivateVariable(ctx context.Context, variableID int64) error {
	return r.db.WithContext(ctx).
		Model(&domain.ServiceVariable{}).
		Where("id = ?", variableID).
		Update("is_active", false).Error
}

type PlanRepository struct {
	db *gorm.DB
}

func NewPlanRepository(db *gorm.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// GetByID returns nil, nil for an unknown or inactive plan.
func (r *PlanRepository) GetByID(ctx context.Context, id string) (*domain.SubscriptionPlan, error) {
	var p domain.SubscriptionPlan
	err := r.db.WithContext(ctx).Where("id = ? AND is_active = ?", id, true).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *PlanRepository) Upsert(ctx context.Context, p *domain.SubscriptionPlan) error {
	return r.db.WithContext(ctx).Save(p).Error
}
