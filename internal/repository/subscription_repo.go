package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cleanhub/internal/domain"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// GetByID returns nil, nil when no row exists.
func (r *SubscriptionRepository) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	return r.first(ctx, "id = ?", id)
}

// GetByExternalID returns nil, nil when no row exists.
func (r *SubscriptionRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Subscription, error) {
	return r.first(ctx, "external_subscription_id = ?", externalID)
}

func (r *SubscriptionRepository) first(ctx context.Context, query string, arg interface{}) (*domain.Subscription, error) {
	var s domain.Subscription
	err := r.db.WithContext(ctx).Where(query, arg).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// UpsertByExternalID inserts sub, or overwrites columns of the row that
// already carries the same external subscription id. status is always part
// of the update and must not be listed in columns; a stored cancelled status
// is never overwritten. sub is reloaded from the stored row.
func (r *SubscriptionRepository) UpsertByExternalID(ctx context.Context, sub *domain.Subscription, columns []string) error {
	cols := append([]string{"updated_at"}, columns...)
	set := clause.AssignmentColumns(cols)
	set = append(set, clause.Assignment{
		Column: clause.Column{Name: "status"},
		Value: gorm.Expr(
			"CASE WHEN subscriptions.status = ? THEN subscriptions.status ELSE excluded.status END",
			string(domain.SubscriptionCancelled),
		),
	})

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_subscription_id"}},
		DoUpdates: set,
	}).Create(sub).Error
	if err != nil {
		return err
	}

	stored, err := r.GetByExternalID(ctx, sub.ExternalSubscriptionID)
	if err != nil {
		return err
	}
	if stored != nil {
		*sub = *stored
	}
	return nil
}

// UpdateState persists the status-machine columns of one subscription. A row
// already cancelled is left untouched, so a handler that read the row before
// a concurrent cancellation committed cannot revive it. The bool reports
// whether the row was written.
func (r *SubscriptionRepository) UpdateState(ctx context.Context, id string, st domain.SubscriptionState) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("id = ? AND status <> ?", id, string(domain.SubscriptionCancelled)).
		Updates(map[string]interface{}{
			"status":               st.Status,
			"cancel_at_period_end": st.CancelAtPeriodEnd,
			"cancelled_at":         st.CancelledAt,
			"current_period_start": st.PeriodStart,
			"current_period_end":   st.PeriodEnd,
			"updated_at":           time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ClaimCancellationNotice stamps cancellation_notified_at once per
// subscription. Only the caller that gets true sends the cancellation email.
func (r *SubscriptionRepository) ClaimCancellationNotice(ctx context.Context, id string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("id = ? AND cancellation_notified_at IS NULL", id).
		Update("cancellation_notified_at", at.UTC())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ApplyPlanChange writes a completed upgrade onto the subscription row.
func (r *SubscriptionRepository) ApplyPlanChange(ctx context.Context, id string, ch domain.PlanChange) error {
	updates := map[string]interface{}{
		"plan_id":                 ch.PlanID,
		"plan_name":               ch.PlanName,
		"revenue":                 ch.Revenue,
		"last_upgrade_session_id": ch.SessionID,
		"updated_at":              time.Now().UTC(),
	}
	if ch.CurrentPeriodEnd != nil {
		updates["current_period_end"] = ch.CurrentPeriodEnd
	}
	return r.db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("id = ?", id).
		Updates(updates).Error
}
