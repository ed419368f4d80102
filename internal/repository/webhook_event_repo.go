package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cleanhub/internal/domain"
)

type WebhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// RecordReceived inserts ev unless the provider event id is already stored,
// then loads the stored row into ev. created reports whether this call
// inserted it.
func (r *WebhookEventRepository) RecordReceived(ctx context.Context, ev *domain.WebhookEvent) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
		DoNothing: true,
	}).Create(ev)
	if res.Error != nil {
		return false, res.Error
	}
	created := res.RowsAffected > 0

	var stored domain.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", ev.Provider, ev.ProviderEventID).
		First(&stored).Error
	if err != nil {
		return false, err
	}
	*ev = stored
	return created, nil
}

// MarkProcessed stamps one processing attempt. An empty procErr marks the
// event as applied.
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, id int64, procErr string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&domain.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed_at":     now,
			"processing_error": procErr,
			"attempts":         gorm.Expr("attempts + 1"),
			"updated_at":       now,
		}).Error
}

func (r *WebhookEventRepository) GetByID(ctx context.Context, id int64) (*domain.WebhookEvent, error) {
	var ev domain.WebhookEvent
	err := r.db.WithContext(ctx).First(&ev, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ev, nil
}

// List returns the newest ledger rows first. failedOnly keeps rows whose
// last attempt recorded an error.
func (r *WebhookEventRepository) List(ctx context.Context, failedOnly bool, limit int) ([]domain.WebhookEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Model(&domain.WebhookEvent{})
	if failedOnly {
		q = q.Where("processing_error <> ''")
	}
	var out []domain.WebhookEvent
	err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}

// DeleteAppliedBefore prunes successfully applied rows older than cutoff.
func (r *WebhookEventRepository) DeleteAppliedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("processed_at IS NOT NULL AND (processing_error = '' OR processing_error IS NULL) AND created_at < ?", cutoff).
		Delete(&domain.WebhookEvent{})
	return res.RowsAffected, res.Error
}
