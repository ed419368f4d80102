package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cleanhub/internal/database"
	"cleanhub/internal/domain"
)

type BookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// CreateFromDraft inserts b with its service lines and deletes the draft it
// came from, in one transaction. The draft row is locked first; when it is
// gone, or a booking for the same reference already exists, nothing is
// written and domain.ErrDraftConsumed is returned.
func (r *BookingRepository) CreateFromDraft(ctx context.Context, referenceID string, b *domain.Booking) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var draft domain.PendingBookingDraft
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("reference_id = ?", referenceID).
			First(&draft).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrDraftConsumed
		}
		if err != nil {
			return err
		}

		lines := b.Lines
		b.Lines = nil
		if err := tx.Omit(clause.Associations).Create(b).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return domain.ErrDraftConsumed
			}
			return err
		}
		for i := range lines {
			lines[i].BookingID = b.ID
		}
		if len(lines) > 0 {
			if err := tx.Create(&lines).Error; err != nil {
				return err
			}
		}
		b.Lines = lines

		return tx.Where("id = ?", draft.ID).Delete(&domain.PendingBookingDraft{}).Error
	})
	if err != nil {
		b.ID = 0
	}
	return err
}

func (r *BookingRepository) GetByReferenceID(ctx context.Context, referenceID string) (*domain.Booking, error) {
	var b domain.Booking
	err := r.db.WithContext(ctx).
		Preload("Lines").
		Where("reference_id = ?", referenceID).
		First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

func (r *BookingRepository) CountByReferenceID(ctx context.Context, referenceID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.Booking{}).Where("reference_id = ?", referenceID).Count(&n).Error
	return n, err
}

type DraftRepository struct {
	db *gorm.DB
}

func NewDraftRepository(db *gorm.DB) *DraftRepository {
	return &DraftRepository{db: db}
}

func (r *DraftRepository) Create(ctx context.Context, d *domain.PendingBookingDraft) error {
	return r.db.WithContext(ctx).Create(d).Error
}

// GetByReferenceID returns nil, nil when no draft exists.
func (r *DraftRepository) GetByReferenceID(ctx context.Context, referenceID string) (*domain.PendingBookingDraft, error) {
	var d domain.PendingBookingDraft
	err := r.db.WithContext(ctx).Where("reference_id = ?", referenceID).First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// DeleteOlderThan removes abandoned drafts and reports how many went away.
func (r *DraftRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&domain.PendingBookingDraft{})
	return res.RowsAffected, res.Error
}
