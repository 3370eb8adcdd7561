package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type reconciliationGormRepository struct {
	db *gorm.DB
}

func NewReconciliationGormRepository(db *gorm.DB) repo.ReconciliationRepository {
	return &reconciliationGormRepository{db: db}
}

func (r *reconciliationGormRepository) Create(ctx context.Context, ev model.ReconciliationEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(&ev).Error; err != nil {
		return err
	}
	return nil
}

func (r *reconciliationGormRepository) ListUnpublished(ctx context.Context, limit int) ([]model.ReconciliationEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	//古い順
	var evs []model.ReconciliationEvent
	if err := r.db.WithContext(ctx).
		Where("published_at IS NULL").
		Order("id ASC").
		Limit(limit).
		Find(&evs).Error; err != nil {
		return nil, err
	}
	return evs, nil
}

func (r *reconciliationGormRepository) MarkPublished(ctx context.Context, id int64) error {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&model.ReconciliationEvent{}).
		Where("id = ? AND published_at IS NULL", id).
		Update("published_at", &now)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
