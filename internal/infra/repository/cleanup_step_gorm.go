package repository

import (
	"context"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type CleanupStepGormRepository struct {
	db *gorm.DB
}

func NewCleanupStepGormRepository(db *gorm.DB) *CleanupStepGormRepository {
	return &CleanupStepGormRepository{db: db}
}

// seq順
func (r *CleanupStepGormRepository) ListByOrderID(ctx context.Context, orderID int64) ([]model.CleanupStep, error) {
	var steps []model.CleanupStep
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("seq asc").
		Find(&steps).Error; err != nil {
		return []model.CleanupStep{}, err
	}
	return steps, nil
}

func (r *CleanupStepGormRepository) CreateBulk(ctx context.Context, steps []model.CleanupStep) error {
	if len(steps) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&steps).Error
}

func (r *CleanupStepGormRepository) MarkDone(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Model(&model.CleanupStep{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     model.CleanupStatusDone,
			"attempts":   gorm.Expr("attempts + ?", 1),
			"last_error": "",
		})

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *CleanupStepGormRepository) MarkFailed(ctx context.Context, id int64, lastErr string) error {
	res := r.db.WithContext(ctx).Model(&model.CleanupStep{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     model.CleanupStatusFailed,
			"attempts":   gorm.Expr("attempts + ?", 1),
			"last_error": lastErr,
		})

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
