package repository

import (
	"context"
	"errors"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SnapshotGormRepository struct {
	db *gorm.DB
}

func NewSnapshotGormRepository(db *gorm.DB) *SnapshotGormRepository {
	return &SnapshotGormRepository{db: db}
}

// user_idで1件に保つ（古い注文のスナップショットは上書き）
func (r *SnapshotGormRepository) Save(ctx context.Context, s model.OrderSnapshot) error {
	s.ID = 0
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"order_id", "schema_version", "buy_now", "address", "items_json",
				"subtotal", "discount", "delivery_fee", "total", "voucher_code",
				"status", "updated_at",
			}),
		}).
		Create(&s).Error
}

func (r *SnapshotGormRepository) FindByUserID(ctx context.Context, userID int64) (model.OrderSnapshot, error) {
	var s model.OrderSnapshot
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.OrderSnapshot{}, repo.ErrNotFound
	}
	if err != nil {
		return model.OrderSnapshot{}, err
	}
	return s, nil
}

func (r *SnapshotGormRepository) MarkPaid(ctx context.Context, userID int64, orderID int64) error {
	res := r.db.WithContext(ctx).Model(&model.OrderSnapshot{}).
		Where("user_id = ? AND order_id = ?", userID, orderID).
		Update("status", model.OrderStatusPaid)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *SnapshotGormRepository) Delete(ctx context.Context, userID int64, orderID int64) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND order_id = ?", userID, orderID).
		Delete(&model.OrderSnapshot{}).Error
}
