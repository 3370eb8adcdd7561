package model

import "time"

type CleanupKind string

const (
	CleanupKindReduceStock CleanupKind = "REDUCE_STOCK"
	CleanupKindClearCart   CleanupKind = "CLEAR_CART"
)

type CleanupStatus string

const (
	CleanupStatusPending CleanupStatus = "PENDING"
	CleanupStatusDone    CleanupStatus = "DONE"
	CleanupStatusFailed  CleanupStatus = "FAILED"
)

// 支払い後処理の1ステップ（在庫減算・カートクリア）
// 完了を記録しておき、途中で落ちても次の読み込みで続きから再開する。
type CleanupStep struct {
	ID        int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   int64         `gorm:"not null;uniqueIndex:idx_cleanup_order_seq" json:"order_id"`
	UserID    int64         `gorm:"not null" json:"user_id"`
	Seq       int           `gorm:"not null;uniqueIndex:idx_cleanup_order_seq" json:"seq"`
	Kind      CleanupKind   `gorm:"type:varchar(20);not null" json:"kind"`
	ProductID int64         `json:"product_id,omitempty"`
	Quantity  int64         `json:"quantity,omitempty"`
	Status    CleanupStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	Attempts  int           `gorm:"not null;default:0" json:"attempts"`
	LastError string        `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt time.Time     `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time     `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (s CleanupStep) Done() bool {
	return s.Status == CleanupStatusDone
}
