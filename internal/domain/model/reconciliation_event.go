package model

import "time"

// 照合が必要な事象の種類
type ReconciliationType string

const (
	//送金成功後に注文ステータス更新が失敗した
	ReconciliationInconsistentPayment ReconciliationType = "INCONSISTENT_PAYMENT"
	//支払い後の在庫減算・カートクリアが失敗した
	ReconciliationCleanupFailed ReconciliationType = "CLEANUP_FAILED"
)

// 照合イベント（outbox）。
// 「どの注文で」「何が」「どの状態で」起きたかを残し、pollerがKafkaへ流す。
type ReconciliationEvent struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	OrderID int64 `gorm:"not null;index" json:"order_id"`

	UserID int64 `gorm:"not null;index" json:"user_id"`

	Type ReconciliationType `gorm:"type:varchar(50);not null;index" json:"type"`

	//JSON文字列で保存する。
	Payload string `gorm:"type:text;not null" json:"payload"`

	//未送信ならnil
	PublishedAt *time.Time `gorm:"index" json:"published_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
