package model

import "time"

// 支払い画面の状態
type PaymentState string

const (
	PaymentStateNoOrder                 PaymentState = "NO_ORDER"
	PaymentStateAwaitingMethodSelection PaymentState = "AWAITING_METHOD_SELECTION"
	PaymentStateProcessing              PaymentState = "PROCESSING"
	PaymentStateSucceeded               PaymentState = "SUCCEEDED"
	PaymentStateFailed                  PaymentState = "FAILED"
)

// 支払い方法
type PaymentMethod string

const (
	PaymentMethodWallet     PaymentMethod = "wallet"
	PaymentMethodUPI        PaymentMethod = "upi"
	PaymentMethodCard       PaymentMethod = "card"
	PaymentMethodEMI        PaymentMethod = "emi"
	PaymentMethodNetBanking PaymentMethod = "netbanking"
)

var PaymentMethods = []PaymentMethod{
	PaymentMethodUPI,
	PaymentMethodCard,
	PaymentMethodEMI,
	PaymentMethodNetBanking,
	PaymentMethodWallet,
}

// wallet以外はデモ（常に成功）
func (m PaymentMethod) IsDemo() bool {
	switch m {
	case PaymentMethodUPI, PaymentMethodCard, PaymentMethodEMI, PaymentMethodNetBanking:
		return true
	default:
		return false
	}
}

type AttemptStatus string

const (
	AttemptStatusStarted AttemptStatus = "STARTED"
	//送金がタイムアウトして結果不明。同じキーでのみ再試行できる。
	AttemptStatusTransferUnknown AttemptStatus = "TRANSFER_UNKNOWN"
	AttemptStatusTransferred     AttemptStatus = "TRANSFERRED"
	AttemptStatusSucceeded       AttemptStatus = "SUCCEEDED"
	AttemptStatusFailed          AttemptStatus = "FAILED"
	//送金済みなのに注文ステータス更新に失敗。手動照合が必要。
	AttemptStatusInconsistent AttemptStatus = "INCONSISTENT"
)

// クライアントの再試行で同じキーを使ってよいか
func (s AttemptStatus) Retryable() bool {
	return s == AttemptStatusStarted || s == AttemptStatusTransferUnknown
}

// 支払い試行（1回のユーザー操作につき1件、冪等キーを持つ）
type PaymentAttempt struct {
	ID             string        `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Seq            int64         `gorm:"autoIncrement;not null;uniqueIndex" json:"-"`
	OrderID        int64         `gorm:"not null;index" json:"order_id"`
	UserID         int64         `gorm:"not null;index" json:"user_id"`
	IdempotencyKey string        `gorm:"type:varchar(64);not null;uniqueIndex" json:"-"`
	Method         PaymentMethod `gorm:"type:varchar(20);not null" json:"method"`
	Amount         int64         `gorm:"not null" json:"amount"`
	Status         AttemptStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	FailureReason  string        `gorm:"type:text" json:"failure_reason,omitempty"`
	CreatedAt      time.Time     `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
